package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/authcore/cache"
)

const (
	// DefaultTokenTTL bounds how long a verified token is served from cache.
	DefaultTokenTTL = 60 * time.Second

	tokenKeyPrefix = "token:"
	userIndexKey   = "token:user:"
)

// TokenCache maps raw access tokens to verified principals. Raw tokens are
// hashed before they become keys. Cache failures are logged and read as misses.
type TokenCache struct {
	store cache.Store
	ttl   time.Duration
	log   *zap.Logger
	now   func() time.Time
}

// NewTokenCache returns a cache whose entries live at most ttl.
func NewTokenCache(store cache.Store, ttl time.Duration, log *zap.Logger) *TokenCache {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &TokenCache{store: store, ttl: ttl, log: log.Named("token_cache"), now: time.Now}
}

// Key is the cache key of a raw access token.
func Key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return tokenKeyPrefix + hex.EncodeToString(sum[:])
}

// Get returns the cached principal for token.
func (c *TokenCache) Get(ctx context.Context, token string) (*Principal, bool) {
	if c == nil || c.store == nil || token == "" {
		return nil, false
	}
	var p Principal
	ok, err := cache.GetJSON(ctx, c.store, Key(token), &p)
	if err != nil {
		c.log.Warn("token cache read failed", zap.Error(err))
		return nil, false
	}
	if !ok || !c.now().Before(p.ExpiresAt) {
		return nil, false
	}
	return &p, true
}

// Put caches p for token. The entry never outlives the token itself.
func (c *TokenCache) Put(ctx context.Context, token string, p *Principal) {
	if c == nil || c.store == nil || token == "" || p == nil {
		return
	}
	ttl := c.ttl
	if remaining := p.ExpiresAt.Sub(c.now()); remaining < ttl {
		ttl = remaining
	}
	if ttl <= 0 {
		return
	}

	snapshot := *p
	snapshot.User.PasswordHash = ""
	key := Key(token)
	if err := cache.SetJSON(ctx, c.store, key, &snapshot, ttl); err != nil {
		c.log.Warn("token cache write failed", zap.String("user_id", p.User.ID), zap.Error(err))
		return
	}
	if err := c.store.AddMember(ctx, userIndexKey+p.User.ID, key, c.ttl); err != nil {
		c.log.Warn("token cache index failed", zap.String("user_id", p.User.ID), zap.Error(err))
	}
}

// Evict removes the entry for token.
func (c *TokenCache) Evict(ctx context.Context, token string) {
	if c == nil || c.store == nil || token == "" {
		return
	}
	if err := c.store.Delete(ctx, Key(token)); err != nil {
		c.log.Warn("token cache evict failed", zap.Error(err))
	}
}

// EvictUser removes every cached token of userID.
func (c *TokenCache) EvictUser(ctx context.Context, userID string) {
	if c == nil || c.store == nil || userID == "" {
		return
	}
	keys, err := c.store.PopMembers(ctx, userIndexKey+userID)
	if err != nil {
		c.log.Warn("token cache index read failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.store.Delete(ctx, keys...); err != nil {
		c.log.Warn("token cache user evict failed", zap.String("user_id", userID), zap.Error(err))
	}
}
