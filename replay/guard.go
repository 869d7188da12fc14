// Package replay rejects requests that do not carry a fresh, server-signed
// nonce.
//
// Clients send a header "hash: <nonce>.<mac>" where mac is the hex HMAC-SHA256
// of the nonce under a shared secret. A nonce is accepted once; it is
// remembered with an atomic SETNX for the configured TTL.
package replay

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/authcore/apperr"
	"github.com/MrEthical07/authcore/cache"
)

// Header is the request header carrying the signed nonce.
const Header = "hash"

const (
	// DefaultTTL is how long a seen nonce is remembered.
	DefaultTTL = 1800 * time.Second
	keyPrefix  = "security:nonce:"
	minSecret  = 16
)

var (
	ErrMissingSignature = apperr.New(apperr.KindBadSignature, "Missing Signature")
	ErrInvalidFormat    = apperr.New(apperr.KindBadSignature, "Invalid Format")
	ErrInvalidSignature = apperr.New(apperr.KindBadSignature, "Invalid Signature")
	ErrDuplicateRequest = apperr.Conflict("Duplicate Request")

	// ErrWeakSecret is returned by NewGuard for an enabled guard with a short secret.
	ErrWeakSecret = errors.New("replay: secret must be at least 16 bytes")
)

// Config controls the guard. A disabled guard accepts every request.
type Config struct {
	Enabled bool
	Secret  []byte
	TTL     time.Duration
}

// Guard checks signed nonces.
type Guard struct {
	cache  cache.Store
	config Config
}

// NewGuard validates cfg and returns a guard.
func NewGuard(store cache.Store, cfg Config) (*Guard, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Enabled {
		if len(cfg.Secret) < minSecret {
			return nil, ErrWeakSecret
		}
		if store == nil {
			return nil, errors.New("replay: cache store is required")
		}
	}
	return &Guard{cache: store, config: cfg}, nil
}

// Enabled reports whether the guard checks anything.
func (g *Guard) Enabled() bool { return g != nil && g.config.Enabled }

// Sign returns the hex mac of nonce.
func (g *Guard) Sign(nonce string) string {
	return Sign(g.config.Secret, nonce)
}

// NewHeader returns a fresh header value.
func (g *Guard) NewHeader() string {
	nonce := uuid.NewString()
	return nonce + "." + g.Sign(nonce)
}

// Check validates a header value and consumes its nonce. A cache failure is
// an internal error: the request is refused.
func (g *Guard) Check(ctx context.Context, header string) error {
	if !g.Enabled() {
		return nil
	}

	header = strings.TrimSpace(header)
	if header == "" {
		return ErrMissingSignature
	}
	nonce, mac, ok := strings.Cut(header, ".")
	if !ok || nonce == "" || mac == "" || strings.Contains(mac, ".") {
		return ErrInvalidFormat
	}
	if !hmac.Equal([]byte(mac), []byte(g.Sign(nonce))) {
		return ErrInvalidSignature
	}

	stored, err := g.cache.SetNX(ctx, keyPrefix+nonce, []byte("1"), g.config.TTL)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "replay check failed", err)
	}
	if !stored {
		return ErrDuplicateRequest
	}
	return nil
}

// Sign computes hex(HMAC-SHA256(secret, nonce)).
func Sign(secret []byte, nonce string) string {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(nonce))
	return hex.EncodeToString(h.Sum(nil))
}
