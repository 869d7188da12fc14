package limiters

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/cache"
)

var (
	// ErrLoginRateLimited is returned once an email+IP pair exhausts its budget.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrLoginLimiterUnavailable wraps cache failures.
	ErrLoginLimiterUnavailable = errors.New("login limiter unavailable")
)

// LoginConfig holds the failed-login budget.
type LoginConfig struct {
	Enabled     bool
	MaxAttempts int
	Window      time.Duration
}

// LoginLimiter counts failed logins per email and per email+IP in fixed
// windows. A nil limiter allows everything.
type LoginLimiter struct {
	cache  cache.Store
	config LoginConfig
}

// NewLoginLimiter returns nil when the limiter is disabled.
func NewLoginLimiter(store cache.Store, cfg LoginConfig) *LoginLimiter {
	if !cfg.Enabled || store == nil {
		return nil
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Window <= 0 {
		cfg.Window = 15 * time.Minute
	}
	return &LoginLimiter{cache: store, config: cfg}
}

// Check fails when either counter is already over budget.
func (l *LoginLimiter) Check(ctx context.Context, email, ip string) error {
	if l == nil {
		return nil
	}
	for _, key := range l.keys(email, ip) {
		raw, ok, err := l.cache.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrLoginLimiterUnavailable, err)
		}
		if !ok {
			continue
		}
		count, err := strconv.Atoi(string(raw))
		if err != nil {
			continue
		}
		if count >= l.config.MaxAttempts {
			return ErrLoginRateLimited
		}
	}
	return nil
}

// Fail records a failed attempt.
func (l *LoginLimiter) Fail(ctx context.Context, email, ip string) error {
	if l == nil {
		return nil
	}
	for _, key := range l.keys(email, ip) {
		if _, err := l.cache.Incr(ctx, key, l.config.Window); err != nil {
			return fmt.Errorf("%w: %v", ErrLoginLimiterUnavailable, err)
		}
	}
	return nil
}

// Reset clears both counters after a successful login.
func (l *LoginLimiter) Reset(ctx context.Context, email, ip string) error {
	if l == nil {
		return nil
	}
	if err := l.cache.Delete(ctx, l.keys(email, ip)...); err != nil {
		return fmt.Errorf("%w: %v", ErrLoginLimiterUnavailable, err)
	}
	return nil
}

func (l *LoginLimiter) keys(email, ip string) []string {
	email = strings.ToLower(strings.TrimSpace(email))
	keys := []string{"limit:login:" + email}
	if ip != "" {
		keys = append(keys, "limit:login-ip:"+email+":"+ip)
	}
	return keys
}
