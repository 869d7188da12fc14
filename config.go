package authcore

import (
	"errors"
	"time"

	"github.com/MrEthical07/authcore/entitycache"
	"github.com/MrEthical07/authcore/internal/limiters"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/queue"
	"github.com/MrEthical07/authcore/replay"
	"github.com/MrEthical07/authcore/session"
	"github.com/MrEthical07/authcore/store"
)

const (
	minPasswordLength = 8
	minSecretLength   = 32
)

// Config is the full engine configuration. Obtain one from DefaultConfig,
// override what the deployment needs and pass it to Builder.WithConfig.
type Config struct {
	JWT          JWTConfig
	Password     password.Config
	Replay       ReplayConfig
	Cache        CacheConfig
	Queue        QueueConfig
	Verification VerificationConfig
	RateLimit    RateLimitConfig
	Metrics      MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig holds token secrets and lifetimes. Both secrets are HS256 keys
// and must differ.
type JWTConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Leeway        time.Duration
}

/*
====================================
REPLAY CONFIG
====================================
*/

// ReplayConfig controls the nonce.mac request guard.
type ReplayConfig struct {
	Enabled bool
	Secret  string
	TTL     time.Duration
}

/*
====================================
CACHE CONFIG
====================================
*/

// CacheConfig controls the Redis namespace and every cache lifetime.
type CacheConfig struct {
	Prefix          string
	TokenTTL        time.Duration
	DetailTTL       time.Duration
	ListTTL         time.Duration
	SecondPassDelay time.Duration
}

/*
====================================
QUEUE CONFIG
====================================
*/

// QueueConfig sizes the background and write queues.
type QueueConfig struct {
	Background queue.BackgroundConfig
	Write      queue.WriteConfig
}

/*
====================================
VERIFICATION CONFIG
====================================
*/

// VerificationConfig controls email verification, password reset and email
// change tokens.
type VerificationConfig struct {
	EmailTTL         time.Duration
	PasswordResetTTL time.Duration
	EmailChangeTTL   time.Duration
	// MaxPerWindow tokens of one type may be issued to a user per Window.
	MaxPerWindow int
	Window       time.Duration
	// LatestLimit is how many tokens LatestVerificationTokens returns.
	LatestLimit int
	// BaseURL is the frontend origin used in email links.
	BaseURL string
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig holds the failed-login budget. Per-IP request throttling is
// a pipeline step and is configured where routes are built.
type RateLimitConfig struct {
	Login limiters.LoginConfig
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig toggles the in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns production defaults. Secrets are left empty and must
// be supplied.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 30 * 24 * time.Hour,
			Leeway:     5 * time.Second,
		},
		Password: password.DefaultConfig(),
		Replay: ReplayConfig{
			Enabled: true,
			TTL:     replay.DefaultTTL,
		},
		Cache: CacheConfig{
			Prefix:          "authcore",
			TokenTTL:        session.DefaultTokenTTL,
			DetailTTL:       entitycache.DefaultDetailTTL,
			ListTTL:         entitycache.DefaultListTTL,
			SecondPassDelay: entitycache.DefaultSecondPassDelay,
		},
		Queue: QueueConfig{
			Background: queue.BackgroundConfig{Workers: 16, TaskTimeout: 30 * time.Second},
			Write:      queue.WriteConfig{Workers: 4, Depth: 256},
		},
		Verification: VerificationConfig{
			EmailTTL:         24 * time.Hour,
			PasswordResetTTL: time.Hour,
			EmailChangeTTL:   time.Hour,
			MaxPerWindow:     3,
			Window:           time.Hour,
			LatestLimit:      10,
		},
		RateLimit: RateLimitConfig{
			Login: limiters.LoginConfig{
				Enabled:     true,
				MaxAttempts: 5,
				Window:      15 * time.Minute,
			},
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

// Validate describes the validate operation and its observable behavior.
//
// Validate returns the first configuration problem it finds. Build calls it,
// so a misconfigured engine never starts.
func (c *Config) Validate() error {
	// JWT
	if len(c.JWT.AccessSecret) < minSecretLength {
		return errors.New("JWT AccessSecret must be at least 32 bytes")
	}
	if len(c.JWT.RefreshSecret) < minSecretLength {
		return errors.New("JWT RefreshSecret must be at least 32 bytes")
	}
	if c.JWT.AccessSecret == c.JWT.RefreshSecret {
		return errors.New("JWT AccessSecret and RefreshSecret must differ")
	}
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be > AccessTTL")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	// Replay
	if c.Replay.Enabled && len(c.Replay.Secret) < 16 {
		return errors.New("Replay Secret must be at least 16 bytes when enabled")
	}
	if c.Replay.TTL < 0 {
		return errors.New("Replay TTL must be >= 0")
	}

	// Cache
	if c.Cache.Prefix == "" {
		return errors.New("Cache Prefix must not be empty")
	}
	if c.Cache.TokenTTL <= 0 {
		return errors.New("Cache TokenTTL must be > 0")
	}
	if c.Cache.DetailTTL <= 0 || c.Cache.ListTTL <= 0 {
		return errors.New("Cache DetailTTL and ListTTL must be > 0")
	}
	if c.Cache.SecondPassDelay < 0 {
		return errors.New("Cache SecondPassDelay must be >= 0")
	}

	// Queue
	if c.Queue.Background.Workers <= 0 {
		return errors.New("Queue Background Workers must be > 0")
	}
	if c.Queue.Write.Workers <= 0 {
		return errors.New("Queue Write Workers must be > 0")
	}
	if c.Queue.Write.Depth < 0 {
		return errors.New("Queue Write Depth must be >= 0")
	}

	// Verification
	if c.Verification.EmailTTL <= 0 || c.Verification.PasswordResetTTL <= 0 || c.Verification.EmailChangeTTL <= 0 {
		return errors.New("Verification token TTLs must be > 0")
	}
	if c.Verification.MaxPerWindow <= 0 || c.Verification.Window <= 0 {
		return errors.New("Verification MaxPerWindow and Window must be > 0")
	}
	if c.Verification.LatestLimit <= 0 {
		return errors.New("Verification LatestLimit must be > 0")
	}

	// Rate limit
	if c.RateLimit.Login.Enabled {
		if c.RateLimit.Login.MaxAttempts <= 0 {
			return errors.New("RateLimit Login MaxAttempts must be > 0")
		}
		if c.RateLimit.Login.Window <= 0 {
			return errors.New("RateLimit Login Window must be > 0")
		}
	}

	return nil
}

func (c Config) tokenTTL(t store.VerificationType) time.Duration {
	switch t {
	case store.VerificationPasswordReset:
		return c.Verification.PasswordResetTTL
	case store.VerificationEmailChange:
		return c.Verification.EmailChangeTTL
	default:
		return c.Verification.EmailTTL
	}
}
