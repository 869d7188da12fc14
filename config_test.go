package authcore

import (
	"testing"
	"time"

	"github.com/MrEthical07/authcore/store"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "test config valid",
			mutate:    func(c *Config) {},
			wantValid: true,
		},
		{
			name: "short access secret",
			mutate: func(c *Config) {
				c.JWT.AccessSecret = "short"
			},
			wantValid: false,
		},
		{
			name: "equal secrets",
			mutate: func(c *Config) {
				c.JWT.RefreshSecret = c.JWT.AccessSecret
			},
			wantValid: false,
		},
		{
			name: "refresh ttl not above access ttl",
			mutate: func(c *Config) {
				c.JWT.RefreshTTL = c.JWT.AccessTTL
			},
			wantValid: false,
		},
		{
			name: "jwt leeway valid",
			mutate: func(c *Config) {
				c.JWT.Leeway = 45 * time.Second
			},
			wantValid: true,
		},
		{
			name: "jwt leeway invalid",
			mutate: func(c *Config) {
				c.JWT.Leeway = 3 * time.Minute
			},
			wantValid: false,
		},
		{
			name: "argon2 memory too low",
			mutate: func(c *Config) {
				c.Password.Memory = 1024
			},
			wantValid: false,
		},
		{
			name: "replay enabled without secret",
			mutate: func(c *Config) {
				c.Replay.Enabled = true
				c.Replay.Secret = ""
			},
			wantValid: false,
		},
		{
			name: "replay enabled with secret",
			mutate: func(c *Config) {
				c.Replay.Enabled = true
				c.Replay.Secret = "replay-secret-0123456789"
			},
			wantValid: true,
		},
		{
			name: "empty cache prefix",
			mutate: func(c *Config) {
				c.Cache.Prefix = ""
			},
			wantValid: false,
		},
		{
			name: "no write workers",
			mutate: func(c *Config) {
				c.Queue.Write.Workers = 0
			},
			wantValid: false,
		},
		{
			name: "zero verification budget",
			mutate: func(c *Config) {
				c.Verification.MaxPerWindow = 0
			},
			wantValid: false,
		},
		{
			name: "login limiter disabled ignores attempts",
			mutate: func(c *Config) {
				c.RateLimit.Login.Enabled = false
				c.RateLimit.Login.MaxAttempts = 0
			},
			wantValid: true,
		},
		{
			name: "login limiter enabled needs attempts",
			mutate: func(c *Config) {
				c.RateLimit.Login.MaxAttempts = 0
			},
			wantValid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantValid && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tt.wantValid && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestDefaultConfigNeedsSecrets(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected DefaultConfig without secrets to fail validation")
	}
}

func TestConfigTokenTTL(t *testing.T) {
	cfg := DefaultConfig()
	cases := map[store.VerificationType]time.Duration{
		store.VerificationEmail:         24 * time.Hour,
		store.VerificationPasswordReset: time.Hour,
		store.VerificationEmailChange:   time.Hour,
	}
	for typ, want := range cases {
		if got := cfg.tokenTTL(typ); got != want {
			t.Fatalf("tokenTTL(%s) = %v, want %v", typ, got, want)
		}
	}
}
