// Package config loads the process configuration of cmd/authcore from a YAML
// file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/oauth"
)

const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

type Config struct {
	Env        string `yaml:"env" env:"ENV" env-default:"local"`
	HTTPServer `yaml:"http_server"`
	Redis      `yaml:"redis"`
	DB         `yaml:"db"`
	Auth       `yaml:"auth"`
	Security   `yaml:"security"`
	OAuth      `yaml:"oauth"`
	Telemetry  `yaml:"telemetry"`
}

type HTTPServer struct {
	Address         string        `yaml:"address" env:"HTTP_ADDR" env-default:":8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"HTTP_READ_TIMEOUT" env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"HTTP_WRITE_TIMEOUT" env-default:"10s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"HTTP_IDLE_TIMEOUT" env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"15s"`
	ThrottleRPS     float64       `yaml:"throttle_rps" env:"HTTP_THROTTLE_RPS" env-default:"20"`
	ThrottleBurst   int           `yaml:"throttle_burst" env:"HTTP_THROTTLE_BURST" env-default:"40"`
}

type Redis struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR" env-default:"127.0.0.1:6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

type DB struct {
	URL          string        `yaml:"url" env:"DATABASE_URL" env-required:"true"`
	MaxConns     int32         `yaml:"max_conns" env:"DATABASE_MAX_CONNS" env-default:"10"`
	QueryTimeout time.Duration `yaml:"query_timeout" env:"DATABASE_QUERY_TIMEOUT" env-default:"5s"`
}

type Auth struct {
	PasswordPepper string `yaml:"password_pepper" env:"PASSWORD_PEPPER_SECRET" env-required:"true"`
	AccessSecret   string `yaml:"access_secret" env:"ACCESS_TOKEN_SECRET" env-required:"true"`
	RefreshSecret  string `yaml:"refresh_secret" env:"REFRESH_TOKEN_SECRET" env-required:"true"`

	// Lifetimes accept Go durations plus a day suffix ("30d").
	AccessTTL  string `yaml:"access_ttl" env:"ACCESS_TOKEN_EXPIRES_IN" env-default:"15m"`
	RefreshTTL string `yaml:"refresh_ttl" env:"REFRESH_TOKEN_EXPIRES_IN" env-default:"30d"`

	FrontendURL string `yaml:"frontend_url" env:"FRONTEND_URL" env-default:"http://localhost:3000"`
}

type Security struct {
	HashSecret string `yaml:"hash_secret" env:"SECURITY_HASH_SECRET"`

	// HashTTLSeconds is how long a replay nonce is remembered.
	HashTTLSeconds int `yaml:"hash_ttl_seconds" env:"DURATION_CACHE_HASH_SECOND" env-default:"300"`
}

type OAuthClient struct {
	ClientID     string `yaml:"client_id" env:"CLIENT_ID"`
	ClientSecret string `yaml:"client_secret" env:"CLIENT_SECRET"`
	RedirectURL  string `yaml:"redirect_url" env:"REDIRECT_URL"`
}

type OAuth struct {
	Google   OAuthClient `yaml:"google" env-prefix:"GOOGLE_"`
	Facebook OAuthClient `yaml:"facebook" env-prefix:"FACEBOOK_"`
	Discord  OAuthClient `yaml:"discord" env-prefix:"DISCORD_"`
	GitHub   OAuthClient `yaml:"github" env-prefix:"GITHUB_"`
}

type Telemetry struct {
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME" env-default:"authcore"`
	// Endpoint is the OTLP/HTTP trace collector URL. Empty disables tracing.
	Endpoint string `yaml:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// Load reads a local .env file if present, then the YAML file named by
// CONFIG_PATH (when set) and finally the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		return &cfg, nil
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}
	return &cfg, nil
}

// MustLoad is Load that panics.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Engine maps the process configuration onto the engine defaults.
func (c *Config) Engine() (authcore.Config, error) {
	out := authcore.DefaultConfig()

	access, err := jwt.ParseTTL(c.Auth.AccessTTL)
	if err != nil {
		return out, fmt.Errorf("ACCESS_TOKEN_EXPIRES_IN: %w", err)
	}
	refresh, err := jwt.ParseTTL(c.Auth.RefreshTTL)
	if err != nil {
		return out, fmt.Errorf("REFRESH_TOKEN_EXPIRES_IN: %w", err)
	}

	out.JWT.AccessSecret = c.Auth.AccessSecret
	out.JWT.RefreshSecret = c.Auth.RefreshSecret
	out.JWT.AccessTTL = access
	out.JWT.RefreshTTL = refresh
	out.Password.Pepper = c.Auth.PasswordPepper
	out.Verification.BaseURL = c.Auth.FrontendURL

	out.Replay.Enabled = c.Security.HashSecret != ""
	out.Replay.Secret = c.Security.HashSecret
	if c.Security.HashTTLSeconds < 0 {
		return out, errors.New("DURATION_CACHE_HASH_SECOND must be >= 0")
	}
	if c.Security.HashTTLSeconds > 0 {
		out.Replay.TTL = time.Duration(c.Security.HashTTLSeconds) * time.Second
	}

	if err := out.Validate(); err != nil {
		return out, err
	}
	return out, nil
}

// Providers returns the OAuth client credentials keyed by provider. Providers
// without a client id are skipped by the exchanger.
func (c *Config) Providers() map[oauth.Provider]oauth.ProviderCredentials {
	creds := func(p oauth.Provider, cl OAuthClient) oauth.ProviderCredentials {
		return oauth.ProviderCredentials{
			ClientID:     cl.ClientID,
			ClientSecret: cl.ClientSecret,
			RedirectURL:  cl.RedirectURL,
			TokenURL:     oauth.DefaultTokenURLs[p],
		}
	}
	return map[oauth.Provider]oauth.ProviderCredentials{
		oauth.Google:   creds(oauth.Google, c.OAuth.Google),
		oauth.Facebook: creds(oauth.Facebook, c.OAuth.Facebook),
		oauth.Discord:  creds(oauth.Discord, c.OAuth.Discord),
		oauth.GitHub:   creds(oauth.GitHub, c.OAuth.GitHub),
	}
}
