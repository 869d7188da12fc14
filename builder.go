package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/MrEthical07/authcore/cache"
	"github.com/MrEthical07/authcore/entitycache"
	"github.com/MrEthical07/authcore/internal/limiters"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/mail"
	"github.com/MrEthical07/authcore/oauth"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/queue"
	"github.com/MrEthical07/authcore/replay"
	"github.com/MrEthical07/authcore/session"
	"github.com/MrEthical07/authcore/store"
)

// TracerName is the instrumentation scope of engine spans.
const TracerName = "authcore"

// CodeExchanger swaps an OAuth authorization code for a provider access
// token. *oauth.Exchanger implements it.
type CodeExchanger interface {
	Exchange(ctx context.Context, provider oauth.Provider, code string) (string, error)
}

// Builder assembles an Engine. A Builder is single-use: Build may succeed
// only once.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	cache  cache.Store
	store  store.Store
	log    *zap.Logger

	mailer    mail.Sender
	profiles  oauth.Fetcher
	exchanger CodeExchanger
	tracer    trace.Tracer
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig replaces the whole configuration; start from DefaultConfig to
// keep unset sections sane.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis sets the Redis client behind every cache. The key namespace is
// Config.Cache.Prefix.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithCache sets the cache store directly and takes precedence over WithRedis.
func (b *Builder) WithCache(c cache.Store) *Builder {
	b.cache = c
	return b
}

// WithStore describes the withstore operation and its observable behavior.
//
// WithStore sets the repository. It is required.
func (b *Builder) WithStore(s store.Store) *Builder {
	b.store = s
	return b
}

// WithLogger sets the logger. The default discards everything.
func (b *Builder) WithLogger(log *zap.Logger) *Builder {
	b.log = log
	return b
}

// WithMailer sets the outbound email function. The default logs messages.
func (b *Builder) WithMailer(sender mail.Sender) *Builder {
	b.mailer = sender
	return b
}

// WithProfileFetcher sets the social profile fetcher. The default calls the
// providers' public APIs.
func (b *Builder) WithProfileFetcher(f oauth.Fetcher) *Builder {
	b.profiles = f
	return b
}

// WithExchanger enables OAuthCallback.
func (b *Builder) WithExchanger(x CodeExchanger) *Builder {
	b.exchanger = x
	return b
}

// WithTracer overrides the tracer obtained from the global provider.
func (b *Builder) WithTracer(t trace.Tracer) *Builder {
	b.tracer = t
	return b
}

// WithClock overrides time.Now for token signing, validation and expiry
// decisions.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build validates the configuration, wires every component and starts the
// queues. It fails when the repository or the cache is missing.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.store == nil {
		return nil, errors.New("store required")
	}

	c := b.cache
	if c == nil {
		if b.redis == nil {
			return nil, errors.New("redis client required")
		}
		c = cache.NewRedisStore(b.redis, cfg.Cache.Prefix)
	}

	log := b.log
	if log == nil {
		log = zap.NewNop()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	hasher, err := password.NewHasher(cfg.Password)
	if err != nil {
		return nil, err
	}

	jm, err := jwt.NewManager(jwt.Config{
		AccessSecret:  []byte(cfg.JWT.AccessSecret),
		RefreshSecret: []byte(cfg.JWT.RefreshSecret),
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		Issuer:        cfg.JWT.Issuer,
		Leeway:        cfg.JWT.Leeway,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}

	guard, err := replay.NewGuard(c, replay.Config{
		Enabled: cfg.Replay.Enabled,
		Secret:  []byte(cfg.Replay.Secret),
		TTL:     cfg.Replay.TTL,
	})
	if err != nil {
		return nil, fmt.Errorf("replay guard: %w", err)
	}

	// -------- QUEUES --------
	background := queue.NewBackground(cfg.Queue.Background, log)
	writes := queue.NewWriteQueue(cfg.Queue.Write, log)

	// -------- CACHES --------
	ecfg := entitycache.Config{
		DetailTTL:       cfg.Cache.DetailTTL,
		ListTTL:         cfg.Cache.ListTTL,
		SecondPassDelay: cfg.Cache.SecondPassDelay,
	}
	users := entitycache.NewUsers(b.store.Users(), c, background, ecfg, log)
	roles := entitycache.NewRoles(b.store.Roles(), users, c, background, ecfg, log)

	engine := &Engine{
		config:       cfg,
		log:          log.Named("engine"),
		store:        b.store,
		users:        users,
		roles:        roles,
		cache:        c,
		tokens:       session.NewTokenCache(c, cfg.Cache.TokenTTL, log),
		jwt:          jm,
		hasher:       hasher,
		replay:       guard,
		loginLimiter: limiters.NewLoginLimiter(c, cfg.RateLimit.Login),
		background:   background,
		writes:       writes,
		mailer:       b.mailer,
		links:        mail.Links{BaseURL: cfg.Verification.BaseURL},
		profiles:     b.profiles,
		exchanger:    b.exchanger,
		metrics:      NewMetrics(cfg.Metrics),
		tracer:       b.tracer,
		now:          now,
	}
	if engine.mailer == nil {
		engine.mailer = mail.LogSender(log)
	}
	if engine.profiles == nil {
		engine.profiles = oauth.NewClient(nil)
	}
	if engine.tracer == nil {
		engine.tracer = otel.Tracer(TracerName)
	}

	b.built = true

	return engine, nil
}
