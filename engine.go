package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/MrEthical07/authcore/apperr"
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

// healthTimeout bounds each dependency probe.
const healthTimeout = 2 * time.Second

// Engine is the authentication core. It is immutable after Build and safe for
// concurrent use.
type Engine struct {
	config       Config
	log          *zap.Logger
	store        store.Store
	users        *entitycache.Users
	roles        *entitycache.Roles
	cache        cache.Store
	tokens       *session.TokenCache
	jwt          *jwt.Manager
	hasher       *password.Hasher
	replay       *replay.Guard
	loginLimiter *limiters.LoginLimiter
	background   *queue.Background
	writes       *queue.WriteQueue
	mailer       mail.Sender
	links        mail.Links
	profiles     oauth.Fetcher
	exchanger    CodeExchanger
	metrics      *Metrics
	tracer       trace.Tracer
	now          func() time.Time
}

// Close describes the close operation and its observable behavior.
//
// Close stops both queues, waiting for queued work until ctx ends. The
// repository is owned by the caller and is not closed.
func (e *Engine) Close(ctx context.Context) error {
	if e == nil {
		return nil
	}
	return errors.Join(
		e.writes.Close(ctx),
		e.background.Close(ctx),
	)
}

// MetricsSnapshot returns the current counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// BackgroundDropped counts fire-and-forget tasks refused after Close.
func (e *Engine) BackgroundDropped() uint64 {
	if e == nil || e.background == nil {
		return 0
	}
	return e.background.Dropped()
}

// Health describes the health operation and its observable behavior.
//
// Health pings the cache and the repository concurrently. It never fails;
// unreachable dependencies are reported as false.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	var status HealthStatus
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		pctx, cancel := context.WithTimeout(ctx, healthTimeout)
		defer cancel()
		if err := e.cache.Ping(pctx); err != nil {
			e.log.Warn("health: cache unreachable", zap.Error(err))
			return nil
		}
		status.Cache = true
		return nil
	})
	g.Go(func() error {
		pctx, cancel := context.WithTimeout(ctx, healthTimeout)
		defer cancel()
		if err := e.store.Ping(pctx); err != nil {
			e.log.Warn("health: repository unreachable", zap.Error(err))
			return nil
		}
		status.Repository = true
		return nil
	})
	_ = g.Wait()
	return status
}

// Authenticate describes the authenticate operation and its observable behavior.
//
// Authenticate resolves an access token to a principal. A Token Cache hit is
// returned without re-verifying the signature; cached entries never outlive
// the token. On a miss the token is verified, the user is loaded through the
// Entity Cache and the principal is cached. Expired tokens fail with
// ErrTokenExpired (498), every other verification failure with ErrInvalidToken.
func (e *Engine) Authenticate(ctx context.Context, accessToken string) (p *session.Principal, err error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "authcore.Authenticate")
	defer func() {
		e.metrics.Observe(MetricAuthenticateLatency, time.Since(start))
		if err != nil {
			e.metrics.Inc(MetricAuthenticateFailure)
		}
		endSpan(span, err)
	}()

	if accessToken == "" {
		return nil, ErrInvalidToken
	}
	if cached, ok := e.tokens.Get(ctx, accessToken); ok {
		e.metrics.Inc(MetricTokenCacheHit)
		return cached, nil
	}
	e.metrics.Inc(MetricTokenCacheMiss)

	claims, err := e.jwt.VerifyAccess(accessToken)
	if err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			return nil, apperr.Wrap(apperr.KindTokenExpired, ErrTokenExpired.Message, err)
		}
		return nil, apperr.Wrap(apperr.KindAuth, ErrInvalidToken.Message, err)
	}

	u, err := e.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("authenticate: load user: %w", err)
	}

	p = session.NewPrincipal(*u, claims.ExpiresAt.Time)
	e.tokens.Put(ctx, accessToken, p)
	return p, nil
}

// ReplayGuard returns the request guard wrapped so rejections are counted.
func (e *Engine) ReplayGuard() *ReplayCounter {
	return &ReplayCounter{guard: e.replay, metrics: e.metrics}
}

// ReplayCounter checks replay headers and counts rejections.
type ReplayCounter struct {
	guard   *replay.Guard
	metrics *Metrics
}

// Check validates header and records a rejection in the engine metrics.
func (r *ReplayCounter) Check(ctx context.Context, header string) error {
	err := r.guard.Check(ctx, header)
	if err != nil {
		r.metrics.Inc(MetricReplayRejected)
	}
	return err
}

// Guard exposes the underlying guard for signing test headers.
func (r *ReplayCounter) Guard() *replay.Guard { return r.guard }

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, apperr.KindOf(err).String())
	}
	span.End()
}

// send queues an email on the background queue. Delivery failures are logged
// by the queue and never reach the caller.
func (e *Engine) send(msg mail.Message) {
	if !e.background.Go("mail:"+string(msg.Kind), func(ctx context.Context) error {
		return e.mailer(ctx, msg)
	}) {
		e.log.Warn("mail dropped", zap.String("kind", string(msg.Kind)))
	}
}
