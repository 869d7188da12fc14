package middleware

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/MrEthical07/authcore/apperr"
	"github.com/MrEthical07/authcore/router"
)

// ErrTooManyRequests is returned when a client exhausts its token bucket.
var ErrTooManyRequests = apperr.New(apperr.KindRateLimited, "Too Many Requests")

const idleLimiterTTL = 5 * time.Minute

// Throttler keeps one token bucket per client IP.
type Throttler struct {
	limit rate.Limit
	burst int
	idle  time.Duration

	mu        sync.Mutex
	clients   map[string]*clientLimiter
	lastSweep time.Time
	now       func() time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewThrottler allows rps requests per second per IP with the given burst. A
// non-positive rps returns nil, which never throttles.
func NewThrottler(rps float64, burst int) *Throttler {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &Throttler{
		limit:   rate.Limit(rps),
		burst:   burst,
		idle:    idleLimiterTTL,
		clients: make(map[string]*clientLimiter),
		now:     time.Now,
	}
}

// Step rejects requests over budget. It expects ClientIP to have run.
func (t *Throttler) Step() router.Step {
	return func(r *router.Request) (*router.Response, error) {
		if t == nil || r.ClientIP == "" {
			return nil, nil
		}
		if !t.limiter(r.ClientIP).Allow() {
			return nil, ErrTooManyRequests
		}
		return nil, nil
	}
}

// Throttle is shorthand for NewThrottler(rps, burst).Step().
func Throttle(rps float64, burst int) router.Step {
	return NewThrottler(rps, burst).Step()
}

func (t *Throttler) limiter(key string) *rate.Limiter {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()

	if entry, ok := t.clients[key]; ok {
		entry.lastSeen = now
		return entry.limiter
	}

	limiter := rate.NewLimiter(t.limit, t.burst)
	t.clients[key] = &clientLimiter{limiter: limiter, lastSeen: now}
	t.sweepLocked(now)
	return limiter
}

// sweepLocked drops idle buckets at most once per half idle period.
func (t *Throttler) sweepLocked(now time.Time) {
	if now.Sub(t.lastSweep) < t.idle/2 {
		return
	}
	t.lastSweep = now
	for key, entry := range t.clients {
		if now.Sub(entry.lastSeen) > t.idle {
			delete(t.clients, key)
		}
	}
}

// Tracked reports how many client buckets are live.
func (t *Throttler) Tracked() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.clients)
}
