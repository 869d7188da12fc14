package entitycache

import (
	"context"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/MrEthical07/authcore/cache"
	"github.com/MrEthical07/authcore/queue"
)

const (
	DefaultDetailTTL       = 5 * time.Minute
	DefaultListTTL         = 2 * time.Minute
	DefaultSecondPassDelay = time.Second
)

// Config sets entry lifetimes.
type Config struct {
	DetailTTL       time.Duration
	ListTTL         time.Duration
	SecondPassDelay time.Duration
}

// invalidator deletes keys and prefixes now and once more after a delay.
type invalidator struct {
	cache cache.Store
	bg    *queue.Background
	log   *zap.Logger
	delay time.Duration
}

func (inv invalidator) invalidate(ctx context.Context, keys, prefixes []string) {
	inv.purge(ctx, keys, prefixes)
	if inv.bg == nil {
		return
	}
	inv.bg.After("entitycache.invalidate", inv.delay, func(ctx context.Context) error {
		inv.purge(ctx, keys, prefixes)
		return nil
	})
}

func (inv invalidator) purge(ctx context.Context, keys, prefixes []string) {
	if len(keys) > 0 {
		if err := inv.cache.Delete(ctx, keys...); err != nil {
			inv.log.Warn("cache delete failed", zap.Strings("keys", keys), zap.Error(err))
		}
	}
	if len(prefixes) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, prefix := range prefixes {
		g.Go(func() error {
			_, err := inv.cache.DeletePrefix(gctx, prefix)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		inv.log.Warn("cache prefix delete failed", zap.Strings("prefixes", prefixes), zap.Error(err))
	}
}

// read serves key from cache, or loads and stores it.
func read[T any](ctx context.Context, c cache.Store, log *zap.Logger, key string, ttl time.Duration, load func() (T, error)) (T, error) {
	var cached T
	ok, err := cache.GetJSON(ctx, c, key, &cached)
	if err != nil {
		log.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	}
	if ok {
		return cached, nil
	}

	val, err := load()
	if err != nil {
		return val, err
	}
	if err := cache.SetJSON(ctx, c, key, val, ttl); err != nil {
		log.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
	return val, nil
}

func pageKey(limit, offset int) string {
	l := "all"
	if limit > 0 {
		l = strconv.Itoa(limit)
	}
	return l + ":" + strconv.Itoa(offset)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func withDefaults(cfg Config) Config {
	if cfg.DetailTTL <= 0 {
		cfg.DetailTTL = DefaultDetailTTL
	}
	if cfg.ListTTL <= 0 {
		cfg.ListTTL = DefaultListTTL
	}
	if cfg.SecondPassDelay <= 0 {
		cfg.SecondPassDelay = DefaultSecondPassDelay
	}
	return cfg
}
