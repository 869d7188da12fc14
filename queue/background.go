package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// ErrClosed is returned for work submitted after Close.
var ErrClosed = errors.New("queue: closed")

const (
	defaultBackgroundWorkers = 16
	defaultTaskTimeout       = 30 * time.Second
)

// BackgroundConfig controls the fire-and-forget queue.
type BackgroundConfig struct {
	Workers     int64         `yaml:"workers" env:"QUEUE_BACKGROUND_WORKERS" env-default:"16"`
	TaskTimeout time.Duration `yaml:"task_timeout" env:"QUEUE_TASK_TIMEOUT" env-default:"30s"`
}

// Background executes named tasks with bounded concurrency. Errors and panics
// are logged with the task name and never reach the submitter.
type Background struct {
	cfg    BackgroundConfig
	log    *zap.Logger
	sem    *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.RWMutex
	closed    bool
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	failed    atomic.Uint64
	closeOnce sync.Once
}

// NewBackground returns a running queue. A nil logger disables logging.
func NewBackground(cfg BackgroundConfig, log *zap.Logger) *Background {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultBackgroundWorkers
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = defaultTaskTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Background{
		cfg:    cfg,
		log:    log.Named("background"),
		sem:    semaphore.NewWeighted(cfg.Workers),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Go schedules fn and reports whether it was accepted. fn receives a context
// detached from any request, bounded by the task timeout.
func (b *Background) Go(name string, fn func(ctx context.Context) error) bool {
	return b.schedule(name, 0, fn)
}

// After schedules fn to run once delay has elapsed. The delay does not hold a
// worker slot. The task is abandoned if the queue is cancelled first.
func (b *Background) After(name string, delay time.Duration, fn func(ctx context.Context) error) bool {
	return b.schedule(name, delay, fn)
}

func (b *Background) schedule(name string, delay time.Duration, fn func(ctx context.Context) error) bool {
	if b == nil {
		return false
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		b.dropped.Add(1)
		b.log.Warn("task dropped after close", zap.String("task", name))
		return false
	}
	b.wg.Add(1)
	b.mu.RUnlock()

	go func() {
		defer b.wg.Done()
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-b.ctx.Done():
				timer.Stop()
				b.dropped.Add(1)
				b.log.Warn("delayed task abandoned", zap.String("task", name))
				return
			}
		}
		if err := b.sem.Acquire(b.ctx, 1); err != nil {
			b.dropped.Add(1)
			b.log.Warn("task dropped", zap.String("task", name), zap.Error(err))
			return
		}
		defer b.sem.Release(1)
		b.run(name, fn)
	}()
	return true
}

func (b *Background) run(name string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(b.ctx, b.cfg.TaskTimeout)
	defer cancel()

	start := time.Now()
	err := safeCall(func() error { return fn(ctx) })
	if err != nil {
		b.failed.Add(1)
		b.log.Error("task failed",
			zap.String("task", name),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return
	}
	b.log.Debug("task done", zap.String("task", name), zap.Duration("elapsed", time.Since(start)))
}

// Close stops intake and waits for accepted tasks. If ctx ends first, running
// tasks are cancelled and ctx's error is returned.
func (b *Background) Close(ctx context.Context) error {
	if b == nil {
		return nil
	}
	var err error
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		b.mu.Unlock()

		done := make(chan struct{})
		go func() {
			b.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-ctx.Done():
			b.cancel()
			<-done
			err = ctx.Err()
		}
		b.cancel()
	})
	return err
}

// Dropped counts tasks that were refused or abandoned.
func (b *Background) Dropped() uint64 {
	if b == nil {
		return 0
	}
	return b.dropped.Load()
}

// Failed counts tasks that returned an error or panicked.
func (b *Background) Failed() uint64 {
	if b == nil {
		return 0
	}
	return b.failed.Load()
}

func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("queue: panic: %v", r)
		}
	}()
	return fn()
}
