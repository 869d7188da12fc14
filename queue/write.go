package queue

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const (
	defaultWriteWorkers = 4
	defaultWriteDepth   = 256
)

// WriteConfig controls the write queue.
type WriteConfig struct {
	Workers int64 `yaml:"workers" env:"QUEUE_WRITE_WORKERS" env-default:"4"`
	// Depth bounds submissions waiting for admission. Submitters block once it
	// is reached.
	Depth int `yaml:"depth" env:"QUEUE_WRITE_DEPTH" env-default:"256"`
}

// Future is the eventual result of a submitted write.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func (f *Future[T]) resolve(val T, err error) {
	f.val, f.err = val, err
	close(f.done)
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Wait blocks until the write completes or ctx ends.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

type job struct {
	ctx  context.Context
	name string
	run  func(ctx context.Context)
	fail func(err error)
}

// WriteQueue admits writes in FIFO order under a concurrency bound.
type WriteQueue struct {
	log  *zap.Logger
	sem  *semaphore.Weighted
	jobs chan job

	mu        sync.RWMutex
	closed    bool
	running   sync.WaitGroup
	loopDone  chan struct{}
	pending   atomic.Int64
	completed atomic.Uint64
	closeOnce sync.Once
}

// NewWriteQueue starts the admission loop.
func NewWriteQueue(cfg WriteConfig, log *zap.Logger) *WriteQueue {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWriteWorkers
	}
	if cfg.Depth <= 0 {
		cfg.Depth = defaultWriteDepth
	}
	if log == nil {
		log = zap.NewNop()
	}
	q := &WriteQueue{
		log:      log.Named("write"),
		sem:      semaphore.NewWeighted(cfg.Workers),
		jobs:     make(chan job, cfg.Depth),
		loopDone: make(chan struct{}),
	}
	go q.loop()
	return q
}

func (q *WriteQueue) loop() {
	defer close(q.loopDone)
	for j := range q.jobs {
		// Acquire in arrival order; a job whose caller gave up is skipped.
		if err := q.sem.Acquire(j.ctx, 1); err != nil {
			q.pending.Add(-1)
			j.fail(err)
			continue
		}
		q.running.Add(1)
		go func(j job) {
			defer q.running.Done()
			defer q.sem.Release(1)
			defer q.pending.Add(-1)
			j.run(j.ctx)
			q.completed.Add(1)
		}(j)
	}
}

// Submit enqueues fn on q. The returned future resolves with fn's result, with
// ctx's error if ctx ends before fn is admitted, or with ErrClosed.
func Submit[T any](ctx context.Context, q *WriteQueue, name string, fn func(ctx context.Context) (T, error)) *Future[T] {
	f := newFuture[T]()
	var zero T

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		f.resolve(zero, ErrClosed)
		return f
	}

	j := job{
		ctx:  ctx,
		name: name,
		run: func(ctx context.Context) {
			var val T
			err := safeCall(func() error {
				var err error
				val, err = fn(ctx)
				return err
			})
			if err != nil {
				q.log.Debug("write failed", zap.String("write", name), zap.Error(err))
			}
			f.resolve(val, err)
		},
		fail: func(err error) { f.resolve(zero, err) },
	}

	q.pending.Add(1)
	select {
	case q.jobs <- j:
	case <-ctx.Done():
		q.pending.Add(-1)
		f.resolve(zero, ctx.Err())
	}
	return f
}

// Do submits fn and waits for its result.
func Do[T any](ctx context.Context, q *WriteQueue, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	return Submit(ctx, q, name, fn).Wait(ctx)
}

// Pending reports writes submitted but not finished.
func (q *WriteQueue) Pending() int64 { return q.pending.Load() }

// Completed reports writes that ran to completion, successful or not.
func (q *WriteQueue) Completed() uint64 { return q.completed.Load() }

// Close refuses new submissions, drains queued ones and waits for running
// writes, or returns ctx's error if it ends first.
func (q *WriteQueue) Close(ctx context.Context) error {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		close(q.jobs)
		q.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		<-q.loopDone
		q.running.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
