package task

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
)

// Prometheus metrics for pool usage.
var (
	poolActiveTasks = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "campus_pool_active_tasks",
		Help: "Number of tasks currently running per pool",
	}, []string{"pool"})

	poolTasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campus_pool_tasks_total",
		Help: "Total tasks executed per pool by status",
	}, []string{"pool", "status"})
)

var (
	// ErrPoolClosed is returned when work is submitted after Shutdown started.
	ErrPoolClosed = errors.New("pool is shut down")

	// ErrShutdownTimeout is returned when in-flight tasks outlive the grace period.
	ErrShutdownTimeout = errors.New("shutdown grace period expired")
)

// DefaultMaxWorkers is the pool size used when a non-positive size is given.
const DefaultMaxWorkers = 16

// Pool runs tasks on goroutines while capping how many run at once.
type Pool struct {
	name   string
	sem    *semaphore.Weighted
	size   int64
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	active    atomic.Int64
	completed atomic.Int64
	panicked  atomic.Int64
}

// NewPool creates a pool allowing at most maxWorkers concurrent tasks.
func NewPool(name string, maxWorkers int) *Pool {
	if maxWorkers <= 0 {
		maxWorkers = DefaultMaxWorkers
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		name:   name,
		sem:    semaphore.NewWeighted(int64(maxWorkers)),
		size:   int64(maxWorkers),
		logger: log.With().Str("component", "pool").Str("pool", name).Logger(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Go schedules fn. It blocks while the pool is saturated and returns
// ctx.Err() if ctx ends first, or ErrPoolClosed after Shutdown.
//
// The context handed to fn is cancelled when either the caller's ctx is
// cancelled or the pool is force-terminated.
func (p *Pool) Go(ctx context.Context, fn func(ctx context.Context)) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrPoolClosed
	}
	p.wg.Add(1)
	p.mu.RUnlock()

	if err := p.sem.Acquire(ctx, 1); err != nil {
		p.wg.Done()
		return fmt.Errorf("acquire worker slot: %w", err)
	}

	taskCtx, cancel := context.WithCancel(p.ctx)
	stop := context.AfterFunc(ctx, cancel)

	p.active.Add(1)
	poolActiveTasks.WithLabelValues(p.name).Inc()

	go func() {
		defer func() {
			stop()
			cancel()
			p.active.Add(-1)
			poolActiveTasks.WithLabelValues(p.name).Dec()
			p.sem.Release(1)
			p.wg.Done()
		}()
		defer func() {
			if r := recover(); r != nil {
				p.panicked.Add(1)
				poolTasksTotal.WithLabelValues(p.name, "panic").Inc()
				p.logger.Error().
					Interface("panic", r).
					Bytes("stack", debug.Stack()).
					Msg("Task panicked")
			}
		}()

		fn(taskCtx)
		p.completed.Add(1)
		poolTasksTotal.WithLabelValues(p.name, "ok").Inc()
	}()

	return nil
}

// Run executes fn on the pool and returns a future for its value.
// If fn panics the future resolves to the zero value of T.
func Run[T any](ctx context.Context, p *Pool, fn func(ctx context.Context) T) (*Future[T], error) {
	fut, resolve := NewFuture[T]()
	err := p.Go(ctx, func(ctx context.Context) {
		var v T
		defer func() { resolve(v) }()
		v = fn(ctx)
	})
	if err != nil {
		return nil, err
	}
	return fut, nil
}

// Active returns the number of running tasks.
func (p *Pool) Active() int64 {
	return p.active.Load()
}

// Completed returns the number of tasks that returned normally.
func (p *Pool) Completed() int64 {
	return p.completed.Load()
}

// Size returns the maximum number of concurrent tasks.
func (p *Pool) Size() int {
	return int(p.size)
}

// Closed reports whether Shutdown has been called.
func (p *Pool) Closed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

// WaitForDrain blocks until no tasks are running or ctx ends.
// Unlike Shutdown it keeps the pool open, so it polls the active counter.
func (p *Pool) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if p.active.Load() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Pool) wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting work and waits for in-flight tasks until ctx
// expires. Tasks still running after that have their context cancelled and
// ErrShutdownTimeout is returned.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	start := time.Now()
	err := p.wait(ctx)
	if err == nil {
		p.cancel()
		p.logger.Debug().
			Dur("duration", time.Since(start)).
			Int64("completed", p.completed.Load()).
			Msg("Pool drained")
		return nil
	}

	p.logger.Warn().
		Int64("active", p.active.Load()).
		Dur("grace", time.Since(start)).
		Msg("Pool did not drain in time - cancelling remaining tasks")
	p.cancel()
	return fmt.Errorf("%w: %d tasks still running", ErrShutdownTimeout, p.active.Load())
}
