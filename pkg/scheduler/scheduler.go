// Package scheduler runs named jobs at a fixed period or once after a delay.
//
// A failing or panicking run is logged and counted but never cancels later
// runs. The scheduler does not prevent overlapping runs of a slow periodic
// job itself; wrap the job with Exclusive when runs must not overlap.
package scheduler

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
)

// Prometheus metrics for scheduled jobs.
var (
	schedulerRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campus_scheduler_runs_total",
		Help: "Total scheduled job runs by job and status",
	}, []string{"job", "status"})

	schedulerRunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "campus_scheduler_run_duration_seconds",
		Help:    "Scheduled job run duration in seconds",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 30, 120},
	}, []string{"job"})
)

var (
	// ErrClosed is returned when scheduling after Shutdown.
	ErrClosed = errors.New("scheduler is shut down")

	// ErrInvalidPeriod is returned for a non-positive period.
	ErrInvalidPeriod = errors.New("period must be positive")

	// ErrNilJob is returned when no job function is given.
	ErrNilJob = errors.New("job cannot be nil")
)

// Job is one unit of scheduled work.
type Job func(ctx context.Context) error

// Scheduler drives periodic and delayed jobs on their own goroutines.
type Scheduler struct {
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	closed  bool
	handles map[*Handle]struct{}
	guards  map[string]*atomic.Bool
	wg      sync.WaitGroup

	running atomic.Int64
}

// New creates a scheduler.
func New(logger zerolog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		handles: make(map[*Handle]struct{}),
		guards:  make(map[string]*atomic.Bool),
	}
}

// Handle controls one scheduled job.
type Handle struct {
	name string
	stop chan struct{}
	once sync.Once
	done chan struct{}
}

// Name returns the job name.
func (h *Handle) Name() string {
	return h.name
}

// Stop cancels future runs. A run in progress is not interrupted.
func (h *Handle) Stop() {
	h.once.Do(func() { close(h.stop) })
}

// Done is closed once the job loop has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Every runs job after initialDelay and then every period until stopped.
func (s *Scheduler) Every(name string, initialDelay, period time.Duration, job Job) (*Handle, error) {
	if job == nil {
		return nil, ErrNilJob
	}
	if period <= 0 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidPeriod, period)
	}

	h, err := s.start(name)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("job", name).
		Dur("initial_delay", initialDelay).
		Dur("period", period).
		Msg("Periodic job scheduled")

	go func() {
		defer s.finish(h)

		if !s.sleep(h, initialDelay) {
			s.logger.Debug().Str("job", name).Msg("Periodic job stopped before first run")
			return
		}
		s.run(s.ctx, name, job)

		ticker := time.NewTicker(period)
		defer ticker.Stop()

		for {
			select {
			case <-s.ctx.Done():
				s.logger.Debug().Str("job", name).Msg("Periodic job stopped (scheduler shut down)")
				return
			case <-h.stop:
				s.logger.Debug().Str("job", name).Msg("Periodic job stopped")
				return
			case <-ticker.C:
				s.run(s.ctx, name, job)
			}
		}
	}()

	return h, nil
}

// After runs job once after delay. The job always runs exactly once: if the
// handle is stopped or the scheduler shuts down first, it runs immediately
// with an already-cancelled context so callers can settle pending state.
func (s *Scheduler) After(name string, delay time.Duration, job Job) (*Handle, error) {
	if job == nil {
		return nil, ErrNilJob
	}

	h, err := s.start(name)
	if err != nil {
		return nil, err
	}

	go func() {
		defer s.finish(h)

		if s.sleep(h, delay) {
			s.run(s.ctx, name, job)
			return
		}

		ctx, cancel := context.WithCancelCause(s.ctx)
		cancel(fmt.Errorf("job %q cancelled before it fired", name))
		s.run(ctx, name, job)
	}()

	return h, nil
}

func (s *Scheduler) start(name string) (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	s.wg.Add(1)

	h := &Handle{
		name: name,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	s.handles[h] = struct{}{}
	return h, nil
}

// finish releases the bookkeeping of an exited job loop.
func (s *Scheduler) finish(h *Handle) {
	s.mu.Lock()
	delete(s.handles, h)
	s.mu.Unlock()

	close(h.done)
	s.wg.Done()
}

// stopAll stops every job loop; runs in progress continue.
func (s *Scheduler) stopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for h := range s.handles {
		h.Stop()
	}
}

// sleep waits for d and reports whether the job should still run.
func (s *Scheduler) sleep(h *Handle, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-s.ctx.Done():
			return false
		case <-h.stop:
			return false
		default:
			return true
		}
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-s.ctx.Done():
		return false
	case <-h.stop:
		return false
	case <-timer.C:
		return true
	}
}

// run executes one job invocation, containing errors and panics.
func (s *Scheduler) run(ctx context.Context, name string, job Job) {
	s.running.Add(1)
	defer s.running.Add(-1)

	start := time.Now()
	defer func() {
		schedulerRunDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
		if r := recover(); r != nil {
			schedulerRunsTotal.WithLabelValues(name, "panic").Inc()
			s.logger.Error().
				Str("job", name).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("Scheduled job panicked")
		}
	}()

	if err := job(ctx); err != nil {
		schedulerRunsTotal.WithLabelValues(name, "failed").Inc()
		s.logger.Error().
			Err(err).
			Str("job", name).
			Dur("duration", time.Since(start)).
			Msg("Scheduled job failed")
		return
	}

	schedulerRunsTotal.WithLabelValues(name, "ok").Inc()
	s.logger.Debug().
		Str("job", name).
		Dur("duration", time.Since(start)).
		Msg("Scheduled job completed")
}

// Running returns the number of job invocations currently executing.
func (s *Scheduler) Running() int64 {
	return s.running.Load()
}

// Shutdown stops all jobs. Runs in progress may finish until ctx expires;
// after that the scheduler context is cancelled and ctx.Err() is returned.
// Pending one-shot jobs run with a cancelled context.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	stopped := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(stopped)
	}()

	s.stopAll()

	select {
	case <-stopped:
		s.cancel()
		s.logger.Info().Msg("Scheduler stopped")
		return nil
	case <-ctx.Done():
		s.cancel()
		s.logger.Warn().
			Int64("running", s.running.Load()).
			Msg("Scheduler grace period expired - cancelling running jobs")
		return ctx.Err()
	}
}
