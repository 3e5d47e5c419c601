// Package engine wires the batch executor, the scheduler and the enrollment
// pipeline into one component with a shared pool and a common shutdown.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/campus-records/pkg/batch"
	"github.com/Sternrassler/campus-records/pkg/enrollment"
	"github.com/Sternrassler/campus-records/pkg/scheduler"
	"github.com/Sternrassler/campus-records/pkg/task"
	"github.com/rs/zerolog"
)

// Config holds engine configuration.
type Config struct {
	// Workers is the pool size for top-level operations.
	Workers int

	// ChunkSize and MaxConcurrentChunks are the batch defaults.
	ChunkSize           int
	MaxConcurrentChunks int

	// PollInterval is the queue worker's bounded wait.
	PollInterval time.Duration

	// ShutdownGrace bounds how long Shutdown waits for in-flight work.
	ShutdownGrace time.Duration

	// NotifyTimeout bounds a single notification delivery.
	NotifyTimeout time.Duration

	// Retry configures WithRetry backoff.
	Retry enrollment.RetryConfig

	// OnQueuedResult, if set, receives the result of every queued request.
	OnQueuedResult func(enrollment.Request, enrollment.Result)
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		Workers:             task.DefaultMaxWorkers,
		ChunkSize:           batch.DefaultConfig().ChunkSize,
		MaxConcurrentChunks: batch.DefaultConfig().MaxConcurrency,
		PollInterval:        enrollment.DefaultPollInterval,
		ShutdownGrace:       30 * time.Second,
		NotifyTimeout:       enrollment.DefaultNotifyTimeout,
		Retry:               enrollment.DefaultRetryConfig(),
	}
}

// Stats is a point-in-time view of the engine's live counters.
type Stats struct {
	// ActiveOperations is the number of pool tasks running right now.
	ActiveOperations int64 `json:"active_operations"`

	// InFlightEnrollments counts gate attempts, including ones abandoned by
	// a timeout that have not returned yet.
	InFlightEnrollments int64 `json:"in_flight_enrollments"`

	// QueueDepth is the number of requests waiting in the queue.
	QueueDepth int `json:"queue_depth"`

	// Processing reports whether the queue worker loop is active.
	Processing bool `json:"processing"`

	// ScheduledRunning is the number of scheduler jobs executing.
	ScheduledRunning int64 `json:"scheduled_running"`

	Enrolled  int64 `json:"enrolled"`
	Rejected  int64 `json:"rejected"`
	Completed int64 `json:"completed"`
}

// Engine owns the pool, scheduler and enrollment components.
type Engine struct {
	config Config
	logger zerolog.Logger

	pool       *task.Pool
	batches    *batch.Executor
	sched      *scheduler.Scheduler
	dispatcher *enrollment.Dispatcher
	gate       *enrollment.Gate
	retrier    *enrollment.Retrier
	queue      *enrollment.Queue
	worker     *enrollment.Worker

	shutdownOnce sync.Once
	shutdownErr  error
}

// New creates an engine and starts its queue worker. notifier may be nil to
// disable enrollment notifications.
func New(registrar enrollment.Registrar, notifier enrollment.Notifier, cfg Config, logger zerolog.Logger) *Engine {
	defaults := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = defaults.Workers
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = defaults.ShutdownGrace
	}
	if cfg.Retry.BaseDelay <= 0 {
		cfg.Retry = defaults.Retry
	}

	e := &Engine{
		config: cfg,
		logger: logger,
		pool:   task.NewPool("engine", cfg.Workers),
		sched:  scheduler.New(component(logger, "scheduler")),
		queue:  enrollment.NewQueue(),
	}

	e.batches = batch.NewExecutor(e.pool, batch.Config{
		ChunkSize:      cfg.ChunkSize,
		MaxConcurrency: cfg.MaxConcurrentChunks,
	}, batch.WithLogger(component(logger, "batch")))

	if notifier != nil {
		e.dispatcher = enrollment.NewDispatcher(notifier, cfg.NotifyTimeout, component(logger, "notify"))
	}
	e.gate = enrollment.NewGate(registrar, e.dispatcher, component(logger, "gate"))
	e.retrier = enrollment.NewRetrier(e.gate, cfg.Retry, component(logger, "retry"))
	e.worker = enrollment.NewWorker(e.queue, e.gate, e.pool, enrollment.WorkerConfig{
		PollInterval: cfg.PollInterval,
		OnResult:     cfg.OnQueuedResult,
	}, component(logger, "queue"))

	logger.Info().
		Int("workers", cfg.Workers).
		Int("chunk_size", e.batches.Config().ChunkSize).
		Int("max_concurrent_chunks", e.batches.Config().MaxConcurrency).
		Str("retry_policy", string(cfg.Retry.Policy)).
		Msg("Engine started")

	return e
}

func component(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}

// Batches returns the executor for use with batch.Submit and friends.
func (e *Engine) Batches() *batch.Executor {
	return e.batches
}

// Scheduler returns the engine's scheduler.
func (e *Engine) Scheduler() *scheduler.Scheduler {
	return e.sched
}

// Enroll runs a single enrollment through the gate on the caller's goroutine.
func (e *Engine) Enroll(ctx context.Context, student enrollment.Student, course enrollment.Course) enrollment.Result {
	return e.gate.Enroll(ctx, student, course)
}

// WithTimeout runs an enrollment on the pool and fails it with
// OutcomeTimedOut if it does not finish within d.
func (e *Engine) WithTimeout(ctx context.Context, student enrollment.Student, course enrollment.Course, d time.Duration) (*task.Future[enrollment.Result], error) {
	return task.Run(ctx, e.pool, func(ctx context.Context) enrollment.Result {
		return e.gate.EnrollWithTimeout(ctx, student, course, d)
	})
}

// WithRetry runs an enrollment on the pool with up to maxRetries retries.
func (e *Engine) WithRetry(ctx context.Context, student enrollment.Student, course enrollment.Course, maxRetries int) (*task.Future[enrollment.Result], error) {
	return task.Run(ctx, e.pool, func(ctx context.Context) enrollment.Result {
		return e.retrier.Enroll(ctx, student, course, maxRetries)
	})
}

// EnqueueEnrollment queues a request for the background worker.
func (e *Engine) EnqueueEnrollment(student enrollment.Student, course enrollment.Course, priority enrollment.Priority) (enrollment.Request, error) {
	req := enrollment.NewRequest(student, course, priority)
	if err := e.queue.Push(req); err != nil {
		return enrollment.Request{}, err
	}
	e.logger.Debug().
		Str("request_id", req.ID).
		Str("student_id", student.ID).
		Str("course_id", course.ID).
		Stringer("priority", req.Priority).
		Int("queue_depth", e.queue.Len()).
		Msg("Enrollment queued")
	return req, nil
}

// ScheduleEnrollment runs an enrollment once after delay. The future always
// resolves: if the engine shuts down before the delay elapses, the result is
// OutcomeCancelled.
func (e *Engine) ScheduleEnrollment(student enrollment.Student, course enrollment.Course, delay time.Duration) (*task.Future[enrollment.Result], error) {
	fut, resolve := task.NewFuture[enrollment.Result]()

	name := fmt.Sprintf("enroll-%s-%s", student.ID, course.ID)
	_, err := e.sched.After(name, delay, func(ctx context.Context) error {
		res := e.gate.Enroll(ctx, student, course)
		resolve(res)
		if res.Outcome == enrollment.OutcomeError {
			return res.Err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fut, nil
}

// ScheduleBatch fetches and processes a batch every period, starting after
// initialDelay. Failed runs are logged and do not stop later runs.
func ScheduleBatch[T any](e *Engine, name string, supplier batch.Supplier[T], fn batch.Transform[T], initialDelay, period time.Duration) (*scheduler.Handle, error) {
	return batch.Schedule(e.batches, e.sched, name, supplier, fn, initialDelay, period)
}

// Stats returns the current counters without blocking any producer.
func (e *Engine) Stats() Stats {
	return Stats{
		ActiveOperations:    e.pool.Active(),
		InFlightEnrollments: e.gate.InFlight(),
		QueueDepth:          e.queue.Len(),
		Processing:          e.worker.Running(),
		ScheduledRunning:    e.sched.Running(),
		Enrolled:            e.gate.Enrolled(),
		Rejected:            e.gate.Rejected(),
		Completed:           e.pool.Completed(),
	}
}

// WaitForCompletion blocks until no pool task, gate attempt, queued request
// or scheduler run is active, or until timeout. It reports whether the
// engine went idle.
func (e *Engine) WaitForCompletion(timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if e.idle() {
			return true
		}
		select {
		case <-deadline.C:
			return e.idle()
		case <-ticker.C:
		}
	}
}

func (e *Engine) idle() bool {
	return e.queue.Outstanding() == 0 &&
		e.pool.Active() == 0 &&
		e.gate.InFlight() == 0 &&
		e.sched.Running() == 0
}

// Shutdown stops accepting work, lets in-flight work finish within the
// configured grace period, then cancels whatever is left. Every step runs
// even when an earlier one fails; failures are logged and joined into the
// returned error. Calling Shutdown again returns the first result.
func (e *Engine) Shutdown() error {
	e.shutdownOnce.Do(func() {
		e.shutdownErr = e.shutdown()
	})
	return e.shutdownErr
}

func (e *Engine) shutdown() error {
	start := time.Now()
	e.logger.Info().Dur("grace", e.config.ShutdownGrace).Msg("Engine shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), e.config.ShutdownGrace)
	defer cancel()

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"scheduler", e.sched.Shutdown},
		{"queue worker", e.worker.Stop},
		{"pool", e.pool.Shutdown},
	}
	if e.dispatcher != nil {
		steps = append(steps, struct {
			name string
			fn   func(context.Context) error
		}{"notifications", e.dispatcher.Close})
	}

	var errs []error
	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			e.logger.Error().Err(err).Str("step", step.name).Msg("Shutdown step did not complete cleanly")
			errs = append(errs, fmt.Errorf("%s: %w", step.name, err))
		}
	}

	e.logger.Info().
		Dur("duration", time.Since(start)).
		Int64("enrolled", e.gate.Enrolled()).
		Int64("rejected", e.gate.Rejected()).
		Int("abandoned_requests", e.queue.Len()).
		Msg("Engine stopped")

	return errors.Join(errs...)
}
