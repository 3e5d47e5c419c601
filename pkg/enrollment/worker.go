package enrollment

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Sternrassler/campus-records/pkg/task"
	"github.com/rs/zerolog"
)

// DefaultPollInterval bounds how long the worker waits on an empty queue.
const DefaultPollInterval = 100 * time.Millisecond

// WorkerConfig holds queue worker settings.
type WorkerConfig struct {
	// PollInterval is the bounded wait of each queue poll.
	PollInterval time.Duration

	// OnResult, if set, receives every processed request and its result.
	// It runs on pool goroutines and must be safe for concurrent use.
	OnResult func(Request, Result)
}

// Worker drains a Queue in one background loop and runs each request
// through the gate as a pool task.
type Worker struct {
	queue  *Queue
	gate   *Gate
	pool   *task.Pool
	config WorkerConfig
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	running    atomic.Bool
	dispatched atomic.Int64
}

// NewWorker creates a worker and starts its loop.
func NewWorker(queue *Queue, gate *Gate, pool *task.Pool, config WorkerConfig, logger zerolog.Logger) *Worker {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	ctx, cancel := context.WithCancel(context.Background())

	w := &Worker{
		queue:  queue,
		gate:   gate,
		pool:   pool,
		config: config,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	w.running.Store(true)
	go w.loop()
	return w
}

func (w *Worker) loop() {
	defer close(w.done)
	defer w.running.Store(false)

	w.logger.Info().Dur("poll_interval", w.config.PollInterval).Msg("Enrollment queue worker started")

	for w.ctx.Err() == nil {
		req, ok, err := w.queue.Poll(w.ctx, w.config.PollInterval)
		if err != nil {
			if errors.Is(err, ErrQueueClosed) {
				w.logger.Info().Int64("dispatched", w.dispatched.Load()).Msg("Enrollment queue drained - worker stopped")
			} else {
				w.logger.Warn().Err(err).Int("queued", w.queue.Len()).Msg("Enrollment queue worker interrupted")
			}
			return
		}
		if !ok {
			continue
		}
		w.dispatch(req)
	}
	w.logger.Warn().Int("queued", w.queue.Len()).Msg("Enrollment queue worker interrupted")
}

// dispatch hands req to the pool. The request is released from the queue
// after pool.Go returns, when the task already counts as active.
func (w *Worker) dispatch(req Request) {
	defer w.queue.Release()
	w.dispatched.Add(1)

	err := w.pool.Go(w.ctx, func(ctx context.Context) {
		res := w.gate.Enroll(ctx, req.Student, req.Course)
		if !res.Success {
			w.logger.Warn().
				Err(res.Err).
				Str("request_id", req.ID).
				Str("student_id", req.Student.ID).
				Str("course_id", req.Course.ID).
				Str("outcome", string(res.Outcome)).
				Msg("Queued enrollment failed")
		}
		w.report(req, res)
	})
	if err != nil {
		w.logger.Error().
			Err(err).
			Str("request_id", req.ID).
			Msg("Could not dispatch queued enrollment")
		res := newResult(req.Student, req.Course, OutcomeCancelled, MsgCancelled, fmt.Errorf("dispatch: %w", err))
		w.report(req, res)
	}
}

func (w *Worker) report(req Request, res Result) {
	if w.config.OnResult == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error().Interface("panic", r).Str("request_id", req.ID).Msg("OnResult hook panicked")
		}
	}()
	w.config.OnResult(req, res)
}

// Running reports whether the loop is active.
func (w *Worker) Running() bool {
	return w.running.Load()
}

// Dispatched returns the number of requests taken off the queue.
func (w *Worker) Dispatched() int64 {
	return w.dispatched.Load()
}

// Stop closes the queue and lets the loop drain it. If ctx ends first the
// loop is cancelled and ctx.Err() is returned; requests still queued are
// abandoned.
func (w *Worker) Stop(ctx context.Context) error {
	w.queue.Close()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.cancel()
		<-w.done
		return ctx.Err()
	}
}
