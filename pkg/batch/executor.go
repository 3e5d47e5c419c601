package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/campus-records/pkg/task"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Batch variants, used as metric labels.
const (
	variantChunked  = "chunked"
	variantConsumer = "consumer"
	variantProgress = "progress"
	variantParallel = "parallel"
	variantSchedule = "scheduled"
)

// Config holds executor defaults.
type Config struct {
	// ChunkSize is used by SubmitWithConsumer and Schedule.
	ChunkSize int

	// MaxConcurrency is the chunk limit for SubmitWithConsumer and Schedule.
	MaxConcurrency int
}

// DefaultConfig returns the executor defaults.
func DefaultConfig() Config {
	return Config{
		ChunkSize:      100,
		MaxConcurrency: 4,
	}
}

// Executor runs batches on a task pool.
type Executor struct {
	pool       *task.Pool
	config     Config
	newLimiter LimiterFactory
	logger     zerolog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithLimiterFactory replaces the semaphore limiter, e.g. with an
// instrumented one.
func WithLimiterFactory(f LimiterFactory) Option {
	return func(ex *Executor) {
		ex.newLimiter = f
	}
}

// WithLogger sets the executor logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(ex *Executor) {
		ex.logger = logger
	}
}

// NewExecutor creates an executor submitting batches to pool.
func NewExecutor(pool *task.Pool, config Config, opts ...Option) *Executor {
	if pool == nil {
		panic("batch: task pool cannot be nil")
	}
	if config.ChunkSize <= 0 {
		config.ChunkSize = DefaultConfig().ChunkSize
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = DefaultConfig().MaxConcurrency
	}

	ex := &Executor{
		pool:       pool,
		config:     config,
		newLimiter: NewLimiter,
		logger:     log.With().Str("component", "batch").Logger(),
	}
	for _, opt := range opts {
		opt(ex)
	}
	return ex
}

// Config returns the executor defaults.
func (ex *Executor) Config() Config {
	return ex.config
}

// Submit processes items asynchronously in chunks of chunkSize with at most
// maxConcurrency chunks running at once.
//
// The returned error only reports contract violations and a closed pool;
// every runtime failure is described by the resolved Result.
func Submit[T any](ctx context.Context, ex *Executor, items []T, fn Transform[T], chunkSize, maxConcurrency int) (*task.Future[*Result[T]], error) {
	if err := validate(fn != nil, chunkSize, maxConcurrency); err != nil {
		return nil, err
	}
	return task.Run(ctx, ex.pool, func(ctx context.Context) *Result[T] {
		return execute(ctx, ex, variantChunked, items, fn, chunkSize, maxConcurrency, true, nil)
	})
}

// Process is the synchronous form of Submit. It runs on the calling goroutine
// and does not occupy a pool slot.
func Process[T any](ctx context.Context, ex *Executor, items []T, fn Transform[T], chunkSize, maxConcurrency int) (*Result[T], error) {
	if err := validate(fn != nil, chunkSize, maxConcurrency); err != nil {
		return nil, err
	}
	return execute(ctx, ex, variantChunked, items, fn, chunkSize, maxConcurrency, true, nil), nil
}

// SubmitWithConsumer applies consume to every item using the executor's
// default concurrency. Only counts and errors are kept.
func SubmitWithConsumer[T any](ctx context.Context, ex *Executor, items []T, consume Consumer[T], chunkSize int) (*task.Future[*Result[T]], error) {
	if err := validate(consume != nil, chunkSize, ex.config.MaxConcurrency); err != nil {
		return nil, err
	}
	fn := func(ctx context.Context, item T) (T, error) {
		return item, consume(ctx, item)
	}
	return task.Run(ctx, ex.pool, func(ctx context.Context) *Result[T] {
		return execute(ctx, ex, variantConsumer, items, fn, chunkSize, ex.config.MaxConcurrency, false, nil)
	})
}

// SubmitWithProgress behaves like Submit and reports progress after every
// chunk plus one final 100% event. All callbacks have returned by the time
// the future resolves.
func SubmitWithProgress[T any](ctx context.Context, ex *Executor, items []T, fn Transform[T], chunkSize, maxConcurrency int, onProgress ProgressFunc) (*task.Future[*Result[T]], error) {
	if err := validate(fn != nil, chunkSize, maxConcurrency); err != nil {
		return nil, err
	}
	if onProgress == nil {
		onProgress = func(Progress) {}
	}
	return task.Run(ctx, ex.pool, func(ctx context.Context) *Result[T] {
		totalChunks := (len(items) + chunkSize - 1) / chunkSize
		reporter := newProgressReporter(onProgress, totalChunks+1)

		res := execute(ctx, ex, variantProgress, items, fn, chunkSize, maxConcurrency, true, reporter)

		reporter.report(finalProgress(totalChunks, len(items)))
		reporter.close()
		return res
	})
}

// SubmitParallel applies fn to every item at once without chunking or a
// concurrency cap. Unlike Submit there is no per-item isolation: the first
// failure cancels the remaining items and fails the whole batch. Use it for
// cheap, side-effect-free transforms.
func SubmitParallel[T any](ctx context.Context, ex *Executor, items []T, fn Transform[T]) (*task.Future[*Result[T]], error) {
	if fn == nil {
		return nil, ErrNilTransform
	}
	return task.Run(ctx, ex.pool, func(ctx context.Context) *Result[T] {
		start := time.Now()
		res := &Result[T]{ID: uuid.NewString(), TotalCount: len(items)}

		g, gctx := errgroup.WithContext(ctx)
		out := make([]T, len(items))
		for i := range items {
			g.Go(func() error {
				v, err := apply(gctx, fn, items[i])
				if err != nil {
					return fmt.Errorf("item %d: %w", i, err)
				}
				out[i] = v
				return nil
			})
		}
		err := g.Wait()
		res.Duration = time.Since(start)

		if err != nil {
			res.Message = "Parallel batch failed"
			res.Errors = []string{err.Error()}
			res.Err = err
			BatchRunsTotal.WithLabelValues(variantParallel, "failed").Inc()
			ex.logger.Warn().Err(err).Str("batch", res.ID).Int("total", res.TotalCount).Msg("Parallel batch failed")
		} else {
			res.Success = true
			res.Items = out
			res.ProcessedCount = len(items)
			res.Message = fmt.Sprintf("Processed %d/%d items", res.ProcessedCount, res.TotalCount)
			BatchItemsTotal.WithLabelValues("processed").Add(float64(res.ProcessedCount))
			BatchRunsTotal.WithLabelValues(variantParallel, "ok").Inc()
		}
		BatchDuration.WithLabelValues(variantParallel).Observe(res.Duration.Seconds())
		return res
	})
}

func validate(hasFn bool, chunkSize, maxConcurrency int) error {
	if !hasFn {
		return ErrNilTransform
	}
	if chunkSize <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidChunkSize, chunkSize)
	}
	if maxConcurrency <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidConcurrency, maxConcurrency)
	}
	return nil
}

// execute runs one chunked batch to completion on the calling goroutine.
func execute[T any](ctx context.Context, ex *Executor, variant string, items []T, fn Transform[T], chunkSize, maxConcurrency int, keep bool, reporter *progressReporter) (res *Result[T]) {
	start := time.Now()
	res = &Result[T]{ID: uuid.NewString(), TotalCount: len(items)}
	logger := ex.logger.With().Str("batch", res.ID).Str("variant", variant).Logger()

	defer func() {
		if r := recover(); r != nil {
			res.Success = false
			res.Err = fmt.Errorf("%w: panic: %v", ErrDispatch, r)
			res.Errors = append(res.Errors, res.Err.Error())
			res.Message = fmt.Sprintf("Batch failed after %d/%d items", res.ProcessedCount, res.TotalCount)
			res.Duration = time.Since(start)
			BatchRunsTotal.WithLabelValues(variant, "failed").Inc()
			logger.Error().Interface("panic", r).Msg("Batch failed")
		}
	}()

	chunks := Chunks(items, chunkSize)
	limiter := ex.newLimiter(maxConcurrency)

	logger.Debug().
		Int("items", len(items)).
		Int("chunks", len(chunks)).
		Int("chunk_size", chunkSize).
		Int("max_concurrency", maxConcurrency).
		Msg("Starting batch")

	results := make(chan chunkResult[T], len(chunks))
	var dispatchErr error

	go func() {
		var wg sync.WaitGroup
		defer func() {
			wg.Wait()
			close(results)
		}()

		for i, chunk := range chunks {
			if err := limiter.Acquire(ctx); err != nil {
				dispatchErr = fmt.Errorf("%w: chunk %d of %d not started: %w", ErrDispatch, i, len(chunks), err)
				return
			}

			wg.Add(1)
			go func(index int, chunk []T) {
				defer wg.Done()
				defer limiter.Release()

				ActiveChunks.Inc()
				defer ActiveChunks.Dec()

				results <- runChunk(ctx, index, index*chunkSize, chunk, fn, keep)
			}(i, chunk)
		}
	}()

	completed := 0
	interrupted := false
	for cr := range results {
		completed++
		res.Items = append(res.Items, cr.items...)
		res.ProcessedCount += cr.processed
		res.Errors = append(res.Errors, cr.errors...)
		if cr.interrupted {
			interrupted = true
		}

		if reporter != nil {
			reporter.report(chunkProgress(completed, len(chunks), chunkSize, len(items)))
		}
	}
	res.Duration = time.Since(start)

	BatchItemsTotal.WithLabelValues("processed").Add(float64(res.ProcessedCount))
	BatchItemsTotal.WithLabelValues("failed").Add(float64(len(res.Errors)))
	BatchDuration.WithLabelValues(variant).Observe(res.Duration.Seconds())

	switch {
	case dispatchErr != nil:
		res.Err = dispatchErr
		res.Errors = append(res.Errors, dispatchErr.Error())
		res.Message = fmt.Sprintf("Batch aborted after %d/%d items", res.ProcessedCount, res.TotalCount)
		BatchRunsTotal.WithLabelValues(variant, "failed").Inc()
		logger.Warn().Err(dispatchErr).Int("processed", res.ProcessedCount).Int("total", res.TotalCount).Msg("Batch aborted")
	case interrupted:
		res.Err = ctx.Err()
		res.Message = fmt.Sprintf("Batch interrupted after %d/%d items", res.ProcessedCount, res.TotalCount)
		BatchRunsTotal.WithLabelValues(variant, "interrupted").Inc()
		logger.Warn().Err(res.Err).Int("processed", res.ProcessedCount).Int("total", res.TotalCount).Msg("Batch interrupted")
	default:
		res.Success = true
		res.Message = fmt.Sprintf("Processed %d/%d items", res.ProcessedCount, res.TotalCount)
		BatchRunsTotal.WithLabelValues(variant, "ok").Inc()
		logger.Info().
			Int("processed", res.ProcessedCount).
			Int("errors", len(res.Errors)).
			Int("total", res.TotalCount).
			Dur("duration", res.Duration).
			Msg("Batch complete")
	}

	return res
}
