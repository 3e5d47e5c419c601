package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/campus-records/pkg/scheduler"
)

// Schedule fetches items with supplier and processes them every period,
// starting after initialDelay, using the executor's default chunk size and
// concurrency. A run that fails is logged by the scheduler and the next run
// still fires. Runs of batches scheduled under the same name never overlap:
// a tick that arrives while another run of that name is in progress is
// skipped.
func Schedule[T any](ex *Executor, sched *scheduler.Scheduler, name string, supplier Supplier[T], fn Transform[T], initialDelay, period time.Duration) (*scheduler.Handle, error) {
	if supplier == nil {
		return nil, fmt.Errorf("batch %q: supplier cannot be nil", name)
	}
	if fn == nil {
		return nil, ErrNilTransform
	}

	job := sched.Exclusive(name, func(ctx context.Context) error {
		items, err := supplier(ctx)
		if err != nil {
			return fmt.Errorf("fetch batch data: %w", err)
		}

		res := execute(ctx, ex, variantSchedule, items, fn, ex.config.ChunkSize, ex.config.MaxConcurrency, false, nil)
		if !res.Success {
			return fmt.Errorf("scheduled batch %s: %s: %w", res.ID, res.Message, res.Err)
		}
		if len(res.Errors) > 0 {
			ex.logger.Warn().
				Str("job", name).
				Str("batch", res.ID).
				Int("errors", len(res.Errors)).
				Float64("success_rate", res.SuccessRate()).
				Msg("Scheduled batch finished with item errors")
		}
		return nil
	})

	return sched.Every(name, initialDelay, period, job)
}
