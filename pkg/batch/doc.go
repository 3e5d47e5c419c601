// Package batch provides chunked, bounded-concurrency batch processing.
//
// Items are split into contiguous chunks. Each chunk runs sequentially on its
// own goroutine once it holds a permit from a counting Limiter, so at most
// maxConcurrency chunks execute at any moment. A failing item is recorded as
// text in the result and never aborts its chunk or the batch.
//
// Example usage:
//
//	pool := task.NewPool("batch", 8)
//	ex := batch.NewExecutor(pool, batch.DefaultConfig())
//
//	fut, err := batch.Submit(ctx, ex, students, normalize, 50, 4)
//	if err != nil {
//		return err // contract violation: nil transform, bad sizes, closed pool
//	}
//	res := fut.Get()
//	log.Info().Int("processed", res.ProcessedCount).Strs("errors", res.Errors).Msg("done")
//
// Variants:
//   - Submit / Process: transform every item, keep outputs
//   - SubmitParallel: unbounded errgroup fan-out, first failure aborts everything
//   - SubmitWithConsumer: side-effect only, no outputs retained
//   - SubmitWithProgress: Submit plus serialized progress callbacks
//   - Schedule: periodic fetch + Process on a scheduler.Scheduler
//
// Output order within a chunk follows input order; across chunks it follows
// chunk completion order, which is nondeterministic unless maxConcurrency is 1.
package batch
