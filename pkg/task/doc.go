// Package task provides the bounded worker pool and futures shared by the
// batch executor and the enrollment pipeline.
//
// A Pool caps the number of concurrently running top-level operations with a
// weighted semaphore, tracks in-flight work with lock-free counters, and
// implements the three-step shutdown used throughout the engine:
//
//  1. stop accepting new work (Go returns ErrPoolClosed)
//  2. wait for in-flight tasks until the grace context expires
//  3. cancel the pool context so cooperative tasks abort
//
// Example usage:
//
//	pool := task.NewPool("enrollment", 8)
//	fut, err := task.Run(ctx, pool, func(ctx context.Context) int {
//		return compute(ctx)
//	})
//	if err != nil {
//		return err
//	}
//	v, err := fut.Wait(ctx)
package task
