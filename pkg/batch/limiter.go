package batch

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Limiter is a counting permit source bounding how many chunks run at once.
// Release must be called exactly once per successful Acquire.
type Limiter interface {
	Acquire(ctx context.Context) error
	Release()
}

// LimiterFactory builds a fresh limiter for one batch.
type LimiterFactory func(maxConcurrency int) Limiter

// NewLimiter returns a semaphore-backed limiter with n permits.
func NewLimiter(n int) Limiter {
	return &weightedLimiter{sem: semaphore.NewWeighted(int64(n))}
}

type weightedLimiter struct {
	sem *semaphore.Weighted
}

func (l *weightedLimiter) Acquire(ctx context.Context) error {
	return l.sem.Acquire(ctx, 1)
}

func (l *weightedLimiter) Release() {
	l.sem.Release(1)
}
