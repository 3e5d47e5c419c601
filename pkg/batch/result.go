package batch

import (
	"context"
	"errors"
	"time"
)

// Common batch errors.
var (
	// ErrNilTransform is returned when no per-item function is supplied.
	ErrNilTransform = errors.New("batch transform cannot be nil")

	// ErrInvalidChunkSize is returned for a chunk size below 1.
	ErrInvalidChunkSize = errors.New("chunk size must be positive")

	// ErrInvalidConcurrency is returned for a concurrency limit below 1.
	ErrInvalidConcurrency = errors.New("max concurrency must be positive")

	// ErrDispatch marks a failure while handing chunks to workers.
	ErrDispatch = errors.New("batch dispatch failed")

	// ErrItemPanic wraps a panic raised by a per-item function.
	ErrItemPanic = errors.New("item function panicked")
)

// Transform maps one item to its processed form.
type Transform[T any] func(ctx context.Context, item T) (T, error)

// Consumer applies a side effect to one item.
type Consumer[T any] func(ctx context.Context, item T) error

// Supplier produces the items for a scheduled batch run.
type Supplier[T any] func(ctx context.Context) ([]T, error)

// Result is the aggregate outcome of one batch.
type Result[T any] struct {
	// ID correlates the result with its log lines.
	ID string

	// Success is false only for systemic failures and interruptions.
	// Per-item failures are reported through Errors.
	Success bool
	Message string

	// Items holds successfully processed items in chunk-completion order.
	Items []T

	ProcessedCount int
	TotalCount     int
	Errors         []string
	Duration       time.Duration

	// Err is the systemic cause when Success is false.
	Err error
}

// SuccessRate returns ProcessedCount/TotalCount as a percentage.
// An empty batch has a rate of 0.
func (r *Result[T]) SuccessRate() float64 {
	if r.TotalCount == 0 {
		return 0
	}
	return float64(r.ProcessedCount) / float64(r.TotalCount) * 100
}

// ErrorCount returns the number of recorded per-item errors.
func (r *Result[T]) ErrorCount() int {
	return len(r.Errors)
}
