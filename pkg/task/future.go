package task

import (
	"context"
	"sync"
)

// Future is the eventual value of an asynchronous operation.
// A Future resolves exactly once; later resolutions are ignored.
type Future[T any] struct {
	done chan struct{}
	once sync.Once
	val  T
}

// NewFuture returns an unresolved future and the function that resolves it.
func NewFuture[T any]() (*Future[T], func(T)) {
	f := &Future[T]{done: make(chan struct{})}
	return f, f.resolve
}

// Resolved returns a future that already holds v.
func Resolved[T any](v T) *Future[T] {
	f, resolve := NewFuture[T]()
	resolve(v)
	return f
}

func (f *Future[T]) resolve(v T) {
	f.once.Do(func() {
		f.val = v
		close(f.done)
	})
}

// Done is closed once the value is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future resolves or ctx ends.
// The error is only ever ctx.Err(); the operation's own outcome lives in T.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Get blocks until the future resolves.
func (f *Future[T]) Get() T {
	<-f.done
	return f.val
}
