package task

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewPool_DefaultSize(t *testing.T) {
	p := NewPool("test", 0)
	if p.Size() != DefaultMaxWorkers {
		t.Errorf("Size() = %d, want %d", p.Size(), DefaultMaxWorkers)
	}
}

func TestPool_BoundsConcurrency(t *testing.T) {
	p := NewPool("bounded", 3)
	ctx := context.Background()

	var running, peak atomic.Int32
	for i := 0; i < 12; i++ {
		err := p.Go(ctx, func(ctx context.Context) {
			n := running.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			running.Add(-1)
		})
		if err != nil {
			t.Fatalf("Go() error = %v", err)
		}
	}

	if err := p.WaitForDrain(ctx); err != nil {
		t.Fatalf("WaitForDrain() error = %v", err)
	}
	if got := peak.Load(); got > 3 {
		t.Errorf("peak concurrency = %d, want <= 3", got)
	}
	if got := p.Completed(); got != 12 {
		t.Errorf("Completed() = %d, want 12", got)
	}
}

func TestPool_RecoversPanics(t *testing.T) {
	p := NewPool("panics", 2)
	ctx := context.Background()

	if err := p.Go(ctx, func(ctx context.Context) { panic("boom") }); err != nil {
		t.Fatalf("Go() error = %v", err)
	}
	if err := p.WaitForDrain(ctx); err != nil {
		t.Fatalf("WaitForDrain() error = %v", err)
	}
	if got := p.Active(); got != 0 {
		t.Errorf("Active() = %d, want 0", got)
	}

	fut, err := Run(ctx, p, func(ctx context.Context) int { panic("boom") })
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := fut.Get(); got != 0 {
		t.Errorf("panicking Run resolved to %d, want zero value", got)
	}
}

func TestPool_Shutdown(t *testing.T) {
	t.Run("drains in-flight work", func(t *testing.T) {
		p := NewPool("drain", 2)
		var finished atomic.Bool
		_ = p.Go(context.Background(), func(ctx context.Context) {
			time.Sleep(20 * time.Millisecond)
			finished.Store(true)
		})

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := p.Shutdown(ctx); err != nil {
			t.Fatalf("Shutdown() error = %v", err)
		}
		if !finished.Load() {
			t.Error("in-flight task did not finish before Shutdown returned")
		}
		if !p.Closed() {
			t.Error("Closed() = false after Shutdown")
		}
	})

	t.Run("rejects new work", func(t *testing.T) {
		p := NewPool("closed", 1)
		_ = p.Shutdown(context.Background())

		err := p.Go(context.Background(), func(ctx context.Context) {})
		if !errors.Is(err, ErrPoolClosed) {
			t.Errorf("Go() after shutdown error = %v, want ErrPoolClosed", err)
		}
	})

	t.Run("force-cancels after grace", func(t *testing.T) {
		p := NewPool("force", 1)
		cancelled := make(chan struct{})
		_ = p.Go(context.Background(), func(ctx context.Context) {
			<-ctx.Done()
			close(cancelled)
		})

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		err := p.Shutdown(ctx)
		if !errors.Is(err, ErrShutdownTimeout) {
			t.Errorf("Shutdown() error = %v, want ErrShutdownTimeout", err)
		}

		select {
		case <-cancelled:
		case <-time.After(time.Second):
			t.Error("task context was not cancelled after grace period")
		}
	})
}

func TestPool_CallerCancellationReachesTask(t *testing.T) {
	p := NewPool("caller", 1)
	ctx, cancel := context.WithCancel(context.Background())

	fut, err := Run(ctx, p, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	cancel()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	got, err := fut.Wait(waitCtx)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if !errors.Is(got, context.Canceled) {
		t.Errorf("task saw %v, want context.Canceled", got)
	}
}
