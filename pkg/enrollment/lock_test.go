package enrollment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestCourseLocks_MutualExclusion(t *testing.T) {
	locks := newCourseLocks()
	ctx := context.Background()

	var mu sync.Mutex
	inside := 0
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := locks.lock(ctx, "c1"); err != nil {
				t.Errorf("lock() error = %v", err)
				return
			}
			mu.Lock()
			inside++
			if inside != 1 {
				t.Errorf("inside = %d, want 1", inside)
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			locks.unlock("c1")
		}()
	}
	wg.Wait()

	if locks.size() != 0 {
		t.Errorf("size() = %d, want 0", locks.size())
	}
}

func TestCourseLocks_ContextCancelledWhileWaiting(t *testing.T) {
	locks := newCourseLocks()
	if err := locks.lock(context.Background(), "c1"); err != nil {
		t.Fatalf("lock() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := locks.lock(ctx, "c1")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("lock() error = %v, want DeadlineExceeded", err)
	}

	locks.unlock("c1")
	if locks.size() != 0 {
		t.Errorf("size() = %d, want 0", locks.size())
	}
}

func TestCourseLocks_IndependentKeys(t *testing.T) {
	locks := newCourseLocks()
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := locks.lock(ctx, "a"); err != nil {
		t.Fatalf("lock(a) error = %v", err)
	}
	if err := locks.lock(ctx, "b"); err != nil {
		t.Fatalf("lock(b) error = %v while a is held", err)
	}
	if locks.size() != 2 {
		t.Errorf("size() = %d, want 2", locks.size())
	}
	locks.unlock("a")
	locks.unlock("b")
}
