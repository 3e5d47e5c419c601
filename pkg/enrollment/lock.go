package enrollment

import (
	"context"
	"sync"
)

// courseLocks hands out one mutex per course ID. Entries are reference
// counted and removed when no goroutine holds or waits for them.
type courseLocks struct {
	mu    sync.Mutex
	locks map[string]*courseLock
}

type courseLock struct {
	ch   chan struct{}
	refs int
}

func newCourseLocks() *courseLocks {
	return &courseLocks{locks: make(map[string]*courseLock)}
}

// lock blocks until the course lock is held or ctx ends.
func (c *courseLocks) lock(ctx context.Context, courseID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	l, ok := c.locks[courseID]
	if !ok {
		l = &courseLock{ch: make(chan struct{}, 1)}
		c.locks[courseID] = l
	}
	l.refs++
	c.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		c.release(courseID, l)
		return ctx.Err()
	}
}

// unlock releases a lock obtained by lock.
func (c *courseLocks) unlock(courseID string) {
	c.mu.Lock()
	l := c.locks[courseID]
	c.mu.Unlock()

	<-l.ch
	c.release(courseID, l)
}

func (c *courseLocks) release(courseID string, l *courseLock) {
	c.mu.Lock()
	defer c.mu.Unlock()

	l.refs--
	if l.refs == 0 {
		delete(c.locks, courseID)
	}
}

// size returns the number of live lock entries.
func (c *courseLocks) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.locks)
}
