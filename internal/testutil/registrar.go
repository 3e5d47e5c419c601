// Package testutil provides testing utilities for the campus-records engine.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// ErrMockStore is returned by MockRegistrar when a failure is configured.
var ErrMockStore = errors.New("mock registrar failure")

// MockBehavior configures how MockRegistrar answers.
type MockBehavior struct {
	// EnrollDelay is slept inside Enroll before committing.
	EnrollDelay time.Duration

	// IgnoreContext makes Enroll sleep through cancellation and commit anyway.
	IgnoreContext bool

	// RejectEnroll makes Enroll report false without committing.
	RejectEnroll bool

	// FailCount makes EnrolledCount return ErrMockStore.
	FailCount bool
}

// MockRegistrar is an in-memory registrar with failure injection and call
// tracking. Its capacity is unlimited; the gate enforces capacity.
type MockRegistrar struct {
	mu       sync.RWMutex
	behavior MockBehavior
	students map[string]map[string]struct{}

	// Tracking
	EnrollCalls     atomic.Int64
	IsEnrolledCalls atomic.Int64
	CountCalls      atomic.Int64
	inEnroll        atomic.Int64
	maxInEnroll     atomic.Int64
}

// NewMockRegistrar creates an empty mock registrar.
func NewMockRegistrar() *MockRegistrar {
	return &MockRegistrar{students: make(map[string]map[string]struct{})}
}

// SetBehavior replaces the configured behavior.
func (m *MockRegistrar) SetBehavior(b MockBehavior) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.behavior = b
}

// Seed adds n placeholder students to a course.
func (m *MockRegistrar) Seed(courseID string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < n; i++ {
		m.add(fmt.Sprintf("seed-%s-%d", courseID, i), courseID)
	}
}

// Count returns the number of students in a course without counting a call.
func (m *MockRegistrar) Count(courseID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.students[courseID])
}

// MaxConcurrentEnrolls returns the highest number of simultaneous Enroll calls.
func (m *MockRegistrar) MaxConcurrentEnrolls() int64 {
	return m.maxInEnroll.Load()
}

// EnrolledCount implements enrollment.Registrar.
func (m *MockRegistrar) EnrolledCount(ctx context.Context, courseID string) (int, error) {
	m.CountCalls.Add(1)
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.behavior.FailCount {
		return 0, ErrMockStore
	}
	return len(m.students[courseID]), nil
}

// IsEnrolled implements enrollment.Registrar.
func (m *MockRegistrar) IsEnrolled(ctx context.Context, studentID, courseID string) (bool, error) {
	m.IsEnrolledCalls.Add(1)
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.students[courseID][studentID]
	return ok, nil
}

// Enroll implements enrollment.Registrar.
func (m *MockRegistrar) Enroll(ctx context.Context, studentID, courseID string) (bool, error) {
	m.EnrollCalls.Add(1)
	n := m.inEnroll.Add(1)
	defer m.inEnroll.Add(-1)
	for {
		old := m.maxInEnroll.Load()
		if n <= old || m.maxInEnroll.CompareAndSwap(old, n) {
			break
		}
	}

	m.mu.RLock()
	b := m.behavior
	m.mu.RUnlock()

	if b.EnrollDelay > 0 {
		if b.IgnoreContext {
			time.Sleep(b.EnrollDelay)
		} else {
			timer := time.NewTimer(b.EnrollDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return false, ctx.Err()
			case <-timer.C:
			}
		}
	}

	if b.RejectEnroll {
		return false, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.students[courseID][studentID]; ok {
		return false, nil
	}
	m.add(studentID, courseID)
	return true, nil
}

func (m *MockRegistrar) add(studentID, courseID string) {
	set, ok := m.students[courseID]
	if !ok {
		set = make(map[string]struct{})
		m.students[courseID] = set
	}
	set[studentID] = struct{}{}
}
