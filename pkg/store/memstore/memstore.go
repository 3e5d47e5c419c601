// Package memstore is an in-memory registrar and course catalog.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Sternrassler/campus-records/pkg/enrollment"
	"github.com/Sternrassler/campus-records/pkg/store"
)

const backend = "memory"

// Store keeps courses and their rosters in maps guarded by one RWMutex.
type Store struct {
	mu      sync.RWMutex
	courses map[string]enrollment.Course
	rosters map[string]map[string]struct{}
}

// New creates an empty store.
func New() *Store {
	return &Store{
		courses: make(map[string]enrollment.Course),
		rosters: make(map[string]map[string]struct{}),
	}
}

// UpsertCourse adds or replaces a course definition.
func (s *Store) UpsertCourse(ctx context.Context, course enrollment.Course) error {
	if course.ID == "" {
		return fmt.Errorf("%w: course id is required", enrollment.ErrInvalidRequest)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.courses[course.ID] = course
	store.Observe(backend, "upsert_course", nil)
	return nil
}

// Course implements enrollment.Catalog.
func (s *Store) Course(ctx context.Context, courseID string) (enrollment.Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.courses[courseID]
	if !ok {
		store.Observe(backend, "course", store.ErrCourseNotFound)
		return enrollment.Course{}, fmt.Errorf("%w: %s", store.ErrCourseNotFound, courseID)
	}
	store.Observe(backend, "course", nil)
	return c, nil
}

// EnrolledCount implements enrollment.Registrar.
func (s *Store) EnrolledCount(ctx context.Context, courseID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	store.Observe(backend, "count", nil)
	return len(s.rosters[courseID]), nil
}

// IsEnrolled implements enrollment.Registrar.
func (s *Store) IsEnrolled(ctx context.Context, studentID, courseID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	store.Observe(backend, "is_enrolled", nil)
	_, ok := s.rosters[courseID][studentID]
	return ok, nil
}

// Enroll implements enrollment.Registrar. A course registered through
// UpsertCourse refuses students beyond its capacity; unknown courses are
// unbounded here and rely on the gate's check.
func (s *Store) Enroll(ctx context.Context, studentID, courseID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	store.Observe(backend, "enroll", nil)

	roster, ok := s.rosters[courseID]
	if !ok {
		roster = make(map[string]struct{})
		s.rosters[courseID] = roster
	}
	if _, dup := roster[studentID]; dup {
		return false, nil
	}
	if c, known := s.courses[courseID]; known && len(roster) >= c.Capacity {
		store.CapacityRejections.WithLabelValues(backend).Inc()
		return false, nil
	}
	roster[studentID] = struct{}{}
	return true, nil
}

// Roster returns the enrolled student IDs of a course in sorted order.
func (s *Store) Roster(ctx context.Context, courseID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.rosters[courseID]))
	for id := range s.rosters[courseID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
