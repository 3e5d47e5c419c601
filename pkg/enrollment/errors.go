package enrollment

import (
	"errors"
	"fmt"
)

// Common errors returned by the enrollment pipeline.
var (
	// ErrTimedOut is set on results whose deadline expired.
	ErrTimedOut = errors.New("enrollment timed out")

	// ErrRetryInterrupted is set when a backoff wait was cancelled.
	ErrRetryInterrupted = errors.New("retry interrupted")

	// ErrQueueClosed is returned when enqueuing after shutdown, and by Poll
	// once a closed queue is empty.
	ErrQueueClosed = errors.New("enrollment queue is closed")

	// ErrInvalidRequest is returned for requests missing a student or course.
	ErrInvalidRequest = errors.New("invalid enrollment request")
)

// StoreError reports a registrar failure with the operation that failed.
type StoreError struct {
	Op        string
	StudentID string
	CourseID  string
	Err       error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.StudentID != "" {
		return fmt.Sprintf("registrar %s (student %s, course %s): %v", e.Op, e.StudentID, e.CourseID, e.Err)
	}
	return fmt.Sprintf("registrar %s (course %s): %v", e.Op, e.CourseID, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *StoreError) Unwrap() error {
	return e.Err
}

func validateRequest(student Student, course Course) error {
	if student.ID == "" {
		return fmt.Errorf("%w: student id is required", ErrInvalidRequest)
	}
	if course.ID == "" {
		return fmt.Errorf("%w: course id is required", ErrInvalidRequest)
	}
	return nil
}
