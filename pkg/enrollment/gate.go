package enrollment

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Gate commits enrollments one course at a time.
type Gate struct {
	registrar  Registrar
	dispatcher *Dispatcher
	locks      *courseLocks
	logger     zerolog.Logger

	inFlight atomic.Int64
	enrolled atomic.Int64
	rejected atomic.Int64
}

// NewGate creates a gate. dispatcher may be nil to disable notifications.
func NewGate(registrar Registrar, dispatcher *Dispatcher, logger zerolog.Logger) *Gate {
	if registrar == nil {
		panic("enrollment: registrar cannot be nil")
	}
	return &Gate{
		registrar:  registrar,
		dispatcher: dispatcher,
		locks:      newCourseLocks(),
		logger:     logger,
	}
}

// Enroll runs the capacity check, the duplicate check and the commit while
// holding the course lock. A successful enrollment triggers a notification
// after the lock is released.
func (g *Gate) Enroll(ctx context.Context, student Student, course Course) Result {
	g.inFlight.Add(1)
	defer g.inFlight.Add(-1)

	start := time.Now()
	res := g.enroll(ctx, student, course)
	enrollmentDuration.Observe(time.Since(start).Seconds())
	enrollmentAttemptsTotal.WithLabelValues(string(res.Outcome)).Inc()

	if res.Success {
		g.enrolled.Add(1)
		if g.dispatcher != nil {
			g.dispatcher.Dispatch(student, course)
		}
	} else {
		g.rejected.Add(1)
	}

	event := g.logger.Debug()
	if res.Outcome == OutcomeError {
		event = g.logger.Error().Err(res.Err)
	}
	event.
		Str("student_id", student.ID).
		Str("course_id", course.ID).
		Str("outcome", string(res.Outcome)).
		Dur("duration", time.Since(start)).
		Msg("Enrollment attempt finished")

	return res
}

func (g *Gate) enroll(ctx context.Context, student Student, course Course) Result {
	if err := validateRequest(student, course); err != nil {
		return newResult(student, course, OutcomeError, err.Error(), err)
	}

	if err := g.locks.lock(ctx, course.ID); err != nil {
		return newResult(student, course, OutcomeCancelled, MsgCancelled, err)
	}
	defer g.locks.unlock(course.ID)

	count, err := g.registrar.EnrolledCount(ctx, course.ID)
	if err != nil {
		return g.storeFailure(student, course, "enrolled count", err)
	}
	if count >= course.Capacity {
		return newResult(student, course, OutcomeCourseFull, MsgCourseFull, nil)
	}

	already, err := g.registrar.IsEnrolled(ctx, student.ID, course.ID)
	if err != nil {
		return g.storeFailure(student, course, "is enrolled", err)
	}
	if already {
		return newResult(student, course, OutcomeAlreadyEnrolled, MsgAlreadyEnrolled, nil)
	}

	ok, err := g.registrar.Enroll(ctx, student.ID, course.ID)
	if err != nil {
		return g.storeFailure(student, course, "enroll", err)
	}
	if !ok {
		return newResult(student, course, OutcomeRejected, MsgRejected, nil)
	}

	return newResult(student, course, OutcomeEnrolled, MsgEnrolled, nil)
}

func (g *Gate) storeFailure(student Student, course Course, op string, err error) Result {
	storeErr := &StoreError{Op: op, StudentID: student.ID, CourseID: course.ID, Err: err}
	return newResult(student, course, OutcomeError, fmt.Sprintf("%s: %v", MsgRejected, storeErr), storeErr)
}

// InFlight returns the number of attempts currently inside Enroll, including
// attempts abandoned by a timeout that have not finished yet.
func (g *Gate) InFlight() int64 {
	return g.inFlight.Load()
}

// Enrolled returns the number of successful enrollments.
func (g *Gate) Enrolled() int64 {
	return g.enrolled.Load()
}

// Rejected returns the number of unsuccessful attempts.
func (g *Gate) Rejected() int64 {
	return g.rejected.Load()
}
