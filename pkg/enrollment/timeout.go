package enrollment

import (
	"context"
	"time"
)

// EnrollWithTimeout races Enroll against d.
//
// When d expires first the result is OutcomeTimedOut with ErrTimedOut. The
// attempt's context is cancelled at that point, so a registrar that honors
// ctx aborts; one that does not may still commit afterwards. Such late
// attempts remain visible through InFlight until they return.
func (g *Gate) EnrollWithTimeout(ctx context.Context, student Student, course Course, d time.Duration) Result {
	attemptCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	done := make(chan Result, 1)
	go func() {
		done <- g.Enroll(attemptCtx, student, course)
	}()

	select {
	case res := <-done:
		if attemptCtx.Err() == nil || completed(res) {
			return res
		}
	case <-attemptCtx.Done():
		// Prefer a result that raced with the deadline.
		select {
		case res := <-done:
			if completed(res) {
				return res
			}
		default:
		}
	}

	if ctx.Err() != nil {
		return newResult(student, course, OutcomeCancelled, MsgCancelled, ctx.Err())
	}

	enrollmentTimeoutsTotal.Inc()
	g.logger.Warn().
		Str("student_id", student.ID).
		Str("course_id", course.ID).
		Dur("timeout", d).
		Msg("Enrollment timed out")
	return newResult(student, course, OutcomeTimedOut, MsgTimedOut, ErrTimedOut)
}

// completed reports whether res was decided by the registrar rather than by
// the attempt's context ending.
func completed(res Result) bool {
	return res.Outcome != OutcomeCancelled && res.Outcome != OutcomeError
}
