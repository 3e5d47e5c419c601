// Package enrollment implements the concurrent enrollment pipeline.
//
// The Gate is the single place where a seat is committed. For one course it
// serializes the capacity check, the duplicate check and the registrar commit,
// so enrolledCount never exceeds capacity no matter how many callers race.
// Different courses do not contend: the lock is keyed by course ID.
//
// Around the gate sit:
//   - Retrier: bounded retries with linear or exponential backoff
//   - Gate.EnrollWithTimeout: soft deadline, cooperative cancellation
//   - Queue + Worker: priority queue drained by one background loop
//   - Dispatcher: fire-and-forget post-enrollment notifications
//
// Domain failures (course full, duplicate, rejected commit, timeout) are
// reported through Result.Outcome and never as Go errors.
//
// # Metrics
//
//   - campus_enrollment_attempts_total{outcome}
//   - campus_enrollment_duration_seconds
//   - campus_enrollment_retries_total
//   - campus_enrollment_retry_backoff_seconds
//   - campus_enrollment_retry_exhausted_total
//   - campus_enrollment_timeouts_total
//   - campus_enrollment_queue_depth
//   - campus_notifications_total{status}
package enrollment
