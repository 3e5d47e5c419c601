package enrollment

import "context"

// Registrar is the enrollment service the gate delegates to.
// Implementations must honor ctx cancellation where they can.
type Registrar interface {
	// EnrolledCount returns the number of students currently in the course.
	EnrolledCount(ctx context.Context, courseID string) (int, error)

	// IsEnrolled reports whether the student already holds a seat.
	IsEnrolled(ctx context.Context, studentID, courseID string) (bool, error)

	// Enroll commits the seat. false means the service rejected it.
	Enroll(ctx context.Context, studentID, courseID string) (bool, error)
}

// Notifier delivers post-enrollment notifications.
type Notifier interface {
	Notify(ctx context.Context, student Student, course Course) error
}

// Catalog resolves course capacity data by ID.
type Catalog interface {
	Course(ctx context.Context, courseID string) (Course, error)
}
