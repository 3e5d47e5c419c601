package enrollment

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Student identifies the person enrolling.
type Student struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Course carries the capacity data read by the gate.
type Course struct {
	ID       string `json:"id"`
	Code     string `json:"code,omitempty"`
	Title    string `json:"title,omitempty"`
	Capacity int    `json:"capacity"`
}

// Priority orders queued requests. Higher priorities dequeue first.
type Priority int

const (
	PriorityLow Priority = iota + 1
	PriorityNormal
	PriorityHigh
)

// String implements fmt.Stringer.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// ParsePriority converts "low", "normal" or "high". Empty means normal.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "normal":
		return PriorityNormal, nil
	case "low":
		return PriorityLow, nil
	case "high":
		return PriorityHigh, nil
	default:
		return 0, fmt.Errorf("unknown priority %q", s)
	}
}

// Request is one queued enrollment, consumed exactly once.
type Request struct {
	ID        string    `json:"id"`
	Student   Student   `json:"student"`
	Course    Course    `json:"course"`
	Priority  Priority  `json:"priority"`
	CreatedAt time.Time `json:"created_at"`
}

// NewRequest builds a request with a fresh ID. A zero priority becomes
// PriorityNormal.
func NewRequest(student Student, course Course, priority Priority) Request {
	if priority == 0 {
		priority = PriorityNormal
	}
	return Request{
		ID:        uuid.NewString(),
		Student:   student,
		Course:    course,
		Priority:  priority,
		CreatedAt: time.Now(),
	}
}

// Outcome classifies an enrollment attempt.
type Outcome string

const (
	OutcomeEnrolled        Outcome = "enrolled"
	OutcomeCourseFull      Outcome = "course_full"
	OutcomeAlreadyEnrolled Outcome = "already_enrolled"
	OutcomeRejected        Outcome = "rejected"
	OutcomeTimedOut        Outcome = "timed_out"
	OutcomeCancelled       Outcome = "cancelled"
	OutcomeError           Outcome = "error"
)

// Result messages.
const (
	MsgEnrolled        = "Enrollment successful"
	MsgCourseFull      = "Course is full"
	MsgAlreadyEnrolled = "Student already enrolled"
	MsgRejected        = "Enrollment failed"
	MsgTimedOut        = "Enrollment timed out"
	MsgCancelled       = "Enrollment cancelled"
)

// Result is the immutable outcome of an enrollment attempt.
type Result struct {
	Success   bool      `json:"success"`
	Outcome   Outcome   `json:"outcome"`
	Message   string    `json:"message"`
	StudentID string    `json:"student_id"`
	CourseID  string    `json:"course_id"`
	Timestamp time.Time `json:"timestamp"`

	// Attempts is the number of gate calls that produced this result.
	Attempts int `json:"attempts"`

	// Err carries the cause for timeouts, cancellations and store errors.
	Err error `json:"-"`
}

func newResult(student Student, course Course, outcome Outcome, message string, err error) Result {
	return Result{
		Success:   outcome == OutcomeEnrolled,
		Outcome:   outcome,
		Message:   message,
		StudentID: student.ID,
		CourseID:  course.ID,
		Timestamp: time.Now(),
		Attempts:  1,
		Err:       err,
	}
}
