package enrollment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultNotifyTimeout bounds a single notification delivery.
const DefaultNotifyTimeout = 10 * time.Second

// Dispatcher delivers notifications on background goroutines. Delivery
// failures are logged and counted; they never reach the enrollment result.
type Dispatcher struct {
	notifier Notifier
	timeout  time.Duration
	logger   zerolog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher around notifier.
func NewDispatcher(notifier Notifier, timeout time.Duration, logger zerolog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultNotifyTimeout
	}
	return &Dispatcher{
		notifier: notifier,
		timeout:  timeout,
		logger:   logger,
	}
}

// Dispatch sends the notification asynchronously.
func (d *Dispatcher) Dispatch(student Student, course Course) {
	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		notificationsTotal.WithLabelValues("dropped").Inc()
		d.logger.Warn().
			Str("student_id", student.ID).
			Str("course_id", course.ID).
			Msg("Notification dropped - dispatcher closed")
		return
	}
	d.wg.Add(1)
	d.mu.RUnlock()

	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := d.deliver(ctx, student, course); err != nil {
			notificationsTotal.WithLabelValues("failed").Inc()
			d.logger.Warn().
				Err(err).
				Str("student_id", student.ID).
				Str("course_id", course.ID).
				Msg("Enrollment notification failed")
			return
		}
		notificationsTotal.WithLabelValues("sent").Inc()
	}()
}

func (d *Dispatcher) deliver(ctx context.Context, student Student, course Course) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("notifier panicked: %v", r)
		}
	}()
	return d.notifier.Notify(ctx, student, course)
}

// Close stops accepting notifications and waits for pending deliveries
// until ctx ends.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pending notifications: %w", ctx.Err())
	}
}

// LogNotifier is a Notifier that only writes a log line.
type LogNotifier struct {
	Logger zerolog.Logger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(ctx context.Context, student Student, course Course) error {
	n.Logger.Info().
		Str("student_id", student.ID).
		Str("student_name", student.Name).
		Str("course_id", course.ID).
		Str("course_code", course.Code).
		Msg("Student enrolled")
	return nil
}
