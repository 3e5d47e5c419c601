package enrollment

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// BackoffPolicy selects how the delay grows between attempts.
type BackoffPolicy string

const (
	// BackoffExponential waits BaseDelay * Multiplier^(n-1) after attempt n.
	BackoffExponential BackoffPolicy = "exponential"

	// BackoffLinear waits BaseDelay * n after attempt n.
	BackoffLinear BackoffPolicy = "linear"
)

// ParseBackoffPolicy converts a config string. Empty means exponential.
func ParseBackoffPolicy(s string) (BackoffPolicy, error) {
	switch BackoffPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", BackoffExponential:
		return BackoffExponential, nil
	case BackoffLinear:
		return BackoffLinear, nil
	default:
		return "", fmt.Errorf("unknown backoff policy %q", s)
	}
}

// RetryConfig holds the configuration for enrollment retries.
type RetryConfig struct {
	// Policy selects linear or exponential growth.
	Policy BackoffPolicy

	// BaseDelay is the wait after the first failed attempt.
	BaseDelay time.Duration

	// MaxDelay caps a single wait. Zero means no cap.
	MaxDelay time.Duration

	// Multiplier is the growth factor for exponential backoff.
	Multiplier float64

	// Jitter randomizes each wait by ±Jitter (0.2 = ±20%).
	Jitter float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Policy:     BackoffExponential,
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   5 * time.Second,
		Multiplier: 2.0,
		Jitter:     0.2,
	}
}

// Delay returns the wait after the given failed attempt (1-based), before
// jitter.
func (c RetryConfig) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	var d time.Duration
	switch c.Policy {
	case BackoffLinear:
		d = c.BaseDelay * time.Duration(attempt)
	default:
		mult := c.Multiplier
		if mult < 1 {
			mult = 1
		}
		d = time.Duration(float64(c.BaseDelay) * math.Pow(mult, float64(attempt-1)))
	}

	if c.MaxDelay > 0 && d > c.MaxDelay {
		d = c.MaxDelay
	}
	return d
}

func (c RetryConfig) withJitter(d time.Duration) time.Duration {
	if c.Jitter <= 0 || d <= 0 {
		return d
	}
	return time.Duration(float64(d) * (1 - c.Jitter + rand.Float64()*2*c.Jitter))
}

// Retrier retries gate enrollments with backoff.
type Retrier struct {
	gate   *Gate
	config RetryConfig
	logger zerolog.Logger
}

// NewRetrier creates a retrier over gate.
func NewRetrier(gate *Gate, config RetryConfig, logger zerolog.Logger) *Retrier {
	return &Retrier{
		gate:   gate,
		config: config,
		logger: logger,
	}
}

// Enroll calls the gate up to maxRetries+1 times and stops at the first
// success. If ctx is cancelled during a backoff wait, the last result is
// returned with Err wrapping ErrRetryInterrupted and the context error.
func (r *Retrier) Enroll(ctx context.Context, student Student, course Course, maxRetries int) Result {
	if maxRetries < 0 {
		maxRetries = 0
	}
	maxAttempts := maxRetries + 1

	var res Result
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res = r.gate.Enroll(ctx, student, course)
		res.Attempts = attempt

		if res.Success {
			if attempt > 1 {
				r.logger.Info().
					Str("student_id", student.ID).
					Str("course_id", course.ID).
					Int("attempt", attempt).
					Msg("Enrollment succeeded after retry")
			}
			return res
		}

		// The gate could not even take the lock; waiting will not help.
		if res.Outcome == OutcomeCancelled {
			return res
		}

		if attempt == maxAttempts {
			break
		}

		wait := r.config.withJitter(r.config.Delay(attempt))
		enrollmentRetriesTotal.Inc()
		enrollmentRetryBackoffSeconds.Observe(wait.Seconds())

		r.logger.Debug().
			Str("student_id", student.ID).
			Str("course_id", course.ID).
			Str("outcome", string(res.Outcome)).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("Retrying enrollment after backoff")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			r.logger.Warn().
				Str("student_id", student.ID).
				Str("course_id", course.ID).
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			res.Err = fmt.Errorf("%w: %w", ErrRetryInterrupted, ctx.Err())
			return res
		case <-timer.C:
		}
	}

	enrollmentRetryExhaustedTotal.Inc()
	r.logger.Warn().
		Str("student_id", student.ID).
		Str("course_id", course.ID).
		Str("outcome", string(res.Outcome)).
		Int("max_attempts", maxAttempts).
		Msg("Enrollment retry attempts exhausted")

	return res
}
