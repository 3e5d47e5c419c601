package enrollment

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for enrollment operations.
var (
	enrollmentAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campus_enrollment_attempts_total",
		Help: "Total enrollment attempts by outcome",
	}, []string{"outcome"})

	enrollmentDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "campus_enrollment_duration_seconds",
		Help:    "Duration of gate enrollment attempts including lock wait",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})

	enrollmentRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "campus_enrollment_retries_total",
		Help: "Total number of enrollment retry attempts",
	})

	enrollmentRetryBackoffSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "campus_enrollment_retry_backoff_seconds",
		Help:    "Backoff duration before enrollment retries",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
	})

	enrollmentRetryExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "campus_enrollment_retry_exhausted_total",
		Help: "Total number of enrollments that failed after all retries",
	})

	enrollmentTimeoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "campus_enrollment_timeouts_total",
		Help: "Total number of enrollments that hit their deadline",
	})

	enrollmentQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "campus_enrollment_queue_depth",
		Help: "Number of enrollment requests waiting in the queue",
	})

	notificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campus_notifications_total",
		Help: "Total post-enrollment notifications by status",
	}, []string{"status"}) // "sent", "failed", "dropped"
)
