package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Operations tracks registrar calls by backend and operation.
	Operations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campus_store_operations_total",
			Help: "Total number of registrar store operations",
		},
		[]string{"backend", "operation"}, // "redis", "enroll"
	)

	// Errors tracks failed registrar calls.
	Errors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campus_store_errors_total",
			Help: "Total number of registrar store errors",
		},
		[]string{"backend", "operation"},
	)

	// CapacityRejections counts commits refused by the store's own capacity guard.
	CapacityRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campus_store_capacity_rejections_total",
			Help: "Total number of enrollments refused by the store capacity guard",
		},
		[]string{"backend"},
	)
)

// Observe records one operation and, if err is non-nil, one error.
func Observe(backend, operation string, err error) {
	Operations.WithLabelValues(backend, operation).Inc()
	if err != nil {
		Errors.WithLabelValues(backend, operation).Inc()
	}
}
