package batch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BatchRunsTotal counts finished batches by variant and status.
	BatchRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campus_batch_runs_total",
			Help: "Total number of batch runs by variant and status",
		},
		[]string{"variant", "status"}, // status: "ok", "failed", "interrupted"
	)

	// BatchItemsTotal counts items by outcome.
	BatchItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campus_batch_items_total",
			Help: "Total number of batch items by outcome",
		},
		[]string{"outcome"}, // "processed", "failed"
	)

	// BatchDuration tracks wall time per batch.
	BatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "campus_batch_duration_seconds",
			Help:    "Batch duration in seconds by variant",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
		},
		[]string{"variant"},
	)

	// ActiveChunks is the number of chunks currently executing.
	ActiveChunks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "campus_batch_active_chunks",
			Help: "Number of batch chunks currently executing",
		},
	)
)
