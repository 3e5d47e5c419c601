// Package metrics exposes the Prometheus registry used by campus-records.
// Metrics are defined with promauto in the package that records them, so
// this package only catalogues them and serves the scrape endpoint.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer every promauto metric in the module uses.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the source the /metrics handler reads from.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Pool Metrics (pkg/task):
//   - campus_pool_active_tasks{pool} (Gauge): Tasks currently running
//   - campus_pool_tasks_total{pool, status} (Counter): Finished tasks (ok, panic)
//
// Batch Metrics (pkg/batch):
//   - campus_batch_runs_total{variant, status} (Counter): Batches by variant and outcome
//   - campus_batch_items_total{outcome} (Counter): Items processed or failed
//   - campus_batch_duration_seconds{variant} (Histogram): Batch wall time
//   - campus_batch_active_chunks (Gauge): Chunks holding a permit
//
// Scheduler Metrics (pkg/scheduler):
//   - campus_scheduler_runs_total{job, status} (Counter): Runs (ok, failed, panic, skipped)
//   - campus_scheduler_run_duration_seconds{job} (Histogram): Run duration
//
// Enrollment Metrics (pkg/enrollment):
//   - campus_enrollment_attempts_total{outcome} (Counter): Gate attempts by outcome
//   - campus_enrollment_duration_seconds (Histogram): Gate attempt duration
//   - campus_enrollment_retries_total (Counter): Backoff waits started
//   - campus_enrollment_retry_backoff_seconds (Histogram): Backoff durations
//   - campus_enrollment_retry_exhausted_total (Counter): Retry loops that gave up
//   - campus_enrollment_timeouts_total (Counter): Attempts that hit their deadline
//   - campus_enrollment_queue_depth (Gauge): Requests waiting in the queue
//   - campus_notifications_total{status} (Counter): Notifications (sent, failed, dropped)
//
// Store Metrics (pkg/store):
//   - campus_store_operations_total{backend, operation} (Counter): Registrar calls
//   - campus_store_errors_total{backend, operation} (Counter): Failed registrar calls
//   - campus_store_capacity_rejections_total{backend} (Counter): Commits refused by the store guard
//
// Example Prometheus Queries:
//
//   # Share of attempts rejected because the course was full
//   sum(rate(campus_enrollment_attempts_total{outcome="course_full"}[5m])) /
//   sum(rate(campus_enrollment_attempts_total[5m]))
//
//   # Queue backlog
//   campus_enrollment_queue_depth > 100
//
//   # P95 batch duration by variant
//   histogram_quantile(0.95, sum by (variant, le) (rate(campus_batch_duration_seconds_bucket[5m])))
