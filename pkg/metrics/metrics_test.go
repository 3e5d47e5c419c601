package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/campus-records/internal/testutil"
	"github.com/Sternrassler/campus-records/pkg/batch"
	"github.com/Sternrassler/campus-records/pkg/enrollment"
	"github.com/Sternrassler/campus-records/pkg/task"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

func TestRegistry(t *testing.T) {
	if Registry != prometheus.DefaultRegisterer {
		t.Error("Registry should be the default Prometheus registerer")
	}
	if Gatherer != prometheus.DefaultGatherer {
		t.Error("Gatherer should be the default Prometheus gatherer")
	}
}

func TestHandler_ExposesEngineMetrics(t *testing.T) {
	ctx := context.Background()
	pool := task.NewPool("metrics-test", 2)
	defer pool.Shutdown(ctx)

	ex := batch.NewExecutor(pool, batch.DefaultConfig())
	fut, err := batch.Submit(ctx, ex, []int{1, 2, 3}, func(ctx context.Context, n int) (int, error) {
		return n, nil
	}, 2, 1)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	fut.Get()

	// The task counter moves after the future resolves.
	drainCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := pool.WaitForDrain(drainCtx); err != nil {
		t.Fatalf("WaitForDrain() error = %v", err)
	}

	gate := enrollment.NewGate(testutil.NewMockRegistrar(), nil, zerolog.New(os.Stderr).Level(zerolog.Disabled))
	gate.Enroll(ctx, enrollment.Student{ID: "s1"}, enrollment.Course{ID: "c1", Capacity: 1})

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	for _, name := range []string{
		"campus_batch_runs_total",
		"campus_batch_items_total",
		"campus_pool_tasks_total",
		"campus_enrollment_attempts_total",
	} {
		if !strings.Contains(string(body), name) {
			t.Errorf("/metrics missing %s", name)
		}
	}
}
