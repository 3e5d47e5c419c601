package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sternrassler/campus-records/internal/testutil"
	"github.com/Sternrassler/campus-records/pkg/batch"
	"github.com/Sternrassler/campus-records/pkg/enrollment"
	"github.com/Sternrassler/campus-records/pkg/task"
	"github.com/rs/zerolog"
)

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.Disabled)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Workers = 4
	cfg.PollInterval = 5 * time.Millisecond
	cfg.ShutdownGrace = time.Second
	cfg.Retry = enrollment.RetryConfig{
		Policy:     enrollment.BackoffLinear,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		Multiplier: 2,
	}
	return cfg
}

func newTestEngine(t *testing.T, reg enrollment.Registrar, cfg Config) *Engine {
	t.Helper()
	e := New(reg, nil, cfg, testLogger())
	t.Cleanup(func() { e.Shutdown() })
	return e
}

type countingNotifier struct {
	calls atomic.Int64
}

func (n *countingNotifier) Notify(ctx context.Context, s enrollment.Student, c enrollment.Course) error {
	n.calls.Add(1)
	return nil
}

func TestEngine_Enroll(t *testing.T) {
	reg := testutil.NewMockRegistrar()
	notifier := &countingNotifier{}
	e := New(reg, notifier, testConfig(), testLogger())

	res := e.Enroll(context.Background(), enrollment.Student{ID: "s1"}, enrollment.Course{ID: "c1", Capacity: 1})
	if !res.Success {
		t.Fatalf("Success = false, outcome %q", res.Outcome)
	}

	if err := e.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if notifier.calls.Load() != 1 {
		t.Errorf("notifications = %d, want 1", notifier.calls.Load())
	}
	if s := e.Stats(); s.Enrolled != 1 {
		t.Errorf("Stats().Enrolled = %d, want 1", s.Enrolled)
	}
}

func TestEngine_WithRetry(t *testing.T) {
	reg := testutil.NewMockRegistrar()
	reg.SetBehavior(testutil.MockBehavior{RejectEnroll: true})
	e := newTestEngine(t, reg, testConfig())

	fut, err := e.WithRetry(context.Background(), enrollment.Student{ID: "s1"}, enrollment.Course{ID: "c1", Capacity: 1}, 2)
	if err != nil {
		t.Fatalf("WithRetry() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := fut.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if res.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", res.Attempts)
	}
	if res.Success {
		t.Error("Success = true, want false")
	}
}

func TestEngine_WithTimeout(t *testing.T) {
	reg := testutil.NewMockRegistrar()
	reg.SetBehavior(testutil.MockBehavior{EnrollDelay: time.Second})
	e := newTestEngine(t, reg, testConfig())

	fut, err := e.WithTimeout(context.Background(), enrollment.Student{ID: "s1"}, enrollment.Course{ID: "c1", Capacity: 1}, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("WithTimeout() error = %v", err)
	}

	res := fut.Get()
	if res.Outcome != enrollment.OutcomeTimedOut {
		t.Errorf("Outcome = %q, want %q", res.Outcome, enrollment.OutcomeTimedOut)
	}
	if res.Message != enrollment.MsgTimedOut {
		t.Errorf("Message = %q, want %q", res.Message, enrollment.MsgTimedOut)
	}
}

func TestEngine_EnqueueAndWait(t *testing.T) {
	reg := testutil.NewMockRegistrar()

	var mu sync.Mutex
	outcomes := map[enrollment.Outcome]int{}
	cfg := testConfig()
	cfg.OnQueuedResult = func(_ enrollment.Request, res enrollment.Result) {
		mu.Lock()
		outcomes[res.Outcome]++
		mu.Unlock()
	}
	e := newTestEngine(t, reg, cfg)

	course := enrollment.Course{ID: "c1", Capacity: 5}
	for i := 0; i < 8; i++ {
		req, err := e.EnqueueEnrollment(enrollment.Student{ID: fmt.Sprintf("s%d", i)}, course, enrollment.PriorityNormal)
		if err != nil {
			t.Fatalf("EnqueueEnrollment() error = %v", err)
		}
		if req.ID == "" {
			t.Error("request ID is empty")
		}
	}

	if !e.WaitForCompletion(2 * time.Second) {
		t.Fatalf("WaitForCompletion() = false, stats %+v", e.Stats())
	}

	mu.Lock()
	defer mu.Unlock()
	if outcomes[enrollment.OutcomeEnrolled] != 5 {
		t.Errorf("enrolled = %d, want 5", outcomes[enrollment.OutcomeEnrolled])
	}
	if outcomes[enrollment.OutcomeCourseFull] != 3 {
		t.Errorf("course full = %d, want 3", outcomes[enrollment.OutcomeCourseFull])
	}
	if reg.Count("c1") != 5 {
		t.Errorf("registrar count = %d, want 5", reg.Count("c1"))
	}
}

func TestEngine_ScheduleEnrollment(t *testing.T) {
	reg := testutil.NewMockRegistrar()
	e := newTestEngine(t, reg, testConfig())

	start := time.Now()
	fut, err := e.ScheduleEnrollment(enrollment.Student{ID: "s1"}, enrollment.Course{ID: "c1", Capacity: 1}, 30*time.Millisecond)
	if err != nil {
		t.Fatalf("ScheduleEnrollment() error = %v", err)
	}

	res := fut.Get()
	if !res.Success {
		t.Errorf("Success = false, outcome %q", res.Outcome)
	}
	if elapsed := time.Since(start); elapsed < 25*time.Millisecond {
		t.Errorf("enrollment ran after %v, want >= delay", elapsed)
	}
}

func TestEngine_ScheduleEnrollment_ResolvedOnShutdown(t *testing.T) {
	reg := testutil.NewMockRegistrar()
	e := New(reg, nil, testConfig(), testLogger())

	fut, err := e.ScheduleEnrollment(enrollment.Student{ID: "s1"}, enrollment.Course{ID: "c1", Capacity: 1}, time.Hour)
	if err != nil {
		t.Fatalf("ScheduleEnrollment() error = %v", err)
	}

	if err := e.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	select {
	case <-fut.Done():
	case <-time.After(time.Second):
		t.Fatal("future not resolved after shutdown")
	}
	if res := fut.Get(); res.Outcome != enrollment.OutcomeCancelled {
		t.Errorf("Outcome = %q, want %q", res.Outcome, enrollment.OutcomeCancelled)
	}
	if reg.EnrollCalls.Load() != 0 {
		t.Errorf("EnrollCalls = %d, want 0", reg.EnrollCalls.Load())
	}
}

func TestEngine_ScheduleBatch(t *testing.T) {
	e := newTestEngine(t, testutil.NewMockRegistrar(), testConfig())

	var runs atomic.Int64
	var processed atomic.Int64
	supplier := func(ctx context.Context) ([]int, error) {
		if runs.Add(1) == 1 {
			return nil, errors.New("catalog unavailable")
		}
		return []int{1, 2, 3, 4}, nil
	}
	double := func(ctx context.Context, n int) (int, error) {
		processed.Add(1)
		return n * 2, nil
	}

	h, err := ScheduleBatch(e, "roster-sync", supplier, double, 0, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("ScheduleBatch() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	h.Stop()
	<-h.Done()

	if runs.Load() < 3 {
		t.Fatalf("runs = %d, want >= 3 after a failed first run", runs.Load())
	}
	if processed.Load() < 4 {
		t.Errorf("processed = %d, want >= 4", processed.Load())
	}
}

func TestEngine_BatchesUseSharedPool(t *testing.T) {
	e := newTestEngine(t, testutil.NewMockRegistrar(), testConfig())

	items := []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	fut, err := batch.Submit(context.Background(), e.Batches(), items, func(ctx context.Context, n int) (int, error) {
		return n, nil
	}, 3, 2)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	res := fut.Get()
	if !res.Success || res.ProcessedCount != 10 {
		t.Errorf("result = success %v processed %d, want true/10", res.Success, res.ProcessedCount)
	}
	if !e.WaitForCompletion(time.Second) {
		t.Error("WaitForCompletion() = false after batch finished")
	}
}

func TestEngine_WaitForCompletion_TimesOut(t *testing.T) {
	reg := testutil.NewMockRegistrar()
	reg.SetBehavior(testutil.MockBehavior{EnrollDelay: 300 * time.Millisecond})
	e := newTestEngine(t, reg, testConfig())

	if _, err := e.EnqueueEnrollment(enrollment.Student{ID: "s1"}, enrollment.Course{ID: "c1", Capacity: 1}, 0); err != nil {
		t.Fatalf("EnqueueEnrollment() error = %v", err)
	}

	if e.WaitForCompletion(20 * time.Millisecond) {
		t.Error("WaitForCompletion() = true while enrollment is running")
	}
}

func TestEngine_ShutdownRejectsNewWork(t *testing.T) {
	e := New(testutil.NewMockRegistrar(), nil, testConfig(), testLogger())

	if err := e.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if err := e.Shutdown(); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}

	student := enrollment.Student{ID: "s1"}
	course := enrollment.Course{ID: "c1", Capacity: 1}

	if _, err := e.EnqueueEnrollment(student, course, 0); !errors.Is(err, enrollment.ErrQueueClosed) {
		t.Errorf("EnqueueEnrollment() error = %v, want ErrQueueClosed", err)
	}
	if _, err := e.WithRetry(context.Background(), student, course, 1); !errors.Is(err, task.ErrPoolClosed) {
		t.Errorf("WithRetry() error = %v, want ErrPoolClosed", err)
	}
	if _, err := e.ScheduleEnrollment(student, course, time.Millisecond); err == nil {
		t.Error("ScheduleEnrollment() error = nil after shutdown")
	}
	if s := e.Stats(); s.Processing {
		t.Error("Stats().Processing = true after shutdown")
	}
}

func TestEngine_ShutdownGraceExceeded(t *testing.T) {
	reg := testutil.NewMockRegistrar()
	reg.SetBehavior(testutil.MockBehavior{EnrollDelay: 5 * time.Second, IgnoreContext: true})
	cfg := testConfig()
	cfg.ShutdownGrace = 50 * time.Millisecond
	e := New(reg, nil, cfg, testLogger())

	if _, err := e.WithRetry(context.Background(), enrollment.Student{ID: "s1"}, enrollment.Course{ID: "c1", Capacity: 1}, 0); err != nil {
		t.Fatalf("WithRetry() error = %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	start := time.Now()
	err := e.Shutdown()
	if err == nil {
		t.Error("Shutdown() error = nil, want grace timeout")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Shutdown() took %v, want bounded by grace", elapsed)
	}
}
