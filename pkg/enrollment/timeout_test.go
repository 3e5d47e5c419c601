package enrollment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Sternrassler/campus-records/internal/testutil"
)

func TestGate_EnrollWithTimeout(t *testing.T) {
	tests := []struct {
		name        string
		behavior    testutil.MockBehavior
		timeout     time.Duration
		wantOutcome Outcome
	}{
		{
			name:        "completes in time",
			timeout:     time.Second,
			wantOutcome: OutcomeEnrolled,
		},
		{
			name:        "registrar honors context",
			behavior:    testutil.MockBehavior{EnrollDelay: time.Second},
			timeout:     20 * time.Millisecond,
			wantOutcome: OutcomeTimedOut,
		},
		{
			name:        "registrar ignores context",
			behavior:    testutil.MockBehavior{EnrollDelay: 200 * time.Millisecond, IgnoreContext: true},
			timeout:     20 * time.Millisecond,
			wantOutcome: OutcomeTimedOut,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := testutil.NewMockRegistrar()
			reg.SetBehavior(tt.behavior)
			gate := NewGate(reg, nil, testLogger())

			start := time.Now()
			res := gate.EnrollWithTimeout(context.Background(), Student{ID: "s1"}, Course{ID: "c1", Capacity: 1}, tt.timeout)
			elapsed := time.Since(start)

			if res.Outcome != tt.wantOutcome {
				t.Errorf("Outcome = %q, want %q", res.Outcome, tt.wantOutcome)
			}
			if tt.wantOutcome == OutcomeTimedOut {
				if !errors.Is(res.Err, ErrTimedOut) {
					t.Errorf("Err = %v, want ErrTimedOut", res.Err)
				}
				if res.Message != MsgTimedOut {
					t.Errorf("Message = %q, want %q", res.Message, MsgTimedOut)
				}
				if elapsed > tt.timeout+150*time.Millisecond {
					t.Errorf("returned after %v, want close to %v", elapsed, tt.timeout)
				}
			}
		})
	}
}

func TestGate_EnrollWithTimeout_LateAttemptVisibleInFlight(t *testing.T) {
	reg := testutil.NewMockRegistrar()
	reg.SetBehavior(testutil.MockBehavior{EnrollDelay: 100 * time.Millisecond, IgnoreContext: true})
	gate := NewGate(reg, nil, testLogger())

	res := gate.EnrollWithTimeout(context.Background(), Student{ID: "s1"}, Course{ID: "c1", Capacity: 1}, 10*time.Millisecond)
	if res.Outcome != OutcomeTimedOut {
		t.Fatalf("Outcome = %q, want %q", res.Outcome, OutcomeTimedOut)
	}
	if gate.InFlight() != 1 {
		t.Errorf("InFlight() = %d, want 1 while abandoned attempt runs", gate.InFlight())
	}

	deadline := time.Now().Add(time.Second)
	for gate.InFlight() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if gate.InFlight() != 0 {
		t.Errorf("InFlight() = %d after attempt finished, want 0", gate.InFlight())
	}
}

func TestGate_EnrollWithTimeout_ParentCancelled(t *testing.T) {
	reg := testutil.NewMockRegistrar()
	reg.SetBehavior(testutil.MockBehavior{EnrollDelay: time.Second})
	gate := NewGate(reg, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	res := gate.EnrollWithTimeout(ctx, Student{ID: "s1"}, Course{ID: "c1", Capacity: 1}, time.Second)
	if res.Outcome != OutcomeCancelled {
		t.Errorf("Outcome = %q, want %q", res.Outcome, OutcomeCancelled)
	}
}
