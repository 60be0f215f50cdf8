package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/dialstudy/dialstudy/internal/clock"
)

var errBoom = errors.New("boom")

func TestCircuitBreakerTripsAfterThreshold(t *testing.T) {
	clk := clock.NewManual(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	cb := NewCircuitBreaker().WithThreshold(2).WithCooldown(time.Minute).WithClock(clk)

	trips := 0
	cb.OnTrip = func(int) { trips++ }

	cb.Do(func() error { return errBoom })
	if cb.State() != CircuitClosed {
		t.Fatalf("State() = %v after one failure", cb.State())
	}
	cb.Do(func() error { return errBoom })
	if cb.State() != CircuitOpen || trips != 1 {
		t.Fatalf("State() = %v, trips = %d; want open, 1", cb.State(), trips)
	}

	called := false
	if err := cb.Do(func() error { called = true; return nil }); !errors.Is(err, ErrOpen) || called {
		t.Errorf("Do() on open breaker = %v, called = %v", err, called)
	}
}

func TestCircuitBreakerSuccessResetsRun(t *testing.T) {
	cb := NewCircuitBreaker().WithThreshold(2)

	cb.Record(errBoom)
	cb.Record(nil)
	cb.Record(errBoom)
	if cb.State() != CircuitClosed || cb.Failures() != 1 {
		t.Errorf("State() = %v, Failures() = %d", cb.State(), cb.Failures())
	}
}

func TestCircuitBreakerHalfOpenTrial(t *testing.T) {
	tests := []struct {
		name  string
		trial error
		want  CircuitState
	}{
		{"trial call succeeds", nil, CircuitClosed},
		{"trial call fails", errBoom, CircuitOpen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk := clock.NewManual(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
			cb := NewCircuitBreaker().WithThreshold(1).WithCooldown(time.Minute).WithClock(clk)
			resets := 0
			cb.OnReset = func() { resets++ }

			cb.Record(errBoom)
			clk.Advance(30 * time.Second)
			if cb.Allow() {
				t.Fatal("Allow() before cooldown")
			}

			clk.Advance(30 * time.Second)
			if !cb.Allow() {
				t.Fatal("Allow() after cooldown = false")
			}
			if cb.Allow() {
				t.Fatal("second trial call allowed while half-open")
			}

			cb.Record(tt.trial)
			if cb.State() != tt.want {
				t.Errorf("State() = %v, want %v", cb.State(), tt.want)
			}
			if tt.want == CircuitClosed && resets != 1 {
				t.Errorf("resets = %d, want 1", resets)
			}
		})
	}
}
