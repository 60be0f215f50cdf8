// Package resilience provides a circuit breaker for best-effort remote
// writes that must not slow down a running session.
package resilience

import (
	"errors"
	"sync"
	"time"

	"github.com/dialstudy/dialstudy/internal/clock"
)

// ErrOpen is returned by Do while the breaker rejects calls.
var ErrOpen = errors.New("circuit breaker open")

// CircuitBreaker stops calling a failing dependency for a cooldown period
// after a run of consecutive failures.
type CircuitBreaker struct {
	mu sync.Mutex

	// Configuration
	threshold      int           // consecutive failures before tripping
	cooldownPeriod time.Duration // time to wait before probing again
	clock          clock.Clock

	// State
	state    CircuitState
	failures int
	tripTime time.Time

	// Callbacks, called synchronously with the breaker unlocked.
	OnTrip  func(failures int)
	OnReset func()
}

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	CircuitClosed   CircuitState = iota // Normal operation
	CircuitOpen                         // Rejecting requests
	CircuitHalfOpen                     // One trial call allowed
)

func (s CircuitState) String() string {
	switch s {
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// NewCircuitBreaker trips after 3 consecutive failures and tries again
// after one minute.
func NewCircuitBreaker() *CircuitBreaker {
	return &CircuitBreaker{
		threshold:      3,
		cooldownPeriod: time.Minute,
		clock:          clock.Real{},
		state:          CircuitClosed,
	}
}

// WithThreshold sets the number of consecutive failures that trip the
// breaker.
func (cb *CircuitBreaker) WithThreshold(n int) *CircuitBreaker {
	if n > 0 {
		cb.threshold = n
	}
	return cb
}

// WithCooldown sets the cooldown period after tripping.
func (cb *CircuitBreaker) WithCooldown(d time.Duration) *CircuitBreaker {
	cb.cooldownPeriod = d
	return cb
}

// WithClock replaces the wall clock.
func (cb *CircuitBreaker) WithClock(c clock.Clock) *CircuitBreaker {
	cb.clock = c
	return cb
}

// Allow reports whether a call should be attempted. Once the cooldown has
// passed an open breaker lets exactly one trial call through.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitOpen:
		if cb.clock.Now().Sub(cb.tripTime) >= cb.cooldownPeriod {
			cb.state = CircuitHalfOpen
			return true
		}
		return false
	case CircuitHalfOpen:
		// A trial call is already in flight.
		return false
	default:
		return true
	}
}

// Record reports the outcome of an allowed call.
func (cb *CircuitBreaker) Record(err error) {
	cb.mu.Lock()

	if err == nil {
		wasOpen := cb.state != CircuitClosed
		cb.state = CircuitClosed
		cb.failures = 0
		cb.mu.Unlock()
		if wasOpen && cb.OnReset != nil {
			cb.OnReset()
		}
		return
	}

	cb.failures++
	tripped := false
	if cb.state == CircuitHalfOpen || cb.failures >= cb.threshold {
		tripped = cb.state != CircuitOpen
		cb.state = CircuitOpen
		cb.tripTime = cb.clock.Now()
	}
	failures := cb.failures
	cb.mu.Unlock()

	if tripped && cb.OnTrip != nil {
		cb.OnTrip(failures)
	}
}

// Do runs fn when allowed and records its outcome. It returns ErrOpen
// without calling fn while the breaker is open.
func (cb *CircuitBreaker) Do(fn func() error) error {
	if !cb.Allow() {
		return ErrOpen
	}
	err := fn()
	cb.Record(err)
	return err
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures returns the current run of consecutive failures.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}
