// Package sampler turns dial rotation into a bounded value, debounced
// interim decision samples and one terminal decision.
package sampler

import (
	"fmt"
	"time"

	"github.com/dialstudy/dialstudy/internal/clock"
	"github.com/dialstudy/dialstudy/pkg/dial"
)

// QuiescenceWindow is how long the value must stay unchanged before it is
// recorded as an interim decision.
const QuiescenceWindow = 500 * time.Millisecond

// Sample is one recorded decision.
type Sample struct {
	At    time.Duration
	Value int
}

// Stamp supplies the timestamp for a sample. It is only called when a
// sample is actually recorded.
type Stamp func() time.Duration

// Sampler is a bounded integer driven by rotation steps.
type Sampler struct {
	min, max int
	initial  int
	clock    clock.Clock

	value     int
	last      int
	armed     bool
	armedAt   time.Time
	finalized bool

	samples []Sample
	final   Sample
}

// New creates a sampler. It panics if min > max or initial is outside
// [min, max].
func New(min, max, initial int, clk clock.Clock) *Sampler {
	if min > max {
		panic(fmt.Sprintf("sampler: min %d greater than max %d", min, max))
	}
	if initial < min || initial > max {
		panic(fmt.Sprintf("sampler: initial %d outside [%d, %d]", initial, min, max))
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Sampler{
		min:     min,
		max:     max,
		initial: initial,
		clock:   clk,
		value:   initial,
		last:    initial,
	}
}

// Reset returns the sampler to its freshly constructed state.
func (s *Sampler) Reset() {
	s.value = s.initial
	s.last = s.initial
	s.armed = false
	s.finalized = false
	s.samples = nil
	s.final = Sample{}
}

// ApplyRotation moves the value one step in dir, clamped to the range.
// It re-arms the quiescence timer when the value changed and reports
// whether it did. It is a no-op once finalized.
func (s *Sampler) ApplyRotation(dir dial.Direction) bool {
	if s.finalized {
		return false
	}

	next := s.value + dir.Delta()
	if next < s.min || next > s.max {
		return false
	}
	s.value = next

	if s.value == s.last {
		return false
	}
	s.last = s.value
	s.armed = true
	s.armedAt = s.clock.Now()
	return true
}

// Tick records an interim sample once the value has been stable for
// QuiescenceWindow. It reports whether a sample was appended.
func (s *Sampler) Tick(stamp Stamp) bool {
	if !s.armed || s.finalized {
		return false
	}
	if s.clock.Now().Sub(s.armedAt) < QuiescenceWindow {
		return false
	}

	s.samples = append(s.samples, Sample{At: stamp(), Value: s.value})
	s.armed = false
	return true
}

// Finalize freezes the value and records the terminal decision. Only the
// first call has an effect; it reports whether this call finalized.
func (s *Sampler) Finalize(stamp Stamp) bool {
	if s.finalized {
		return false
	}
	s.finalized = true
	s.armed = false
	s.final = Sample{At: stamp(), Value: s.value}
	return true
}

// IsFinalized reports whether Finalize has been called.
func (s *Sampler) IsFinalized() bool { return s.finalized }

// Value returns the current value.
func (s *Sampler) Value() int { return s.value }

// Min returns the lower bound.
func (s *Sampler) Min() int { return s.min }

// Max returns the upper bound.
func (s *Sampler) Max() int { return s.max }

// Armed reports whether a change is waiting out the quiescence window.
func (s *Sampler) Armed() bool { return s.armed }

// Samples returns a copy of the interim samples in recording order.
func (s *Sampler) Samples() []Sample {
	return append([]Sample(nil), s.samples...)
}

// Final returns the terminal decision, if recorded.
func (s *Sampler) Final() (Sample, bool) {
	return s.final, s.finalized
}
