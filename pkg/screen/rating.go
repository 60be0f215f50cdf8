package screen

import (
	"time"

	"github.com/dialstudy/dialstudy/internal/clock"
	"github.com/dialstudy/dialstudy/pkg/dataset"
	"github.com/dialstudy/dialstudy/pkg/dial"
	"github.com/dialstudy/dialstudy/pkg/sampler"
)

// Default labels of the lie/truth scale.
const (
	LabelLie   = "Lie"
	LabelTruth = "Truth"
)

// RatingOptions configures a Rating screen.
type RatingOptions struct {
	Name       string // dataset name
	Question   string
	LeftLabel  string
	RightLabel string
	Min        int
	Max        int
	Initial    int
	Divisions  uint16
	// RequireNonNeutral refuses to finalize while the value is 0.
	RequireNonNeutral bool
	// Mirror swaps the labels and negates recorded values.
	Mirror bool
}

// DichotomousOptions is the forced lie/truth choice.
func DichotomousOptions(name string, mirror bool) RatingOptions {
	return RatingOptions{
		Name:              name,
		Question:          "Was the person lying or telling the truth?",
		LeftLabel:         LabelLie,
		RightLabel:        LabelTruth,
		Min:               -1,
		Max:               1,
		Initial:           0,
		Divisions:         10,
		RequireNonNeutral: true,
		Mirror:            mirror,
	}
}

// ConfidenceOptions is the Likert confidence scale asked after each video.
func ConfidenceOptions(name string) RatingOptions {
	return RatingOptions{
		Name:       name,
		Question:   "How confident are you in your decision?",
		LeftLabel:  "Not at all confident",
		RightLabel: "Extremely confident",
		Min:        1,
		Max:        7,
		Initial:    4,
		Divisions:  10,
	}
}

// Rating is a static rating question answered with the dial. Timestamps
// are milliseconds since Show.
type Rating struct {
	base
	opts    RatingOptions
	clock   clock.Clock
	sampler *sampler.Sampler
	shownAt time.Time
}

// NewRating creates a rating screen. It panics on an invalid range.
func NewRating(opts RatingOptions, clk clock.Clock) *Rating {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Rating{
		base:    base{name: opts.Name},
		opts:    opts,
		clock:   clk,
		sampler: sampler.New(opts.Min, opts.Max, opts.Initial, clk),
	}
}

// Init resets the sampler.
func (r *Rating) Init() {
	r.sampler.Reset()
	r.shownAt = time.Time{}
}

// Show captures the show time.
func (r *Rating) Show() error {
	r.shownAt = r.clock.Now()
	return nil
}

func (r *Rating) elapsed() time.Duration {
	return r.clock.Now().Sub(r.shownAt)
}

// Update applies rotation, finalizes on the first press and advances on
// the next. The sampler is ticked on every call.
func (r *Rating) Update(ev *dial.Event) Directive {
	if ev != nil {
		switch {
		case ev.Kind == dial.EventRotate:
			r.sampler.ApplyRotation(ev.Direction)
		case ev.IsPress():
			if r.sampler.IsFinalized() {
				return Advance("")
			}
			if !(r.opts.RequireNonNeutral && r.sampler.Value() == 0) {
				r.sampler.Finalize(r.elapsed)
			}
		}
	}

	r.sampler.Tick(r.elapsed)
	return Stay()
}

// Render shows the gauge.
func (r *Rating) Render() View {
	left, right := r.opts.LeftLabel, r.opts.RightLabel
	if r.opts.Mirror {
		left, right = right, left
	}
	v := View{
		Kind: KindRating,
		Gauge: &Gauge{
			Question:   r.opts.Question,
			Value:      r.sampler.Value(),
			Min:        r.opts.Min,
			Max:        r.opts.Max,
			LeftLabel:  left,
			RightLabel: right,
			Disabled:   r.sampler.IsFinalized(),
		},
		Selected: -1,
	}
	if r.sampler.IsFinalized() {
		v.NextEnabled = true
		v.Prompt = ContinuePrompt
	}
	return v
}

// Data returns the decision log once finalized.
func (r *Rating) Data() *dataset.Dataset {
	final, ok := r.sampler.Final()
	if !ok {
		return nil
	}
	return dataset.DecisionLog(r.opts.Name, r.sampler.Samples(), final, r.opts.Mirror)
}

// DialConfig returns the configured subdivisions.
func (r *Rating) DialConfig() (dial.Config, bool) {
	return dial.Detents(r.opts.Divisions), true
}

// Sampler exposes the underlying sampler for inspection.
func (r *Rating) Sampler() *sampler.Sampler { return r.sampler }
