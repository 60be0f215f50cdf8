package screen

// Kind selects how a front end lays out a View.
type Kind string

const (
	KindEntry  Kind = "participant_entry"
	KindInfo   Kind = "info"
	KindImage  Kind = "image"
	KindRating Kind = "rating"
	KindVideo  Kind = "video"
	KindChoice Kind = "choice"
	KindText   Kind = "text"
)

// ContinuePrompt is shown once a screen will advance on the next press.
const ContinuePrompt = "Press the dial to continue"

// View describes what to draw. It holds no behavior.
type View struct {
	Kind  Kind
	Title string
	Body  string

	Image string
	Video string
	// Paused is meaningful when Video is set.
	Paused bool

	Gauge *Gauge

	Choices  []string
	Selected int // -1 when nothing is selected

	Text string
	Hint string

	NextEnabled bool
	Prompt      string
}

// Gauge is the arc indicator of a rating screen.
type Gauge struct {
	Question   string
	Value      int
	Min        int
	Max        int
	LeftLabel  string
	RightLabel string
	Disabled   bool
}

// Fraction returns the gauge position in [0, 1].
func (g *Gauge) Fraction() float64 {
	if g.Max == g.Min {
		return 0.5
	}
	return float64(g.Value-g.Min) / float64(g.Max-g.Min)
}
