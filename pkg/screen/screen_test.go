package screen

import (
	"testing"
	"time"

	"github.com/dialstudy/dialstudy/internal/clock"
	"github.com/dialstudy/dialstudy/pkg/dataset"
	"github.com/dialstudy/dialstudy/pkg/dial"
	"github.com/dialstudy/dialstudy/pkg/video"
)

var (
	press   = dial.Button(true)
	release = dial.Button(false)
	cw      = dial.Rotate(dial.Clockwise)
	ccw     = dial.Rotate(dial.CounterClockwise)
)

func newClock() *clock.Manual {
	return clock.NewManual(time.Unix(5000, 0))
}

func newLibrary(clk clock.Clock, d time.Duration) *video.Library {
	return &video.Library{Clock: clk, DefaultDuration: d}
}

func step(s Screen, ev dial.Event) Directive {
	return s.Update(&ev)
}

func activate(t *testing.T, s Screen) {
	t.Helper()
	s.Init()
	if err := s.Show(); err != nil {
		t.Fatalf("Show() error = %v", err)
	}
}

func TestDichotomousNeutralPressDoesNotFinalize(t *testing.T) {
	clk := newClock()
	r := NewRating(DichotomousOptions("lie_truth_dichotomous_0", false), clk)
	activate(t, r)

	step(r, press)
	if r.Sampler().IsFinalized() {
		t.Fatal("press at neutral finalized a dichotomous rating")
	}
	if r.Data() != nil {
		t.Error("Data() before finalize should be nil")
	}

	step(r, cw)
	clk.Advance(1500 * time.Millisecond)
	step(r, press)
	if !r.Sampler().IsFinalized() {
		t.Fatal("press at non-neutral did not finalize")
	}
	if !r.Render().Gauge.Disabled {
		t.Error("gauge should be disabled after finalize")
	}

	if d := step(r, release); d.Action != ActionStay {
		t.Errorf("release = %v, want stay", d.Action)
	}
	if d := step(r, press); d.Action != ActionAdvance {
		t.Errorf("second press = %v, want advance", d.Action)
	}

	data := r.Data()
	if data == nil {
		t.Fatal("Data() = nil")
	}
	// finalize disarms the pending change, so only the final row exists
	if last := data.Rows[len(data.Rows)-1]; last != "final,1500,1" {
		t.Errorf("final row = %q, want %q", last, "final,1500,1")
	}
}

func TestRatingTicksWithoutEvents(t *testing.T) {
	clk := newClock()
	r := NewRating(ConfidenceOptions("confidence_2"), clk)
	activate(t, r)

	step(r, cw)
	step(r, cw)
	for i := 0; i < 40; i++ {
		clk.Advance(time.Second / 60)
		r.Update(nil)
	}
	step(r, press)

	data := r.Data()
	if len(data.Rows) != 2 {
		t.Fatalf("rows = %v, want one decision and one final", data.Rows)
	}
	if data.Rows[0][:len("decision,")] != "decision," {
		t.Errorf("first row = %q", data.Rows[0])
	}
	if got, want := data.Rows[1], "final,666,6"; got != want {
		t.Errorf("final row = %q, want %q", got, want)
	}
}

func TestRatingMirror(t *testing.T) {
	clk := newClock()
	r := NewRating(DichotomousOptions("lie_truth_dichotomous_1", true), clk)
	activate(t, r)

	v := r.Render()
	if v.Gauge.LeftLabel != LabelTruth || v.Gauge.RightLabel != LabelLie {
		t.Errorf("labels = %q/%q, want swapped", v.Gauge.LeftLabel, v.Gauge.RightLabel)
	}

	step(r, ccw)
	step(r, press)
	if got := r.Data().Rows[0]; got != "final,0,1" {
		t.Errorf("row = %q, want mirrored value 1", got)
	}
}

func TestRatingInitResets(t *testing.T) {
	clk := newClock()
	r := NewRating(ConfidenceOptions("confidence_0"), clk)
	activate(t, r)
	step(r, cw)
	step(r, press)

	activate(t, r)
	if r.Sampler().IsFinalized() || r.Sampler().Value() != 4 {
		t.Error("Init did not reset the sampler")
	}
}

func TestRatingVideoSamplesUseVideoPosition(t *testing.T) {
	clk := newClock()
	rv := NewRatingVideo(RatingVideoOptions{
		Name:        "lie_truth_dynamic_0",
		URI:         "videos/4/alibi1_control_trimmed.webm",
		AllowLockIn: true,
	}, newLibrary(clk, 30*time.Second), clk)
	activate(t, rv)

	clk.Advance(2 * time.Second)
	step(rv, cw)
	clk.Advance(500 * time.Millisecond)
	rv.Update(nil)

	clk.Advance(time.Second)
	step(rv, press)
	if !rv.Render().Paused {
		t.Error("video should pause on lock-in")
	}
	if d := step(rv, press); d.Action != ActionAdvance {
		t.Errorf("second press = %v, want advance", d.Action)
	}

	data := rv.Data()
	want := []string{"decision,2500,1", "final,3500,1"}
	if len(data.Rows) != len(want) {
		t.Fatalf("rows = %v, want %v", data.Rows, want)
	}
	for i := range want {
		if data.Rows[i] != want[i] {
			t.Errorf("row %d = %q, want %q", i, data.Rows[i], want[i])
		}
	}
	if err := data.Validate(); err != nil {
		t.Error(err)
	}
}

func TestRatingVideoFinalizesAtEnd(t *testing.T) {
	clk := newClock()
	rv := NewRatingVideo(RatingVideoOptions{
		Name:   "lie_truth_dynamic_1",
		URI:    "v.webm",
		Mirror: true,
	}, newLibrary(clk, 5*time.Second), clk)
	activate(t, rv)

	step(rv, ccw)
	clk.Advance(time.Second)
	step(rv, press)
	if rv.Sampler().IsFinalized() {
		t.Fatal("press finalized with lock-in disabled")
	}

	clk.Advance(3976 * time.Millisecond)
	rv.Update(nil)
	if !rv.Sampler().IsFinalized() {
		t.Fatal("did not finalize within the end buffer")
	}

	rows := rv.Data().Rows
	if got := rows[len(rows)-1]; got != "final,4976,1" {
		t.Errorf("final row = %q, want mirrored final at video position", got)
	}
}

func TestRatingVideoHideTwiceAndPanicsWithoutShow(t *testing.T) {
	clk := newClock()
	rv := NewRatingVideo(RatingVideoOptions{Name: "x", URI: "v"}, newLibrary(clk, time.Second), clk)
	activate(t, rv)
	rv.Hide()
	rv.Hide()

	defer func() {
		if recover() == nil {
			t.Error("Update without a loaded video should panic")
		}
	}()
	rv.Update(nil)
}

func TestLockInVideo(t *testing.T) {
	clk := newClock()
	l := NewLockInVideo("lie_truth_lock_in_0", "v", newLibrary(clk, 10*time.Second))
	activate(t, l)

	clk.Advance(3 * time.Second)
	l.Update(nil)
	if l.Data() != nil {
		t.Error("Data() before lock-in should be nil")
	}
	step(l, press)
	if got := l.Data().Rows[0]; got != "final,3000,1" {
		t.Errorf("row = %q", got)
	}
	if d := step(l, press); d.Action != ActionAdvance {
		t.Errorf("second press = %v, want advance", d.Action)
	}

	l.Hide()
	activate(t, l)
	clk.Advance(11 * time.Second)
	l.Update(nil)
	if got := l.Data().Rows[0]; got != "final,10000,0" {
		t.Errorf("row after video end = %q", got)
	}
	if _, ok := l.DialConfig(); ok {
		t.Error("lock-in video should inherit the dial config")
	}
}

func TestVideoAdvancesOnlyAfterEnd(t *testing.T) {
	clk := newClock()
	v := NewVideo("intro", "v", newLibrary(clk, 2*time.Second))
	activate(t, v)

	if d := step(v, press); d.Action != ActionStay {
		t.Error("press before end advanced")
	}
	clk.Advance(2 * time.Second)
	v.Update(nil)
	if d := step(v, press); d.Action != ActionAdvance {
		t.Error("press after end did not advance")
	}
	if v.Data() != nil {
		t.Error("watch-only video records nothing")
	}
}

func TestMultipleChoice(t *testing.T) {
	m := NewMultipleChoice("demographics_race", "Race", []string{"Asian", "White, British", "Other"})
	m.Init()

	if d := m.HandleInput(ButtonPressed()); d.Action != ActionStay {
		t.Error("Next without a selection advanced")
	}
	m.HandleInput(ChoiceSelected(7))
	if m.Render().NextEnabled {
		t.Error("out of range selection enabled Next")
	}
	m.HandleInput(ChoiceSelected(1))
	if d := m.HandleInput(ButtonPressed()); d.Action != ActionAdvance {
		t.Error("Next with a selection did not advance")
	}

	data := m.Data()
	if data.Header != "index,label" || data.Rows[0] != "1,White; British" {
		t.Errorf("data = %q / %v", data.Header, data.Rows)
	}
	if err := data.Validate(); err != nil {
		t.Error(err)
	}
}

func TestTextEntryInputTypes(t *testing.T) {
	tests := []struct {
		inputType InputType
		input     string
		accepted  bool
	}{
		{InputNumber, "34", true},
		{InputNumber, "3a", false},
		{InputCharacters, "Jane Doe", true},
		{InputCharacters, "R2D2", false},
		{InputAlphanumeric, "R2 D2", true},
		{InputAlphanumeric, "a-b", false},
		{InputAll, "anything, really!", true},
		{InputNumber, "", true},
	}

	for _, tt := range tests {
		te := NewTextEntry("demographics_age", "Age", tt.inputType)
		te.Init()
		te.HandleInput(TextChanged("1"))
		te.HandleInput(TextChanged(tt.input))
		got := te.Render().Text == tt.input
		if got != tt.accepted {
			t.Errorf("type %d input %q accepted = %v, want %v", tt.inputType, tt.input, got, tt.accepted)
		}
	}
}

func TestTextEntryData(t *testing.T) {
	te := NewTextEntry("notes", "Notes", InputAll)
	te.Init()
	if d := te.HandleInput(ButtonPressed()); d.Action != ActionStay {
		t.Error("empty text advanced")
	}
	te.HandleInput(TextChanged("fine, thanks"))
	if d := te.HandleInput(ButtonPressed()); d.Action != ActionAdvance {
		t.Error("non-empty text did not advance")
	}
	if got := te.Data().Rows[0]; got != "fine; thanks" {
		t.Errorf("row = %q", got)
	}
}

func TestParticipantEntry(t *testing.T) {
	p := NewParticipantEntry()
	p.Init()
	p.HandleInput(TextChanged(" 42 "))
	d := p.HandleInput(ButtonPressed())
	if d.Action != ActionAdvance || d.Payload != "42" {
		t.Errorf("directive = %+v", d)
	}
	p.Init()
	if p.Render().Text != "" {
		t.Error("Init did not clear text")
	}
	if p.Data() != nil {
		t.Error("participant entry records nothing")
	}
}

func TestInfoAndImageAdvanceOnPress(t *testing.T) {
	for _, s := range []Screen{NewInfo("reminder_0", "Reminder", "Next video"), NewImage("consent_0", "assets/consent1.png")} {
		if d := step(s, release); d.Action != ActionStay {
			t.Errorf("%s: release advanced", s.Name())
		}
		if d := s.Update(nil); d.Action != ActionStay {
			t.Errorf("%s: nil event advanced", s.Name())
		}
		if d := step(s, press); d.Action != ActionAdvance {
			t.Errorf("%s: press did not advance", s.Name())
		}
	}
}

func TestDialConfigs(t *testing.T) {
	clk := newClock()
	lib := newLibrary(clk, time.Second)

	tests := []struct {
		screen Screen
		want   dial.Config
		ok     bool
	}{
		{NewRatingVideo(RatingVideoOptions{Name: "a", URI: "v"}, lib, clk), dial.Detents(60), true},
		{NewRating(DichotomousOptions("b", false), clk), dial.Detents(10), true},
		{NewInfo("c", "", ""), dial.Free(), true},
		{NewImage("d", ""), dial.Free(), true},
		{NewMultipleChoice("e", "", nil), dial.Free(), true},
		{NewParticipantEntry(), dial.Config{}, false},
		{NewTextEntry("f", "", InputAll), dial.Config{}, false},
		{NewVideo("g", "v", lib), dial.Config{}, false},
	}

	for _, tt := range tests {
		got, ok := tt.screen.DialConfig()
		if ok != tt.ok || got != tt.want {
			t.Errorf("%s: DialConfig() = %v, %v; want %v, %v", tt.screen.Name(), got, ok, tt.want, tt.ok)
		}
	}
}

func TestHeadersMatchRows(t *testing.T) {
	clk := newClock()
	r := NewRating(ConfidenceOptions("confidence_0"), clk)
	activate(t, r)
	for i := 0; i < 3; i++ {
		step(r, cw)
		clk.Advance(time.Second)
		r.Update(nil)
	}
	step(r, press)

	m := NewMultipleChoice("g", "q", []string{"a,b"})
	m.HandleInput(ChoiceSelected(0))

	for _, d := range []*dataset.Dataset{r.Data(), m.Data()} {
		if err := d.Validate(); err != nil {
			t.Error(err)
		}
	}
}
