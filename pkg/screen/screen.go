// Package screen defines the units of content a participant moves through
// and their reaction to dial and UI input.
package screen

import (
	"github.com/dialstudy/dialstudy/pkg/dataset"
	"github.com/dialstudy/dialstudy/pkg/dial"
)

// Screen is one unit of participant-facing content.
//
// Lifecycle: Init (reset state) then Show (start media, capture the show
// time) when activated; Hide when superseded. Update is called once per
// tick with the popped hardware event, or nil when none was pending.
type Screen interface {
	Name() string
	Init()
	Show() error
	Hide()
	Update(ev *dial.Event) Directive
	HandleInput(ev UIEvent) Directive
	Render() View
	// Data returns the screen's dataset, or nil when it records nothing.
	Data() *dataset.Dataset
	// DialConfig returns false when the previous configuration should stay.
	DialConfig() (dial.Config, bool)
}

// Action is what a screen asks the sequencer to do.
type Action int

const (
	ActionStay Action = iota
	ActionAdvance
	ActionRetreat
)

func (a Action) String() string {
	switch a {
	case ActionAdvance:
		return "advance"
	case ActionRetreat:
		return "retreat"
	default:
		return "stay"
	}
}

// Directive is the result of an input step.
type Directive struct {
	Action  Action
	Payload string
}

// Stay keeps the current screen.
func Stay() Directive { return Directive{Action: ActionStay} }

// Advance moves on, carrying an optional payload.
func Advance(payload string) Directive { return Directive{Action: ActionAdvance, Payload: payload} }

// Retreat asks to go back.
func Retreat() Directive { return Directive{Action: ActionRetreat} }

// UIEventKind tags a front-end event.
type UIEventKind int

const (
	UITextChanged UIEventKind = iota
	UIButtonPressed
	UIChoiceSelected
)

// UIEvent is input from on-screen widgets, as opposed to the dial.
type UIEvent struct {
	Kind  UIEventKind
	Text  string
	Index int
}

// TextChanged reports the new content of a text field.
func TextChanged(text string) UIEvent { return UIEvent{Kind: UITextChanged, Text: text} }

// ButtonPressed reports the on-screen Next/Submit button.
func ButtonPressed() UIEvent { return UIEvent{Kind: UIButtonPressed} }

// ChoiceSelected reports a selected option.
func ChoiceSelected(i int) UIEvent { return UIEvent{Kind: UIChoiceSelected, Index: i} }

// base provides the do-nothing defaults variants override.
type base struct {
	name string
}

func (b *base) Name() string { return b.name }
func (b *base) Init() {}
func (b *base) Show() error { return nil }
func (b *base) Hide() {}
func (b *base) Update(*dial.Event) Directive { return Stay() }
func (b *base) HandleInput(UIEvent) Directive { return Stay() }
func (b *base) Data() *dataset.Dataset { return nil }
func (b *base) DialConfig() (dial.Config, bool) { return dial.Config{}, false }
