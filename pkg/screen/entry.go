package screen

import (
	"strings"

	"github.com/dialstudy/dialstudy/pkg/dial"
)

// ParticipantEntry collects the participant id. It records nothing;
// the sequencer validates the submitted payload.
type ParticipantEntry struct {
	base
	text string
}

// NewParticipantEntry creates the id entry screen.
func NewParticipantEntry() *ParticipantEntry {
	return &ParticipantEntry{base: base{name: "participant_entry"}}
}

// Init clears the entered text.
func (p *ParticipantEntry) Init() { p.text = "" }

// HandleInput stores edits and submits on the button.
func (p *ParticipantEntry) HandleInput(ev UIEvent) Directive {
	switch ev.Kind {
	case UITextChanged:
		p.text = ev.Text
	case UIButtonPressed:
		return Advance(strings.TrimSpace(p.text))
	}
	return Stay()
}

// Render shows the id field.
func (p *ParticipantEntry) Render() View {
	return View{
		Kind:        KindEntry,
		Title:       "Participant ID",
		Text:        p.text,
		Hint:        "Enter the participant id and press Submit",
		NextEnabled: strings.TrimSpace(p.text) != "",
		Selected:    -1,
	}
}

// Info shows a titled text page and advances on a dial press. It is used
// for instructions, trial reminders and the debrief.
type Info struct {
	base
	title string
	body  string
}

// NewInfo creates a text page.
func NewInfo(name, title, body string) *Info {
	return &Info{base: base{name: name}, title: title, body: body}
}

// Update advances on a dial press.
func (i *Info) Update(ev *dial.Event) Directive {
	if ev.IsPress() {
		return Advance("")
	}
	return Stay()
}

// Render shows the page.
func (i *Info) Render() View {
	return View{
		Kind:        KindInfo,
		Title:       i.title,
		Body:        i.body,
		NextEnabled: true,
		Prompt:      ContinuePrompt,
		Selected:    -1,
	}
}

// DialConfig frees the dial.
func (i *Info) DialConfig() (dial.Config, bool) { return dial.Free(), true }

// Image shows a full-screen image, such as a consent page, and advances
// on a dial press.
type Image struct {
	base
	path string
}

// NewImage creates an image page.
func NewImage(name, path string) *Image {
	return &Image{base: base{name: name}, path: path}
}

// Update advances on a dial press.
func (i *Image) Update(ev *dial.Event) Directive {
	if ev.IsPress() {
		return Advance("")
	}
	return Stay()
}

// Render shows the image.
func (i *Image) Render() View {
	return View{
		Kind:        KindImage,
		Image:       i.path,
		NextEnabled: true,
		Prompt:      ContinuePrompt,
		Selected:    -1,
	}
}

// DialConfig frees the dial.
func (i *Image) DialConfig() (dial.Config, bool) { return dial.Free(), true }
