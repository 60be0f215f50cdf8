package screen

import (
	"fmt"
	"unicode"

	"github.com/dialstudy/dialstudy/pkg/dataset"
	"github.com/dialstudy/dialstudy/pkg/dial"
)

// MultipleChoice asks a single-answer question. Next is enabled once a
// choice is selected.
type MultipleChoice struct {
	base
	question string
	choices  []string
	selected int
}

// NewMultipleChoice creates a question recording into dataset name.
func NewMultipleChoice(name, question string, choices []string) *MultipleChoice {
	return &MultipleChoice{
		base:     base{name: name},
		question: question,
		choices:  choices,
		selected: -1,
	}
}

// Init clears the selection.
func (m *MultipleChoice) Init() { m.selected = -1 }

// HandleInput records selections and advances on the button when a
// choice has been made.
func (m *MultipleChoice) HandleInput(ev UIEvent) Directive {
	switch ev.Kind {
	case UIChoiceSelected:
		if ev.Index >= 0 && ev.Index < len(m.choices) {
			m.selected = ev.Index
		}
	case UIButtonPressed:
		if m.selected >= 0 {
			return Advance("")
		}
	}
	return Stay()
}

// Render lists the choices.
func (m *MultipleChoice) Render() View {
	return View{
		Kind:        KindChoice,
		Title:       m.question,
		Choices:     append([]string(nil), m.choices...),
		Selected:    m.selected,
		NextEnabled: m.selected >= 0,
	}
}

// Data returns the selected index and its label.
func (m *MultipleChoice) Data() *dataset.Dataset {
	if m.selected < 0 {
		return nil
	}
	row := fmt.Sprintf("%d,%s", m.selected, dataset.SanitizeField(m.choices[m.selected]))
	return dataset.New(m.Name(), "index,label", row)
}

// DialConfig frees the dial.
func (m *MultipleChoice) DialConfig() (dial.Config, bool) { return dial.Free(), true }

// InputType restricts what a TextEntry accepts.
type InputType int

const (
	InputAll InputType = iota
	InputAlphanumeric
	InputNumber
	InputCharacters
)

// ParseInputType maps a config string to an InputType.
func ParseInputType(s string) (InputType, error) {
	switch s {
	case "", "all":
		return InputAll, nil
	case "alphanumeric":
		return InputAlphanumeric, nil
	case "number":
		return InputNumber, nil
	case "characters":
		return InputCharacters, nil
	default:
		return InputAll, fmt.Errorf("unknown input type %q", s)
	}
}

// Accepts reports whether s is valid for t. The empty string always is.
func (t InputType) Accepts(s string) bool {
	for _, r := range s {
		switch t {
		case InputNumber:
			if !unicode.IsDigit(r) {
				return false
			}
		case InputCharacters:
			if !unicode.IsLetter(r) && r != ' ' {
				return false
			}
		case InputAlphanumeric:
			if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != ' ' {
				return false
			}
		}
	}
	return true
}

// TextEntry asks a free-text question. Edits the input type rejects are
// dropped; Next needs non-empty text.
type TextEntry struct {
	base
	question  string
	inputType InputType
	text      string
}

// NewTextEntry creates a text question recording into dataset name.
func NewTextEntry(name, question string, inputType InputType) *TextEntry {
	return &TextEntry{base: base{name: name}, question: question, inputType: inputType}
}

// Init clears the text.
func (t *TextEntry) Init() { t.text = "" }

// HandleInput validates edits and advances on the button.
func (t *TextEntry) HandleInput(ev UIEvent) Directive {
	switch ev.Kind {
	case UITextChanged:
		if t.inputType.Accepts(ev.Text) {
			t.text = ev.Text
		}
	case UIButtonPressed:
		if t.text != "" {
			return Advance("")
		}
	}
	return Stay()
}

// Render shows the question and current text.
func (t *TextEntry) Render() View {
	return View{
		Kind:        KindText,
		Title:       t.question,
		Text:        t.text,
		NextEnabled: t.text != "",
		Selected:    -1,
	}
}

// Data returns the entered text.
func (t *TextEntry) Data() *dataset.Dataset {
	if t.text == "" {
		return nil
	}
	return dataset.New(t.Name(), "text", dataset.SanitizeField(t.text))
}
