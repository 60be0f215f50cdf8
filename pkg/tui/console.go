package tui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/dialstudy/dialstudy/pkg/dial"
	"github.com/dialstudy/dialstudy/pkg/screen"
)

// Input is one parsed operator command.
type Input struct {
	Dial    []dial.Event
	UI      *screen.UIEvent
	Dismiss bool
	Quit    bool
}

// Help lists the console commands.
const Help = `commands:
  + / -        rotate the dial clockwise / counter-clockwise (repeatable: +++)
  . or Enter   press the dial button
  t <text>     type into the text field
  c <n>        select choice n
  n            press the on-screen Next button
  ok           dismiss a notice
  q            quit`

// ParseCommand parses one console line.
func ParseCommand(line string) (Input, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Input{Dial: press()}, nil
	}

	if strings.Trim(line, "+-.") == "" {
		var events []dial.Event
		for _, r := range line {
			switch r {
			case '+':
				events = append(events, dial.Rotate(dial.Clockwise))
			case '-':
				events = append(events, dial.Rotate(dial.CounterClockwise))
			case '.':
				events = append(events, press()...)
			}
		}
		return Input{Dial: events}, nil
	}

	cmd, arg, _ := strings.Cut(line, " ")
	switch strings.ToLower(cmd) {
	case "t", "text":
		ev := screen.TextChanged(arg)
		return Input{UI: &ev}, nil
	case "c", "choice":
		n, err := strconv.Atoi(strings.TrimSpace(arg))
		if err != nil || n < 0 {
			return Input{}, fmt.Errorf("choice needs a non-negative number, got %q", arg)
		}
		ev := screen.ChoiceSelected(n)
		return Input{UI: &ev}, nil
	case "n", "next":
		ev := screen.ButtonPressed()
		return Input{UI: &ev}, nil
	case "ok":
		return Input{Dismiss: true}, nil
	case "q", "quit", "exit":
		return Input{Quit: true}, nil
	default:
		return Input{}, fmt.Errorf("unknown command %q", cmd)
	}
}

func press() []dial.Event {
	return []dial.Event{dial.Button(true), dial.Button(false)}
}

// Console reads operator commands and redraws the active screen.
type Console struct {
	in     io.Reader
	out    io.Writer
	inputs chan Input

	mu    sync.Mutex
	last  string
	scale float64
}

// NewConsole creates a console over in and out.
func NewConsole(in io.Reader, out io.Writer) *Console {
	return &Console{
		in:     in,
		out:    out,
		inputs: make(chan Input, 16),
		scale:  1,
	}
}

// SetScale sets the UI scale factor used by the next Draw.
func (c *Console) SetScale(scale float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scale = scale
}

// Inputs delivers parsed commands. It is closed when Run returns.
func (c *Console) Inputs() <-chan Input {
	return c.inputs
}

// Run reads commands until ctx is cancelled or input ends. End of input
// is delivered as a Quit.
func (c *Console) Run(ctx context.Context) error {
	defer close(c.inputs)

	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errc:
			select {
			case c.inputs <- Input{Quit: true}:
			case <-ctx.Done():
			}
			return err
		case line := <-lines:
			in, err := ParseCommand(line)
			if err != nil {
				c.printf("%s\n%s\n", accentStyle.Render("  "+err.Error()), mutedStyle.Render(Help))
				continue
			}
			select {
			case c.inputs <- in:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// Draw redraws the screen when the rendered text changed since the last
// call.
func (c *Console) Draw(v screen.View, notice string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	text := RenderScaled(v, notice, c.scale)
	if text == c.last {
		return
	}
	c.last = text
	fmt.Fprint(c.out, "\033[H\033[2J"+text)
}

func (c *Console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
	c.last = ""
}
