// Package dial models the rotary dial with push button: the events it
// produces and the subdivision configuration it accepts.
package dial

import "fmt"

// Direction is the sense of one rotation step.
type Direction int

const (
	Clockwise Direction = iota
	CounterClockwise
)

func (d Direction) String() string {
	if d == Clockwise {
		return "cw"
	}
	return "ccw"
}

// Delta returns +1 for clockwise and -1 for counter-clockwise.
func (d Direction) Delta() int {
	if d == Clockwise {
		return 1
	}
	return -1
}

// EventKind tags the variant carried by an Event.
type EventKind int

const (
	EventRotate EventKind = iota
	EventButton
	EventConnection
)

// Event is one hardware event popped from the device queue.
type Event struct {
	Kind      EventKind
	Direction Direction // EventRotate
	Pressed   bool      // EventButton
	Connected bool      // EventConnection
}

// Rotate builds a rotation event.
func Rotate(d Direction) Event { return Event{Kind: EventRotate, Direction: d} }

// Button builds a button event.
func Button(pressed bool) Event { return Event{Kind: EventButton, Pressed: pressed} }

// Connection builds a connection status event.
func Connection(connected bool) Event { return Event{Kind: EventConnection, Connected: connected} }

// IsPress reports whether e is a button press (not a release).
func (e *Event) IsPress() bool {
	return e != nil && e.Kind == EventButton && e.Pressed
}

func (e Event) String() string {
	switch e.Kind {
	case EventRotate:
		return "rotate(" + e.Direction.String() + ")"
	case EventButton:
		return fmt.Sprintf("button(pressed=%t)", e.Pressed)
	case EventConnection:
		return fmt.Sprintf("connection(connected=%t)", e.Connected)
	default:
		return "unknown"
	}
}

// Config is the haptic subdivision setting a screen asks for.
// Divisions == 0 means free rotation.
type Config struct {
	Divisions uint16
}

// Free returns the free-rotation configuration.
func Free() Config { return Config{} }

// Detents returns a configuration with n subdivisions.
func Detents(n uint16) Config { return Config{Divisions: n} }

// Configurer accepts subdivision changes.
type Configurer interface {
	SetSubdivisions(n uint16) error
	DisableSubdivisions() error
}

// Device is the dial as seen by the run loop.
type Device interface {
	Configurer
	// PopEvent returns the oldest pending event, if any.
	PopEvent() (Event, bool)
	Close() error
}
