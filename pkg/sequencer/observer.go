package sequencer

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// EventType names a sequencer lifecycle event.
type EventType string

const (
	EventParticipantAccepted EventType = "participant_accepted"
	EventParticipantRejected EventType = "participant_rejected"
	EventScreenActivated     EventType = "screen_activated"
	EventScreenDeactivated   EventType = "screen_deactivated"
	EventDatasetPersisted    EventType = "dataset_persisted"
	EventPhaseChanged        EventType = "phase_changed"
	EventRetreatIgnored      EventType = "retreat_ignored"
	EventSessionComplete     EventType = "session_complete"
)

// Event describes one thing that happened in a session.
type Event struct {
	Type            EventType
	Time            time.Time
	SessionID       string
	Participant     uint32
	Condition       string
	Counterbalanced bool
	Phase           Phase
	Index           int // position within the phase
	Screen          string
	Dataset         string
	Rows            int
	Input           string // rejected participant input
	Err             error
}

// Observer receives sequencer events synchronously on the tick goroutine.
// Implementations must not block.
type Observer interface {
	OnEvent(ctx context.Context, ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev Event)

// OnEvent calls f.
func (f ObserverFunc) OnEvent(ctx context.Context, ev Event) { f(ctx, ev) }

// MultiObserver fans events out to registered observers in order.
type MultiObserver struct {
	mu        sync.RWMutex
	observers []Observer
}

// NewMultiObserver creates a fan-out observer.
func NewMultiObserver(observers ...Observer) *MultiObserver {
	m := &MultiObserver{}
	for _, o := range observers {
		m.Register(o)
	}
	return m
}

// Register adds an observer. Nil observers are ignored.
func (m *MultiObserver) Register(o Observer) {
	if o == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, o)
}

// OnEvent forwards ev to every observer.
func (m *MultiObserver) OnEvent(ctx context.Context, ev Event) {
	m.mu.RLock()
	observers := m.observers
	m.mu.RUnlock()

	for _, o := range observers {
		o.OnEvent(ctx, ev)
	}
}

// LogObserver writes events to a zap logger.
type LogObserver struct {
	logger *zap.Logger
}

// NewLogObserver creates a logging observer.
func NewLogObserver(logger *zap.Logger) *LogObserver {
	return &LogObserver{logger: logger}
}

// OnEvent logs ev. Screen churn is logged at debug level.
func (l *LogObserver) OnEvent(_ context.Context, ev Event) {
	fields := []zap.Field{
		zap.String("event", string(ev.Type)),
		zap.String("phase", ev.Phase.String()),
	}
	if ev.SessionID != "" {
		fields = append(fields, zap.String("session", ev.SessionID), zap.Uint32("participant", ev.Participant))
	}
	if ev.Screen != "" {
		fields = append(fields, zap.String("screen", ev.Screen), zap.Int("index", ev.Index))
	}
	if ev.Dataset != "" {
		fields = append(fields, zap.String("dataset", ev.Dataset), zap.Int("rows", ev.Rows))
	}
	if ev.Input != "" {
		fields = append(fields, zap.String("input", ev.Input))
	}
	if ev.Err != nil {
		fields = append(fields, zap.Error(ev.Err))
	}

	switch ev.Type {
	case EventScreenActivated, EventScreenDeactivated:
		l.logger.Debug("sequencer event", fields...)
	case EventParticipantRejected, EventRetreatIgnored:
		l.logger.Warn("sequencer event", fields...)
	default:
		l.logger.Info("sequencer event", fields...)
	}
}
