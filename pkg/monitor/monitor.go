// Package monitor publishes the live state of the station over HTTP, so
// the experimenter can follow a session from outside the testing room.
// It is read-only: nothing it serves can influence the session.
package monitor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dialstudy/dialstudy/pkg/sequencer"
)

// Snapshot is the current state of the station.
type Snapshot struct {
	SessionID   string    `json:"session_id,omitempty"`
	Participant uint32    `json:"participant,omitempty"`
	Condition   string    `json:"condition,omitempty"`
	Phase       string    `json:"phase"`
	Screen      string    `json:"screen"`
	Index       int       `json:"index"`
	Datasets    int       `json:"datasets"`
	Completed   int       `json:"sessions_completed"`
	Rejected    int       `json:"rejected_inputs"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Message is one sequencer event as sent to stream clients.
type Message struct {
	Type        string    `json:"type"`
	Time        time.Time `json:"time"`
	SessionID   string    `json:"session_id,omitempty"`
	Participant uint32    `json:"participant,omitempty"`
	Phase       string    `json:"phase"`
	Screen      string    `json:"screen,omitempty"`
	Dataset     string    `json:"dataset,omitempty"`
	Rows        int       `json:"rows,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// Monitor tracks sequencer events and serves them.
type Monitor struct {
	mu     sync.RWMutex
	snap   Snapshot
	broker *Broker
	logger *zap.Logger
}

// New creates a monitor.
func New(logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		snap:   Snapshot{Phase: sequencer.PhaseParticipantEntry.String()},
		broker: NewBroker(),
		logger: logger.Named("monitor"),
	}
}

// OnEvent updates the snapshot and publishes ev.
func (m *Monitor) OnEvent(_ context.Context, ev sequencer.Event) {
	msg := Message{
		Type:        string(ev.Type),
		Time:        ev.Time,
		SessionID:   ev.SessionID,
		Participant: ev.Participant,
		Phase:       ev.Phase.String(),
		Screen:      ev.Screen,
		Dataset:     ev.Dataset,
		Rows:        ev.Rows,
	}
	if ev.Err != nil {
		msg.Error = ev.Err.Error()
	}

	m.mu.Lock()
	s := &m.snap
	switch ev.Type {
	case sequencer.EventParticipantAccepted:
		completed, rejected := s.Completed, s.Rejected
		*s = Snapshot{
			SessionID:   ev.SessionID,
			Participant: ev.Participant,
			Condition:   ev.Condition,
			Phase:       ev.Phase.String(),
			Completed:   completed,
			Rejected:    rejected,
		}
	case sequencer.EventParticipantRejected:
		s.Rejected++
	case sequencer.EventScreenActivated:
		s.Phase = ev.Phase.String()
		s.Screen = ev.Screen
		s.Index = ev.Index
	case sequencer.EventDatasetPersisted:
		s.Datasets++
	case sequencer.EventSessionComplete:
		s.Completed++
		s.SessionID, s.Participant, s.Condition = "", 0, ""
		s.Datasets = 0
	}
	s.UpdatedAt = ev.Time
	m.mu.Unlock()

	m.broker.Publish(msg)
}

// Snapshot returns the current state.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap
}

// Clients returns the number of connected stream clients.
func (m *Monitor) Clients() int {
	return m.broker.Count()
}

var _ sequencer.Observer = (*Monitor)(nil)
