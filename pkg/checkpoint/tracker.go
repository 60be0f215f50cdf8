package checkpoint

import (
	"context"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/dialstudy/dialstudy/pkg/sequencer"
)

// Tracker turns sequencer events into checkpoints. OnEvent only queues a
// snapshot; Run performs the backend writes off the tick goroutine.
type Tracker struct {
	backend Backend
	logger  *zap.Logger
	host    string

	mu     sync.Mutex
	queue  chan *Checkpoint
	closed bool

	// current is owned by the goroutine calling OnEvent.
	current *Checkpoint
}

// NewTracker creates a tracker writing to backend. queueSize bounds the
// number of pending snapshots; further snapshots are dropped with a warning.
func NewTracker(backend Backend, logger *zap.Logger, queueSize int) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	host, _ := os.Hostname()
	return &Tracker{
		backend: backend,
		logger:  logger.Named("checkpoint"),
		host:    host,
		queue:   make(chan *Checkpoint, queueSize),
	}
}

// OnEvent implements sequencer.Observer.
func (t *Tracker) OnEvent(_ context.Context, ev sequencer.Event) {
	switch ev.Type {
	case sequencer.EventParticipantAccepted:
		t.current = &Checkpoint{
			ID:             ev.SessionID,
			Participant:    ev.Participant,
			Condition:      ev.Condition,
			Counterbalance: ev.Counterbalanced,
			Host:           t.host,
			Phase:          ev.Phase.String(),
			StartedAt:      ev.Time,
			UpdatedAt:      ev.Time,
		}
		// The first snapshot waits for the first activated screen.
		return

	case sequencer.EventScreenActivated:
		if t.current == nil || t.current.ID != ev.SessionID {
			return
		}
		t.current.Phase = ev.Phase.String()
		t.current.Screen = ev.Screen
		t.current.Index = ev.Index

	case sequencer.EventDatasetPersisted:
		if t.current == nil || t.current.ID != ev.SessionID {
			return
		}
		t.current.Datasets = append(t.current.Datasets, ev.Dataset)

	case sequencer.EventSessionComplete:
		if t.current == nil || t.current.ID != ev.SessionID {
			return
		}
		done := ev.Time
		t.current.Phase = PhaseComplete
		t.current.CompletedAt = &done

	default:
		return
	}

	t.current.UpdatedAt = ev.Time
	t.enqueue(t.current.clone())
	if t.current.Complete() {
		t.current = nil
	}
}

func (t *Tracker) enqueue(cp *Checkpoint) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	select {
	case t.queue <- cp:
	default:
		t.logger.Warn("checkpoint queue full, dropping snapshot",
			zap.String("session", cp.ID),
			zap.String("screen", cp.Screen))
	}
}

// Run saves queued snapshots until Close is called and the queue drains.
// Save failures are logged and never stop the session. Cancelling ctx does
// not abort the drain, so the completion snapshot survives shutdown.
func (t *Tracker) Run(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)
	for cp := range t.queue {
		if err := t.backend.Save(ctx, cp); err != nil {
			t.logger.Warn("checkpoint save failed",
				zap.String("backend", t.backend.Name()),
				zap.String("session", cp.ID),
				zap.Error(err))
		}
	}
	return nil
}

// Close stops accepting snapshots. Run returns once pending ones are saved.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.queue)
	}
}

var _ sequencer.Observer = (*Tracker)(nil)
