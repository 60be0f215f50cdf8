// Package checkpoint records the progress of participant sessions so an
// interrupted session can be identified and reported after a crash.
package checkpoint

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrNotFound is returned when no checkpoint exists for an id.
var ErrNotFound = errors.New("checkpoint not found")

// PhaseComplete marks a finished session.
const PhaseComplete = "complete"

// Checkpoint tracks one participant session.
type Checkpoint struct {
	// Identification
	ID             string `json:"id"` // session id
	Participant    uint32 `json:"participant"`
	Condition      string `json:"condition"`
	Counterbalance bool   `json:"counterbalance"`
	Host           string `json:"host,omitempty"`

	// Progress
	Phase    string   `json:"phase"`
	Screen   string   `json:"screen"`
	Index    int      `json:"index"`
	Datasets []string `json:"datasets"`

	// State
	StartedAt   time.Time  `json:"started_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Complete reports whether the session finished.
func (c *Checkpoint) Complete() bool {
	return c.Phase == PhaseComplete
}

// Duration returns how long the session ran, up to now when unfinished.
func (c *Checkpoint) Duration(now time.Time) time.Duration {
	if c.CompletedAt != nil {
		return c.CompletedAt.Sub(c.StartedAt)
	}
	return now.Sub(c.StartedAt)
}

// clone returns a deep copy safe to hand to a backend.
func (c *Checkpoint) clone() *Checkpoint {
	cp := *c
	cp.Datasets = append([]string(nil), c.Datasets...)
	if c.CompletedAt != nil {
		t := *c.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

// Backend defines the interface for checkpoint storage backends.
type Backend interface {
	// Save persists a checkpoint, replacing any previous version.
	Save(ctx context.Context, cp *Checkpoint) error

	// Load retrieves a checkpoint by session id.
	Load(ctx context.Context, id string) (*Checkpoint, error)

	// Delete removes a checkpoint.
	Delete(ctx context.Context, id string) error

	// ListIncomplete returns sessions that never reached completion.
	ListIncomplete(ctx context.Context) ([]*Checkpoint, error)

	// Name returns the backend name for logging/debugging.
	Name() string
}

// sortByStart orders checkpoints oldest first.
func sortByStart(cps []*Checkpoint) {
	sort.Slice(cps, func(i, j int) bool {
		return cps[i].StartedAt.Before(cps[j].StartedAt)
	})
}

// MemoryBackend keeps checkpoints in memory (for testing).
type MemoryBackend struct {
	mu          sync.Mutex
	checkpoints map[string]*Checkpoint
	saves       int
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{checkpoints: make(map[string]*Checkpoint)}
}

// Save stores a copy of cp.
func (b *MemoryBackend) Save(_ context.Context, cp *Checkpoint) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.checkpoints[cp.ID] = cp.clone()
	b.saves++
	return nil
}

// Load returns a copy of the stored checkpoint.
func (b *MemoryBackend) Load(_ context.Context, id string) (*Checkpoint, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp, ok := b.checkpoints[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cp.clone(), nil
}

// Delete removes a checkpoint.
func (b *MemoryBackend) Delete(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.checkpoints, id)
	return nil
}

// ListIncomplete returns unfinished sessions.
func (b *MemoryBackend) ListIncomplete(_ context.Context) ([]*Checkpoint, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*Checkpoint
	for _, cp := range b.checkpoints {
		if !cp.Complete() {
			out = append(out, cp.clone())
		}
	}
	sortByStart(out)
	return out, nil
}

// Saves returns the number of Save calls.
func (b *MemoryBackend) Saves() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.saves
}

// Name returns "memory".
func (b *MemoryBackend) Name() string {
	return "memory"
}
