package checkpoint

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dialstudy/dialstudy/pkg/sequencer"
	"github.com/dialstudy/dialstudy/pkg/storage"
)

var t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func sample(id string, pid uint32, start time.Time) *Checkpoint {
	return &Checkpoint{
		ID:          id,
		Participant: pid,
		Condition:   "dynamic",
		Phase:       "trials",
		Screen:      "dynamic_4",
		Index:       3,
		Datasets:    []string{"trial_plan"},
		StartedAt:   start,
		UpdatedAt:   start,
	}
}

func exerciseBackend(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()

	if _, err := b.Load(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load(missing) error = %v, want ErrNotFound", err)
	}

	older := sample("s-1", 1, t0)
	newer := sample("s-2", 2, t0.Add(time.Hour))
	for _, cp := range []*Checkpoint{newer, older} {
		if err := b.Save(ctx, cp); err != nil {
			t.Fatalf("Save(%s) error = %v", cp.ID, err)
		}
	}

	got, err := b.Load(ctx, "s-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Participant != 1 || got.Screen != "dynamic_4" || len(got.Datasets) != 1 {
		t.Errorf("Load() = %+v", got)
	}

	list, err := b.ListIncomplete(ctx)
	if err != nil {
		t.Fatalf("ListIncomplete() error = %v", err)
	}
	if len(list) != 2 || list[0].ID != "s-1" || list[1].ID != "s-2" {
		t.Fatalf("ListIncomplete() = %v, want oldest first", ids(list))
	}

	done := t0.Add(2 * time.Hour)
	newer.Phase = PhaseComplete
	newer.CompletedAt = &done
	if err := b.Save(ctx, newer); err != nil {
		t.Fatal(err)
	}
	list, _ = b.ListIncomplete(ctx)
	if len(list) != 1 || list[0].ID != "s-1" {
		t.Errorf("ListIncomplete() after completion = %v", ids(list))
	}

	if err := b.Delete(ctx, "s-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
}

func TestFileBackend(t *testing.T) {
	b, err := NewFileBackend(filepath.Join(t.TempDir(), "sessions"))
	if err != nil {
		t.Fatal(err)
	}
	exerciseBackend(t, b)

	if _, err := b.Load(context.Background(), "s-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() after Delete error = %v", err)
	}
	if err := b.Delete(context.Background(), "s-1"); err != nil {
		t.Errorf("second Delete() error = %v", err)
	}
}

func TestFileBackendSkipsCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	b, err := NewFileBackend(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "bad.checkpoint"), []byte("{"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := b.Save(context.Background(), sample("ok", 1, t0)); err != nil {
		t.Fatal(err)
	}

	list, err := b.ListIncomplete(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != "ok" {
		t.Errorf("ListIncomplete() = %v", ids(list))
	}
}

func TestFileBackendCleanup(t *testing.T) {
	b, err := NewFileBackend(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	old := sample("old", 1, t0)
	old.Phase = PhaseComplete
	open := sample("open", 2, t0)
	recent := sample("recent", 3, time.Now())
	recent.Phase = PhaseComplete
	for _, cp := range []*Checkpoint{old, open, recent} {
		if err := b.Save(ctx, cp); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := b.Cleanup(24 * time.Hour)
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("Cleanup() removed %d, want 1", removed)
	}
	if _, err := b.Load(ctx, "open"); err != nil {
		t.Errorf("incomplete checkpoint was removed: %v", err)
	}
	if _, err := b.Load(ctx, "recent"); err != nil {
		t.Errorf("recent checkpoint was removed: %v", err)
	}
}

func TestStoreBackend(t *testing.T) {
	b := NewStoreBackend(storage.NewMemoryStorage(), "sessions/")
	exerciseBackend(t, b)
	if b.Name() != "store:memory" {
		t.Errorf("Name() = %q", b.Name())
	}
}

func TestMemoryBackend(t *testing.T) {
	exerciseBackend(t, NewMemoryBackend())
}

func TestRedisBackend(t *testing.T) {
	addr := os.Getenv("DIALSTUDY_REDIS_ADDR")
	if addr == "" {
		t.Skip("DIALSTUDY_REDIS_ADDR not set")
	}

	cfg := DefaultRedisConfig(addr)
	cfg.Prefix = "dialstudy:test:" + time.Now().Format("150405.000") + ":"
	cfg.TTL = time.Minute
	b, err := NewRedisBackend(cfg)
	if err != nil {
		t.Fatalf("NewRedisBackend() error = %v", err)
	}
	defer b.Close()

	exerciseBackend(t, b)

	cp, err := b.FindByParticipant(context.Background(), 2)
	if err != nil {
		t.Fatalf("FindByParticipant() error = %v", err)
	}
	if cp.ID != "s-2" || !cp.Complete() {
		t.Errorf("FindByParticipant() = %+v", cp)
	}
	if _, err := b.FindByParticipant(context.Background(), 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindByParticipant(deleted) error = %v", err)
	}
}

func TestMultiBackend(t *testing.T) {
	ctx := context.Background()
	primary := NewMemoryBackend()
	secondary := NewMemoryBackend()
	m := NewMultiBackend(primary, &failingBackend{})

	if err := m.Save(ctx, sample("s-1", 1, t0)); err != nil {
		t.Fatalf("Save() with failing secondary error = %v", err)
	}

	m = NewMultiBackend(primary, secondary)
	if err := m.Save(ctx, sample("s-2", 2, t0)); err != nil {
		t.Fatal(err)
	}
	if secondary.Saves() != 1 {
		t.Errorf("secondary saves = %d, want 1", secondary.Saves())
	}

	// Only the secondary knows s-3.
	if err := secondary.Save(ctx, sample("s-3", 3, t0)); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Load(ctx, "s-3"); err != nil {
		t.Errorf("Load() fallback error = %v", err)
	}
	if m.Name() != "memory+memory" {
		t.Errorf("Name() = %q", m.Name())
	}

	if err := NewMultiBackend(&failingBackend{}, secondary).Save(ctx, sample("s-4", 4, t0)); err == nil {
		t.Error("Save() with failing primary should fail")
	}
}

func TestTracker(t *testing.T) {
	backend := NewMemoryBackend()
	tracker := NewTracker(backend, nil, 0)

	done := make(chan struct{})
	go func() {
		tracker.Run(context.Background())
		close(done)
	}()

	ctx := context.Background()
	base := sequencer.Event{SessionID: "abc", Participant: 7, Condition: "lock_in", Counterbalanced: true}
	at := func(ev sequencer.Event, typ sequencer.EventType, d time.Duration) sequencer.Event {
		ev.Type = typ
		ev.Time = t0.Add(d)
		return ev
	}

	accepted := at(base, sequencer.EventParticipantAccepted, 0)
	accepted.Phase = sequencer.PhaseParticipantEntry
	tracker.OnEvent(ctx, accepted)

	persisted := at(base, sequencer.EventDatasetPersisted, time.Millisecond)
	persisted.Dataset = "trial_plan"
	tracker.OnEvent(ctx, persisted)

	activated := at(base, sequencer.EventScreenActivated, 2*time.Millisecond)
	activated.Phase = sequencer.PhaseConsent
	activated.Screen = "consent_0"
	tracker.OnEvent(ctx, activated)

	// Events of another session are ignored.
	other := at(sequencer.Event{SessionID: "zzz"}, sequencer.EventScreenActivated, 3*time.Millisecond)
	other.Screen = "intruder"
	tracker.OnEvent(ctx, other)

	tracker.Close()
	<-done

	cp, err := backend.Load(ctx, "abc")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cp.Participant != 7 || cp.Condition != "lock_in" || !cp.Counterbalance {
		t.Errorf("identity = %+v", cp)
	}
	if cp.Phase != sequencer.PhaseConsent.String() || cp.Screen != "consent_0" {
		t.Errorf("progress = %s/%s", cp.Phase, cp.Screen)
	}
	if len(cp.Datasets) != 1 || cp.Datasets[0] != "trial_plan" {
		t.Errorf("Datasets = %v", cp.Datasets)
	}
	if !cp.StartedAt.Equal(t0) || !cp.UpdatedAt.Equal(t0.Add(2*time.Millisecond)) {
		t.Errorf("times = %v %v", cp.StartedAt, cp.UpdatedAt)
	}
	if backend.Saves() != 2 {
		t.Errorf("saves = %d, want 2", backend.Saves())
	}

	// Snapshots after Close are discarded.
	tracker.OnEvent(ctx, at(base, sequencer.EventScreenActivated, time.Second))
}

func TestTrackerCompletion(t *testing.T) {
	backend := NewMemoryBackend()
	tracker := NewTracker(backend, nil, 8)
	ctx := context.Background()

	base := sequencer.Event{SessionID: "s", Participant: 1, Time: t0}
	for _, typ := range []sequencer.EventType{
		sequencer.EventParticipantAccepted,
		sequencer.EventScreenActivated,
		sequencer.EventSessionComplete,
	} {
		ev := base
		ev.Type = typ
		tracker.OnEvent(ctx, ev)
	}
	tracker.Close()
	tracker.Run(ctx)

	cp, err := backend.Load(ctx, "s")
	if err != nil {
		t.Fatal(err)
	}
	if !cp.Complete() || cp.CompletedAt == nil {
		t.Errorf("checkpoint not complete: %+v", cp)
	}
	list, _ := backend.ListIncomplete(ctx)
	if len(list) != 0 {
		t.Errorf("ListIncomplete() = %v", ids(list))
	}
}

func TestTrackerDropsWhenFull(t *testing.T) {
	backend := NewMemoryBackend()
	tracker := NewTracker(backend, nil, 1)
	ctx := context.Background()

	base := sequencer.Event{SessionID: "s", Participant: 1, Time: t0}
	accepted := base
	accepted.Type = sequencer.EventParticipantAccepted
	tracker.OnEvent(ctx, accepted)
	for i := 0; i < 3; i++ {
		ev := base
		ev.Type = sequencer.EventScreenActivated
		tracker.OnEvent(ctx, ev)
	}
	tracker.Close()
	tracker.Run(ctx)

	if backend.Saves() != 1 {
		t.Errorf("saves = %d, want 1", backend.Saves())
	}
}

func TestDuration(t *testing.T) {
	cp := sample("s", 1, t0)
	if got := cp.Duration(t0.Add(time.Minute)); got != time.Minute {
		t.Errorf("Duration() = %v", got)
	}
	end := t0.Add(30 * time.Second)
	cp.CompletedAt = &end
	if got := cp.Duration(t0.Add(time.Hour)); got != 30*time.Second {
		t.Errorf("Duration() completed = %v", got)
	}
}

func ids(cps []*Checkpoint) []string {
	var out []string
	for _, cp := range cps {
		out = append(out, cp.ID)
	}
	return out
}

type failingBackend struct{}

func (failingBackend) Save(context.Context, *Checkpoint) error { return errors.New("down") }
func (failingBackend) Load(context.Context, string) (*Checkpoint, error) {
	return nil, errors.New("down")
}
func (failingBackend) Delete(context.Context, string) error { return errors.New("down") }
func (failingBackend) ListIncomplete(context.Context) ([]*Checkpoint, error) {
	return nil, errors.New("down")
}
func (failingBackend) Name() string { return "failing" }
