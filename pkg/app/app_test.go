package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/dialstudy/dialstudy/pkg/checkpoint"
	"github.com/dialstudy/dialstudy/pkg/config"
	"github.com/dialstudy/dialstudy/pkg/dial"
	apperrors "github.com/dialstudy/dialstudy/pkg/errors"
	"github.com/dialstudy/dialstudy/pkg/experiment"
	"github.com/dialstudy/dialstudy/pkg/storage"
	"github.com/dialstudy/dialstudy/pkg/tui"
)

const testDoc = `
videos:
  ids: [3, 8]
  num: 2
participants:
  7:
    counterbalance: false
    condition: "dynamic"
`

type fixture struct {
	app     *App
	store   *storage.MemoryStorage
	backend *checkpoint.MemoryBackend
	keys    *dial.Queue
	out     *bytes.Buffer
}

func newFixture(t *testing.T, in io.Reader, configure ...func(*config.Config)) *fixture {
	t.Helper()
	doc, err := experiment.Parse([]byte(testDoc))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	cfg := config.Default()
	cfg.Session.TickRate = 1000
	cfg.Session.Seed = 1
	cfg.Output.Dir = t.TempDir()
	for _, fn := range configure {
		fn(cfg)
	}

	f := &fixture{
		store:   storage.NewMemoryStorage(),
		backend: checkpoint.NewMemoryBackend(),
		keys:    dial.NewQueue(16),
		out:     &bytes.Buffer{},
	}
	f.app, err = New(context.Background(), Options{
		Config:      cfg,
		In:          in,
		Out:         f.out,
		Document:    doc,
		Device:      f.keys,
		Store:       f.store,
		Checkpoints: f.backend,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { f.app.Shutdown(context.Background()) })
	return f
}

func runWithTimeout(t *testing.T, a *App) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := a.Run(ctx)
	if ctx.Err() != nil {
		t.Fatal("Run() did not return before the deadline")
	}
	return err
}

func TestRunAcceptsParticipantAndQuits(t *testing.T) {
	f := newFixture(t, strings.NewReader("t 7\nn\nq\n"))

	if err := runWithTimeout(t, f.app); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	plan := string(f.store.Bytes("7/trial_plan.csv"))
	if !strings.HasPrefix(plan, "block,video_id,bucket,path,counterbalance,condition\n") {
		t.Errorf("trial_plan.csv = %q", plan)
	}

	cps, err := f.backend.ListIncomplete(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(cps) != 1 || cps[0].Participant != 7 || cps[0].Condition != "dynamic" {
		t.Fatalf("incomplete checkpoints = %+v", cps)
	}
	if !strings.Contains(f.out.String(), "Instructions") {
		t.Errorf("console never drew the instructions:\n%s", f.out.String())
	}
}

func TestRunFeedsMonitor(t *testing.T) {
	f := newFixture(t, strings.NewReader("t 7\nn\nq\n"), func(c *config.Config) {
		c.Monitor.Addr = "127.0.0.1:0"
	})

	if err := runWithTimeout(t, f.app); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	snap := f.app.Monitor().Snapshot()
	if snap.Participant != 7 || snap.Condition != "dynamic" {
		t.Errorf("monitor snapshot = %+v", snap)
	}
	if snap.Datasets == 0 {
		t.Error("monitor saw no persisted dataset")
	}
}

func TestNewRequiresMedia(t *testing.T) {
	doc, err := experiment.Parse([]byte(testDoc))
	if err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	cfg.Output.Dir = t.TempDir()
	cfg.Video.Root = t.TempDir()
	cfg.Video.RequireFiles = true

	_, err = New(context.Background(), Options{
		Config:      cfg,
		In:          strings.NewReader(""),
		Out:         io.Discard,
		Document:    doc,
		Device:      dial.NewQueue(1),
		Store:       storage.NewMemoryStorage(),
		Checkpoints: checkpoint.NewMemoryBackend(),
	})
	if !apperrors.IsCode(err, apperrors.CodeInvalidConfig) {
		t.Errorf("New() error = %v, want missing media to be fatal", err)
	}
}

func TestRunRejectsUnknownParticipant(t *testing.T) {
	f := newFixture(t, strings.NewReader("t 99\nn\nq\n"))

	if err := runWithTimeout(t, f.app); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if _, ok := f.app.Sequencer().Notice(); !ok {
		t.Error("expected a pending notice")
	}
	if got := f.store.Bytes("99/trial_plan.csv"); got != nil {
		t.Errorf("unexpected plan for unknown participant: %q", got)
	}
}

func TestRunPersistFailureIsFatal(t *testing.T) {
	f := newFixture(t, strings.NewReader("t 7\nn\n"))
	f.store.FailPut = errors.New("disk full")

	err := runWithTimeout(t, f.app)
	if !apperrors.IsCode(err, apperrors.CodePersistFailed) {
		t.Fatalf("Run() error = %v, want persist failure", err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	f := newFixture(t, pr)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.app.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not stop after cancel")
	}
}

func TestHandleInputFeedsKeyboardDial(t *testing.T) {
	f := newFixture(t, strings.NewReader(""))

	in, err := tui.ParseCommand("+.")
	if err != nil {
		t.Fatal(err)
	}
	if err := f.app.handleInput(context.Background(), in); err != nil {
		t.Fatalf("handleInput() error = %v", err)
	}
	if f.keys.Len() != 3 {
		t.Fatalf("queued events = %d, want 3", f.keys.Len())
	}
	ev, _ := f.keys.PopEvent()
	if ev.Kind != dial.EventRotate || ev.Direction != dial.Clockwise {
		t.Errorf("first event = %v", ev)
	}
}

func TestOpenStoreLocal(t *testing.T) {
	cfg := config.Default()
	cfg.Output.Dir = t.TempDir()

	store, err := OpenStore(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}
	if _, ok := store.(*storage.LocalStorage); !ok {
		t.Errorf("OpenStore() = %T, want *storage.LocalStorage", store)
	}
}

func TestRedisConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Checkpoint.Redis.Addr = "redis:6380"
	cfg.Checkpoint.Redis.DB = 2
	cfg.Checkpoint.Redis.TTL = time.Hour

	rc := RedisConfig(cfg)
	if rc.Address != "redis:6380" || rc.Database != 2 || rc.TTL != time.Hour {
		t.Errorf("RedisConfig() = %+v", rc)
	}
	if rc.Prefix != "dialstudy:session:" {
		t.Errorf("Prefix = %q", rc.Prefix)
	}
}

func TestOpenCheckpointsNone(t *testing.T) {
	cfg := config.Default()
	cfg.Checkpoint.Backend = "none"

	f := newFixture(t, strings.NewReader(""))
	backend, err := f.app.openCheckpoints(context.Background(), cfg, nil)
	if err != nil || backend != nil {
		t.Errorf("openCheckpoints() = %v, %v; want nil, nil", backend, err)
	}
}
