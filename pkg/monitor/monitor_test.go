package monitor

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dialstudy/dialstudy/pkg/sequencer"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestMonitorSnapshot(t *testing.T) {
	m := New(nil)

	events := []sequencer.Event{
		{Type: sequencer.EventParticipantRejected, Time: t0, Input: "x"},
		{Type: sequencer.EventParticipantAccepted, Time: t0, SessionID: "s-1", Participant: 7, Condition: "dynamic", Phase: sequencer.PhaseConsent},
		{Type: sequencer.EventScreenActivated, Time: t0, Phase: sequencer.PhaseTrials, Screen: "trial_3", Index: 4},
		{Type: sequencer.EventDatasetPersisted, Time: t0, Dataset: "trial_plan", Rows: 2},
	}
	for _, ev := range events {
		m.OnEvent(context.Background(), ev)
	}

	s := m.Snapshot()
	if s.Participant != 7 || s.Condition != "dynamic" || s.SessionID != "s-1" {
		t.Errorf("session fields = %+v", s)
	}
	if s.Screen != "trial_3" || s.Index != 4 || s.Phase != sequencer.PhaseTrials.String() {
		t.Errorf("screen fields = %+v", s)
	}
	if s.Datasets != 1 || s.Rejected != 1 {
		t.Errorf("Datasets = %d, Rejected = %d", s.Datasets, s.Rejected)
	}

	m.OnEvent(context.Background(), sequencer.Event{Type: sequencer.EventSessionComplete, Time: t0})
	s = m.Snapshot()
	if s.Completed != 1 || s.Participant != 0 || s.Datasets != 0 {
		t.Errorf("after completion = %+v", s)
	}
}

func TestBrokerDropsForSlowClients(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe()
	for i := 0; i < 100; i++ {
		b.Publish(Message{Type: "tick"})
	}
	if len(ch) != cap(ch) {
		t.Errorf("buffered = %d, want %d", len(ch), cap(ch))
	}

	b.Unsubscribe(ch)
	b.Unsubscribe(ch)
	if b.Count() != 0 {
		t.Errorf("Count() = %d after unsubscribe", b.Count())
	}
}

func TestHandlerStatus(t *testing.T) {
	m := New(nil)
	m.OnEvent(context.Background(), sequencer.Event{
		Type: sequencer.EventParticipantAccepted, Time: t0, Participant: 12, Condition: "lock_in",
	})

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	tests := []struct {
		path string
		code int
	}{
		{"/health", http.StatusOK},
		{"/status", http.StatusOK},
		{"/nope", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := http.Get(srv.URL + tt.path)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.code {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.code)
			}
		})
	}

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var s Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		t.Fatal(err)
	}
	if s.Participant != 12 || s.Condition != "lock_in" {
		t.Errorf("GET /status = %+v", s)
	}
}

func TestHandlerEvents(t *testing.T) {
	m := New(nil)
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	sc := bufio.NewScanner(resp.Body)
	if got := nextEvent(t, sc); got != "status" {
		t.Fatalf("first event = %q, want status", got)
	}

	m.OnEvent(context.Background(), sequencer.Event{
		Type: sequencer.EventScreenActivated, Time: t0, Phase: sequencer.PhaseInstructions, Screen: "instructions",
	})
	if got := nextEvent(t, sc); got != string(sequencer.EventScreenActivated) {
		t.Errorf("next event = %q", got)
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	m := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	cancel()
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not return after cancel")
	}
}

func nextEvent(t *testing.T, sc *bufio.Scanner) string {
	t.Helper()
	for sc.Scan() {
		if name, ok := strings.CutPrefix(sc.Text(), "event:"); ok {
			return strings.TrimSpace(name)
		}
	}
	t.Fatalf("stream ended: %v", sc.Err())
	return ""
}
