package bridge

import (
	"errors"
	"strconv"
	"testing"

	"github.com/dialstudy/dialstudy/pkg/dial"
)

func TestApply(t *testing.T) {
	tests := []struct {
		name      string
		cfg       dial.Config
		wantCalls []string
	}{
		{"detents", dial.Detents(60), []string{"set:60"}},
		{"ten detents", dial.Detents(10), []string{"set:10"}},
		{"free", dial.Free(), []string{"disable"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := &recordingDevice{}
			b := New(dev, nil)

			if err := b.Apply(tt.cfg); err != nil {
				t.Fatalf("Apply() error = %v", err)
			}
			if len(dev.calls) != len(tt.wantCalls) || dev.calls[0] != tt.wantCalls[0] {
				t.Errorf("calls = %v, want %v", dev.calls, tt.wantCalls)
			}
			last, ok := b.Last()
			if !ok || last != tt.cfg {
				t.Errorf("Last() = %v, %v", last, ok)
			}
		})
	}
}

func TestApplyErrorKeepsLast(t *testing.T) {
	dev := &recordingDevice{}
	b := New(dev, nil)
	_ = b.Apply(dial.Detents(60))

	dev.err = errors.New("unplugged")
	if err := b.Apply(dial.Free()); err == nil {
		t.Fatal("expected error")
	}
	if last, _ := b.Last(); last != dial.Detents(60) {
		t.Errorf("Last() = %v, want previous config", last)
	}
}

func TestLastBeforeApply(t *testing.T) {
	b := New(&recordingDevice{}, nil)
	if _, ok := b.Last(); ok {
		t.Error("Last() should report nothing applied")
	}
}

type recordingDevice struct {
	calls []string
	err   error
}

func (d *recordingDevice) SetSubdivisions(n uint16) error {
	if d.err != nil {
		return d.err
	}
	d.calls = append(d.calls, "set:"+strconv.Itoa(int(n)))
	return nil
}

func (d *recordingDevice) DisableSubdivisions() error {
	if d.err != nil {
		return d.err
	}
	d.calls = append(d.calls, "disable")
	return nil
}
