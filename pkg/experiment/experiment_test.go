package experiment

import (
	"os"
	"path/filepath"
	"testing"

	apperrors "github.com/dialstudy/dialstudy/pkg/errors"
)

const validDoc = `
config:
  scaling: 1.5
videos:
  ids: [3, 5, 8, 13]
  num: 3
participants:
  1:
    counterbalance: false
    condition: "dynamic"
  2:
    control: true
    condition: "dichotomous"
  51:
    counterbalance: true
    condition: "lock_in"
consent:
  - assets/consent1.png
`

func TestParseValid(t *testing.T) {
	doc, err := Parse([]byte(validDoc))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if doc.Scaling() != 1.5 {
		t.Errorf("Scaling() = %v, want 1.5", doc.Scaling())
	}
	if doc.Videos.Num != 3 || len(doc.Videos.IDs) != 4 {
		t.Errorf("Videos = %+v", doc.Videos)
	}
	if !doc.Participants[2].Counterbalance {
		t.Error("control: true should set Counterbalance")
	}
	if got := doc.ParticipantIDs(); len(got) != 3 || got[0] != 1 || got[2] != 51 {
		t.Errorf("ParticipantIDs() = %v", got)
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		code apperrors.Code
	}{
		{"malformed", "videos: [", apperrors.CodeInvalidConfig},
		{"no ids", "videos: {num: 1}\nparticipants: {1: {condition: dynamic}}", apperrors.CodeMissingField},
		{"no num", "videos: {ids: [1]}\nparticipants: {1: {condition: dynamic}}", apperrors.CodeMissingField},
		{"num too large", "videos: {ids: [1], num: 2}\nparticipants: {1: {condition: dynamic}}", apperrors.CodeInvalidConfig},
		{"duplicate id", "videos: {ids: [1, 1], num: 1}\nparticipants: {1: {condition: dynamic}}", apperrors.CodeInvalidConfig},
		{"no participants", "videos: {ids: [1], num: 1}", apperrors.CodeMissingField},
		{"bad condition", "videos: {ids: [1], num: 1}\nparticipants: {1: {condition: static}}", apperrors.CodeInvalidConfig},
		{"bad scaling", "config: {scaling: 0}\nvideos: {ids: [1], num: 1}\nparticipants: {1: {condition: dynamic}}", apperrors.CodeInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			if err == nil {
				t.Fatal("expected error")
			}
			if got := apperrors.GetCode(err); got != tt.code {
				t.Errorf("code = %s, want %s (%v)", got, tt.code, err)
			}
		})
	}
}

func TestLookup(t *testing.T) {
	doc, err := Parse([]byte(validDoc))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		input   string
		wantID  uint32
		wantErr bool
	}{
		{"1", 1, false},
		{" 51 ", 51, false},
		{"4", 0, true},
		{"abc", 0, true},
		{"-1", 0, true},
		{"", 0, true},
		{"99999999999", 0, true},
	}

	for _, tt := range tests {
		id, _, err := doc.Lookup(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("Lookup(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if err != nil && !apperrors.IsCode(err, apperrors.CodeUnknownParticipant) {
			t.Errorf("Lookup(%q) code = %s", tt.input, apperrors.GetCode(err))
		}
		if id != tt.wantID {
			t.Errorf("Lookup(%q) id = %d, want %d", tt.input, id, tt.wantID)
		}
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "experiment.yaml")
	if err := os.WriteFile(path, []byte(validDoc), 0644); err != nil {
		t.Fatal(err)
	}

	doc, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if doc.Path() != path {
		t.Errorf("Path() = %q", doc.Path())
	}

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	if !apperrors.IsCode(err, apperrors.CodeFileNotFound) {
		t.Errorf("missing file error = %v", err)
	}
}

func TestScalingDefault(t *testing.T) {
	doc := &Document{}
	if doc.Scaling() != 1 {
		t.Errorf("Scaling() = %v, want 1", doc.Scaling())
	}
}
