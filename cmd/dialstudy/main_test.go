package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dialstudy/dialstudy/pkg/checkpoint"
)

func TestLoadConfigAppliesFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("session:\n  seed: 5\n  tick_rate: 30\n"), 0644); err != nil {
		t.Fatal(err)
	}

	configFile = path
	experimentFile = "study.yaml"
	t.Cleanup(func() {
		configFile, experimentFile, seed = "", "", 0
		runCmd.Flags().Lookup("seed").Changed = false
	})
	if err := runCmd.Flags().Set("seed", "42"); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfig(runCmd)
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Session.Seed != 42 {
		t.Errorf("Seed = %d, flag should win over the file", cfg.Session.Seed)
	}
	if cfg.Session.TickRate != 30 {
		t.Errorf("TickRate = %d, want 30 from the file", cfg.Session.TickRate)
	}
	if cfg.Session.ExperimentFile != "study.yaml" {
		t.Errorf("ExperimentFile = %q", cfg.Session.ExperimentFile)
	}
}

func TestLoadConfigRejectsInvalidDriver(t *testing.T) {
	dialDriver = "usb"
	t.Cleanup(func() { dialDriver = "" })

	if _, err := loadConfig(runCmd); err == nil {
		t.Error("loadConfig() accepted an unknown dial driver")
	}
}

func TestSessionRow(t *testing.T) {
	cp := &checkpoint.Checkpoint{
		ID:          "s-1",
		Participant: 12,
		Condition:   "lock_in",
		Phase:       "trials",
		Screen:      "confidence_8",
		UpdatedAt:   time.Now().Add(-time.Minute),
	}
	row := sessionRow(cp)
	if row.Participant != 12 || row.Screen != "confidence_8" {
		t.Errorf("sessionRow() = %+v", row)
	}
	if row.Age < time.Minute {
		t.Errorf("Age = %v, want at least 1m", row.Age)
	}
}
