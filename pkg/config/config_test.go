package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/dialstudy/dialstudy/pkg/errors"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	if cfg.TickInterval() != time.Second/60 {
		t.Errorf("TickInterval() = %v", cfg.TickInterval())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		code   apperrors.Code
	}{
		{"zero tick rate", func(c *Config) { c.Session.TickRate = 0 }, apperrors.CodeInvalidConfig},
		{"unknown driver", func(c *Config) { c.Dial.Driver = "usb" }, apperrors.CodeInvalidConfig},
		{"serial without device", func(c *Config) { c.Dial.Driver = "serial" }, apperrors.CodeMissingField},
		{"unknown backend", func(c *Config) { c.Checkpoint.Backend = "etcd" }, apperrors.CodeInvalidConfig},
		{"s3 without bucket", func(c *Config) { c.Output.S3.Enabled = true }, apperrors.CodeMissingField},
		{"s3 checkpoints without s3", func(c *Config) { c.Checkpoint.Backend = "s3" }, apperrors.CodeInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if got := apperrors.GetCode(err); got != tt.code {
				t.Errorf("Validate() code = %s, want %s", got, tt.code)
			}
		})
	}
}

func TestMerge(t *testing.T) {
	m := NewManager()
	m.merge(&Config{
		Session: SessionConfig{Seed: 42, ExitAfterFinal: true},
		Dial:    DialConfig{Driver: "serial", Device: "/dev/ttyACM0"},
		Checkpoint: CheckpointConfig{
			Redis: RedisConfig{TTL: time.Hour},
		},
	})

	cfg := m.Get()
	if cfg.Session.Seed != 42 || !cfg.Session.ExitAfterFinal {
		t.Errorf("Session = %+v", cfg.Session)
	}
	if cfg.Session.TickRate != 60 {
		t.Errorf("TickRate = %d, want default 60", cfg.Session.TickRate)
	}
	if cfg.Dial.Device != "/dev/ttyACM0" || cfg.Dial.Baud != 115200 {
		t.Errorf("Dial = %+v", cfg.Dial)
	}
	if cfg.Checkpoint.Redis.TTL != time.Hour || cfg.Checkpoint.Redis.Addr != "localhost:6379" {
		t.Errorf("Redis = %+v", cfg.Checkpoint.Redis)
	}
}

func TestLoadExplicitFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `
session:
  experiment_file: study.yaml
  tick_rate: 30
output:
  dir: /tmp/out
video:
  default_duration: 45s
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	env := map[string]string{
		"DIALSTUDY_OUTPUT_DIR":   "/srv/data",
		"DIALSTUDY_SEED":         "7",
		"DIALSTUDY_S3_BUCKET":    "lab-data",
		"DIALSTUDY_MONITOR_ADDR": "127.0.0.1:8090",
	}

	m := NewManager()
	m.getenv = func(k string) string { return env[k] }
	m.SetFile(path)
	if err := m.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	cfg := m.Get()
	if cfg.Session.ExperimentFile != "study.yaml" {
		t.Errorf("ExperimentFile = %q", cfg.Session.ExperimentFile)
	}
	if cfg.Session.TickRate != 30 {
		t.Errorf("TickRate = %d, want 30", cfg.Session.TickRate)
	}
	if cfg.Video.DefaultDuration != 45*time.Second {
		t.Errorf("DefaultDuration = %v", cfg.Video.DefaultDuration)
	}
	if cfg.Output.Dir != "/srv/data" {
		t.Errorf("Output.Dir = %q, env should win", cfg.Output.Dir)
	}
	if cfg.Session.Seed != 7 {
		t.Errorf("Seed = %d, want 7", cfg.Session.Seed)
	}
	if !cfg.Output.S3.Enabled || cfg.Output.S3.Bucket != "lab-data" {
		t.Errorf("S3 = %+v", cfg.Output.S3)
	}
	if cfg.Monitor.Addr != "127.0.0.1:8090" {
		t.Errorf("Monitor.Addr = %q", cfg.Monitor.Addr)
	}

	paths := m.GetPaths()
	if len(paths) == 0 || paths[len(paths)-1] != path {
		t.Errorf("GetPaths() = %v", paths)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	m := NewManager()
	m.getenv = func(string) string { return "" }
	m.SetFile(filepath.Join(t.TempDir(), "nope.yaml"))

	err := m.Load()
	if !apperrors.IsCode(err, apperrors.CodeInvalidConfig) {
		t.Errorf("Load() error = %v, want invalid config", err)
	}
}

func TestUpdate(t *testing.T) {
	m := NewManager()
	m.Update(func(c *Config) { c.Dial.Driver = "serial" })
	if m.Get().Dial.Driver != "serial" {
		t.Error("Update() did not apply")
	}
}
