// Package config provides hierarchical configuration management.
// Priority: defaults < system < user < project < explicit file < env < flags
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/dialstudy/dialstudy/pkg/errors"
)

// Config holds all dialstudy configuration.
type Config struct {
	Version int `yaml:"version"`

	Session    SessionConfig    `yaml:"session"`
	Output     OutputConfig     `yaml:"output"`
	Dial       DialConfig       `yaml:"dial"`
	Video      VideoConfig      `yaml:"video"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Monitor    MonitorConfig    `yaml:"monitor"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// SessionConfig controls the experiment run.
type SessionConfig struct {
	ExperimentFile string `yaml:"experiment_file"`
	Seed           int64  `yaml:"seed"`      // 0 = time based
	TickRate       int    `yaml:"tick_rate"` // ticks per second
	ExitAfterFinal bool   `yaml:"exit_after_final"`
	WatchFile      bool   `yaml:"watch_file"`
}

// OutputConfig controls where datasets are written.
type OutputConfig struct {
	Dir string   `yaml:"dir"`
	S3  S3Config `yaml:"s3"`
}

// S3Config configures the optional dataset mirror.
type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style"`
}

// DialConfig selects the dial driver.
type DialConfig struct {
	Driver string `yaml:"driver"` // keyboard | serial
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
}

// VideoConfig locates stimulus videos.
type VideoConfig struct {
	Root            string        `yaml:"root"`
	DefaultDuration time.Duration `yaml:"default_duration"`
	RequireFiles    bool          `yaml:"require_files"`
}

// CheckpointConfig controls session progress tracking.
type CheckpointConfig struct {
	Backend string      `yaml:"backend"` // file | redis | s3 | none
	Dir     string      `yaml:"dir"`
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig for the redis checkpoint backend.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

// TelemetryConfig for optional tracing.
type TelemetryConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	Insecure    bool    `yaml:"insecure"`
	SampleRate  float64 `yaml:"sample_rate"`
}

// MonitorConfig for the read-only HTTP monitor. Empty Addr disables it.
type MonitorConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig for the zap logger.
type LoggingConfig struct {
	Dir        string `yaml:"dir"`
	Level      string `yaml:"level"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Default returns the default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	stateDir := filepath.Join(homeDir, ".dialstudy")

	return &Config{
		Version: 1,
		Session: SessionConfig{
			ExperimentFile: "experiment.yaml",
			TickRate:       60,
			WatchFile:      true,
		},
		Output: OutputConfig{
			Dir: "data",
			S3: S3Config{
				Region: "us-east-1",
				Prefix: "dialstudy/",
			},
		},
		Dial: DialConfig{
			Driver: "keyboard",
			Baud:   115200,
		},
		Video: VideoConfig{
			Root:            ".",
			DefaultDuration: 30 * time.Second,
		},
		Checkpoint: CheckpointConfig{
			Backend: "file",
			Dir:     filepath.Join(stateDir, "sessions"),
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "dialstudy:session:",
				TTL:    7 * 24 * time.Hour,
			},
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			Endpoint:    "localhost:4317",
			ServiceName: "dialstudy",
			Insecure:    true,
			SampleRate:  1.0,
		},
		Logging: LoggingConfig{
			Dir:        filepath.Join(stateDir, "logs"),
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
	}
}

// Validate checks values the run depends on.
func (c *Config) Validate() error {
	if c.Session.TickRate <= 0 {
		return apperrors.InvalidConfig("session.tick_rate", "must be positive")
	}
	switch c.Dial.Driver {
	case "keyboard":
	case "serial":
		if c.Dial.Device == "" {
			return apperrors.MissingField("dial", "device")
		}
	default:
		return apperrors.InvalidConfig("dial.driver", fmt.Sprintf("unknown driver %q", c.Dial.Driver))
	}
	switch c.Checkpoint.Backend {
	case "file", "redis", "none":
	case "s3":
		if !c.Output.S3.Enabled {
			return apperrors.InvalidConfig("checkpoint.backend", "s3 checkpoints need output.s3 enabled")
		}
	default:
		return apperrors.InvalidConfig("checkpoint.backend", fmt.Sprintf("unknown backend %q", c.Checkpoint.Backend))
	}
	if c.Output.S3.Enabled && c.Output.S3.Bucket == "" {
		return apperrors.MissingField("output.s3", "bucket")
	}
	return nil
}

// TickInterval returns the duration of one frame.
func (c *Config) TickInterval() time.Duration {
	return time.Second / time.Duration(c.Session.TickRate)
}

// Manager handles configuration loading and merging.
type Manager struct {
	mu       sync.RWMutex
	config   *Config
	paths    []string // Paths that were loaded
	explicit string
	getenv   func(string) string
}

// NewManager creates a new configuration manager.
func NewManager() *Manager {
	return &Manager{
		config: Default(),
		getenv: os.Getenv,
	}
}

// SetFile adds an explicit config file loaded after the standard paths.
// Unlike the standard paths, a missing explicit file is an error.
func (m *Manager) SetFile(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.explicit = path
}

// Load loads configuration from all sources in priority order.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.config = Default()
	m.paths = nil

	for _, path := range m.getConfigPaths() {
		if err := m.loadFile(path); err != nil {
			if !os.IsNotExist(err) {
				return apperrors.Wrap(err, apperrors.CodeInvalidConfig, "cannot load config").
					WithContext("path", path)
			}
		} else {
			m.paths = append(m.paths, path)
		}
	}

	if m.explicit != "" {
		if err := m.loadFile(m.explicit); err != nil {
			return apperrors.Wrap(err, apperrors.CodeInvalidConfig, "cannot load config").
				WithContext("path", m.explicit)
		}
		m.paths = append(m.paths, m.explicit)
	}

	m.loadEnv()
	return nil
}

// getConfigPaths returns config file paths in priority order.
func (m *Manager) getConfigPaths() []string {
	var paths []string

	if runtime.GOOS != "windows" {
		paths = append(paths, "/etc/dialstudy/config.yaml")
	}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".dialstudy", "config.yaml"))
	}

	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".dialstudy.yaml"))
	}

	return paths
}

// loadFile loads a single config file and merges it.
func (m *Manager) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var partial Config
	if err := yaml.Unmarshal(data, &partial); err != nil {
		return err
	}

	m.merge(&partial)
	return nil
}

// merge merges non-zero values from src into config. Booleans can only be
// switched on by a file; env and flags switch them off.
func (m *Manager) merge(src *Config) {
	// Session
	if src.Session.ExperimentFile != "" {
		m.config.Session.ExperimentFile = src.Session.ExperimentFile
	}
	if src.Session.Seed != 0 {
		m.config.Session.Seed = src.Session.Seed
	}
	if src.Session.TickRate != 0 {
		m.config.Session.TickRate = src.Session.TickRate
	}
	if src.Session.ExitAfterFinal {
		m.config.Session.ExitAfterFinal = true
	}

	// Output
	if src.Output.Dir != "" {
		m.config.Output.Dir = src.Output.Dir
	}
	s3 := src.Output.S3
	if s3.Enabled {
		m.config.Output.S3.Enabled = true
	}
	if s3.Bucket != "" {
		m.config.Output.S3.Bucket = s3.Bucket
	}
	if s3.Prefix != "" {
		m.config.Output.S3.Prefix = s3.Prefix
	}
	if s3.Region != "" {
		m.config.Output.S3.Region = s3.Region
	}
	if s3.Endpoint != "" {
		m.config.Output.S3.Endpoint = s3.Endpoint
	}
	if s3.AccessKeyID != "" {
		m.config.Output.S3.AccessKeyID = s3.AccessKeyID
	}
	if s3.SecretAccessKey != "" {
		m.config.Output.S3.SecretAccessKey = s3.SecretAccessKey
	}
	if s3.UsePathStyle {
		m.config.Output.S3.UsePathStyle = true
	}

	// Dial
	if src.Dial.Driver != "" {
		m.config.Dial.Driver = src.Dial.Driver
	}
	if src.Dial.Device != "" {
		m.config.Dial.Device = src.Dial.Device
	}
	if src.Dial.Baud != 0 {
		m.config.Dial.Baud = src.Dial.Baud
	}

	// Video
	if src.Video.Root != "" {
		m.config.Video.Root = src.Video.Root
	}
	if src.Video.DefaultDuration != 0 {
		m.config.Video.DefaultDuration = src.Video.DefaultDuration
	}
	if src.Video.RequireFiles {
		m.config.Video.RequireFiles = true
	}

	// Checkpoint
	if src.Checkpoint.Backend != "" {
		m.config.Checkpoint.Backend = src.Checkpoint.Backend
	}
	if src.Checkpoint.Dir != "" {
		m.config.Checkpoint.Dir = src.Checkpoint.Dir
	}
	r := src.Checkpoint.Redis
	if r.Addr != "" {
		m.config.Checkpoint.Redis.Addr = r.Addr
	}
	if r.Password != "" {
		m.config.Checkpoint.Redis.Password = r.Password
	}
	if r.DB != 0 {
		m.config.Checkpoint.Redis.DB = r.DB
	}
	if r.Prefix != "" {
		m.config.Checkpoint.Redis.Prefix = r.Prefix
	}
	if r.TTL != 0 {
		m.config.Checkpoint.Redis.TTL = r.TTL
	}

	// Telemetry
	if src.Telemetry.Enabled {
		m.config.Telemetry.Enabled = true
	}
	if src.Telemetry.Endpoint != "" {
		m.config.Telemetry.Endpoint = src.Telemetry.Endpoint
	}
	if src.Telemetry.ServiceName != "" {
		m.config.Telemetry.ServiceName = src.Telemetry.ServiceName
	}
	if src.Telemetry.SampleRate != 0 {
		m.config.Telemetry.SampleRate = src.Telemetry.SampleRate
	}

	if src.Monitor.Addr != "" {
		m.config.Monitor.Addr = src.Monitor.Addr
	}

	// Logging
	if src.Logging.Dir != "" {
		m.config.Logging.Dir = src.Logging.Dir
	}
	if src.Logging.Level != "" {
		m.config.Logging.Level = src.Logging.Level
	}
	if src.Logging.MaxSizeMB != 0 {
		m.config.Logging.MaxSizeMB = src.Logging.MaxSizeMB
	}
	if src.Logging.MaxBackups != 0 {
		m.config.Logging.MaxBackups = src.Logging.MaxBackups
	}
	if src.Logging.MaxAgeDays != 0 {
		m.config.Logging.MaxAgeDays = src.Logging.MaxAgeDays
	}
}

// loadEnv loads configuration from environment variables.
func (m *Manager) loadEnv() {
	env := m.getenv

	if v := env("DIALSTUDY_EXPERIMENT"); v != "" {
		m.config.Session.ExperimentFile = v
	}
	if v := env("DIALSTUDY_SEED"); v != "" {
		if seed, err := strconv.ParseInt(v, 10, 64); err == nil {
			m.config.Session.Seed = seed
		}
	}
	if v := env("DIALSTUDY_EXIT_AFTER_FINAL"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			m.config.Session.ExitAfterFinal = b
		}
	}
	if v := env("DIALSTUDY_OUTPUT_DIR"); v != "" {
		m.config.Output.Dir = v
	}
	if v := env("DIALSTUDY_S3_BUCKET"); v != "" {
		m.config.Output.S3.Enabled = true
		m.config.Output.S3.Bucket = v
	}
	if v := env("DIALSTUDY_DIAL_DRIVER"); v != "" {
		m.config.Dial.Driver = v
	}
	if v := env("DIALSTUDY_DIAL_DEVICE"); v != "" {
		m.config.Dial.Device = v
	}
	if v := env("DIALSTUDY_CHECKPOINT_BACKEND"); v != "" {
		m.config.Checkpoint.Backend = v
	}
	if v := env("DIALSTUDY_REDIS_ADDR"); v != "" {
		m.config.Checkpoint.Redis.Addr = v
	}
	if v := env("DIALSTUDY_OTLP_ENDPOINT"); v != "" {
		m.config.Telemetry.Enabled = true
		m.config.Telemetry.Endpoint = v
	}
	if v := env("DIALSTUDY_MONITOR_ADDR"); v != "" {
		m.config.Monitor.Addr = v
	}
	if v := env("DIALSTUDY_LOG_LEVEL"); v != "" {
		m.config.Logging.Level = v
	}
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// Update applies fn to the configuration, used for CLI flag overrides.
func (m *Manager) Update(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.config)
}

// GetPaths returns the paths that were loaded.
func (m *Manager) GetPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paths
}

// Save writes the current config to the user config file.
func (m *Manager) Save() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	configDir := filepath.Join(home, ".dialstudy")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(m.config)
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(configDir, "config.yaml"), data, 0644)
}

// Global instance
var (
	globalManager *Manager
	globalOnce    sync.Once
)

// Global returns the global configuration manager.
func Global() *Manager {
	globalOnce.Do(func() {
		globalManager = NewManager()
		_ = globalManager.Load()
	})
	return globalManager
}
