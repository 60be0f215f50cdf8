// Package lifecycle tears down the station's resources in order when a run
// ends or the operator interrupts it.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Closer interface for services that need cleanup.
type Closer interface {
	Close() error
}

// ShutdownConfig configures the shutdown manager.
type ShutdownConfig struct {
	// Timeout bounds the whole teardown.
	Timeout time.Duration
	Logger  *zap.Logger
}

// DefaultShutdownConfig returns sensible defaults.
func DefaultShutdownConfig() ShutdownConfig {
	return ShutdownConfig{Timeout: 10 * time.Second}
}

type hook struct {
	name string
	fn   func(ctx context.Context) error
}

// ShutdownManager runs registered cleanup hooks once, in reverse order of
// registration.
type ShutdownManager struct {
	mu sync.Mutex

	timeout  time.Duration
	logger   *zap.Logger
	hooks    []hook
	draining bool
	err      error

	done chan struct{}
}

// NewShutdownManager creates a new shutdown manager.
func NewShutdownManager(cfg ShutdownConfig) *ShutdownManager {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &ShutdownManager{
		timeout: cfg.Timeout,
		logger:  cfg.Logger.Named("lifecycle"),
		done:    make(chan struct{}),
	}
}

// Register adds a cleanup hook. Hooks registered after Shutdown started
// are ignored.
func (m *ShutdownManager) Register(name string, fn func(ctx context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.draining {
		return
	}
	m.hooks = append(m.hooks, hook{name: name, fn: fn})
}

// RegisterCloser adds a service to be closed during shutdown.
func (m *ShutdownManager) RegisterCloser(name string, c Closer) {
	m.Register(name, func(context.Context) error { return c.Close() })
}

// IsDraining returns whether shutdown has started.
func (m *ShutdownManager) IsDraining() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.draining
}

// Shutdown runs every hook, newest first, and returns their joined errors.
// A hook still running when the timeout expires is abandoned. Later calls
// wait for the first one and return its result.
func (m *ShutdownManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.draining {
		m.mu.Unlock()
		<-m.done
		return m.err
	}
	m.draining = true
	hooks := m.hooks
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		start := time.Now()
		if err := runHook(ctx, h); err != nil {
			m.logger.Warn("shutdown hook failed", zap.String("hook", h.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
			continue
		}
		m.logger.Debug("shutdown hook done", zap.String("hook", h.name), zap.Duration("took", time.Since(start)))
	}

	m.err = errors.Join(errs...)
	close(m.done)
	return m.err
}

func runHook(ctx context.Context, h hook) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() { done <- h.fn(ctx) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until shutdown is complete.
func (m *ShutdownManager) Wait() {
	<-m.done
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
