// Package bridge pushes a screen's dial configuration to the device.
package bridge

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/dialstudy/dialstudy/pkg/dial"
)

// Bridge forwards subdivision settings to a dial.
type Bridge struct {
	mu      sync.Mutex
	device  dial.Configurer
	logger  *zap.Logger
	last    dial.Config
	applied bool
}

// New creates a bridge for device.
func New(device dial.Configurer, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{device: device, logger: logger}
}

// Apply enables detents when cfg.Divisions > 0 and free rotation otherwise.
func (b *Bridge) Apply(cfg dial.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var err error
	if cfg.Divisions > 0 {
		err = b.device.SetSubdivisions(cfg.Divisions)
	} else {
		err = b.device.DisableSubdivisions()
	}
	if err != nil {
		return fmt.Errorf("apply dial config %d: %w", cfg.Divisions, err)
	}

	b.last = cfg
	b.applied = true
	b.logger.Debug("dial configured", zap.Uint16("divisions", cfg.Divisions))
	return nil
}

// Last returns the most recently applied configuration.
func (b *Bridge) Last() (dial.Config, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last, b.applied
}
