package storage

import (
	"bytes"
	"context"
	"errors"
	"io"

	"go.uber.org/zap"

	"github.com/dialstudy/dialstudy/pkg/resilience"
)

// Mirror writes to a primary store and copies every object to secondary
// stores. Only primary failures are returned; secondary failures are
// logged. A secondary that keeps failing is skipped until its breaker
// cools down, so an unreachable bucket costs one timeout per cooldown
// rather than one per write.
type Mirror struct {
	primary     ObjectStorage
	secondaries []ObjectStorage
	breakers    []*resilience.CircuitBreaker
	logger      *zap.Logger
}

// NewMirror creates a mirrored store.
func NewMirror(logger *zap.Logger, primary ObjectStorage, secondaries ...ObjectStorage) *Mirror {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Mirror{primary: primary, secondaries: secondaries, logger: logger}
	for _, s := range secondaries {
		cb := resilience.NewCircuitBreaker()
		scheme := s.Scheme()
		cb.OnTrip = func(failures int) {
			logger.Warn("mirror disabled after repeated failures",
				zap.String("scheme", scheme),
				zap.Int("failures", failures))
		}
		cb.OnReset = func() {
			logger.Info("mirror recovered", zap.String("scheme", scheme))
		}
		m.breakers = append(m.breakers, cb)
	}
	return m
}

// Breaker returns the breaker guarding secondary i.
func (m *Mirror) Breaker(i int) *resilience.CircuitBreaker {
	return m.breakers[i]
}

// Scheme returns the primary scheme.
func (m *Mirror) Scheme() string {
	return m.primary.Scheme()
}

// Put writes to the primary first, then best-effort to each secondary.
func (m *Mirror) Put(ctx context.Context, path string, data io.Reader, opts PutOptions) error {
	body, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	if err := m.primary.Put(ctx, path, bytes.NewReader(body), opts); err != nil {
		return err
	}
	for i, s := range m.secondaries {
		err := m.breakers[i].Do(func() error {
			return s.Put(ctx, path, bytes.NewReader(body), opts)
		})
		if errors.Is(err, resilience.ErrOpen) {
			m.logger.Debug("mirror skipped", zap.String("scheme", s.Scheme()), zap.String("path", path))
			continue
		}
		if err != nil {
			m.logger.Warn("mirror write failed",
				zap.String("scheme", s.Scheme()),
				zap.String("path", path),
				zap.Error(err))
		}
	}
	return nil
}

// Get reads from the primary, falling back to the secondaries.
func (m *Mirror) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	r, err := m.primary.Get(ctx, path)
	if err == nil {
		return r, nil
	}
	for _, s := range m.secondaries {
		if r, serr := s.Get(ctx, path); serr == nil {
			return r, nil
		}
	}
	return nil, err
}

// Exists checks the primary.
func (m *Mirror) Exists(ctx context.Context, path string) (bool, error) {
	return m.primary.Exists(ctx, path)
}

// Head reads primary metadata.
func (m *Mirror) Head(ctx context.Context, path string) (ObjectInfo, error) {
	return m.primary.Head(ctx, path)
}

// List lists the primary.
func (m *Mirror) List(ctx context.Context, prefix string, opts ListOptions) ([]ObjectInfo, error) {
	return m.primary.List(ctx, prefix, opts)
}

var _ ObjectStorage = (*Mirror)(nil)
