// Package sink persists experiment datasets as CSV files keyed by
// participant.
package sink

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/dialstudy/dialstudy/pkg/dataset"
	apperrors "github.com/dialstudy/dialstudy/pkg/errors"
	"github.com/dialstudy/dialstudy/pkg/storage"
)

// Persister is what the sequencer needs from a sink.
type Persister interface {
	Persist(ctx context.Context, participant uint32, ds *dataset.Dataset) error
}

// Sink writes datasets to an object store.
type Sink struct {
	store  storage.ObjectStorage
	logger *zap.Logger
}

// New creates a sink over store.
func New(store storage.ObjectStorage, logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{store: store, logger: logger}
}

// Path returns the object path of a dataset.
func Path(participant uint32, name string) string {
	return fmt.Sprintf("%d/%s.csv", participant, name)
}

// Persist writes ds to {participant}/{name}.csv, replacing any previous
// content. There are no retries; every failure is a PersistFailed error.
func (s *Sink) Persist(ctx context.Context, participant uint32, ds *dataset.Dataset) error {
	if ds == nil {
		return nil
	}
	if err := ds.Validate(); err != nil {
		return apperrors.PersistFailed(participant, ds.Name, err)
	}

	path := Path(participant, ds.Name)
	opts := storage.PutOptions{
		ContentType: "text/csv",
		Metadata: map[string]string{
			"participant": strconv.FormatUint(uint64(participant), 10),
			"dataset":     ds.Name,
		},
	}
	if err := s.store.Put(ctx, path, bytes.NewReader(ds.Bytes()), opts); err != nil {
		return apperrors.PersistFailed(participant, ds.Name, err)
	}

	s.logger.Debug("dataset persisted",
		zap.Uint32("participant", participant),
		zap.String("dataset", ds.Name),
		zap.Int("rows", len(ds.Rows)),
		zap.String("scheme", s.store.Scheme()))
	return nil
}
