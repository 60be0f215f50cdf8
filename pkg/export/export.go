package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/dialstudy/dialstudy/pkg/storage"
)

// Report file names.
const (
	AllDecisionsFile = "AllDecisions.xlsx"
	DDMFile          = "DDM.xlsx"
)

// ParticipantFile returns the workbook name of a participant.
func ParticipantFile(pid uint32) string {
	return fmt.Sprintf("Participant %d.xlsx", pid)
}

// Progress is advanced once per participant.
type Progress interface {
	Add(n int) error
}

// Options configures an export run.
type Options struct {
	// OutputDir receives the workbooks; it is created if missing.
	OutputDir string
	// Participants restricts the export; empty exports everyone.
	Participants []uint32
	Progress     Progress
	Logger       *zap.Logger
}

// Result summarizes an export run.
type Result struct {
	Participants int
	Files        []string
	Skipped      []string
	Duration     time.Duration
}

// Run reads every participant from store and writes the reports. A
// participant whose data cannot be read is skipped and reported; write
// failures abort the run.
func Run(ctx context.Context, store storage.ObjectStorage, opts Options) (*Result, error) {
	start := time.Now()
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create report directory: %w", err)
	}

	ids := opts.Participants
	if len(ids) == 0 {
		var err error
		if ids, err = ListParticipants(ctx, store); err != nil {
			return nil, fmt.Errorf("failed to list participants: %w", err)
		}
	}

	res := &Result{}
	var loaded []*Participant
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		p, err := Load(ctx, store, id)
		if err != nil {
			logger.Warn("skipping participant", zap.Uint32("participant", id), zap.Error(err))
			res.Skipped = append(res.Skipped, fmt.Sprintf("%d: %v", id, err))
		} else {
			out := filepath.Join(opts.OutputDir, ParticipantFile(id))
			if err := WriteParticipant(p, out); err != nil {
				return nil, fmt.Errorf("participant %d: %w", id, err)
			}
			res.Files = append(res.Files, out)
			loaded = append(loaded, p)
		}

		if opts.Progress != nil {
			opts.Progress.Add(1)
		}
	}

	for _, r := range []struct {
		name  string
		write func([]*Participant, string) error
	}{
		{AllDecisionsFile, WriteAllDecisions},
		{DDMFile, WriteDDM},
	} {
		out := filepath.Join(opts.OutputDir, r.name)
		if err := r.write(loaded, out); err != nil {
			return nil, fmt.Errorf("%s: %w", r.name, err)
		}
		res.Files = append(res.Files, out)
	}

	res.Participants = len(loaded)
	res.Duration = time.Since(start)
	logger.Info("export complete",
		zap.Int("participants", res.Participants),
		zap.Int("skipped", len(res.Skipped)),
		zap.Duration("duration", res.Duration))
	return res, nil
}
