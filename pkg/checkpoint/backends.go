package checkpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dialstudy/dialstudy/pkg/storage"
)

// FileBackend stores one JSON file per session in a directory.
type FileBackend struct {
	dir string
}

// NewFileBackend creates a backend using dir, creating it if needed.
func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	return &FileBackend{dir: dir}, nil
}

func (b *FileBackend) path(id string) string {
	return filepath.Join(b.dir, id+".checkpoint")
}

// Save writes the checkpoint to a temp file first, then renames it.
func (b *FileBackend) Save(_ context.Context, cp *Checkpoint) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return err
	}

	tempPath := b.path(cp.ID) + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tempPath, b.path(cp.ID))
}

// Load reads a checkpoint from disk.
func (b *FileBackend) Load(_ context.Context, id string) (*Checkpoint, error) {
	data, err := os.ReadFile(b.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

// Delete removes a checkpoint.
func (b *FileBackend) Delete(_ context.Context, id string) error {
	err := os.Remove(b.path(id))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// ListIncomplete returns all incomplete checkpoints. Unreadable files are
// skipped.
func (b *FileBackend) ListIncomplete(_ context.Context) ([]*Checkpoint, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, err
	}

	var checkpoints []*Checkpoint
	for _, entry := range entries {
		if filepath.Ext(entry.Name()) != ".checkpoint" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(b.dir, entry.Name()))
		if err != nil {
			continue
		}

		var cp Checkpoint
		if err := json.Unmarshal(data, &cp); err != nil {
			continue
		}

		if !cp.Complete() {
			checkpoints = append(checkpoints, &cp)
		}
	}

	sortByStart(checkpoints)
	return checkpoints, nil
}

// Cleanup removes completed checkpoints older than maxAge.
func (b *FileBackend) Cleanup(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0

	for _, entry := range entries {
		if filepath.Ext(entry.Name()) != ".checkpoint" {
			continue
		}

		id := strings.TrimSuffix(entry.Name(), ".checkpoint")
		cp, err := b.Load(context.Background(), id)
		if err != nil || !cp.Complete() {
			continue
		}
		if cp.UpdatedAt.Before(cutoff) {
			if err := os.Remove(b.path(id)); err == nil {
				removed++
			}
		}
	}

	return removed, nil
}

// Name returns "file".
func (b *FileBackend) Name() string {
	return "file"
}

// StoreBackend keeps checkpoints as JSON objects in an object store, so
// sessions can be tracked next to mirrored datasets.
type StoreBackend struct {
	store  storage.ObjectStorage
	prefix string
}

// NewStoreBackend creates a backend writing under prefix.
func NewStoreBackend(store storage.ObjectStorage, prefix string) *StoreBackend {
	return &StoreBackend{store: store, prefix: prefix}
}

func (b *StoreBackend) key(id string) string {
	return b.prefix + id + ".json"
}

// Save uploads the checkpoint.
func (b *StoreBackend) Save(ctx context.Context, cp *Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	return b.store.Put(ctx, b.key(cp.ID), bytes.NewReader(data), storage.PutOptions{
		ContentType: "application/json",
	})
}

// Load downloads a checkpoint.
func (b *StoreBackend) Load(ctx context.Context, id string) (*Checkpoint, error) {
	r, err := b.store.Get(ctx, b.key(id))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}

// Delete is unsupported by the object store interface; completed sessions
// are overwritten instead.
func (b *StoreBackend) Delete(context.Context, string) error {
	return nil
}

// ListIncomplete lists and loads every checkpoint under the prefix.
func (b *StoreBackend) ListIncomplete(ctx context.Context) ([]*Checkpoint, error) {
	objects, err := b.store.List(ctx, b.prefix, storage.ListOptions{Suffix: ".json"})
	if err != nil {
		return nil, err
	}

	var checkpoints []*Checkpoint
	for _, o := range objects {
		id := strings.TrimSuffix(strings.TrimPrefix(o.Path, b.prefix), ".json")
		cp, err := b.Load(ctx, id)
		if err != nil {
			continue
		}
		if !cp.Complete() {
			checkpoints = append(checkpoints, cp)
		}
	}
	sortByStart(checkpoints)
	return checkpoints, nil
}

// Name returns the store scheme.
func (b *StoreBackend) Name() string {
	return "store:" + b.store.Scheme()
}

// MultiBackend wraps two backends for redundancy.
type MultiBackend struct {
	primary   Backend
	secondary Backend
}

// NewMultiBackend creates a backend that writes to both primary and secondary.
func NewMultiBackend(primary, secondary Backend) *MultiBackend {
	return &MultiBackend{
		primary:   primary,
		secondary: secondary,
	}
}

// Save writes to both backends (primary first).
func (m *MultiBackend) Save(ctx context.Context, cp *Checkpoint) error {
	if err := m.primary.Save(ctx, cp); err != nil {
		return err
	}
	// Secondary is best-effort
	_ = m.secondary.Save(ctx, cp)
	return nil
}

// Load reads from primary, falls back to secondary.
func (m *MultiBackend) Load(ctx context.Context, id string) (*Checkpoint, error) {
	cp, err := m.primary.Load(ctx, id)
	if err == nil {
		return cp, nil
	}
	return m.secondary.Load(ctx, id)
}

// Delete removes from both backends.
func (m *MultiBackend) Delete(ctx context.Context, id string) error {
	err1 := m.primary.Delete(ctx, id)
	err2 := m.secondary.Delete(ctx, id)
	if err1 != nil {
		return err1
	}
	return err2
}

// ListIncomplete returns incomplete checkpoints from primary.
func (m *MultiBackend) ListIncomplete(ctx context.Context) ([]*Checkpoint, error) {
	return m.primary.ListIncomplete(ctx)
}

// Name returns the combined backend names.
func (m *MultiBackend) Name() string {
	return m.primary.Name() + "+" + m.secondary.Name()
}

var (
	_ Backend = (*FileBackend)(nil)
	_ Backend = (*StoreBackend)(nil)
	_ Backend = (*MultiBackend)(nil)
	_ Backend = (*MemoryBackend)(nil)
)
