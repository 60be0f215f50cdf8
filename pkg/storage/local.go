package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// LocalStorage implements ObjectStorage for the local filesystem. Paths use
// forward slashes regardless of platform.
type LocalStorage struct {
	root string
}

// NewLocalStorage creates a new local filesystem storage.
func NewLocalStorage(root string) (*LocalStorage, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root path: %w", err)
	}

	if err := os.MkdirAll(absRoot, 0755); err != nil {
		return nil, fmt.Errorf("failed to create root directory: %w", err)
	}

	return &LocalStorage{root: absRoot}, nil
}

// Scheme returns "file".
func (s *LocalStorage) Scheme() string {
	return "file"
}

// Root returns the absolute root directory.
func (s *LocalStorage) Root() string {
	return s.root
}

// Put writes data to a path. The file is written to a temporary name and
// renamed, so readers never see a partial object.
func (s *LocalStorage) Put(ctx context.Context, path string, data io.Reader, opts PutOptions) error {
	fullPath := s.fullPath(path)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if opts.IfNotExists {
		if _, err := os.Stat(fullPath); err == nil {
			return fmt.Errorf("object already exists: %s", path)
		}
	}

	tmpPath := fullPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	if _, err := io.Copy(f, data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close file: %w", err)
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}

// Get returns a reader for the object.
func (s *LocalStorage) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	f, err := os.Open(s.fullPath(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return f, nil
}

// Exists checks if an object exists.
func (s *LocalStorage) Exists(ctx context.Context, path string) (bool, error) {
	_, err := os.Stat(s.fullPath(path))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Head returns object metadata.
func (s *LocalStorage) Head(ctx context.Context, path string) (ObjectInfo, error) {
	info, err := os.Stat(s.fullPath(path))
	if err != nil {
		if os.IsNotExist(err) {
			return ObjectInfo{}, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return ObjectInfo{}, fmt.Errorf("failed to stat file: %w", err)
	}

	return ObjectInfo{
		Path:         path,
		Size:         info.Size(),
		LastModified: info.ModTime(),
	}, nil
}

// List lists regular files under a prefix, sorted by path.
func (s *LocalStorage) List(ctx context.Context, prefix string, opts ListOptions) ([]ObjectInfo, error) {
	var results []ObjectInfo

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // Skip unreadable entries
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, _ := filepath.Rel(s.root, path)
		rel = filepath.ToSlash(rel)
		if strings.HasSuffix(rel, ".tmp") {
			return nil
		}
		if !strings.HasPrefix(rel, prefix) || !strings.HasSuffix(rel, opts.Suffix) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		results = append(results, ObjectInfo{
			Path:         rel,
			Size:         info.Size(),
			LastModified: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Path < results[j].Path
	})
	if opts.MaxKeys > 0 && len(results) > opts.MaxKeys {
		results = results[:opts.MaxKeys]
	}
	return results, nil
}

func (s *LocalStorage) fullPath(path string) string {
	return filepath.Join(s.root, filepath.FromSlash(path))
}

// MemoryStorage implements ObjectStorage in memory (for testing).
type MemoryStorage struct {
	mu      sync.RWMutex
	objects map[string][]byte
	meta    map[string]ObjectInfo

	// FailPut, when set, is returned by every Put.
	FailPut error
}

// NewMemoryStorage creates a new in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		objects: make(map[string][]byte),
		meta:    make(map[string]ObjectInfo),
	}
}

// Scheme returns "memory".
func (s *MemoryStorage) Scheme() string {
	return "memory"
}

// Put stores data in memory.
func (s *MemoryStorage) Put(ctx context.Context, path string, data io.Reader, opts PutOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailPut != nil {
		return s.FailPut
	}
	if opts.IfNotExists {
		if _, ok := s.objects[path]; ok {
			return fmt.Errorf("object already exists: %s", path)
		}
	}

	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}

	s.objects[path] = b
	s.meta[path] = ObjectInfo{
		Path:         path,
		Size:         int64(len(b)),
		LastModified: time.Now(),
		ContentType:  opts.ContentType,
		Metadata:     opts.Metadata,
	}
	return nil
}

// Get returns a reader for the object.
func (s *MemoryStorage) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.objects[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Bytes returns a copy of the object's content, nil if missing.
func (s *MemoryStorage) Bytes(path string) []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.objects[path]
	if !ok {
		return nil
	}
	return append([]byte(nil), data...)
}

// Exists checks if an object exists.
func (s *MemoryStorage) Exists(ctx context.Context, path string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[path]
	return ok, nil
}

// Head returns object metadata.
func (s *MemoryStorage) Head(ctx context.Context, path string) (ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.meta[path]
	if !ok {
		return ObjectInfo{}, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return info, nil
}

// List lists objects with a prefix.
func (s *MemoryStorage) List(ctx context.Context, prefix string, opts ListOptions) ([]ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []ObjectInfo
	for path, info := range s.meta {
		if strings.HasPrefix(path, prefix) && strings.HasSuffix(path, opts.Suffix) {
			results = append(results, info)
		}
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Path < results[j].Path
	})
	if opts.MaxKeys > 0 && len(results) > opts.MaxKeys {
		results = results[:opts.MaxKeys]
	}
	return results, nil
}

// Verify interface compliance
var (
	_ ObjectStorage = (*LocalStorage)(nil)
	_ ObjectStorage = (*MemoryStorage)(nil)
)
