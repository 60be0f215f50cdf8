// Package storage provides the object stores datasets are written to.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned by Get and Head for missing objects.
var ErrNotFound = errors.New("object not found")

// ObjectStorage provides object storage operations for data files.
type ObjectStorage interface {
	Put(ctx context.Context, path string, data io.Reader, opts PutOptions) error
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	Exists(ctx context.Context, path string) (bool, error)
	Head(ctx context.Context, path string) (ObjectInfo, error)
	List(ctx context.Context, prefix string, opts ListOptions) ([]ObjectInfo, error)

	// Scheme returns the storage scheme (e.g., "file", "s3", "memory").
	Scheme() string
}

// ObjectInfo contains metadata about a stored object.
type ObjectInfo struct {
	Path         string
	Size         int64
	LastModified time.Time
	ETag         string
	ContentType  string
	Metadata     map[string]string
}

// PutOptions configures write operations.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
	// If set, the write will fail if the object already exists.
	IfNotExists bool
}

// ListOptions configures listing operations.
type ListOptions struct {
	// MaxKeys limits the number of results returned.
	MaxKeys int
	// Suffix keeps only paths ending with it, e.g. ".csv".
	Suffix string
}
