package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// Open returns the object store a location refers to. Plain paths and
// file:// URLs open a LocalStorage rooted there; s3://bucket/prefix opens
// an S3Storage using the default AWS credential chain.
func Open(ctx context.Context, location string) (ObjectStorage, error) {
	scheme, bucket, key := ParsePath(location)

	switch scheme {
	case "file":
		return NewLocalStorage(key)
	case "s3":
		if bucket == "" {
			return nil, fmt.Errorf("s3 location %q has no bucket", location)
		}
		cfg := DefaultS3Config(bucket, "")
		cfg.Prefix = key
		return NewS3Storage(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported storage scheme: %s", scheme)
	}
}

// ParsePath splits a location into scheme, bucket and key. Locations
// without a scheme, or with a one-letter Windows drive scheme, are local.
func ParsePath(location string) (scheme, bucket, key string) {
	u, err := url.Parse(location)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		return "file", "", location
	}
	if u.Scheme == "file" {
		return "file", "", u.Path
	}
	return u.Scheme, u.Host, strings.TrimPrefix(u.Path, "/")
}
