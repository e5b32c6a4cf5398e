// Package storage defines the Backend interface the server reads library
// assets through.
package storage

import (
	"context"
	"io"
)

// Backend is the interface for asset storage backends.
// Missing objects are reported with errors wrapping fs.ErrNotExist.
type Backend interface {
	// GetObject retrieves an object by key with optional range support.
	// If offset=0 and length=0, the entire object is returned.
	GetObject(ctx context.Context, key string, offset, length int64) (io.ReadCloser, int64, error)

	// ObjectExists checks if an object exists at the given key.
	ObjectExists(ctx context.Context, key string) (bool, error)

	// Type returns the backend type identifier ("local", "s3").
	Type() string

	// Close releases any resources held by the backend.
	Close() error
}

// ReadAll fetches a whole object.
func ReadAll(ctx context.Context, b Backend, key string) ([]byte, error) {
	rc, _, err := b.GetObject(ctx, key, 0, 0)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
