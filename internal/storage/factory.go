package storage

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/docshelf/docshelf/internal/config"
	"github.com/docshelf/docshelf/internal/storage/local"
	s3backend "github.com/docshelf/docshelf/internal/storage/s3"
)

// NewBackendFromConfig creates a Backend from a backend type string and JSON config.
func NewBackendFromConfig(ctx context.Context, backendType string, raw json.RawMessage) (Backend, error) {
	switch backendType {
	case "s3":
		return s3backend.NewBackendFromJSON(ctx, raw)
	case "local":
		return local.NewFromJSON(raw)
	default:
		return nil, fmt.Errorf("unknown backend type: %s", backendType)
	}
}

// New creates the backend selected by cfg. The local backend is rooted at
// the public directory so object keys equal asset paths.
func New(ctx context.Context, cfg *config.Config) (Backend, error) {
	switch cfg.StorageBackend {
	case "s3":
		return s3backend.NewBackend(ctx, s3backend.BackendConfig{
			Endpoint:  cfg.S3Endpoint,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Region:    cfg.S3Region,
			UseSSL:    cfg.S3UseSSL,
		})
	case "local", "":
		return local.New(local.Config{PublicDir: cfg.PublicDir, Create: true})
	default:
		return nil, fmt.Errorf("unknown backend type: %s", cfg.StorageBackend)
	}
}
