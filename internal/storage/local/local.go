// Package local serves library assets from the public directory on disk,
// the same tree the manifest builder scans.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/goccy/go-json"
)

// ErrNoPublicDir is returned when the configured public directory is unset.
var ErrNoPublicDir = errors.New("public directory is required")

// Config points the backend at a public directory. Create makes the
// directory when it is missing, which a fresh install needs before the
// first manifest build.
type Config struct {
	PublicDir string `json:"public_dir"`
	Create    bool   `json:"create"`
}

// Backend reads asset keys such as "assets/instructions/a.txt" relative to
// the public directory.
type Backend struct {
	dir string
}

// New validates cfg and returns a backend rooted at cfg.PublicDir.
func New(cfg Config) (*Backend, error) {
	if cfg.PublicDir == "" {
		return nil, ErrNoPublicDir
	}

	info, err := os.Stat(cfg.PublicDir)
	switch {
	case errors.Is(err, fs.ErrNotExist) && cfg.Create:
		if err := os.MkdirAll(cfg.PublicDir, 0755); err != nil {
			return nil, fmt.Errorf("create public dir %s: %w", cfg.PublicDir, err)
		}
	case err != nil:
		return nil, fmt.Errorf("public dir %s: %w", cfg.PublicDir, err)
	case !info.IsDir():
		return nil, fmt.Errorf("public dir %s: not a directory", cfg.PublicDir)
	}
	return &Backend{dir: cfg.PublicDir}, nil
}

// NewFromJSON builds a backend from a raw storage config block.
func NewFromJSON(raw json.RawMessage) (*Backend, error) {
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse local storage config: %w", err)
	}
	return New(cfg)
}

// file maps an asset key below the public directory. Cleaning against "/"
// drops ".." segments, so keys cannot climb out of it.
func (b *Backend) file(key string) string {
	return filepath.Join(b.dir, filepath.FromSlash(path.Clean("/"+key)))
}

// GetObject opens the asset at key. A zero length reads to the end; the
// returned size is the number of bytes the reader yields.
func (b *Backend) GetObject(_ context.Context, key string, offset, length int64) (io.ReadCloser, int64, error) {
	f, err := os.Open(b.file(key))
	if err != nil {
		return nil, 0, fmt.Errorf("asset %s: %w", key, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("asset %s: %w", key, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, 0, fmt.Errorf("asset %s is a folder: %w", key, fs.ErrNotExist)
	}

	if offset == 0 && length == 0 {
		return f, info.Size(), nil
	}

	remaining := max(info.Size()-offset, 0)
	if length <= 0 || length > remaining {
		length = remaining
	}
	return assetReader{
		Reader: io.NewSectionReader(f, min(offset, info.Size()), length),
		Closer: f,
	}, length, nil
}

// ObjectExists reports whether key names a regular file.
func (b *Backend) ObjectExists(_ context.Context, key string) (bool, error) {
	info, err := os.Stat(b.file(key))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("asset %s: %w", key, err)
	}
	return info.Mode().IsRegular(), nil
}

func (b *Backend) Type() string { return "local" }

func (b *Backend) Close() error { return nil }

type assetReader struct {
	io.Reader
	io.Closer
}
