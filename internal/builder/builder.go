// Package builder scans the document library and writes the manifest.
package builder

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/docshelf/docshelf/internal/logging"
	"github.com/docshelf/docshelf/internal/metrics"
	"github.com/docshelf/docshelf/pkg/manifest"
)

// Config holds builder settings.
type Config struct {
	// AssetsDir maps to the "assets" path segment.
	AssetsDir string
	// Converter handles legacy .doc files; nil disables conversion.
	Converter Converter
	// LockTimeout bounds the wait for another build to finish (default 30s).
	LockTimeout time.Duration
}

// Result describes one completed build.
type Result struct {
	Nodes  []*manifest.Node
	Count  int
	Output string
}

// Builder produces the manifest for <AssetsDir>/instructions.
type Builder struct {
	assetsDir   string
	root        string
	output      string
	converter   Converter
	lockTimeout time.Duration
	log         *zap.Logger
}

// New creates a builder.
func New(cfg Config) *Builder {
	if cfg.LockTimeout == 0 {
		cfg.LockTimeout = 30 * time.Second
	}
	root := filepath.Join(cfg.AssetsDir, manifest.LibraryDir)
	return &Builder{
		assetsDir:   cfg.AssetsDir,
		root:        root,
		output:      filepath.Join(root, manifest.FileName),
		converter:   cfg.Converter,
		lockTimeout: cfg.LockTimeout,
		log:         logging.Named("builder"),
	}
}

// Root returns the scanned library directory.
func (b *Builder) Root() string { return b.root }

// Output returns the manifest path.
func (b *Builder) Output() string { return b.output }

// IsHidden reports whether a directory entry is hidden or temporary.
func IsHidden(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~")
}

// Build scans the library and writes the manifest. Only a failure to
// create the root, lock or write the manifest is returned as an error.
func (b *Builder) Build(ctx context.Context) (Result, error) {
	start := time.Now()

	if err := os.MkdirAll(b.root, 0755); err != nil {
		return Result{}, fmt.Errorf("create library root %s: %w", b.root, err)
	}

	lock := flock.New(filepath.Join(b.root, ".manifest.lock"))
	lockCtx, cancel := context.WithTimeout(ctx, b.lockTimeout)
	defer cancel()
	locked, err := lock.TryLockContext(lockCtx, 50*time.Millisecond)
	if err != nil {
		return Result{}, fmt.Errorf("lock manifest: %w", err)
	}
	if !locked {
		return Result{}, fmt.Errorf("lock manifest: another build is running")
	}
	defer lock.Unlock()

	nodes := b.scanDir(ctx, b.root, manifest.ChildPath(manifest.AssetRoot, manifest.LibraryDir))

	if err := manifest.WriteFile(b.output, nodes); err != nil {
		return Result{}, fmt.Errorf("write manifest: %w", err)
	}

	count := manifest.CountNodes(nodes)
	metrics.SetManifestNodes(count)
	metrics.RecordManifestBuild(time.Since(start))
	b.log.Info("manifest generated",
		zap.Int("nodes", count),
		zap.String("output", b.output),
		zap.Duration("elapsed", time.Since(start)))

	return Result{Nodes: nodes, Count: count, Output: b.output}, nil
}

// scanDir lists one directory. Unreadable or missing directories yield no
// entries. Legacy documents are converted before listing so the generated
// .docx files show up in the same run.
func (b *Builder) scanDir(ctx context.Context, absDir, virtualDir string) []*manifest.Node {
	entries, err := os.ReadDir(absDir)
	if err != nil {
		if !os.IsNotExist(err) {
			b.log.Warn("read dir failed", zap.String("dir", absDir), zap.Error(err))
		}
		return []*manifest.Node{}
	}

	converted := b.convertLegacy(ctx, absDir, entries)
	if len(converted) > 0 {
		if fresh, err := os.ReadDir(absDir); err == nil {
			entries = fresh
		}
	}

	folders := make([]*manifest.Node, 0)
	files := make([]*manifest.Node, 0)

	for _, entry := range entries {
		name := entry.Name()
		if IsHidden(name) {
			continue
		}

		abs := filepath.Join(absDir, name)
		if abs == b.output {
			continue
		}
		virtual := manifest.ChildPath(virtualDir, name)

		if entry.IsDir() {
			folders = append(folders, &manifest.Node{
				Name:     name,
				Type:     manifest.TypeFolder,
				Path:     virtual,
				Children: b.scanDir(ctx, abs, virtual),
			})
			continue
		}

		if !entry.Type().IsRegular() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			b.log.Debug("stat failed", zap.String("file", abs), zap.Error(err))
			continue
		}
		files = append(files, b.fileNode(name, virtual, info, converted[name]))
	}

	manifest.SortSiblings(folders)
	manifest.SortSiblings(files)
	return append(folders, files...)
}

func (b *Builder) fileNode(name, virtual string, info fs.FileInfo, convertedPath string) *manifest.Node {
	ext := manifest.ExtensionOf(name)
	modified := info.ModTime().UTC()
	return &manifest.Node{
		Name:          name,
		Type:          manifest.TypeFile,
		Path:          virtual,
		Ext:           ext,
		Size:          info.Size(),
		ModifiedAt:    &modified,
		Mime:          DetectMIME(ext),
		Readable:      IsReadable(ext),
		ConvertedPath: convertedPath,
	}
}

// convertLegacy converts every visible .doc file in a directory and returns
// the virtual path of each result keyed by source name. A .docx that is
// already newer than its source is reused.
func (b *Builder) convertLegacy(ctx context.Context, absDir string, entries []fs.DirEntry) map[string]string {
	if b.converter == nil {
		return nil
	}

	var converted map[string]string
	for _, entry := range entries {
		name := entry.Name()
		if IsHidden(name) || !entry.Type().IsRegular() || manifest.ExtensionOf(name) != "doc" {
			continue
		}

		src := filepath.Join(absDir, name)
		out := ConvertedName(src)
		if !upToDate(src, out) {
			var err error
			out, err = b.converter.Convert(ctx, src)
			metrics.RecordConversion(err == nil)
			if err != nil {
				b.log.Debug("legacy conversion failed", zap.String("file", src), zap.Error(err))
				continue
			}
		}

		virtual, err := b.virtualPath(out)
		if err != nil {
			b.log.Debug("converted file outside assets", zap.String("file", out), zap.Error(err))
			continue
		}
		if converted == nil {
			converted = make(map[string]string)
		}
		converted[name] = virtual
	}
	return converted
}

// virtualPath maps an absolute file below the assets directory to its
// manifest path.
func (b *Builder) virtualPath(abs string) (string, error) {
	rel, err := filepath.Rel(b.assetsDir, abs)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%s is outside %s", abs, b.assetsDir)
	}
	return manifest.ChildPath(manifest.AssetRoot, filepath.ToSlash(rel)), nil
}
