// Package store holds the loaded manifest tree with its expansion and
// selection state as immutable snapshots.
package store

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/docshelf/docshelf/internal/fetch"
	"github.com/docshelf/docshelf/internal/logging"
	"github.com/docshelf/docshelf/internal/metrics"
	"github.com/docshelf/docshelf/pkg/manifest"
)

// MsgLoadFailed is shown when the manifest cannot be loaded.
const MsgLoadFailed = "Failed to load the instructions list."

// Snapshot is one immutable view of the tree state. Callers must not
// modify it or the nodes it references.
type Snapshot struct {
	Nodes    []*manifest.Node
	Expanded map[string]bool
	Selected *manifest.Node
	Loading  bool
	Err      string
}

// IsExpanded reports whether the folder at path is expanded.
func (s *Snapshot) IsExpanded(path string) bool { return s.Expanded[path] }

// HasItems reports whether the tree has any nodes.
func (s *Snapshot) HasItems() bool { return len(s.Nodes) > 0 }

// SelectedDownloadURL returns the asset URL of the selected file, or "".
func (s *Snapshot) SelectedDownloadURL() string {
	if !s.Selected.IsFile() {
		return ""
	}
	return manifest.ResolveAssetPath(s.Selected.Path)
}

// LoadResult tells the caller what happened to the previous selection.
type LoadResult struct {
	// Reselected is the node matching the previous selection's path, or nil.
	Reselected *manifest.Node
	Err        error
}

// Store owns the current Snapshot. Readers never lock; writers serialize.
type Store struct {
	fetcher fetch.Fetcher
	url     string

	mu   sync.Mutex
	snap atomic.Pointer[Snapshot]
	log  *zap.Logger
}

// New creates a store that loads the manifest from manifest.URL.
func New(f fetch.Fetcher) *Store {
	s := &Store{
		fetcher: f,
		url:     manifest.URL,
		log:     logging.Named("store"),
	}
	s.snap.Store(&Snapshot{Nodes: []*manifest.Node{}, Expanded: map[string]bool{}})
	return s
}

// Snapshot returns the current state.
func (s *Store) Snapshot() *Snapshot {
	return s.snap.Load()
}

// update applies fn to a copy of the current snapshot and publishes it.
func (s *Store) update(fn func(next *Snapshot)) *Snapshot {
	next, _ := s.updateIf(func(next *Snapshot) bool {
		fn(next)
		return true
	})
	return next
}

// updateIf publishes the copy only when fn returns true.
func (s *Store) updateIf(fn func(next *Snapshot) bool) (*Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.snap.Load()
	next := *cur
	next.Expanded = maps.Clone(cur.Expanded)
	if !fn(&next) {
		return cur, false
	}
	s.snap.Store(&next)
	return &next, true
}

// Load fetches and normalizes the manifest. On success the previous
// selection is re-resolved by path; on failure the tree is emptied and the
// selection cleared.
func (s *Store) Load(ctx context.Context) LoadResult {
	s.update(func(next *Snapshot) {
		next.Loading = true
		next.Err = ""
	})

	nodes, err := s.fetchManifest(ctx)
	if err != nil {
		s.log.Error("manifest load failed", zap.String("url", s.url), zap.Error(err))
		metrics.RecordManifestLoad(false)
		s.update(func(next *Snapshot) {
			next.Nodes = []*manifest.Node{}
			next.Expanded = map[string]bool{}
			next.Selected = nil
			next.Loading = false
			next.Err = MsgLoadFailed
		})
		return LoadResult{Err: err}
	}

	metrics.RecordManifestLoad(true)
	metrics.SetManifestNodes(manifest.CountNodes(nodes))

	// The selection is read at commit time so a file picked while the
	// manifest was in flight survives the reload.
	var reselected *manifest.Node
	s.update(func(next *Snapshot) {
		if next.Selected != nil {
			if n := manifest.FindByPath(nodes, next.Selected.Path); n.IsFile() {
				reselected = n
			}
		}
		next.Nodes = nodes
		next.Expanded = InitialExpansion(nodes)
		next.Selected = reselected
		next.Loading = false
		next.Err = ""
	})
	return LoadResult{Reselected: reselected}
}

func (s *Store) fetchManifest(ctx context.Context) ([]*manifest.Node, error) {
	data, err := s.fetcher.Fetch(ctx, s.url)
	if err != nil {
		return nil, err
	}
	nodes, err := manifest.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return manifest.Normalize(nodes), nil
}

// InitialExpansion expands top-level folders only.
func InitialExpansion(nodes []*manifest.Node) map[string]bool {
	expanded := make(map[string]bool)
	for _, n := range nodes {
		if n.IsFolder() {
			expanded[n.Path] = true
		}
	}
	return expanded
}

// Toggle flips the expansion of the folder at path. Descendants keep their
// own state. It returns false when path is not a folder.
func (s *Store) Toggle(path string) bool {
	_, ok := s.updateIf(func(next *Snapshot) bool {
		if !manifest.FindByPath(next.Nodes, path).IsFolder() {
			return false
		}
		if next.Expanded[path] {
			delete(next.Expanded, path)
		} else {
			next.Expanded[path] = true
		}
		return true
	})
	return ok
}

// Select makes the file at path the selection. Folders and unknown paths
// are rejected with nil.
func (s *Store) Select(path string) *manifest.Node {
	snap, ok := s.updateIf(func(next *Snapshot) bool {
		n := manifest.FindByPath(next.Nodes, path)
		if !n.IsFile() {
			return false
		}
		next.Selected = n
		return true
	})
	if !ok {
		return nil
	}
	return snap.Selected
}

// ClearSelection drops the selection.
func (s *Store) ClearSelection() {
	s.update(func(next *Snapshot) { next.Selected = nil })
}

// Find resolves path in the current tree.
func (s *Store) Find(path string) *manifest.Node {
	return manifest.FindByPath(s.Snapshot().Nodes, path)
}
