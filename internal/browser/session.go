// Package browser runs one library browsing session: the tree store, the
// preview pipeline and search, with results fenced by request tickets.
package browser

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/docshelf/docshelf/internal/events"
	"github.com/docshelf/docshelf/internal/fetch"
	"github.com/docshelf/docshelf/internal/logging"
	"github.com/docshelf/docshelf/internal/metrics"
	"github.com/docshelf/docshelf/internal/preview"
	"github.com/docshelf/docshelf/internal/search"
	"github.com/docshelf/docshelf/internal/store"
	"github.com/docshelf/docshelf/pkg/manifest"
)

var (
	// ErrNotFound is returned for paths missing from the current tree.
	ErrNotFound = errors.New("path not found")
	// ErrNotFile is returned when a folder is selected.
	ErrNotFile = errors.New("path is not a file")
	// ErrNotFolder is returned when a file is toggled.
	ErrNotFolder = errors.New("path is not a folder")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session closed")
)

// Options configures a Session.
type Options struct {
	// PublicOrigin is passed to the preview resolver for absolute URLs.
	PublicOrigin string
	// Events receives state change notifications when set.
	Events *events.Broadcaster
}

// SearchState is the published search panel state.
type SearchState struct {
	Query   string         `json:"query"`
	Loading bool           `json:"loading"`
	Results search.Results `json:"results"`
}

// Active reports whether a non-blank query is set.
func (s SearchState) Active() bool { return strings.TrimSpace(s.Query) != "" }

// View is everything a client renders at once.
type View struct {
	Library *store.Snapshot
	Preview preview.State
	Search  SearchState
}

// Session owns the state of one browsing session.
type Session struct {
	store    *store.Store
	resolver *preview.Resolver
	engine   *search.Engine
	objects  *preview.ObjectStore
	events   *events.Broadcaster

	mu            sync.Mutex
	previewTicket uint64
	previewState  preview.State
	previewPath   string
	searchTicket  uint64
	searchState   SearchState
	closed        bool

	log *zap.Logger
}

// New creates a session that reads the manifest and assets through f.
func New(f fetch.Fetcher, opts Options) *Session {
	objects := preview.NewObjectStore()
	return &Session{
		store:        store.New(f),
		resolver:     preview.NewResolver(f, objects, preview.Options{PublicOrigin: opts.PublicOrigin}),
		engine:       search.NewEngine(f),
		objects:      objects,
		events:       opts.Events,
		previewState: preview.Idle(),
		log:          logging.Named("browser"),
	}
}

// Objects returns the store holding image previews.
func (s *Session) Objects() *preview.ObjectStore { return s.objects }

// Library returns the current tree snapshot.
func (s *Session) Library() *store.Snapshot { return s.store.Snapshot() }

// Preview returns the active preview state.
func (s *Session) Preview() preview.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.previewState
}

// SearchState returns the published search state.
func (s *Session) SearchState() SearchState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.searchState
}

// View returns library, preview and search state together.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return View{
		Library: s.store.Snapshot(),
		Preview: s.previewState,
		Search:  s.searchState,
	}
}

// Load fetches the manifest. A previously selected file that still exists
// is previewed again; otherwise the preview goes idle. An active query is
// searched again over the new tree.
func (s *Session) Load(ctx context.Context) error {
	if s.isClosed() {
		return ErrClosed
	}
	res := s.store.Load(ctx)
	s.publish(events.Event{Type: events.EventLibrary})

	if res.Reselected != nil {
		s.runPreview(ctx, res.Reselected)
	} else {
		s.idle()
	}

	if q := s.SearchState(); q.Active() {
		s.Search(ctx, q.Query)
	}
	return res.Err
}

// Reload is Load triggered by the user.
func (s *Session) Reload(ctx context.Context) error {
	s.log.Debug("reloading library")
	return s.Load(ctx)
}

// Click applies click semantics: folders toggle, files are selected and
// previewed.
func (s *Session) Click(ctx context.Context, path string) error {
	n := s.store.Find(path)
	switch {
	case n.IsFolder():
		return s.Toggle(path)
	case n.IsFile():
		_, err := s.Select(ctx, path)
		return err
	default:
		return ErrNotFound
	}
}

// Toggle flips the expansion of one folder.
func (s *Session) Toggle(path string) error {
	if s.isClosed() {
		return ErrClosed
	}
	if !s.store.Toggle(path) {
		if s.store.Find(path) == nil {
			return ErrNotFound
		}
		return ErrNotFolder
	}
	s.publish(events.Event{Type: events.EventLibrary, Path: path})
	return nil
}

// Select makes path the selection and runs the preview pipeline. It
// returns the state committed for this request, or the newer state that
// superseded it.
func (s *Session) Select(ctx context.Context, path string) (preview.State, error) {
	if s.isClosed() {
		return preview.State{}, ErrClosed
	}
	n := s.store.Select(path)
	if n == nil {
		if s.store.Find(path) == nil {
			return preview.State{}, ErrNotFound
		}
		return preview.State{}, ErrNotFile
	}
	s.publish(events.Event{Type: events.EventLibrary, Path: path})
	return s.runPreview(ctx, n), nil
}

// ClearSelection drops the selection and returns the preview to idle.
func (s *Session) ClearSelection() {
	s.store.ClearSelection()
	s.publish(events.Event{Type: events.EventLibrary})
	s.idle()
}

func (s *Session) runPreview(ctx context.Context, n *manifest.Node) preview.State {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return preview.Idle()
	}
	s.previewTicket++
	ticket := s.previewTicket
	s.commitLocked(preview.Loading(), n.Path)
	s.mu.Unlock()
	s.publishPreview(n.Path, preview.KindLoading)

	state := s.resolver.Resolve(ctx, n)

	s.mu.Lock()
	if s.closed || ticket != s.previewTicket {
		current := s.previewState
		s.mu.Unlock()
		s.objects.Revoke(state.ObjectID)
		metrics.RecordPreviewDiscarded()
		s.log.Debug("stale preview discarded", zap.String("path", n.Path))
		return current
	}
	s.commitLocked(state, n.Path)
	s.mu.Unlock()
	s.publishPreview(n.Path, state.Kind)
	return state
}

func (s *Session) idle() {
	s.mu.Lock()
	s.previewTicket++
	s.commitLocked(preview.Idle(), "")
	s.mu.Unlock()
	s.publishPreview("", preview.KindIdle)
}

// commitLocked replaces the preview state, releasing the previous image
// object. s.mu must be held.
func (s *Session) commitLocked(state preview.State, path string) {
	if old := s.previewState.ObjectID; old != "" && old != state.ObjectID {
		s.objects.Revoke(old)
	}
	s.previewState = state
	s.previewPath = path
}

// HighlightedPreview returns the text preview as escaped HTML with the
// active query marked. It is "" for non-text previews.
func (s *Session) HighlightedPreview() string {
	s.mu.Lock()
	state, query := s.previewState, strings.TrimSpace(s.searchState.Query)
	s.mu.Unlock()

	if state.Kind != preview.KindText {
		return ""
	}
	if query == "" {
		return search.EscapeHTML(state.Content)
	}
	return search.Highlight(state.Content, query)
}

// Search runs query over the current tree. The loading state is published
// first; results are published only if no newer search started meanwhile.
// The returned state is whatever is current when the call ends.
func (s *Session) Search(ctx context.Context, query string) SearchState {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return SearchState{}
	}
	s.searchTicket++
	ticket := s.searchTicket
	blank := strings.TrimSpace(query) == ""
	s.searchState = SearchState{Query: query, Loading: !blank}
	s.mu.Unlock()
	s.publish(events.Event{Type: events.EventSearch, Query: query})

	res, ok := s.engine.Search(ctx, query, s.store.Snapshot().Nodes)

	s.mu.Lock()
	if !ok || ticket != s.searchTicket {
		current := s.searchState
		s.mu.Unlock()
		return current
	}
	s.searchState = SearchState{Query: query, Results: res}
	current := s.searchState
	s.mu.Unlock()
	s.publish(events.Event{Type: events.EventSearch, Query: query})
	return current
}

// Close releases the preview object and stops accepting work. In-flight
// results are discarded.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.previewTicket++
	s.commitLocked(preview.Idle(), "")
	s.searchTicket++
	s.searchState = SearchState{}
	s.mu.Unlock()
	s.log.Debug("session closed")
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) publishPreview(path string, kind preview.Kind) {
	s.publish(events.Event{Type: events.EventPreview, Path: path, Kind: string(kind)})
}

func (s *Session) publish(e events.Event) {
	if s.events == nil {
		return
	}
	s.events.Publish(e)
}
