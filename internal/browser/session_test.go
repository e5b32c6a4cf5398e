package browser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docshelf/docshelf/internal/events"
	"github.com/docshelf/docshelf/internal/fetch"
	"github.com/docshelf/docshelf/internal/preview"
	"github.com/docshelf/docshelf/pkg/manifest"
)

// libraryFetcher serves a manifest and assets from memory. URLs listed in
// gates block until their channel is closed.
type libraryFetcher struct {
	mu      sync.Mutex
	assets  map[string][]byte
	gates   map[string]chan struct{}
	started chan string
	calls   map[string]int
}

func newLibraryFetcher(manifestJSON string) *libraryFetcher {
	return &libraryFetcher{
		assets:  map[string][]byte{manifest.URL: []byte(manifestJSON)},
		gates:   map[string]chan struct{}{},
		started: make(chan string, 16),
		calls:   map[string]int{},
	}
}

func (f *libraryFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	f.calls[url]++
	gate := f.gates[url]
	f.mu.Unlock()

	if gate != nil {
		f.started <- url
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.assets[url]
	if !ok {
		return nil, fmt.Errorf("fetch %s: %w", url, fetch.ErrNotFound)
	}
	return data, nil
}

func (f *libraryFetcher) put(url string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assets[url] = data
}

func (f *libraryFetcher) gate(url string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[url] = ch
	return ch
}

func (f *libraryFetcher) count(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))))
	return buf.Bytes()
}

const libraryJSON = `[
  {"name": "Guides", "type": "folder", "path": "assets/instructions/Guides", "children": [
    {"name": "Nested", "type": "folder", "path": "assets/instructions/Guides/Nested", "children": []},
    {"name": "setup.txt", "type": "file", "path": "assets/instructions/Guides/setup.txt", "ext": "txt"}
  ]},
  {"name": "a.txt", "type": "file", "path": "assets/instructions/a.txt", "ext": "txt", "readable": true},
  {"name": "one.png", "type": "file", "path": "assets/instructions/one.png", "ext": "png", "mime": "image/png"},
  {"name": "two.png", "type": "file", "path": "assets/instructions/two.png", "ext": "png", "mime": "image/png"}
]`

func newSession(t *testing.T) (*Session, *libraryFetcher) {
	t.Helper()
	f := newLibraryFetcher(libraryJSON)
	f.put("/assets/instructions/a.txt", []byte("hello"))
	f.put("/assets/instructions/Guides/setup.txt", []byte("Install the printer driver first."))
	f.put("/assets/instructions/one.png", pngBytes(t))
	f.put("/assets/instructions/two.png", pngBytes(t))

	s := New(f, Options{})
	t.Cleanup(s.Close)
	require.NoError(t, s.Load(context.Background()))
	return s, f
}

func TestSelectTextFile(t *testing.T) {
	s, f := newSession(t)

	state, err := s.Select(context.Background(), "assets/instructions/a.txt")
	require.NoError(t, err)
	assert.Equal(t, preview.State{Kind: preview.KindText, Content: "hello"}, state)
	assert.Equal(t, state, s.Preview())
	assert.Equal(t, 1, f.count("/assets/instructions/a.txt"))
	assert.Equal(t, "assets/instructions/a.txt", s.Library().Selected.Path)
}

func TestClickSemantics(t *testing.T) {
	s, _ := newSession(t)
	ctx := context.Background()

	require.NoError(t, s.Click(ctx, "assets/instructions/Guides"))
	assert.False(t, s.Library().IsExpanded("assets/instructions/Guides"))
	assert.Equal(t, preview.KindIdle, s.Preview().Kind)
	assert.Nil(t, s.Library().Selected)

	require.NoError(t, s.Click(ctx, "assets/instructions/Guides/setup.txt"))
	assert.Equal(t, preview.KindText, s.Preview().Kind)

	assert.ErrorIs(t, s.Click(ctx, "assets/instructions/missing"), ErrNotFound)

	_, err := s.Select(ctx, "assets/instructions/Guides")
	assert.ErrorIs(t, err, ErrNotFile)
	assert.ErrorIs(t, s.Toggle("assets/instructions/a.txt"), ErrNotFolder)
	assert.ErrorIs(t, s.Toggle("assets/instructions/nope"), ErrNotFound)
}

func TestReloadReselectsAndRerendersPreview(t *testing.T) {
	s, f := newSession(t)
	ctx := context.Background()

	_, err := s.Select(ctx, "assets/instructions/a.txt")
	require.NoError(t, err)

	require.NoError(t, s.Reload(ctx))
	assert.Equal(t, "assets/instructions/a.txt", s.Library().Selected.Path)
	assert.Equal(t, preview.State{Kind: preview.KindText, Content: "hello"}, s.Preview())
	assert.Equal(t, 2, f.count("/assets/instructions/a.txt"))

	f.put(manifest.URL, []byte(`[{"name": "b.txt", "type": "file", "path": "assets/instructions/b.txt"}]`))
	require.NoError(t, s.Reload(ctx))
	assert.Nil(t, s.Library().Selected)
	assert.Equal(t, preview.Idle(), s.Preview())
}

func TestLoadFailureClearsSelectionAndPreview(t *testing.T) {
	s, f := newSession(t)
	ctx := context.Background()
	_, err := s.Select(ctx, "assets/instructions/one.png")
	require.NoError(t, err)
	require.Equal(t, 1, s.Objects().Len())

	f.put(manifest.URL, []byte("not json"))
	require.Error(t, s.Reload(ctx))

	assert.Equal(t, "Failed to load the instructions list.", s.Library().Err)
	assert.Nil(t, s.Library().Selected)
	assert.Equal(t, preview.KindIdle, s.Preview().Kind)
	assert.Zero(t, s.Objects().Len())
}

func TestImageObjectsAreReleased(t *testing.T) {
	s, _ := newSession(t)
	ctx := context.Background()

	first, err := s.Select(ctx, "assets/instructions/one.png")
	require.NoError(t, err)
	require.Equal(t, preview.KindImage, first.Kind)
	require.NotEmpty(t, first.ObjectID)
	assert.Equal(t, preview.ObjectURL(first.ObjectID), first.URL)

	second, err := s.Select(ctx, "assets/instructions/two.png")
	require.NoError(t, err)
	assert.NotEqual(t, first.ObjectID, second.ObjectID)
	assert.Equal(t, 1, s.Objects().Len())
	_, err = s.Objects().Get(first.ObjectID)
	assert.ErrorIs(t, err, preview.ErrObjectNotFound)

	s.ClearSelection()
	assert.Zero(t, s.Objects().Len())
	assert.Equal(t, preview.KindIdle, s.Preview().Kind)

	_, err = s.Select(ctx, "assets/instructions/one.png")
	require.NoError(t, err)
	s.Close()
	assert.Zero(t, s.Objects().Len())
}

func TestStalePreviewIsDiscarded(t *testing.T) {
	s, f := newSession(t)
	ctx := context.Background()
	release := f.gate("/assets/instructions/one.png")

	done := make(chan preview.State, 1)
	go func() {
		state, _ := s.Select(ctx, "assets/instructions/one.png")
		done <- state
	}()
	require.Equal(t, "/assets/instructions/one.png", <-f.started)
	assert.Equal(t, preview.KindLoading, s.Preview().Kind)

	fresh, err := s.Select(ctx, "assets/instructions/a.txt")
	require.NoError(t, err)
	close(release)

	select {
	case got := <-done:
		assert.Equal(t, fresh, got, "superseded request reports the newer state")
	case <-time.After(5 * time.Second):
		t.Fatal("stale preview never finished")
	}
	assert.Equal(t, preview.State{Kind: preview.KindText, Content: "hello"}, s.Preview())
	assert.Zero(t, s.Objects().Len(), "stale image object must be revoked")
}

func TestSearchAndHighlightedPreview(t *testing.T) {
	s, _ := newSession(t)
	ctx := context.Background()

	_, err := s.Select(ctx, "assets/instructions/Guides/setup.txt")
	require.NoError(t, err)
	assert.Equal(t, "Install the printer driver first.", s.HighlightedPreview())

	st := s.Search(ctx, "PRINTER")
	assert.False(t, st.Loading)
	assert.True(t, st.Active())
	require.Len(t, st.Results.Content, 1)
	assert.Contains(t, st.Results.Content[0].Snippet, "<mark>printer</mark>")
	assert.Empty(t, st.Results.Names)
	assert.Equal(t, "Install the <mark>printer</mark> driver first.", s.HighlightedPreview())

	st = s.Search(ctx, "setup")
	require.Len(t, st.Results.Names, 1)
	assert.Equal(t, "<mark>setup</mark>.txt", st.Results.Names[0].Highlighted)

	st = s.Search(ctx, "   ")
	assert.False(t, st.Active())
	assert.Empty(t, st.Results.Names)
	assert.Empty(t, st.Results.Content)
	assert.Equal(t, "Install the printer driver first.", s.HighlightedPreview())

	_, err = s.Select(ctx, "assets/instructions/one.png")
	require.NoError(t, err)
	assert.Empty(t, s.HighlightedPreview())
}

func TestHighlightedPreviewEscapes(t *testing.T) {
	s, f := newSession(t)
	ctx := context.Background()
	f.put("/assets/instructions/a.txt", []byte("<b>x</b>"))

	_, err := s.Select(ctx, "assets/instructions/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "&lt;b&gt;x&lt;/b&gt;", s.HighlightedPreview())
}

func TestReloadRerunsActiveSearch(t *testing.T) {
	s, f := newSession(t)
	ctx := context.Background()

	st := s.Search(ctx, "guide")
	assert.Empty(t, st.Results.Names)

	f.put(manifest.URL, []byte(`[{"name": "guide.pdf", "type": "file", "path": "assets/instructions/guide.pdf"}]`))
	require.NoError(t, s.Reload(ctx))

	st = s.SearchState()
	assert.Equal(t, "guide", st.Query)
	require.Len(t, st.Results.Names, 1)
	assert.Equal(t, "guide.pdf", st.Results.Names[0].Node.Name)
}

func TestOnlyLatestSearchIsPublished(t *testing.T) {
	s, f := newSession(t)
	ctx := context.Background()
	release := f.gate("/assets/instructions/a.txt")

	done := make(chan SearchState, 1)
	go func() { done <- s.Search(ctx, "h") }()
	require.Equal(t, "/assets/instructions/a.txt", <-f.started)
	assert.True(t, s.SearchState().Loading)

	latestDone := make(chan SearchState, 1)
	go func() { latestDone <- s.Search(ctx, "he") }()
	require.Eventually(t, func() bool { return s.SearchState().Query == "he" },
		5*time.Second, 5*time.Millisecond)
	close(release)

	var latest SearchState
	select {
	case latest = <-latestDone:
	case <-time.After(5 * time.Second):
		t.Fatal("latest search never finished")
	}
	select {
	case got := <-done:
		assert.Equal(t, "he", got.Query)
	case <-time.After(5 * time.Second):
		t.Fatal("stale search never finished")
	}
	assert.Equal(t, latest, s.SearchState())
	assert.Equal(t, "he", s.SearchState().Results.Query)
}

func TestEventsArePublished(t *testing.T) {
	f := newLibraryFetcher(libraryJSON)
	f.put("/assets/instructions/a.txt", []byte("hello"))
	b := events.NewBroadcaster(32)
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	s := New(f, Options{Events: b})
	defer s.Close()
	require.NoError(t, s.Load(context.Background()))
	_, err := s.Select(context.Background(), "assets/instructions/a.txt")
	require.NoError(t, err)

	var kinds []string
	for len(ch) > 0 {
		ev := <-ch
		kinds = append(kinds, ev.Type+":"+ev.Kind)
	}
	assert.Equal(t, []string{
		"library:", "preview:idle",
		"library:", "preview:loading", "preview:text",
	}, kinds)
}

func TestClosedSessionRejectsWork(t *testing.T) {
	s, _ := newSession(t)
	s.Close()

	assert.ErrorIs(t, s.Load(context.Background()), ErrClosed)
	_, err := s.Select(context.Background(), "assets/instructions/a.txt")
	assert.ErrorIs(t, err, ErrClosed)
	assert.True(t, errors.Is(s.Toggle("assets/instructions/Guides"), ErrClosed))
	assert.False(t, strings.Contains(s.HighlightedPreview(), "hello"))
}
