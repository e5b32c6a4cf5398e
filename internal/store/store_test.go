package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docshelf/docshelf/pkg/manifest"
)

type manifestFetcher struct {
	mu   sync.Mutex
	body string
	err  error
	urls []string

	// started and gate, when set, hold Fetch until the test releases it.
	started chan struct{}
	gate    chan struct{}
}

func (f *manifestFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	if f.gate != nil {
		f.started <- struct{}{}
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, url)
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.body), nil
}

func (f *manifestFetcher) set(body string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.body, f.err = body, err
}

const library = `[
  {"name": "b.txt", "type": "file", "path": "assets/instructions/b.txt", "ext": "txt"},
  {"name": "Guides", "type": "folder", "path": "assets/instructions/Guides", "children": [
    {"name": "Deep", "type": "folder", "path": "assets/instructions/Guides/Deep", "children": [
      {"name": "x.md", "type": "file", "path": "assets/instructions/Guides/Deep/x.md"}
    ]},
    {"name": "setup.txt", "type": "file", "path": "assets/instructions/Guides/setup.txt"}
  ]},
  {"name": "Archive", "type": "folder", "path": "assets/instructions/Archive"}
]`

func loaded(t *testing.T) (*Store, *manifestFetcher) {
	t.Helper()
	f := &manifestFetcher{body: library}
	s := New(f)
	res := s.Load(context.Background())
	require.NoError(t, res.Err)
	return s, f
}

func TestLoadNormalizesAndExpandsTopLevel(t *testing.T) {
	s, f := loaded(t)
	snap := s.Snapshot()

	assert.Equal(t, []string{manifest.URL}, f.urls)
	require.Len(t, snap.Nodes, 3)
	assert.Equal(t, "Archive", snap.Nodes[0].Name)
	assert.Equal(t, "Guides", snap.Nodes[1].Name)
	assert.Equal(t, "b.txt", snap.Nodes[2].Name)
	assert.Equal(t, "Deep", snap.Nodes[1].Children[0].Name)

	assert.Equal(t, map[string]bool{
		"assets/instructions/Archive": true,
		"assets/instructions/Guides":  true,
	}, snap.Expanded)
	assert.False(t, snap.IsExpanded("assets/instructions/Guides/Deep"))
	assert.False(t, snap.Loading)
	assert.Empty(t, snap.Err)
}

func TestToggleOnlyFlipsOneFolder(t *testing.T) {
	s, _ := loaded(t)
	before := s.Snapshot()

	require.True(t, s.Toggle("assets/instructions/Guides/Deep"))
	require.True(t, s.Toggle("assets/instructions/Guides"))
	after := s.Snapshot()

	assert.True(t, after.IsExpanded("assets/instructions/Guides/Deep"))
	assert.False(t, after.IsExpanded("assets/instructions/Guides"))
	assert.True(t, after.IsExpanded("assets/instructions/Archive"))

	// Earlier snapshots are immutable.
	assert.True(t, before.IsExpanded("assets/instructions/Guides"))
	assert.False(t, before.IsExpanded("assets/instructions/Guides/Deep"))

	assert.False(t, s.Toggle("assets/instructions/b.txt"))
	assert.False(t, s.Toggle("assets/instructions/nope"))
}

func TestSelectFilesOnly(t *testing.T) {
	s, _ := loaded(t)

	assert.Nil(t, s.Select("assets/instructions/Guides"))
	assert.Nil(t, s.Select("assets/instructions/missing.txt"))
	assert.Nil(t, s.Snapshot().Selected)

	n := s.Select("assets/instructions/Guides/setup.txt")
	require.NotNil(t, n)
	assert.Equal(t, "setup.txt", s.Snapshot().Selected.Name)
	assert.Equal(t, "/assets/instructions/Guides/setup.txt", s.Snapshot().SelectedDownloadURL())

	s.ClearSelection()
	assert.Nil(t, s.Snapshot().Selected)
	assert.Empty(t, s.Snapshot().SelectedDownloadURL())
}

func TestReloadReselectsByPath(t *testing.T) {
	s, f := loaded(t)
	s.Select("assets/instructions/Guides/setup.txt")
	s.Toggle("assets/instructions/Guides/Deep")

	res := s.Load(context.Background())
	require.NoError(t, res.Err)
	require.NotNil(t, res.Reselected)
	assert.Equal(t, "assets/instructions/Guides/setup.txt", res.Reselected.Path)
	assert.Same(t, res.Reselected, s.Snapshot().Selected)
	assert.False(t, s.Snapshot().IsExpanded("assets/instructions/Guides/Deep"), "expansion resets on reload")

	f.set(`[{"name": "b.txt", "type": "file", "path": "assets/instructions/b.txt"}]`, nil)
	res = s.Load(context.Background())
	require.NoError(t, res.Err)
	assert.Nil(t, res.Reselected)
	assert.Nil(t, s.Snapshot().Selected)
}

func TestReloadKeepsSelectionMadeInFlight(t *testing.T) {
	s, f := loaded(t)
	s.Select("assets/instructions/b.txt")

	f.started = make(chan struct{})
	f.gate = make(chan struct{})
	done := make(chan LoadResult)
	go func() { done <- s.Load(context.Background()) }()

	<-f.started
	require.NotNil(t, s.Select("assets/instructions/Guides/setup.txt"))
	close(f.gate)
	res := <-done

	require.NoError(t, res.Err)
	require.NotNil(t, res.Reselected)
	assert.Equal(t, "assets/instructions/Guides/setup.txt", res.Reselected.Path)
	assert.Same(t, res.Reselected, s.Snapshot().Selected)
}

func TestLoadFailure(t *testing.T) {
	s, f := loaded(t)
	s.Select("assets/instructions/b.txt")

	f.set("", errors.New("connection refused"))
	res := s.Load(context.Background())
	require.Error(t, res.Err)

	snap := s.Snapshot()
	assert.Equal(t, MsgLoadFailed, snap.Err)
	assert.Empty(t, snap.Nodes)
	assert.Nil(t, snap.Selected)
	assert.False(t, snap.HasItems())

	f.set("{not json", nil)
	res = s.Load(context.Background())
	require.Error(t, res.Err)
	assert.Equal(t, MsgLoadFailed, s.Snapshot().Err)

	f.set(library, nil)
	res = s.Load(context.Background())
	require.NoError(t, res.Err)
	assert.Empty(t, s.Snapshot().Err)
	assert.True(t, s.Snapshot().HasItems())
}
