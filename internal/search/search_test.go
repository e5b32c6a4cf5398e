package search

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docshelf/docshelf/internal/fetch"
	"github.com/docshelf/docshelf/pkg/manifest"
)

type countingFetcher struct {
	mu     sync.Mutex
	assets map[string]string
	calls  map[string]int
	gate   chan struct{}
}

func newFetcher(assets map[string]string) *countingFetcher {
	return &countingFetcher{assets: assets, calls: map[string]int{}}
}

func (f *countingFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	f.calls[url]++
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	text, ok := f.assets[url]
	if !ok {
		return nil, fmt.Errorf("fetch %s: %w", url, fetch.ErrNotFound)
	}
	return []byte(text), nil
}

func (f *countingFetcher) count(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func fileNode(name string) *manifest.Node {
	return &manifest.Node{Name: name, Type: manifest.TypeFile, Path: "assets/instructions/" + name, Ext: manifest.ExtensionOf(name)}
}

func url(name string) string { return "/assets/instructions/" + name }

func TestSearchNamesAndContent(t *testing.T) {
	f := newFetcher(map[string]string{
		url("errors.log"):   "line one\nan error occurred here\n",
		url("readme.md"):    "nothing to see",
		url("page.html"):    "<p>Error page</p>",
		url("photo.png"):    "error inside binary",
		url("Error 10.txt"): "",
		url("Error 2.txt"):  "",
	})
	custom := fileNode("settings.cfg")
	custom.Readable = true
	f.assets[url("settings.cfg")] = "on_error=retry"

	nodes := []*manifest.Node{
		{Name: "logs", Type: manifest.TypeFolder, Path: "assets/instructions/logs", Children: []*manifest.Node{fileNode("errors.log")}},
		fileNode("Error 10.txt"),
		fileNode("Error 2.txt"),
		fileNode("readme.md"),
		fileNode("page.html"),
		fileNode("photo.png"),
		custom,
	}

	e := NewEngine(f)
	res, ok := e.Search(context.Background(), "  error ", nodes)
	require.True(t, ok)
	assert.Equal(t, "error", res.Query)

	var names []string
	for _, m := range res.Names {
		names = append(names, m.Node.Name)
	}
	assert.Equal(t, []string{"Error 2.txt", "Error 10.txt", "errors.log"}, names)
	assert.Equal(t, "<mark>Error</mark> 2.txt", res.Names[0].Highlighted)

	var content []string
	for _, m := range res.Content {
		content = append(content, m.Node.Name)
	}
	assert.Equal(t, []string{"errors.log", "page.html", "settings.cfg"}, content)
	assert.Equal(t, "line one\nan <mark>error</mark> occurred here\n", res.Content[0].Snippet)
	assert.Equal(t, "&lt;p&gt;<mark>Error</mark> page&lt;/p&gt;", res.Content[1].Snippet)

	assert.Zero(t, f.count(url("photo.png")), "images are not content-searched")
	assert.Empty(t, res.Err)
}

func TestSearchBlankQueryResets(t *testing.T) {
	f := newFetcher(map[string]string{url("a.txt"): "a"})
	e := NewEngine(f)

	for _, q := range []string{"", "   "} {
		res, ok := e.Search(context.Background(), q, []*manifest.Node{fileNode("a.txt")})
		assert.True(t, ok)
		assert.Equal(t, Results{}, res)
	}
	res, ok := e.Search(context.Background(), "a", nil)
	assert.True(t, ok)
	assert.Equal(t, Results{}, res)
	assert.Zero(t, f.count(url("a.txt")))
}

func TestSearchCachesText(t *testing.T) {
	f := newFetcher(map[string]string{url("a.txt"): "alpha beta"})
	nodes := []*manifest.Node{fileNode("a.txt"), fileNode("missing.txt")}
	e := NewEngine(f)

	for _, q := range []string{"alpha", "beta", "gamma"} {
		_, ok := e.Search(context.Background(), q, nodes)
		require.True(t, ok)
	}
	assert.Equal(t, 1, f.count(url("a.txt")))
	assert.Equal(t, 1, f.count(url("missing.txt")), "failures are cached as empty")
	assert.True(t, e.Cached("assets/instructions/missing.txt"))
}

func TestSearchCapsContentMatches(t *testing.T) {
	f := newFetcher(map[string]string{})
	var nodes []*manifest.Node
	for i := 0; i < 30; i++ {
		name := fmt.Sprintf("doc%02d.txt", i)
		f.assets[url(name)] = "needle"
		nodes = append(nodes, fileNode(name))
	}

	res, ok := NewEngine(f).Search(context.Background(), "needle", nodes)
	require.True(t, ok)
	assert.Len(t, res.Content, MaxContentMatches)
	assert.Zero(t, f.count(url("doc25.txt")), "scan stops at the cap")
}

func TestSearchSequencing(t *testing.T) {
	f := newFetcher(map[string]string{url("alpha.txt"): "find ab here"})
	f.gate = make(chan struct{})
	nodes := []*manifest.Node{fileNode("alpha.txt")}
	e := NewEngine(f)

	type outcome struct {
		res Results
		ok  bool
	}
	first := make(chan outcome, 1)
	go func() {
		res, ok := e.Search(context.Background(), "a", nodes)
		first <- outcome{res, ok}
	}()
	require.Eventually(t, func() bool { return f.count(url("alpha.txt")) == 1 }, 2*time.Second, time.Millisecond)

	second := make(chan outcome, 1)
	go func() {
		res, ok := e.Search(context.Background(), "ab", nodes)
		second <- outcome{res, ok}
	}()
	require.Eventually(t, func() bool { return e.seq.Load() == 2 }, 2*time.Second, time.Millisecond)

	close(f.gate)

	a := <-first
	ab := <-second
	assert.False(t, a.ok, "stale search must not publish")
	require.True(t, ab.ok)
	assert.Equal(t, "ab", ab.res.Query)
	require.Len(t, ab.res.Content, 1)
	assert.Contains(t, ab.res.Content[0].Snippet, "<mark>ab</mark>")
}

func TestSearchCancelled(t *testing.T) {
	f := newFetcher(map[string]string{url("a.txt"): "a"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, ok := NewEngine(f).Search(ctx, "a", []*manifest.Node{fileNode("a.txt")})
	assert.True(t, ok)
	assert.Equal(t, MsgFailed, res.Err)
	assert.Empty(t, res.Content)
}

func TestSnippet(t *testing.T) {
	text := strings.Repeat("x", 100) + " an Error occurred " + strings.Repeat("y", 100)
	snippet, ok := Snippet(text, "error")
	require.True(t, ok)
	assert.Contains(t, snippet, "<mark>Error</mark>")
	assert.True(t, strings.HasPrefix(snippet, "…"))
	assert.True(t, strings.HasSuffix(snippet, "…"))
	assert.Equal(t, 80+len("error")+80+2, len([]rune(snippet))-len("<mark></mark>"))

	short, ok := Snippet("an error occurred", "ERROR")
	require.True(t, ok)
	assert.Equal(t, "an <mark>error</mark> occurred", short)

	_, ok = Snippet("nothing", "error")
	assert.False(t, ok)
}

func TestSnippetCountsRunes(t *testing.T) {
	text := strings.Repeat("ж", 90) + "Ошибка" + strings.Repeat("ё", 90)
	snippet, ok := Snippet(text, "ошибка")
	require.True(t, ok)
	assert.Equal(t, "…"+strings.Repeat("ж", 80)+"<mark>Ошибка</mark>"+strings.Repeat("ё", 80)+"…", snippet)
}

func TestHighlight(t *testing.T) {
	tests := []struct {
		text, query, want string
	}{
		{"Fish & <Chips>", "chips", "Fish &amp; &lt;<mark>Chips</mark>&gt;"},
		{`say "hi" it's`, "", "say &quot;hi&quot; it&#39;s"},
		{"aAa", "a", "<mark>a</mark><mark>A</mark><mark>a</mark>"},
		{"Инструкция по установке", "УСТАНОВ", "Инструкция по <mark>установ</mark>ке"},
		{"none", "zzz", "none"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Highlight(tt.text, tt.query), tt.text)
	}
}
