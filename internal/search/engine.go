// Package search runs name and content searches over the manifest.
package search

import (
	"context"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/docshelf/docshelf/internal/fetch"
	"github.com/docshelf/docshelf/internal/logging"
	"github.com/docshelf/docshelf/internal/metrics"
	"github.com/docshelf/docshelf/internal/preview"
	"github.com/docshelf/docshelf/pkg/manifest"
)

// MaxContentMatches caps content results per query.
const MaxContentMatches = 20

// MsgFailed is shown when a search cannot complete.
const MsgFailed = "Search failed."

// NameMatch is a file whose name contains the query.
type NameMatch struct {
	Node        *manifest.Node `json:"node"`
	Highlighted string         `json:"highlighted"`
}

// ContentMatch is a file whose text contains the query.
type ContentMatch struct {
	Node    *manifest.Node `json:"node"`
	Snippet string         `json:"snippet"`
}

// Results is one published search outcome. The zero value is the cleared state.
type Results struct {
	Query   string         `json:"query"`
	Names   []NameMatch    `json:"names"`
	Content []ContentMatch `json:"content"`
	Err     string         `json:"error,omitempty"`
}

// Engine searches the tree. Each call takes a ticket; only the newest
// ticket's results are reported as current.
type Engine struct {
	fetcher fetch.Fetcher
	seq     atomic.Uint64
	texts   *cache.Cache
	group   singleflight.Group
	log     *zap.Logger
}

// NewEngine creates an engine whose text cache lives as long as the engine.
func NewEngine(f fetch.Fetcher) *Engine {
	return &Engine{
		fetcher: f,
		texts:   cache.New(cache.NoExpiration, 0),
		log:     logging.Named("search"),
	}
}

// Latest reports whether ticket is still the newest search.
func (e *Engine) Latest(ticket uint64) bool {
	return e.seq.Load() == ticket
}

// Search runs query over nodes. The boolean is false when a newer search
// was started before this one finished; such results must be discarded.
func (e *Engine) Search(ctx context.Context, query string, nodes []*manifest.Node) (Results, bool) {
	ticket := e.seq.Add(1)
	start := time.Now()

	trimmed := strings.TrimSpace(query)
	if trimmed == "" || len(nodes) == 0 {
		return Results{}, true
	}

	res, ok := e.run(ctx, ticket, trimmed, nodes)
	if !ok {
		metrics.RecordSearchDiscarded()
		return Results{}, false
	}
	metrics.RecordSearch(time.Since(start))
	return res, true
}

func (e *Engine) run(ctx context.Context, ticket uint64, query string, nodes []*manifest.Node) (Results, bool) {
	files := manifest.Files(nodes)
	lowered := strings.ToLower(query)

	res := Results{Query: query, Names: []NameMatch{}, Content: []ContentMatch{}}

	var named []*manifest.Node
	for _, n := range files {
		if strings.Contains(strings.ToLower(n.Name), lowered) {
			named = append(named, n)
		}
	}
	slices.SortStableFunc(named, func(a, b *manifest.Node) int {
		return manifest.CompareNames(a.Name, b.Name)
	})
	for _, n := range named {
		res.Names = append(res.Names, NameMatch{Node: n, Highlighted: Highlight(n.Name, query)})
	}

	if !e.Latest(ticket) {
		return Results{}, false
	}

	for _, n := range files {
		if !e.Latest(ticket) {
			return Results{}, false
		}
		if err := ctx.Err(); err != nil {
			e.log.Warn("search aborted", zap.String("query", query), zap.Error(err))
			return Results{Query: query, Names: []NameMatch{}, Content: []ContentMatch{}, Err: MsgFailed}, e.Latest(ticket)
		}
		if !Searchable(n) {
			continue
		}

		text := e.Text(ctx, n)
		if text == "" {
			continue
		}
		snippet, found := Snippet(text, query)
		if !found {
			continue
		}
		res.Content = append(res.Content, ContentMatch{Node: n, Snippet: snippet})
		if len(res.Content) >= MaxContentMatches {
			break
		}
	}

	if !e.Latest(ticket) {
		return Results{}, false
	}
	return res, true
}

// Searchable reports whether a file's contents take part in content search.
func Searchable(n *manifest.Node) bool {
	ext := manifest.Extension(n)
	return preview.IsTextLike(ext, n) || preview.IsMarkup(ext)
}

// Text returns the decoded text of n, loading it at most once per path.
// Load failures are cached as "" unless ctx was cancelled.
func (e *Engine) Text(ctx context.Context, n *manifest.Node) string {
	if v, ok := e.texts.Get(n.Path); ok {
		metrics.RecordSearchCache(true)
		return v.(string)
	}
	metrics.RecordSearchCache(false)

	v, err, _ := e.group.Do(n.Path, func() (any, error) {
		if v, ok := e.texts.Get(n.Path); ok {
			return v, nil
		}
		text := ""
		data, err := e.fetcher.Fetch(ctx, manifest.ResolveAssetPath(n.Path))
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			e.log.Debug("content load failed", zap.String("path", n.Path), zap.Error(err))
		} else {
			text = preview.DecodeText(data)
		}
		e.texts.Set(n.Path, text, cache.NoExpiration)
		return text, nil
	})
	if err != nil {
		return ""
	}
	return v.(string)
}

// Cached reports whether a path's text is in the cache.
func (e *Engine) Cached(path string) bool {
	_, ok := e.texts.Get(path)
	return ok
}
