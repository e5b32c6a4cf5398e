package preview

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/docshelf/docshelf/internal/fetch"
	"github.com/docshelf/docshelf/internal/logging"
	"github.com/docshelf/docshelf/internal/metrics"
	"github.com/docshelf/docshelf/pkg/manifest"
)

// TextExtensions are previewed and searched as plain text.
var TextExtensions = map[string]bool{
	"txt": true, "log": true, "md": true, "json": true, "csv": true,
	"xml": true, "ini": true, "conf": true, "yml": true, "yaml": true,
}

// IsMarkup reports whether ext is an HTML variant.
func IsMarkup(ext string) bool { return ext == "html" || ext == "htm" }

// IsTextLike reports whether a node's contents can be decoded as text.
func IsTextLike(ext string, n *manifest.Node) bool {
	return TextExtensions[ext] || (n != nil && n.Readable)
}

// Options configures a Resolver.
type Options struct {
	// PublicOrigin enables absolute URLs and the office viewer.
	PublicOrigin string
}

// Resolver turns a file node into a terminal preview State.
type Resolver struct {
	fetcher fetch.Fetcher
	objects *ObjectStore
	origin  string
	log     *zap.Logger
}

// NewResolver creates a resolver. Image states allocate objects in objects;
// the caller owns revoking them.
func NewResolver(f fetch.Fetcher, objects *ObjectStore, opts Options) *Resolver {
	return &Resolver{
		fetcher: f,
		objects: objects,
		origin:  opts.PublicOrigin,
		log:     logging.Named("preview"),
	}
}

// Objects returns the store image states are allocated in.
func (r *Resolver) Objects() *ObjectStore { return r.objects }

// request is what a rule sees of the selected file.
type request struct {
	node        *manifest.Node
	ext         string
	downloadURL string
}

// Resolve routes node through the rule table. The result is always terminal;
// failures in fetching or parsing become an error state with the download URL.
func (r *Resolver) Resolve(ctx context.Context, node *manifest.Node) State {
	start := time.Now()
	req := request{
		node:        node,
		ext:         manifest.Extension(node),
		downloadURL: manifest.ResolveAssetPath(node.Path),
	}

	rule := r.match(req)
	state, err := rule.render(ctx, r, req)
	if err != nil {
		r.log.Warn("preview failed",
			zap.String("path", node.Path),
			zap.String("rule", rule.name),
			zap.Error(err))
		state = Error(MsgFailed, req.downloadURL)
	}

	metrics.RecordPreview(string(state.Kind), time.Since(start))
	return state
}

// RuleName reports which rule handles node, for diagnostics.
func (r *Resolver) RuleName(node *manifest.Node) string {
	return r.match(request{node: node, ext: manifest.Extension(node)}).name
}

func (r *Resolver) match(req request) rule {
	for _, rl := range rules {
		if rl.match(req) {
			return rl
		}
	}
	return fallbackRule
}

func (r *Resolver) fetchAsset(ctx context.Context, req request) ([]byte, error) {
	data, err := r.fetcher.Fetch(ctx, req.downloadURL)
	if err != nil {
		return nil, fmt.Errorf("fetch asset: %w", err)
	}
	return data, nil
}

func (r *Resolver) absolute(ref string) string {
	return AbsoluteURL(r.origin, ref)
}
