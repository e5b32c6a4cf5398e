// Package fetch loads the manifest and library assets for the runtime,
// either over HTTP from a running server or directly from a storage backend.
package fetch

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/docshelf/docshelf/internal/storage"
	"github.com/docshelf/docshelf/pkg/retry"
)

// ErrNotFound is returned when the requested asset does not exist.
var ErrNotFound = errors.New("asset not found")

// Fetcher retrieves the raw bytes behind an asset URL such as
// "/assets/instructions/a.txt".
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// StatusError reports a non-success HTTP status.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.Status)
}

// HTTPConfig holds HTTP fetcher configuration.
type HTTPConfig struct {
	BaseURL     string
	Timeout     time.Duration
	RetryConfig retry.Config
}

// HTTPFetcher fetches assets from a docshelf server.
type HTTPFetcher struct {
	baseURL     string
	httpClient  *http.Client
	retryConfig retry.Config
}

// NewHTTPFetcher creates a fetcher rooted at cfg.BaseURL.
func NewHTTPFetcher(cfg HTTPConfig) *HTTPFetcher {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryConfig.MaxAttempts == 0 {
		cfg.RetryConfig = retry.DefaultConfig()
	}

	return &HTTPFetcher{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		retryConfig: cfg.RetryConfig,
	}
}

// resolve joins an asset path onto the base URL. Node paths hold raw file
// names, so reserved characters such as '%', '#' and '?' are escaped.
func (f *HTTPFetcher) resolve(ref string) string {
	lower := strings.ToLower(ref)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return ref
	}
	if !strings.HasPrefix(ref, "/") {
		ref = "/" + ref
	}
	return f.baseURL + (&url.URL{Path: ref}).EscapedPath()
}

// Fetch retrieves url, retrying network errors and 5xx/429 responses.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	target := f.resolve(url)

	return retry.DoWithResult(ctx, f.retryConfig, func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept-Encoding", "gzip")

		resp, err := f.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, retry.Retryable(fmt.Errorf("fetch %s: %w", url, err))
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("fetch %s: %w", url, ErrNotFound)
		}
		if resp.StatusCode != http.StatusOK {
			statusErr := &StatusError{URL: url, Status: resp.StatusCode}
			if retry.RetryableStatus(resp.StatusCode) {
				return nil, retry.Retryable(statusErr)
			}
			return nil, statusErr
		}

		var reader io.Reader = resp.Body
		if resp.Header.Get("Content-Encoding") == "gzip" {
			gr, err := gzip.NewReader(resp.Body)
			if err != nil {
				return nil, fmt.Errorf("gzip reader: %w", err)
			}
			defer gr.Close()
			reader = gr
		}

		data, err := io.ReadAll(reader)
		if err != nil {
			return nil, retry.Retryable(fmt.Errorf("read %s: %w", url, err))
		}
		return data, nil
	})
}

// BackendFetcher reads assets straight from a storage backend. The object
// key is the asset URL without its leading slash.
type BackendFetcher struct {
	backend storage.Backend
}

// NewBackendFetcher wraps a storage backend.
func NewBackendFetcher(b storage.Backend) *BackendFetcher {
	return &BackendFetcher{backend: b}
}

// Fetch reads the object behind url.
func (f *BackendFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	key := strings.TrimPrefix(url, "/")
	data, err := storage.ReadAll(ctx, f.backend, key)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("fetch %s: %w", url, ErrNotFound)
		}
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	return data, nil
}
