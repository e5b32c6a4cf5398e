// Package api provides the HTTP server and handlers.
package api

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/docshelf/docshelf/internal/browser"
	"github.com/docshelf/docshelf/internal/builder"
	"github.com/docshelf/docshelf/internal/events"
	"github.com/docshelf/docshelf/internal/logging"
	"github.com/docshelf/docshelf/internal/metrics"
	"github.com/docshelf/docshelf/internal/preview"
	"github.com/docshelf/docshelf/internal/storage"
	"github.com/docshelf/docshelf/pkg/manifest"
)

var rangeRegex = regexp.MustCompile(`bytes=(\d*)-(\d*)`)

// Pool gzip writers for the JSON endpoints.
var gzipPool = sync.Pool{
	New: func() any { return gzip.NewWriter(nil) },
}

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// Server is the HTTP server.
type Server struct {
	backend     storage.Backend
	session     *browser.Session
	broadcaster *events.Broadcaster
}

// NewServer creates a server. broadcaster may be nil, which disables the
// event stream.
func NewServer(backend storage.Backend, session *browser.Session, broadcaster *events.Broadcaster) *Server {
	return &Server{
		backend:     backend,
		session:     session,
		broadcaster: broadcaster,
	}
}

// Handler returns the HTTP handler with all routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /assets/{path...}", s.handleAsset)

	mux.HandleFunc("GET /api/v1/library", s.handleLibrary)
	mux.HandleFunc("POST /api/v1/library/reload", s.handleReload)
	mux.HandleFunc("POST /api/v1/library/click", s.handleClick)
	mux.HandleFunc("POST /api/v1/library/toggle", s.handleToggle)
	mux.HandleFunc("GET /api/v1/library/preview", s.handlePreview)
	mux.HandleFunc("GET /api/v1/library/search", s.handleSearch)

	mux.HandleFunc("GET /api/v1/objects/{id}", s.handleObject)
	mux.HandleFunc("GET /api/v1/events", s.handleEvents)

	return metrics.Middleware(logging.Middleware(mux))
}

// ─── Health ─────────────────────────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, r, http.StatusOK, map[string]string{
		"status":  "ok",
		"storage": s.backend.Type(),
	})
}

// ─── Assets ─────────────────────────────────────────────────────────────────

func (s *Server) handleAsset(w http.ResponseWriter, r *http.Request) {
	rel := r.PathValue("path")
	if rel == "" {
		s.sendError(w, http.StatusBadRequest, "asset path required")
		return
	}
	key := manifest.AssetRoot + "/" + rel

	reader, totalSize, err := s.backend.GetObject(r.Context(), key, 0, 0)
	if err != nil {
		s.sendBackendError(w, r, key, err)
		return
	}

	offset, length, hasRange := parseRangeHeader(r.Header.Get("Range"), totalSize)
	if hasRange && totalSize > 0 {
		reader.Close()
		reader, _, err = s.backend.GetObject(r.Context(), key, offset, length)
		if err != nil {
			s.sendBackendError(w, r, key, err)
			return
		}
	}
	defer reader.Close()

	w.Header().Set("Content-Type", builder.DetectMIME(manifest.ExtensionOf(key)))
	w.Header().Set("Accept-Ranges", "bytes")
	if strings.HasSuffix(key, "/"+manifest.FileName) {
		w.Header().Set("Cache-Control", "no-cache")
	}

	if hasRange && totalSize > 0 {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, offset+length-1, totalSize))
		w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
		w.WriteHeader(http.StatusPartialContent)
	} else {
		w.Header().Set("Content-Length", strconv.FormatInt(totalSize, 10))
		w.WriteHeader(http.StatusOK)
	}

	n, err := io.Copy(w, reader)
	if err != nil {
		logging.WithContext(r.Context()).Warn("asset transfer error", zap.String("key", key), zap.Error(err))
	}
	metrics.RecordAssetServed(n)
}

func (s *Server) sendBackendError(w http.ResponseWriter, r *http.Request, key string, err error) {
	if errors.Is(err, fs.ErrNotExist) {
		s.sendError(w, http.StatusNotFound, "asset not found: "+key)
		return
	}
	logging.WithContext(r.Context()).Error("asset read failed", zap.String("key", key), zap.Error(err))
	s.sendError(w, http.StatusBadGateway, "storage error")
}

// ─── Library ────────────────────────────────────────────────────────────────

// LibraryResponse is the tree with its expansion and selection state.
type LibraryResponse struct {
	Nodes       []*manifest.Node `json:"nodes"`
	Expanded    []string         `json:"expanded"`
	Selected    string           `json:"selected,omitempty"`
	DownloadURL string           `json:"downloadUrl,omitempty"`
	Loading     bool             `json:"loading"`
	Error       string           `json:"error,omitempty"`
}

// PreviewResponse carries the preview state plus the highlighted text
// rendering when the preview is text.
type PreviewResponse struct {
	Path        string        `json:"path,omitempty"`
	State       preview.State `json:"state"`
	Highlighted string        `json:"highlighted,omitempty"`
}

type pathRequest struct {
	Path string `json:"path"`
}

func (s *Server) libraryResponse() LibraryResponse {
	snap := s.session.Library()
	expanded := make([]string, 0, len(snap.Expanded))
	for p := range snap.Expanded {
		expanded = append(expanded, p)
	}
	slices.Sort(expanded)

	resp := LibraryResponse{
		Nodes:       snap.Nodes,
		Expanded:    expanded,
		DownloadURL: snap.SelectedDownloadURL(),
		Loading:     snap.Loading,
		Error:       snap.Err,
	}
	if snap.Selected != nil {
		resp.Selected = snap.Selected.Path
	}
	return resp
}

func (s *Server) handleLibrary(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, r, http.StatusOK, s.libraryResponse())
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Reload(r.Context()); err != nil {
		if errors.Is(err, browser.ErrClosed) {
			s.sendError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		// The failure is part of the library state.
		logging.WithContext(r.Context()).Warn("library reload failed", zap.Error(err))
	}
	s.sendJSON(w, r, http.StatusOK, s.libraryResponse())
}

func (s *Server) handleClick(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodePath(w, r)
	if !ok {
		return
	}
	if err := s.session.Click(r.Context(), req.Path); err != nil {
		s.sendSessionError(w, err)
		return
	}
	s.sendJSON(w, r, http.StatusOK, s.libraryResponse())
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodePath(w, r)
	if !ok {
		return
	}
	if err := s.session.Toggle(req.Path); err != nil {
		s.sendSessionError(w, err)
		return
	}
	s.sendJSON(w, r, http.StatusOK, s.libraryResponse())
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	resp := PreviewResponse{
		State:       s.session.Preview(),
		Highlighted: s.session.HighlightedPreview(),
	}
	if sel := s.session.Library().Selected; sel != nil {
		resp.Path = sel.Path
	}
	s.sendJSON(w, r, http.StatusOK, resp)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	state := s.session.Search(r.Context(), r.URL.Query().Get("q"))
	s.sendJSON(w, r, http.StatusOK, state)
}

func (s *Server) decodePath(w http.ResponseWriter, r *http.Request) (pathRequest, bool) {
	var req pathRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	if req.Path == "" {
		s.sendError(w, http.StatusBadRequest, "path required")
		return req, false
	}
	return req, true
}

func (s *Server) sendSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, browser.ErrNotFound):
		s.sendError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, browser.ErrNotFile), errors.Is(err, browser.ErrNotFolder):
		s.sendError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, browser.ErrClosed):
		s.sendError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.sendError(w, http.StatusInternalServerError, err.Error())
	}
}

// ─── Objects ────────────────────────────────────────────────────────────────

func (s *Server) handleObject(w http.ResponseWriter, r *http.Request) {
	obj, err := s.session.Objects().Get(r.PathValue("id"))
	if err != nil {
		s.sendError(w, http.StatusNotFound, err.Error())
		return
	}

	data, contentType := obj.Data, obj.MIME
	if r.URL.Query().Get("thumb") == "1" {
		thumb, err := preview.Thumbnail(obj.Data, obj.Orientation)
		if err != nil {
			logging.WithContext(r.Context()).Debug("thumbnail failed", zap.String("id", obj.ID), zap.Error(err))
			s.sendError(w, http.StatusUnprocessableEntity, "thumbnail unavailable")
			return
		}
		data, contentType = thumb, "image/jpeg"
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "private, no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// ─── SSE Events ─────────────────────────────────────────────────────────────

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.broadcaster == nil {
		s.sendError(w, http.StatusNotFound, "event stream disabled")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.sendError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := s.broadcaster.Subscribe()
	defer s.broadcaster.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			data, err := events.MarshalEvent(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
			flusher.Flush()
		}
	}
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func acceptsGzip(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept-Encoding"), "gzip")
}

func (s *Server) sendJSON(w http.ResponseWriter, r *http.Request, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	if acceptsGzip(r) {
		w.Header().Set("Content-Encoding", "gzip")
		w.WriteHeader(code)
		gw := gzipPool.Get().(*gzip.Writer)
		gw.Reset(w)
		json.NewEncoder(gw).Encode(v)
		gw.Close()
		gzipPool.Put(gw)
		return
	}
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func parseRangeHeader(rangeHeader string, totalSize int64) (offset, length int64, hasRange bool) {
	if rangeHeader == "" {
		return 0, totalSize, false
	}

	matches := rangeRegex.FindStringSubmatch(rangeHeader)
	if matches == nil {
		return 0, totalSize, false
	}

	startStr, endStr := matches[1], matches[2]
	if startStr == "" && endStr == "" {
		return 0, totalSize, false
	}

	if startStr == "" {
		suffix, _ := strconv.ParseInt(endStr, 10, 64)
		offset = max(totalSize-suffix, 0)
		return offset, totalSize - offset, true
	}

	offset, _ = strconv.ParseInt(startStr, 10, 64)
	if endStr != "" {
		end, _ := strconv.ParseInt(endStr, 10, 64)
		length = end - offset + 1
	} else {
		length = totalSize - offset
	}

	if offset >= totalSize {
		offset = max(totalSize-1, 0)
	}
	if offset+length > totalSize || length <= 0 {
		length = totalSize - offset
	}
	return offset, length, true
}

func (s *Server) sendError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error: message,
		Code:  code,
	})
}
