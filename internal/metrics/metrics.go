// Package metrics provides Prometheus metrics for the docshelf builder and server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docshelf_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docshelf_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	assetBytesServed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "docshelf_asset_bytes_served_total",
			Help: "Total bytes served from the asset endpoint",
		},
	)

	// Builder metrics
	manifestNodes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "docshelf_manifest_nodes",
			Help: "Number of nodes in the last generated or loaded manifest",
		},
	)

	manifestBuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "docshelf_manifest_build_duration_seconds",
			Help:    "Time to scan the library and write the manifest",
			Buckets: prometheus.DefBuckets,
		},
	)

	conversionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docshelf_legacy_conversions_total",
			Help: "Legacy document conversions attempted by the builder",
		},
		[]string{"result"},
	)

	// Runtime metrics
	manifestLoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docshelf_manifest_loads_total",
			Help: "Manifest loads performed by the library runtime",
		},
		[]string{"result"},
	)

	previewsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docshelf_previews_total",
			Help: "Previews resolved, by resulting state kind",
		},
		[]string{"kind"},
	)

	previewDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "docshelf_preview_duration_seconds",
			Help:    "Time to resolve a preview",
			Buckets: prometheus.DefBuckets,
		},
	)

	previewsDiscarded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "docshelf_previews_discarded_total",
			Help: "Preview results dropped because a newer preview started",
		},
	)

	searchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "docshelf_search_duration_seconds",
			Help:    "Time to run a name and content search",
			Buckets: prometheus.DefBuckets,
		},
	)

	searchesDiscarded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "docshelf_searches_discarded_total",
			Help: "Search results dropped because a newer query was issued",
		},
	)

	searchCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docshelf_search_text_cache_lookups_total",
			Help: "Search text cache lookups",
		},
		[]string{"result"},
	)

	objectsLive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "docshelf_objects_live",
			Help: "Image object references currently held",
		},
	)

	// S3 metrics
	s3OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docshelf_s3_operation_duration_seconds",
			Help:    "S3 operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	s3OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docshelf_s3_operations_total",
			Help: "Total S3 operations",
		},
		[]string{"operation", "status"},
	)

	// SSE metrics
	sseConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "docshelf_sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	sseEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docshelf_sse_events_total",
			Help: "Total SSE events published",
		},
		[]string{"type"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(method string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordAssetServed records bytes written by the asset endpoint.
func RecordAssetServed(bytes int64) {
	assetBytesServed.Add(float64(bytes))
}

// SetManifestNodes sets the manifest node gauge.
func SetManifestNodes(count int) {
	manifestNodes.Set(float64(count))
}

// RecordManifestBuild records one builder run.
func RecordManifestBuild(duration time.Duration) {
	manifestBuildDuration.Observe(duration.Seconds())
}

// RecordConversion records a legacy document conversion attempt.
func RecordConversion(success bool) {
	conversionsTotal.WithLabelValues(result(success)).Inc()
}

// RecordManifestLoad records a runtime manifest load.
func RecordManifestLoad(success bool) {
	manifestLoadsTotal.WithLabelValues(result(success)).Inc()
}

// RecordPreview records a committed preview state.
func RecordPreview(kind string, duration time.Duration) {
	previewsTotal.WithLabelValues(kind).Inc()
	previewDuration.Observe(duration.Seconds())
}

// RecordPreviewDiscarded records a superseded preview result.
func RecordPreviewDiscarded() {
	previewsDiscarded.Inc()
}

// RecordSearch records a published search.
func RecordSearch(duration time.Duration) {
	searchDuration.Observe(duration.Seconds())
}

// RecordSearchDiscarded records a superseded search.
func RecordSearchDiscarded() {
	searchesDiscarded.Inc()
}

// RecordSearchCache records a text cache lookup.
func RecordSearchCache(hit bool) {
	if hit {
		searchCacheLookups.WithLabelValues("hit").Inc()
		return
	}
	searchCacheLookups.WithLabelValues("miss").Inc()
}

// SetObjectsLive sets the number of live image objects.
func SetObjectsLive(count int) {
	objectsLive.Set(float64(count))
}

// RecordS3Operation records an S3 operation.
func RecordS3Operation(operation string, duration time.Duration, success bool) {
	s3OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	s3OperationsTotal.WithLabelValues(operation, result(success)).Inc()
}

// SetSSEConnectionsActive sets the number of active SSE connections.
func SetSSEConnectionsActive(count int64) {
	sseConnectionsActive.Set(float64(count))
}

// RecordSSEEvent records an SSE event publication.
func RecordSSEEvent(eventType string) {
	sseEventsTotal.WithLabelValues(eventType).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware returns HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		RecordHTTPRequest(r.Method, rw.statusCode, time.Since(start))
	})
}
