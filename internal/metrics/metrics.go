// Package metrics exposes Prometheus instrumentation for the serving layers.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every collector the server reports.
type Registry struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	SearchesTotal    *prometheus.CounterVec
	SearchDuration   prometheus.Histogram
	SearchResults    prometheus.Histogram
	DocumentsTotal   prometheus.Gauge
	IngestFilesTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewRegistry creates a registry with all collectors registered.
func NewRegistry() *Registry {
	r := &Registry{registry: prometheus.NewRegistry()}
	factory := promauto.With(r.registry)

	r.HTTPRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docsearch_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	r.HTTPRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docsearch_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
	r.SearchesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docsearch_searches_total",
			Help: "Total number of search queries",
		},
		[]string{"status"}, // ok, empty, error
	)
	r.SearchDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "docsearch_search_duration_seconds",
			Help:    "Search latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
	)
	r.SearchResults = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "docsearch_search_results",
			Help:    "Number of results returned per search",
			Buckets: []float64{0, 1, 5, 10, 20, 50, 100},
		},
	)
	r.DocumentsTotal = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "docsearch_documents_total",
			Help: "Number of documents in the index",
		},
	)
	r.IngestFilesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docsearch_ingest_files_total",
			Help: "Source files processed by ingest runs",
		},
		[]string{"result"}, // indexed, failed, skipped, deleted
	)
	return r
}

// RecordHTTPRequest records a served request.
func (r *Registry) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	r.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	r.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordSearch records one query. err takes precedence over results.
func (r *Registry) RecordSearch(results int, duration time.Duration, err error) {
	r.SearchDuration.Observe(duration.Seconds())
	switch {
	case err != nil:
		r.SearchesTotal.WithLabelValues("error").Inc()
		return
	case results == 0:
		r.SearchesTotal.WithLabelValues("empty").Inc()
	default:
		r.SearchesTotal.WithLabelValues("ok").Inc()
	}
	r.SearchResults.Observe(float64(results))
}

// SetDocuments sets the indexed document gauge.
func (r *Registry) SetDocuments(n int) {
	r.DocumentsTotal.Set(float64(n))
}

// RecordIngest adds n files to the given ingest result.
func (r *Registry) RecordIngest(result string, n int) {
	r.IngestFilesTotal.WithLabelValues(result).Add(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
// Compression is left to the serving middleware.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		Registry:           r.registry,
		DisableCompression: true,
	})
}
