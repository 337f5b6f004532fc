// Package metrics exposes Prometheus metrics for the search service: HTTP
// request counts and latencies, search and enrichment outcomes, and cursor
// cache effectiveness.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mosaic"

// Metrics owns a registry and the collectors registered on it. Each server
// gets its own so several can run in one process.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec
	searchDuration      *prometheus.HistogramVec
	searchResults       *prometheus.CounterVec
	enrichmentTotal     *prometheus.CounterVec
	enrichmentDuration  *prometheus.HistogramVec
}

// New creates the collectors and registers them, together with the Go
// runtime and process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path", "status"},
		),
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		searchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "search_duration_seconds",
				Help:      "Duration of federated searches in seconds",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"format"},
		),
		searchResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "search_results_total",
				Help:      "Results returned by searches",
			},
			[]string{"format"},
		),
		enrichmentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "enrichment_hits_total",
				Help:      "Hits passed through metadata enrichment by outcome",
			},
			[]string{"index", "outcome"}, // accepted / rejected / failed
		),
		enrichmentDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "enrichment_batch_duration_seconds",
				Help:      "Duration of metadata enrichment batches in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"index"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestDuration,
		m.httpRequestsTotal,
		m.searchDuration,
		m.searchResults,
		m.enrichmentTotal,
		m.enrichmentDuration,
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// CursorStats is the view of the cursor cache the metrics read.
type CursorStats interface {
	Stats() (hits, misses uint64)
	Len() int
}

// RegisterCursorCache exports the hit and miss counts and the size of c.
func (m *Metrics) RegisterCursorCache(c CursorStats) {
	m.registry.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cursor_cache_hits_total",
			Help:      "Page requests that resumed from a cached cursor",
		}, func() float64 {
			hits, _ := c.Stats()
			return float64(hits)
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cursor_cache_misses_total",
			Help:      "Page requests that had to re-read the hit stream from the start",
		}, func() float64 {
			_, misses := c.Stats()
			return float64(misses)
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cursor_cache_entries",
			Help:      "Cursors currently cached",
		}, func() float64 {
			return float64(c.Len())
		}),
	)
}

// ObserveEnrichment records the outcome of one enrichment batch.
func (m *Metrics) ObserveEnrichment(index string, accepted, rejected, failed int, elapsed time.Duration) {
	m.enrichmentTotal.WithLabelValues(index, "accepted").Add(float64(accepted))
	m.enrichmentTotal.WithLabelValues(index, "rejected").Add(float64(rejected))
	m.enrichmentTotal.WithLabelValues(index, "failed").Add(float64(failed))
	m.enrichmentDuration.WithLabelValues(index).Observe(elapsed.Seconds())
}

// ObserveSearch records one completed search.
func (m *Metrics) ObserveSearch(format string, results int, elapsed time.Duration) {
	m.searchDuration.WithLabelValues(format).Observe(elapsed.Seconds())
	m.searchResults.WithLabelValues(format).Add(float64(results))
}

// Middleware records HTTP request duration and count.
func (m *Metrics) Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(ww.status)
			path := "unknown"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				path = rctx.RoutePattern()
			}

			m.httpRequestDuration.WithLabelValues(r.Method, path, status).Observe(duration)
			m.httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		})
	}
}

// statusWriter captures the response status code.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.status = status
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.wroteHeader = true
	}
	return w.ResponseWriter.Write(b)
}
