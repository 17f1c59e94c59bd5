// Package metrics exposes Prometheus instruments for the cache, the
// aggregation engine and the HTTP layer. A nil *Recorder is valid and
// records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tenderlens"

type Recorder struct {
	registry *prometheus.Registry
	handler  http.Handler

	cacheEvents        *prometheus.CounterVec
	aggregationLatency *prometheus.HistogramVec
	aggregationErrors  *prometheus.CounterVec
	httpRequests       *prometheus.CounterVec
	httpLatency        *prometheus.HistogramVec
	importedRecords    *prometheus.CounterVec
}

func New() *Recorder {
	registry := prometheus.NewRegistry()
	latencyBuckets := []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}

	r := &Recorder{
		registry: registry,
		handler:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{EnableOpenMetrics: true}),
		cacheEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_events_total",
				Help:      "Dashboard cache lookups and evictions by tier.",
			},
			[]string{"tier", "event"},
		),
		aggregationLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "aggregation_duration_seconds",
				Help:      "Time spent computing one dashboard view.",
				Buckets:   latencyBuckets,
			},
			[]string{"kind"},
		),
		aggregationErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "aggregation_failures_total",
				Help:      "Dashboard views that fell back to their empty shape.",
			},
			[]string{"kind"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed.",
			},
			[]string{"method", "route", "status"},
		),
		httpLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds.",
				Buckets:   latencyBuckets,
			},
			[]string{"method", "route", "status"},
		),
		importedRecords: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "imported_records_total",
				Help:      "Uploaded tender records by outcome.",
			},
			[]string{"outcome"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.cacheEvents,
		r.aggregationLatency,
		r.aggregationErrors,
		r.httpRequests,
		r.httpLatency,
		r.importedRecords,
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return r.handler
}

func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) CacheHit(tier string)      { r.cacheEvent(tier, "hit") }
func (r *Recorder) CacheMiss(tier string)     { r.cacheEvent(tier, "miss") }
func (r *Recorder) CacheEviction(tier string) { r.cacheEvent(tier, "eviction") }

func (r *Recorder) cacheEvent(tier, event string) {
	if r == nil {
		return
	}
	r.cacheEvents.WithLabelValues(tier, event).Inc()
}

// RecordAggregation observes one view computation.
func (r *Recorder) RecordAggregation(kind string, duration time.Duration, failed bool) {
	if r == nil {
		return
	}
	r.aggregationLatency.WithLabelValues(kind).Observe(duration.Seconds())
	if failed {
		r.aggregationErrors.WithLabelValues(kind).Inc()
	}
}

// RecordImport counts upload outcomes (imported, invalid, duplicate, truncated, failed).
func (r *Recorder) RecordImport(outcome string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.importedRecords.WithLabelValues(outcome).Add(float64(n))
}

func (r *Recorder) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if r == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	statusLabel := strconv.Itoa(status)
	r.httpRequests.WithLabelValues(method, route, statusLabel).Inc()
	r.httpLatency.WithLabelValues(method, route, statusLabel).Observe(duration.Seconds())
}

// Middleware records request counts and latency labelled by chi route pattern.
func (r *Recorder) Middleware(next http.Handler) http.Handler {
	if r == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
		next.ServeHTTP(ww, req)

		route := ""
		if rctx := chi.RouteContext(req.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		r.RecordHTTPRequest(req.Method, route, status, time.Since(start))
	})
}
