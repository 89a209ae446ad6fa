// Package metrics provides Prometheus metrics for the tile leaderboard.
package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector the service reports. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	namespace string
	buckets   []float64
	registry  *prometheus.Registry

	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	completionsRecorded *prometheus.CounterVec
	seedRuns            *prometheus.CounterVec
	cacheLookups        *prometheus.CounterVec
	refreshDuration     prometheus.Histogram
	wsConnections       prometheus.Gauge
}

// Option configures a Metrics instance
type Option func(*Metrics)

// WithNamespace overrides the metric namespace
func WithNamespace(namespace string) Option {
	return func(m *Metrics) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// WithRegistry registers collectors on an existing registry
func WithRegistry(registry *prometheus.Registry) Option {
	return func(m *Metrics) {
		if registry != nil {
			m.registry = registry
		}
	}
}

// WithHistogramBuckets sets the latency buckets, in seconds
func WithHistogramBuckets(buckets []float64) Option {
	return func(m *Metrics) {
		if len(buckets) > 0 {
			m.buckets = buckets
		}
	}
}

// New creates the collectors on a custom registry so the default Go
// runtime metrics stay out of the exposition.
func New(opts ...Option) *Metrics {
	m := &Metrics{
		namespace: "tile_leaderboard",
		buckets:   prometheus.DefBuckets,
		registry:  prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}

	auto := promauto.With(m.registry)

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests by route, method and status code",
	}, []string{"route", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds",
		Buckets:   m.buckets,
	}, []string{"route", "method", "status_code"})

	m.completionsRecorded = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "completions_recorded_total",
		Help:      "Completion submissions by source and outcome",
	}, []string{"source", "outcome"})

	m.seedRuns = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "seed_runs_total",
		Help:      "Demo data seed runs by outcome",
	}, []string{"outcome"})

	m.cacheLookups = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "view_cache_lookups_total",
		Help:      "Leaderboard view cache lookups by result",
	}, []string{"result"})

	m.refreshDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "refresh_duration_seconds",
		Help:      "Time taken to recompute the leaderboard view",
		Buckets:   m.buckets,
	})

	m.wsConnections = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      "websocket_connections",
		Help:      "Currently connected websocket clients",
	})

	return m
}

// Registry exposes the underlying registry, mostly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordCompletion counts a completion submission
func (m *Metrics) RecordCompletion(source, outcome string) {
	if m == nil {
		return
	}
	m.completionsRecorded.WithLabelValues(source, outcome).Inc()
}

// RecordSeed counts a seed run
func (m *Metrics) RecordSeed(outcome string) {
	if m == nil {
		return
	}
	m.seedRuns.WithLabelValues(outcome).Inc()
}

// RecordCacheLookup counts a cache hit or miss
func (m *Metrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// ObserveRefresh records how long a leaderboard refresh took
func (m *Metrics) ObserveRefresh(d time.Duration) {
	if m == nil {
		return
	}
	m.refreshDuration.Observe(d.Seconds())
}

// SetWebSocketConnections reports the number of live websocket clients
func (m *Metrics) SetWebSocketConnections(n int) {
	if m == nil {
		return
	}
	m.wsConnections.Set(float64(n))
}

// Middleware records request counts and latency per chi route pattern
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := strconv.Itoa(wrapped.statusCode)
		m.httpRequests.WithLabelValues(route, r.Method, status).Inc()
		m.httpRequestDuration.WithLabelValues(route, r.Method, status).Observe(time.Since(start).Seconds())
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Hijack supports websocket upgrades through the wrapper
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("hijacking connection: %T is not a http.Hijacker", rw.ResponseWriter)
	}
	rw.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
