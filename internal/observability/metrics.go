// Package observability wires the engine's metrics and tracing.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	cachemgr "casecontext-backend/internal/cache"
)

// Metrics holds the Prometheus registry and the HTTP collectors.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers the collectors on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	m := &Metrics{
		registry: registry,
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "context_engine_http_requests_total",
			Help: "HTTP requests by method, path, and status.",
		}, []string{"method", "path", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "context_engine_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}

	registry.MustRegister(m.RequestsTotal, m.RequestDuration)
	return m
}

// MustRegister adds further collectors to the registry.
func (m *Metrics) MustRegister(cs ...prometheus.Collector) {
	m.registry.MustRegister(cs...)
}

// Handler serves the /metrics endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// InstrumentHTTP wraps a handler with request counting and latency
// observation. Path should be the route pattern, not the raw URL, to
// bound cardinality.
func (m *Metrics) InstrumentHTTP(path string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		m.RequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(sw.status)).Inc()
		m.RequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// EngineCollector samples cache-tier counters and the circuit-breaker
// state on scrape, so the engine's internals stay free of metrics
// plumbing.
type EngineCollector struct {
	cacheStats   func() cachemgr.StatsSnapshot
	breakerState func() int
	endpoint     string

	hits      *prometheus.Desc
	misses    *prometheus.Desc
	sets      *prometheus.Desc
	evictions *prometheus.Desc
	size      *prometheus.Desc
	hitRate   *prometheus.Desc
	breaker   *prometheus.Desc
}

// NewEngineCollector creates the sampling collector. breakerState reports
// 0 closed, 1 half-open, 2 open.
func NewEngineCollector(endpoint string, cacheStats func() cachemgr.StatsSnapshot, breakerState func() int) *EngineCollector {
	return &EngineCollector{
		cacheStats:   cacheStats,
		breakerState: breakerState,
		endpoint:     endpoint,
		hits: prometheus.NewDesc("context_engine_cache_hits_total",
			"Cache hits by tier.", []string{"tier"}, nil),
		misses: prometheus.NewDesc("context_engine_cache_misses_total",
			"Cache misses by tier.", []string{"tier"}, nil),
		sets: prometheus.NewDesc("context_engine_cache_sets_total",
			"Cache stores by tier.", []string{"tier"}, nil),
		evictions: prometheus.NewDesc("context_engine_cache_evictions_total",
			"Cache evictions by tier.", []string{"tier"}, nil),
		size: prometheus.NewDesc("context_engine_cache_size",
			"Current entries by tier.", []string{"tier"}, nil),
		hitRate: prometheus.NewDesc("context_engine_cache_hit_rate",
			"Overall cache hit rate.", nil, nil),
		breaker: prometheus.NewDesc("context_engine_breaker_state",
			"Circuit breaker state per endpoint (0 closed, 1 half-open, 2 open).",
			[]string{"endpoint"}, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *EngineCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hits
	ch <- c.misses
	ch <- c.sets
	ch <- c.evictions
	ch <- c.size
	ch <- c.hitRate
	ch <- c.breaker
}

// Collect implements prometheus.Collector.
func (c *EngineCollector) Collect(ch chan<- prometheus.Metric) {
	snapshot := c.cacheStats()
	for tier, stats := range snapshot.Tiers {
		ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(stats.Hits), tier)
		ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(stats.Misses), tier)
		ch <- prometheus.MustNewConstMetric(c.sets, prometheus.CounterValue, float64(stats.Sets), tier)
		ch <- prometheus.MustNewConstMetric(c.evictions, prometheus.CounterValue, float64(stats.Evictions), tier)
		ch <- prometheus.MustNewConstMetric(c.size, prometheus.GaugeValue, float64(stats.Size), tier)
	}
	ch <- prometheus.MustNewConstMetric(c.hitRate, prometheus.GaugeValue, snapshot.HitRate)
	ch <- prometheus.MustNewConstMetric(c.breaker, prometheus.GaugeValue, float64(c.breakerState()), c.endpoint)
}
