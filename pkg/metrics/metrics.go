// Package metrics defines the Prometheus collectors used by the timeline
// service and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	LayoutRequestsTotal  *prometheus.CounterVec
	LayoutLatency        *prometheus.HistogramVec
	KindPages            *prometheus.HistogramVec
	SubjectsPacked       *prometheus.CounterVec
	StoreFetchLatency    *prometheus.HistogramVec
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	ImportEventsTotal    *prometheus.CounterVec
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates all collectors and registers them with reg. A nil reg uses
// the process-wide default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		LayoutRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "layout_requests_total",
				Help: "Total layout requests by result (ok, invalid, not_found, error).",
			},
			[]string{"result"},
		),
		LayoutLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "layout_latency_seconds",
				Help:    "Layout computation latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"cache_status"},
		),
		KindPages: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "layout_kind_pages",
				Help:    "Number of pages computed per kind.",
				Buckets: []float64{1, 2, 3, 5, 8, 13, 21},
			},
			[]string{"kind"},
		),
		SubjectsPacked: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "layout_subjects_packed_total",
				Help: "Candidate subjects fed to the lane engine per kind.",
			},
			[]string{"kind"},
		),
		StoreFetchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "store_fetch_latency_seconds",
				Help:    "Candidate fetch latency per kind in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"kind"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "layout_cache_hits_total",
				Help: "Total number of layout cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "layout_cache_misses_total",
				Help: "Total number of layout cache misses.",
			},
		),
		ImportEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "import_events_total",
				Help: "Subject import events by operation and status.",
			},
			[]string{"op", "status"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.LayoutRequestsTotal,
		m.LayoutLatency,
		m.KindPages,
		m.SubjectsPacked,
		m.StoreFetchLatency,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.ImportEventsTotal,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler for g. A nil g uses the
// default gatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
