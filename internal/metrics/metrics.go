// Package metrics exposes Prometheus collectors for the query cache.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fetch outcomes.
const (
	OutcomeSuccess   = "success"
	OutcomeError     = "error"
	OutcomeDiscarded = "discarded"
)

// Metrics owns a private registry so several instances (tests, embedded
// dashboards) never collide on the default registerer. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	fetchesTotal         *prometheus.CounterVec
	fetchDurationSeconds *prometheus.HistogramVec
	fetchRetriesTotal    *prometheus.CounterVec
	mutationsTotal       *prometheus.CounterVec
	cacheEvictionsTotal  *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		fetchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scrapedeck_fetches_total",
				Help: "Settled query fetches, labeled by entity kind and outcome.",
			},
			[]string{"kind", "outcome"},
		),
		fetchDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scrapedeck_fetch_duration_seconds",
				Help:    "Latency of individual fetch attempts, labeled by entity kind.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"kind"},
		),
		fetchRetriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scrapedeck_fetch_retries_total",
				Help: "Fetch attempts scheduled for retry after a failure.",
			},
			[]string{"kind"},
		),
		mutationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scrapedeck_mutations_total",
				Help: "Job mutations, labeled by operation and outcome.",
			},
			[]string{"op", "outcome"},
		),
		cacheEvictionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scrapedeck_cache_evictions_total",
				Help: "Cache entries evicted by garbage collection.",
			},
			[]string{"kind"},
		),
	}
	reg.MustRegister(
		m.fetchesTotal,
		m.fetchDurationSeconds,
		m.fetchRetriesTotal,
		m.mutationsTotal,
		m.cacheEvictionsTotal,
		collectors.NewGoCollector(),
	)
	return m
}

// Registry returns the registry backing the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// TrackEntries exposes the live cache size through fn.
func (m *Metrics) TrackEntries(fn func() int) {
	if m == nil || fn == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "scrapedeck_cache_entries",
			Help: "Number of live cache entries.",
		},
		func() float64 { return float64(fn()) },
	))
}

// ObserveFetch records a settled fetch.
func (m *Metrics) ObserveFetch(kind, outcome string) {
	if m == nil {
		return
	}
	m.fetchesTotal.WithLabelValues(kind, outcome).Inc()
}

// ObserveAttempt records the latency of one fetch attempt.
func (m *Metrics) ObserveAttempt(kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.fetchDurationSeconds.WithLabelValues(kind).Observe(d.Seconds())
}

// ObserveRetry records a scheduled retry.
func (m *Metrics) ObserveRetry(kind string) {
	if m == nil {
		return
	}
	m.fetchRetriesTotal.WithLabelValues(kind).Inc()
}

// ObserveMutation records a mutation outcome.
func (m *Metrics) ObserveMutation(op string, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	m.mutationsTotal.WithLabelValues(op, outcome).Inc()
}

// ObserveEviction records a GC eviction.
func (m *Metrics) ObserveEviction(kind string) {
	if m == nil {
		return
	}
	m.cacheEvictionsTotal.WithLabelValues(kind).Inc()
}
