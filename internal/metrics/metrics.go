// Package metrics exposes Prometheus instruments for mappings, index managers
// and the HTTP server.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "searchmap"

// Breaker state values of the backend_breaker_state gauge.
const (
	breakerClosed   = 0
	breakerHalfOpen = 1
	breakerOpen     = 2
)

// Metrics implements the searchmap observer on top of Prometheus collectors.
type Metrics struct {
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec

	mappingBuildsTotal   *prometheus.CounterVec
	mappingBuildDuration prometheus.Histogram
	mappedTypes          prometheus.Gauge

	documentsTotal *prometheus.CounterVec
	bulkSize       *prometheus.HistogramVec
	bulkDuration   *prometheus.HistogramVec
	searchDuration *prometheus.HistogramVec
	searchHits     *prometheus.HistogramVec
	breakerState   *prometheus.GaugeVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
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
		mappingBuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "mapping_builds_total",
				Help:      "Mapping builds by outcome",
			},
			[]string{"status"},
		),
		mappingBuildDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "mapping_build_duration_seconds",
				Help:      "Time to build a mapping and start its indexes",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
		),
		mappedTypes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "mapped_types",
				Help:      "Number of types of the last successful mapping",
			},
		),
		documentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "documents_total",
				Help:      "Document works executed by index and outcome",
			},
			[]string{"index", "status"},
		),
		bulkSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "bulk_size",
				Help:      "Number of document works per bulk request",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 11),
			},
			[]string{"index"},
		),
		bulkDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "bulk_duration_seconds",
				Help:      "Bulk request duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"index"},
		),
		searchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "search_duration_seconds",
				Help:      "Search duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"index", "status"},
		),
		searchHits: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "search_hits",
				Help:      "Hits returned per search",
				Buckets:   []float64{0, 1, 5, 10, 20, 50, 100, 500},
			},
			[]string{"index"},
		),
		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "backend_breaker_state",
				Help:      "Circuit breaker state of a remote backend: 0 closed, 1 half-open, 2 open",
			},
			[]string{"backend"},
		),
	}
	reg.MustRegister(
		m.httpRequestDuration, m.httpRequestsTotal,
		m.mappingBuildsTotal, m.mappingBuildDuration, m.mappedTypes,
		m.documentsTotal, m.bulkSize, m.bulkDuration,
		m.searchDuration, m.searchHits, m.breakerState,
	)
	return m
}

// ObserveMapping records a mapping build.
func (m *Metrics) ObserveMapping(types int, d time.Duration, err error) {
	m.mappingBuildsTotal.WithLabelValues(status(err)).Inc()
	m.mappingBuildDuration.Observe(d.Seconds())
	if err == nil {
		m.mappedTypes.Set(float64(types))
	}
}

// ObserveBulk records one bulk request and the outcome of its works.
func (m *Metrics) ObserveBulk(index string, size, failed int, d time.Duration) {
	m.bulkSize.WithLabelValues(index).Observe(float64(size))
	m.bulkDuration.WithLabelValues(index).Observe(d.Seconds())
	if ok := size - failed; ok > 0 {
		m.documentsTotal.WithLabelValues(index, "ok").Add(float64(ok))
	}
	if failed > 0 {
		m.documentsTotal.WithLabelValues(index, "error").Add(float64(failed))
	}
}

// ObserveSearch records one search request.
func (m *Metrics) ObserveSearch(index string, hits int, d time.Duration, err error) {
	m.searchDuration.WithLabelValues(index, status(err)).Observe(d.Seconds())
	if err == nil {
		m.searchHits.WithLabelValues(index).Observe(float64(hits))
	}
}

// ObserveBreaker records a circuit breaker transition.
func (m *Metrics) ObserveBreaker(backend, state string) {
	v := breakerClosed
	switch state {
	case "half-open":
		v = breakerHalfOpen
	case "open":
		v = breakerOpen
	}
	m.breakerState.WithLabelValues(backend).Set(float64(v))
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
