// Package monitoring exposes prometheus metrics for the HTTP surface and the
// record indexer.
package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector of one process. Each instance owns its own
// registry, so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	HttpRequestsTotal   *prometheus.CounterVec
	HttpRequestDuration *prometheus.HistogramVec
	ActiveConnections   prometheus.Gauge

	RecordsIndexed       *prometheus.CounterVec
	RecordIndexDuration  *prometheus.HistogramVec
	RecordIndexErrors    *prometheus.CounterVec
	NotificationsDerived *prometheus.CounterVec
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		HttpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"path"},
		),

		HttpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path"},
		),

		ActiveConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "active_connections",
				Help: "Number of active connections",
			},
		),

		RecordsIndexed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "records_indexed_total",
				Help: "Total number of replica records written to the index",
			},
			[]string{"kind"},
		),

		RecordIndexDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "record_index_duration_seconds",
				Help:    "Duration of indexing one replica record",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),

		RecordIndexErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "record_index_errors_total",
				Help: "Total number of replica records that failed to index",
			},
			[]string{"kind"},
		),

		NotificationsDerived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifications_derived_total",
				Help: "Total number of notifications derived for the local user",
			},
			[]string{"type"},
		),
	}

	m.registry.MustRegister(
		m.HttpRequestsTotal,
		m.HttpRequestDuration,
		m.ActiveConnections,
		m.RecordsIndexed,
		m.RecordIndexDuration,
		m.RecordIndexErrors,
		m.NotificationsDerived,
	)
	return m
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
