package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes sync and HTTP counters on a dedicated registry.
type Metrics struct {
	registry *prometheus.Registry

	SyncRuns         prometheus.Counter
	TicketsProcessed *prometheus.CounterVec
	Crossings        *prometheus.CounterVec
	SyncErrors       *prometheus.CounterVec
	SyncDuration     *prometheus.HistogramVec
	httpRequests     *prometheus.CounterVec
}

// NewMetrics initializes and registers all collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		SyncRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "glpi_sync_runs_total",
			Help: "Number of sync runs triggered.",
		}),
		TicketsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "glpi_sync_tickets_processed_total",
			Help: "Tickets processed per instance.",
		}, []string{"instance"}),
		Crossings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "glpi_sla_crossings_total",
			Help: "SLA threshold crossings detected per instance and dimension.",
		}, []string{"instance", "dimension"}),
		SyncErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "glpi_sync_errors_total",
			Help: "Per-instance sync failures by error code.",
		}, []string{"instance", "code"}),
		SyncDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "glpi_sync_duration_seconds",
			Help:    "Duration of one instance's sync cycle.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}, []string{"instance"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by path, method and status.",
		}, []string{"path", "method", "status"}),
	}

	registry.MustRegister(
		m.SyncRuns,
		m.TicketsProcessed,
		m.Crossings,
		m.SyncErrors,
		m.SyncDuration,
		m.httpRequests,
	)
	return m
}

// RecordRequest increments the HTTP request counter.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
}

// RecordSyncError counts a per-instance failure by its error code.
func (m *Metrics) RecordSyncError(instance, code string) {
	if m == nil {
		return
	}
	m.SyncErrors.WithLabelValues(instance, code).Inc()
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
