// Package metrics exposes import, export and HTTP counters for Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JonMunkholm/testcatalog/internal/core"
)

const namespace = "testcatalog"

// Metrics owns a private registry so tests and multiple servers do not
// collide on the default one.
type Metrics struct {
	registry *prometheus.Registry

	sessions        *prometheus.CounterVec
	sessionDuration prometheus.Histogram
	sessionRows     prometheus.Histogram
	rows            *prometheus.CounterVec
	rowDuration     prometheus.Histogram
	exports         *prometheus.CounterVec
	exportRecords   *prometheus.CounterVec
	publishes       *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// New registers all collectors, plus the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "import", Name: "sessions_total",
			Help: "Import sessions by final status.",
		}, []string{"status"}),
		sessionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "import", Name: "session_duration_seconds",
			Help:    "Wall time of import sessions.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		sessionRows: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "import", Name: "session_rows",
			Help:    "Rows per import session.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "import", Name: "rows_total",
			Help: "Imported rows by operation and status.",
		}, []string{"operation", "status"}),
		rowDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "import", Name: "row_duration_seconds",
			Help:    "Per-row processing time.",
			Buckets: prometheus.ExponentialBuckets(0.00005, 4, 8),
		}),
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "export", Name: "requests_total",
			Help: "Generated exports by format.",
		}, []string{"format"}),
		exportRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "export", Name: "records_total",
			Help: "Records written to exports by format.",
		}, []string{"format"}),
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "export", Name: "publish_total",
			Help: "Export publish attempts by sink driver and result.",
		}, []string{"driver", "result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.sessions, m.sessionDuration, m.sessionRows, m.rows, m.rowDuration,
		m.exports, m.exportRecords, m.publishes, m.httpRequests, m.httpDuration,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// TrackLimiter exposes the import limiter's occupancy as gauges.
func (m *Metrics) TrackLimiter(l *core.ImportLimiter) {
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "import", Name: "active",
			Help: "Imports currently holding a limiter slot.",
		}, func() float64 { return float64(l.ActiveCount()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "import", Name: "slots_available",
			Help: "Free import limiter slots.",
		}, func() float64 { return float64(l.Available()) }),
	)
}

// RowProcessed implements core.Observer.
func (m *Metrics) RowProcessed(op core.Operation, status core.EntryStatus, elapsed time.Duration) {
	m.rows.WithLabelValues(string(op), string(status)).Inc()
	m.rowDuration.Observe(elapsed.Seconds())
}

// SessionFinished implements core.Observer.
func (m *Metrics) SessionFinished(status core.SessionStatus, rows int, elapsed time.Duration) {
	m.sessions.WithLabelValues(string(status)).Inc()
	m.sessionDuration.Observe(elapsed.Seconds())
	m.sessionRows.Observe(float64(rows))
}

// ExportGenerated counts one generated export.
func (m *Metrics) ExportGenerated(format string, records int) {
	m.exports.WithLabelValues(format).Inc()
	m.exportRecords.WithLabelValues(format).Add(float64(records))
}

// ExportPublished counts one publish attempt.
func (m *Metrics) ExportPublished(driver string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.publishes.WithLabelValues(driver, result).Inc()
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, route string, code int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

var _ core.Observer = (*Metrics)(nil)
