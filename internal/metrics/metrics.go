// Package metrics exposes Prometheus collectors for the table engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tablekit"

// Metrics holds every collector. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	operations    *prometheus.CounterVec
	batchFailures *prometheus.CounterVec
	importedRows  *prometheus.CounterVec
	orphans       prometheus.Gauge
	requests      *prometheus.CounterVec
}

// New creates collectors registered on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "table_operations_total",
			Help:      "Table operations by name and outcome.",
		}, []string{"op", "outcome"}),
		batchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_document_failures_total",
			Help:      "Documents that failed inside multi-document writes.",
		}, []string{"op"}),
		importedRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "imported_rows_total",
			Help:      "Rows written by imports, by format.",
		}, []string{"format"}),
		orphans: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "orphaned_collections",
			Help:      "Collections with documents but no table metadata at the last scan.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern and status class.",
		}, []string{"route", "status"}),
	}

	m.registry.MustRegister(
		m.operations,
		m.batchFailures,
		m.importedRows,
		m.orphans,
		m.requests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Operation counts one table operation.
func (m *Metrics) Operation(op string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(op, outcome).Inc()
}

// BatchFailures adds failed documents for op.
func (m *Metrics) BatchFailures(op string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.batchFailures.WithLabelValues(op).Add(float64(n))
}

// ImportedRows adds rows written by an import.
func (m *Metrics) ImportedRows(format string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.importedRows.WithLabelValues(format).Add(float64(n))
}

// Orphans records the result of the latest orphan scan.
func (m *Metrics) Orphans(n int) {
	if m == nil {
		return
	}
	m.orphans.Set(float64(n))
}

// Request counts one HTTP request.
func (m *Metrics) Request(route string, status int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, statusClass(status)).Inc()
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
