// Package metrics defines the Prometheus collectors shared by the engine,
// the archive manager and the HTTP layer. A nil *Metrics is valid and
// records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the pallet-registry collectors.
type Metrics struct {
	transitions  *prometheus.CounterVec
	batchItems   *prometheus.CounterVec
	archiveRows  *prometheus.CounterVec
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered, which tests use to avoid global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pallet_transitions_total",
			Help: "Single-pallet operations by operation and result.",
		}, []string{"operation", "result"}),
		batchItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pallet_batch_items_total",
			Help: "Batch validation items by operation and outcome.",
		}, []string{"operation", "outcome"}),
		archiveRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pallet_archive_rows_total",
			Help: "Rows moved by the archive manager, by action.",
		}, []string{"action"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pallet_http_requests_total",
			Help: "HTTP requests by route pattern, method and status code.",
		}, []string{"route", "method", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pallet_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern and method.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
	if reg != nil {
		reg.MustRegister(m.transitions, m.batchItems, m.archiveRows, m.httpRequests, m.httpDuration)
	}
	return m
}

// Transition counts one single-pallet operation. result is "ok" or the
// error category.
func (m *Metrics) Transition(operation, result string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(operation, result).Inc()
}

// BatchItem counts one batch item outcome ("applied" or a skip reason).
func (m *Metrics) BatchItem(operation, outcome string) {
	if m == nil {
		return
	}
	m.batchItems.WithLabelValues(operation, outcome).Inc()
}

// ArchiveRows adds n rows for an archive action (purged, restored, expired).
func (m *Metrics) ArchiveRows(action string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.archiveRows.WithLabelValues(action).Add(float64(n))
}

// HTTPRequest records one served request.
func (m *Metrics) HTTPRequest(route, method string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}
