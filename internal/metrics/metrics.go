// Package metrics exposes Prometheus collectors for the coordinator, the
// wrapper, the auditor and the HTTP surface. A nil *Metrics is valid and
// records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	svcerrors "github.com/R3E-Network/vrf_coordinator/internal/errors"
)

// Namespace prefixes every metric name.
const Namespace = "vrf_coordinator"

// Metrics holds the registered collectors.
type Metrics struct {
	registry *prometheus.Registry

	httpInFlight prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	operations   *prometheus.CounterVec
	fulfillments *prometheus.CounterVec
	payments     prometheus.Counter
	outstanding  prometheus.Gauge

	wrapperRequests prometheus.Counter
	wrapperRevenue  prometheus.Counter

	auditRuns       *prometheus.CounterVec
	journalFailures prometheus.Counter
}

// New registers a fresh set of collectors on their own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}, []string{"method", "path"}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "coordinator",
			Name:      "operations_total",
			Help:      "Entry point calls by operation and result code.",
		}, []string{"operation", "result"}),
		fulfillments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "coordinator",
			Name:      "fulfillments_total",
			Help:      "Committed fulfillments by consumer callback outcome.",
		}, []string{"callback"}),
		payments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "coordinator",
			Name:      "payments_total",
			Help:      "Sum of fulfillment payments credited to oracles, in the smallest GAS unit.",
		}),
		outstanding: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "coordinator",
			Name:      "outstanding_requests",
			Help:      "Requests with a stored commitment.",
		}),
		wrapperRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "wrapper",
			Name:      "requests_total",
			Help:      "Direct-funding requests accepted by the wrapper.",
		}),
		wrapperRevenue: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "wrapper",
			Name:      "revenue_total",
			Help:      "Paid value retained by the wrapper above request cost.",
		}),
		auditRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "audit",
			Name:      "runs_total",
			Help:      "Invariant audit runs by result.",
		}, []string{"result"}),
		journalFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "journal",
			Name:      "write_failures_total",
			Help:      "Events that could not be written to a journal sink.",
		}),
	}

	m.registry.MustRegister(
		m.httpInFlight,
		m.httpRequests,
		m.httpDuration,
		m.operations,
		m.fulfillments,
		m.payments,
		m.outstanding,
		m.wrapperRequests,
		m.wrapperRevenue,
		m.auditRuns,
		m.journalFailures,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) IncrementInFlight() {
	if m != nil {
		m.httpInFlight.Inc()
	}
}

func (m *Metrics) DecrementInFlight() {
	if m != nil {
		m.httpInFlight.Dec()
	}
}

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, path, status).Inc()
	m.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordOperation counts one entry point call; result is "ok" or the
// error code.
func (m *Metrics) RecordOperation(operation string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = svcerrors.CodeOf(err)
	}
	m.operations.WithLabelValues(operation, result).Inc()
}

// RecordFulfillment records a committed fulfillment.
func (m *Metrics) RecordFulfillment(payment int64, callbackOK bool) {
	if m == nil {
		return
	}
	outcome := "succeeded"
	if !callbackOK {
		outcome = "failed"
	}
	m.fulfillments.WithLabelValues(outcome).Inc()
	m.payments.Add(float64(payment))
}

// SetOutstanding publishes the number of outstanding requests.
func (m *Metrics) SetOutstanding(n int) {
	if m != nil {
		m.outstanding.Set(float64(n))
	}
}

// RecordWrapperRequest records an accepted wrapper request.
func (m *Metrics) RecordWrapperRequest(paid, cost int64) {
	if m == nil {
		return
	}
	m.wrapperRequests.Inc()
	if paid > cost {
		m.wrapperRevenue.Add(float64(paid - cost))
	}
}

// RecordAudit records one invariant audit run.
func (m *Metrics) RecordAudit(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "violation"
	}
	m.auditRuns.WithLabelValues(result).Inc()
}

// RecordJournalFailure counts an event a sink failed to store.
func (m *Metrics) RecordJournalFailure() {
	if m != nil {
		m.journalFailures.Inc()
	}
}
