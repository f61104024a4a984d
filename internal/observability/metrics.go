package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service's Prometheus collectors. Each Metrics instance
// owns its registry so tests can construct them freely.
type Metrics struct {
	Registry *prometheus.Registry

	httpRequests    *prometheus.CounterVec
	httpDuration    prometheus.Histogram
	triageJobs      *prometheus.CounterVec
	triageOutcomes  *prometheus.CounterVec
	triageRetries   prometheus.Counter
	classifyLatency prometheus.Histogram
	auditFailures   prometheus.Counter
	httpErrors      *prometheus.CounterVec
}

// NewMetrics initializes collectors on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		Registry: registry,
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "triage",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		httpDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "triage",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration",
			Buckets:   prometheus.DefBuckets,
		}),
		triageJobs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "triage",
			Subsystem: "queue",
			Name:      "jobs_total",
			Help:      "Triage jobs by terminal result",
		}, []string{"result"}),
		triageOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "triage",
			Subsystem: "pipeline",
			Name:      "decisions_total",
			Help:      "Triage decisions by disposition",
		}, []string{"disposition"}),
		triageRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "triage",
			Subsystem: "queue",
			Name:      "retries_total",
			Help:      "Job attempts re-queued after a retryable failure",
		}),
		classifyLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "triage",
			Subsystem: "classifier",
			Name:      "latency_seconds",
			Help:      "External classification call latency",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		auditFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "triage",
			Subsystem: "audit",
			Name:      "write_failures_total",
			Help:      "Audit writes dropped due to storage errors",
		}),
		httpErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "triage",
			Subsystem: "http",
			Name:      "errors_total",
			Help:      "HTTP errors by route, method and error code",
		}, []string{"route", "method", "code"}),
	}
}

// ObserveRequest records one completed HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.Observe(duration.Seconds())
}

// JobCompleted counts a job that ran to success.
func (m *Metrics) JobCompleted() {
	if m == nil {
		return
	}
	m.triageJobs.WithLabelValues("completed").Inc()
}

// JobFailed counts a job that failed permanently.
func (m *Metrics) JobFailed() {
	if m == nil {
		return
	}
	m.triageJobs.WithLabelValues("failed").Inc()
}

// JobRetried counts a re-queued attempt.
func (m *Metrics) JobRetried() {
	if m == nil {
		return
	}
	m.triageRetries.Inc()
}

// Decision counts a triage disposition ("auto_close" or "assign_to_human").
func (m *Metrics) Decision(disposition string) {
	if m == nil {
		return
	}
	m.triageOutcomes.WithLabelValues(disposition).Inc()
}

// ClassifyLatency records one classifier round trip.
func (m *Metrics) ClassifyLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.classifyLatency.Observe(d.Seconds())
}

// RecordError counts an HTTP request that ended in an error response.
func (m *Metrics) RecordError(route, method, code string) {
	if m == nil {
		return
	}
	m.httpErrors.WithLabelValues(route, method, code).Inc()
}

// AuditWriteFailed counts a dropped audit entry.
func (m *Metrics) AuditWriteFailed() {
	if m == nil {
		return
	}
	m.auditFailures.Inc()
}
