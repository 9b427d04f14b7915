package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests and multiple daemons in one
// process never collide on the default registerer.
type Metrics struct {
	registry     *prometheus.Registry
	outcomes     *prometheus.CounterVec
	readErrors   prometheus.Counter
	documents    *prometheus.CounterVec
	llmRequests  *prometheus.CounterVec
	comparisons  prometheus.Counter
	drainSeconds prometheus.Histogram
}

// New registers the mailroom collectors plus the Go runtime and process
// collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailroom_intake_outcomes_total",
			Help: "Intake calls by outcome status.",
		}, []string{"outcome"}),
		readErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailroom_intake_read_errors_total",
			Help: "Candidate files skipped because they could not be read.",
		}),
		documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailroom_documents_total",
			Help: "Archived documents by processing status.",
		}, []string{"status"}),
		llmRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailroom_llm_requests_total",
			Help: "LLM requests by operation and result.",
		}, []string{"op", "result"}),
		comparisons: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailroom_comparisons_total",
			Help: "Invoice comparisons archived.",
		}),
		drainSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mailroom_drain_duration_seconds",
			Help:    "Time spent draining the attachments folder.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
	}
	m.registry.MustRegister(
		m.outcomes,
		m.readErrors,
		m.documents,
		m.llmRequests,
		m.comparisons,
		m.drainSeconds,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// IntakeOutcome counts one intake call.
func (m *Metrics) IntakeOutcome(status string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(status).Inc()
}

// IntakeReadError counts one unreadable candidate.
func (m *Metrics) IntakeReadError() {
	if m == nil {
		return
	}
	m.readErrors.Inc()
}

// DocumentArchived counts one archived document.
func (m *Metrics) DocumentArchived(status string) {
	if m == nil {
		return
	}
	m.documents.WithLabelValues(status).Inc()
}

// LLMRequest counts one LLM call. Its signature matches llm.WithObserver.
func (m *Metrics) LLMRequest(op, result string) {
	if m == nil {
		return
	}
	m.llmRequests.WithLabelValues(op, result).Inc()
}

// ComparisonArchived counts one stored comparison.
func (m *Metrics) ComparisonArchived() {
	if m == nil {
		return
	}
	m.comparisons.Inc()
}

// ObserveDrain records how long one drain pass took.
func (m *Metrics) ObserveDrain(seconds float64) {
	if m == nil {
		return
	}
	m.drainSeconds.Observe(seconds)
}
