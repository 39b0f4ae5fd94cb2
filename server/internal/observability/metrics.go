package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "chatdigest"

// Drain outcomes recorded by RecordDrain.
const (
	DrainOutcomeSummarized   = "summarized"
	DrainOutcomeInsufficient = "insufficient"
	DrainOutcomeEngineFailed = "engine_failed"
	DrainOutcomeStoreFailed  = "store_failed"
)

// Metrics holds the Prometheus collectors for the webhook pipeline.
// Each instance owns its registry so tests and multiple servers never collide.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	eventsTotal         *prometheus.CounterVec
	linesArchivedTotal  prometheus.Counter
	linesDrainedTotal   prometheus.Counter
	drainsTotal         *prometheus.CounterVec
	summarizeDuration   *prometheus.HistogramVec
	repliesTotal        *prometheus.CounterVec
	inflightSummaries   prometheus.Gauge
}

// NewMetrics creates and registers the collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests processed",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "webhook_events_total",
			Help:      "Webhook events grouped by type",
		}, []string{"type"}),
		linesArchivedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "lines_archived_total",
			Help:      "Conversation lines appended to the backlog",
		}),
		linesDrainedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "lines_drained_total",
			Help:      "Conversation lines removed from the backlog by a drain",
		}),
		drainsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "drains_total",
			Help:      "Summary triggers grouped by outcome",
		}, []string{"outcome"}),
		summarizeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "summarize_duration_seconds",
			Help:      "Duration of summarization engine calls",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		}, []string{"outcome"}),
		repliesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "replies_total",
			Help:      "Replies dispatched grouped by result",
		}, []string{"result"}),
		inflightSummaries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "inflight_summaries",
			Help:      "Summarization engine calls currently running",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.eventsTotal,
		m.linesArchivedTotal,
		m.linesDrainedTotal,
		m.drainsTotal,
		m.summarizeDuration,
		m.repliesTotal,
		m.inflightSummaries,
	)
	return m
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func (m *Metrics) RecordEvent(eventType string) {
	m.eventsTotal.WithLabelValues(eventType).Inc()
}

func (m *Metrics) RecordArchived() {
	m.linesArchivedTotal.Inc()
}

// RecordDrain records a trigger outcome and the number of lines it removed.
func (m *Metrics) RecordDrain(outcome string, drained int) {
	m.drainsTotal.WithLabelValues(outcome).Inc()
	if drained > 0 {
		m.linesDrainedTotal.Add(float64(drained))
	}
}

// StartSummarize marks an engine call as running. The returned func records its duration.
func (m *Metrics) StartSummarize() func(outcome string) {
	m.inflightSummaries.Inc()
	start := time.Now()
	return func(outcome string) {
		m.inflightSummaries.Dec()
		m.summarizeDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) RecordReply(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.repliesTotal.WithLabelValues(result).Inc()
}
