package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"audit-analyzer/internal/store"
)

type Metrics struct {
	registry  *prometheus.Registry
	calls     *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	documents *prometheus.CounterVec
	warnings  prometheus.Counter
}

// New registers the service's collectors on a fresh registry, plus the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "audit_analyzer",
			Name:      "completion_calls_total",
			Help:      "Completion calls by stage and outcome.",
		}, []string{"stage", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "audit_analyzer",
			Name:      "completion_duration_seconds",
			Help:      "Completion call latency by stage.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60, 120},
		}, []string{"stage"}),
		documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "audit_analyzer",
			Name:      "documents_total",
			Help:      "Uploaded documents by outcome.",
		}, []string{"outcome"}),
		warnings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "audit_analyzer",
			Name:      "sequencing_warnings_total",
			Help:      "Follow-up attempts made before a summary existed.",
		}),
	}
	reg.MustRegister(
		m.calls, m.latency, m.documents, m.warnings,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// RecordCall satisfies workflow.Recorder.
func (m *Metrics) RecordCall(_ context.Context, rec store.CallRecord) {
	outcome := "ok"
	if !rec.OK {
		outcome = "error"
	}
	m.calls.WithLabelValues(rec.Stage, outcome).Inc()
	m.latency.WithLabelValues(rec.Stage).Observe(rec.Latency.Seconds())
}

func (m *Metrics) DocumentAccepted() { m.documents.WithLabelValues("accepted").Inc() }

func (m *Metrics) DocumentRejected() { m.documents.WithLabelValues("rejected").Inc() }

func (m *Metrics) SequencingWarning() { m.warnings.Inc() }

// TrackSessions exposes the live session count as a gauge.
func (m *Metrics) TrackSessions(count func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "audit_analyzer",
		Name:      "sessions_active",
		Help:      "Sessions currently held in memory.",
	}, func() float64 { return float64(count()) }))
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
