package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	MessagesTotal      *prometheus.CounterVec
	PendingOpen        prometheus.Gauge
	PendingResolutions *prometheus.CounterVec
	CollaboratorErrors *prometheus.CounterVec
	ClassifierLatency  prometheus.Histogram

	stages *stageWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		stages: newStageWindow(256),
		MessagesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Inbound messages by classified intent.",
		}, []string{"intent"}),
		PendingOpen: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_interactions",
			Help:      "Number of live pending interactions.",
		}),
		PendingResolutions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pending_resolutions_total",
			Help:      "Pending interaction resolutions by outcome.",
		}, []string{"outcome"}),
		CollaboratorErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collaborator_errors_total",
			Help:      "Upstream collaborator errors by service.",
		}, []string{"service"}),
		ClassifierLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "classifier_latency_ms",
			Help:      "Intent classification latency in milliseconds.",
			Buckets:   []float64{100, 250, 500, 1000, 2000, 5000, 10000, 30000},
		}),
	}
}

// ObserveClassifierLatency records one classification round trip. All Metrics
// helpers are safe on a nil receiver so unit tests can run uninstrumented.
func (m *Metrics) ObserveClassifierLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.ClassifierLatency.Observe(float64(d.Milliseconds()))
	m.stages.Observe(StageClassify, float64(d.Milliseconds()))
}

// ObserveStage records one latency sample in the debug window.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stages.Observe(stage, float64(d.Milliseconds()))
}

// LatencySnapshot reports recent per-stage latency percentiles.
func (m *Metrics) LatencySnapshot() StageSnapshot {
	if m == nil {
		return StageSnapshot{GeneratedAt: time.Now().UTC()}
	}
	return m.stages.Snapshot()
}

// CountMessage records an inbound message by intent.
func (m *Metrics) CountMessage(intentTag string) {
	if m == nil {
		return
	}
	m.MessagesTotal.WithLabelValues(intentTag).Inc()
}

// CountResolution records a pending-interaction outcome.
func (m *Metrics) CountResolution(outcome string) {
	if m == nil {
		return
	}
	m.PendingResolutions.WithLabelValues(outcome).Inc()
}

// CountCollaboratorError records a failed collaborator call.
func (m *Metrics) CountCollaboratorError(service string) {
	if m == nil {
		return
	}
	m.CollaboratorErrors.WithLabelValues(service).Inc()
}

// SetPendingOpen publishes the live pending-interaction count.
func (m *Metrics) SetPendingOpen(n int) {
	if m == nil {
		return
	}
	m.PendingOpen.Set(float64(n))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
