// internal/observability/metrics.go
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service. All
// helper methods are nil-safe so instrumented code never needs to
// check whether metrics are enabled.
type Metrics struct {
	DialogueSessions   *prometheus.CounterVec
	DialogueRejections prometheus.Counter
	ActionsScheduled   *prometheus.CounterVec
	ActionsCompleted   *prometheus.CounterVec
	ActionsCancelled   prometheus.Counter
	TurnsProcessed     prometheus.Counter
	TurnErrors         prometheus.Counter
}

// NewMetrics registers all instruments under the given namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		DialogueSessions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dialogue_sessions_total",
			Help:      "Dialogue sessions by lifecycle event.",
		}, []string{"event"}),
		DialogueRejections: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dialogue_rejections_total",
			Help:      "Dialogue inputs rejected by validation.",
		}),
		ActionsScheduled: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_scheduled_total",
			Help:      "Deferred actions scheduled by kind.",
		}, []string{"kind"}),
		ActionsCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_completed_total",
			Help:      "Deferred actions completed by kind.",
		}, []string{"kind"}),
		ActionsCancelled: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_cancelled_total",
			Help:      "Deferred actions cancelled before completion.",
		}),
		TurnsProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_processed_total",
			Help:      "Inbound turns processed by the gateway.",
		}),
		TurnErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turn_errors_total",
			Help:      "Inbound turns that failed processing.",
		}),
	}
}

func (m *Metrics) SessionEvent(event string) {
	if m == nil {
		return
	}
	m.DialogueSessions.WithLabelValues(event).Inc()
}

func (m *Metrics) InputRejected() {
	if m == nil {
		return
	}
	m.DialogueRejections.Inc()
}

func (m *Metrics) ActionScheduled(kind string) {
	if m == nil {
		return
	}
	m.ActionsScheduled.WithLabelValues(kind).Inc()
}

func (m *Metrics) ActionCompleted(kind string) {
	if m == nil {
		return
	}
	m.ActionsCompleted.WithLabelValues(kind).Inc()
}

func (m *Metrics) ActionCancelled() {
	if m == nil {
		return
	}
	m.ActionsCancelled.Inc()
}

func (m *Metrics) TurnProcessed() {
	if m == nil {
		return
	}
	m.TurnsProcessed.Inc()
}

func (m *Metrics) TurnError() {
	if m == nil {
		return
	}
	m.TurnErrors.Inc()
}

// MetricsHandler exposes the default Prometheus registry over HTTP.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
