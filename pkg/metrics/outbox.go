package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outbox relay outcomes.
const (
	OutboxPublished    = "published"
	OutboxRetried      = "retried"
	OutboxDeadLettered = "dead_lettered"
	OutboxDeferred     = "deferred"
)

// OutboxMetrics tracks what the relay does with each outbox row and how long
// rows waited between commit and publish.
type OutboxMetrics struct {
	rows *prometheus.CounterVec
	lag  *prometheus.HistogramVec
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	rows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "rows_total",
		Help:      "Outbox rows handled by the relay, by event type and outcome.",
	}, []string{"event_type", "outcome"})
	lag := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "publish_lag_seconds",
		Help:      "Time from outbox commit to successful publish.",
		Buckets:   []float64{.1, .5, 1, 5, 15, 60, 300, 900},
	}, []string{"event_type"})
	reg.MustRegister(rows, lag)
	return &OutboxMetrics{rows: rows, lag: lag}
}

func (o *OutboxMetrics) IncRow(eventType, outcome string) {
	if o == nil || o.rows == nil {
		return
	}
	o.rows.WithLabelValues(eventType, outcome).Inc()
}

func (o *OutboxMetrics) ObserveLag(eventType string, lag time.Duration) {
	if o == nil || o.lag == nil || lag < 0 {
		return
	}
	o.lag.WithLabelValues(eventType).Observe(lag.Seconds())
}
