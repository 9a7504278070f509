package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outbox delivery outcomes.
const (
	OutboxPublished    = "published"
	OutboxRetried      = "retried"
	OutboxDeadLettered = "dead_lettered"
)

// OutboxMetrics covers the publisher loop. Nil-safe.
type OutboxMetrics struct {
	deliveries *prometheus.CounterVec
	batchSize  prometheus.Histogram
	latency    prometheus.Histogram
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return nil
	}
	m := &OutboxMetrics{
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "deliveries_total",
			Help:      "Outbox rows settled by the publisher, by outcome.",
		}, []string{"result"}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "claimed_rows",
			Help:      "Rows claimed per publisher poll.",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250},
		}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "publish_lag_seconds",
			Help:      "Time between an event being queued and being published.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
	}
	reg.MustRegister(m.deliveries, m.batchSize, m.latency)
	return m
}

func (m *OutboxMetrics) IncDelivery(result string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(normalizeLabel(result)).Inc()
}

func (m *OutboxMetrics) ObserveClaimed(n int) {
	if m == nil {
		return
	}
	m.batchSize.Observe(float64(n))
}

// ObservePublished records queue lag for a row created at queuedAt.
func (m *OutboxMetrics) ObservePublished(queuedAt time.Time) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(OutboxPublished).Inc()
	if queuedAt.IsZero() {
		return
	}
	if lag := time.Since(queuedAt); lag > 0 {
		m.latency.Observe(lag.Seconds())
	}
}
