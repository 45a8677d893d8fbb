package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the cascade.
type Metrics struct {
	// Decisions by outcome and terminal state
	Decisions *prometheus.CounterVec

	// Full cascade latency, backup call included
	Duration prometheus.Histogram

	// Backup calls by outcome: matched, rejected, unavailable
	BackupCalls   *prometheus.CounterVec
	BackupLatency prometheus.Histogram

	// Validation rejections before any gate ran
	Rejections prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		Decisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "facegate_cascade_decisions_total",
			Help: "Cascade decisions by decision and terminal state",
		}, []string{"decision", "state"}),

		Duration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "facegate_cascade_duration_seconds",
			Help:    "Duration of a full cascade evaluation",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),

		BackupCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "facegate_cascade_backup_calls_total",
			Help: "Backup comparison calls by outcome",
		}, []string{"outcome"}),

		BackupLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "facegate_cascade_backup_duration_seconds",
			Help:    "Duration of backup comparison calls",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 0.75, 1, 2},
		}),

		Rejections: promauto.NewCounter(prometheus.CounterOpts{
			Name: "facegate_cascade_rejections_total",
			Help: "Captures rejected by input validation",
		}),
	}
}

func (m *Metrics) ObserveDecision(decision, state string, d time.Duration) {
	if m != nil {
		m.Decisions.WithLabelValues(decision, state).Inc()
		m.Duration.Observe(d.Seconds())
	}
}

func (m *Metrics) ObserveBackup(outcome string, d time.Duration) {
	if m != nil {
		m.BackupCalls.WithLabelValues(outcome).Inc()
		m.BackupLatency.Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementRejection() {
	if m != nil {
		m.Rejections.Inc()
	}
}
