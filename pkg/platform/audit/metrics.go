package audit

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	AppendLatency     prometheus.Histogram
	AppendFailures    prometheus.Counter
	IntegrityFailures prometheus.Counter
}

func NewMetrics() *Metrics {
	return &Metrics{
		AppendLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "facegate_audit_append_duration_seconds",
			Help:    "Duration of linked audit appends including the tail read",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		}),
		AppendFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "facegate_audit_append_failures_total",
			Help: "Audit appends that failed and were propagated to the caller",
		}),
		IntegrityFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "facegate_audit_integrity_invalid_events_total",
			Help: "Events flagged invalid by integrity verification",
		}),
	}
}

func (m *Metrics) ObserveAppend(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.AppendLatency.Observe(d.Seconds())
	if err != nil {
		m.AppendFailures.Inc()
	}
}

func (m *Metrics) AddIntegrityFailures(n int) {
	if m != nil && n > 0 {
		m.IntegrityFailures.Add(float64(n))
	}
}
