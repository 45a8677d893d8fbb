package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the risk module.
type Metrics struct {
	Evaluations  *prometheus.CounterVec
	AlertsRaised *prometheus.CounterVec
	RiskScore    prometheus.Histogram
	Resolutions  prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		Evaluations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "facegate_risk_evaluations_total",
			Help: "Risk evaluations by recommendation",
		}, []string{"recommendation"}),

		AlertsRaised: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "facegate_risk_alerts_raised_total",
			Help: "Risk alerts raised by type and severity",
		}, []string{"type", "severity"}),

		RiskScore: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "facegate_risk_score",
			Help:    "Distribution of evaluated session risk scores",
			Buckets: []float64{0, 0.1, 0.25, 0.4, 0.6, 0.85, 1},
		}),

		Resolutions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "facegate_risk_alert_resolutions_total",
			Help: "Risk alerts resolved by an operator",
		}),
	}
}

func (m *Metrics) IncrementEvaluation(recommendation string, score float64) {
	if m != nil {
		m.Evaluations.WithLabelValues(recommendation).Inc()
		m.RiskScore.Observe(score)
	}
}

func (m *Metrics) IncrementAlert(alertType, severity string) {
	if m != nil {
		m.AlertsRaised.WithLabelValues(alertType, severity).Inc()
	}
}

func (m *Metrics) IncrementResolution() {
	if m != nil {
		m.Resolutions.Inc()
	}
}
