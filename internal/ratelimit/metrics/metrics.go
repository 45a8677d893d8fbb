package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Rejections  prometheus.Counter
	StoreErrors prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		Rejections: promauto.NewCounter(prometheus.CounterOpts{
			Name: "facegate_ratelimit_rejections_total",
			Help: "Requests rejected because the terminal exceeded its window",
		}),
		StoreErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "facegate_ratelimit_store_errors_total",
			Help: "Limiter store failures; the request was let through",
		}),
	}
}

func (m *Metrics) IncrementRejections() {
	if m != nil {
		m.Rejections.Inc()
	}
}

func (m *Metrics) IncrementStoreErrors() {
	if m != nil {
		m.StoreErrors.Inc()
	}
}
