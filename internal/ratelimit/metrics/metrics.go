package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Rejected       *prometheus.CounterVec
	FallbackChecks prometheus.Counter
	BreakerOpen    prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "formdesk_ratelimit_rejected_total",
			Help: "Requests rejected by the per-IP limiter by endpoint class",
		}, []string{"class"}),
		FallbackChecks: factory.NewCounter(prometheus.CounterOpts{
			Name: "formdesk_ratelimit_fallback_checks_total",
			Help: "Limit checks answered by the in-process fallback store",
		}),
		BreakerOpen: factory.NewGauge(prometheus.GaugeOpts{
			Name: "formdesk_ratelimit_breaker_open",
			Help: "1 while the shared rate limit store is bypassed",
		}),
	}
}

func (m *Metrics) IncrementRejected(class string) {
	if m == nil {
		return
	}
	m.Rejected.WithLabelValues(class).Inc()
}

func (m *Metrics) IncrementFallback() {
	if m == nil {
		return
	}
	m.FallbackChecks.Inc()
}

func (m *Metrics) SetBreakerOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.BreakerOpen.Set(1)
		return
	}
	m.BreakerOpen.Set(0)
}
