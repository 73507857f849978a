package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	ApplicationsSubmitted  *prometheus.CounterVec
	PaymentsVerified       *prometheus.CounterVec
	DuplicateVerifications prometheus.Counter
	DeliveryFailures       prometheus.Counter
	VerifyDuration         prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ApplicationsSubmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "formdesk_applications_submitted_total",
			Help: "Applications accepted at intake by delivery method",
		}, []string{"delivery_method"}),
		PaymentsVerified: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "formdesk_payments_verified_total",
			Help: "Applications moved to paid by payment method",
		}, []string{"payment_method"}),
		DuplicateVerifications: factory.NewCounter(prometheus.CounterOpts{
			Name: "formdesk_payment_verifications_duplicate_total",
			Help: "Verifications that found the application already paid",
		}),
		DeliveryFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "formdesk_delivery_failures_total",
			Help: "Paid applications whose document delivery failed",
		}),
		VerifyDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "formdesk_payment_verify_duration_seconds",
			Help:    "Time to verify a payment including delivery",
			Buckets: []float64{.01, .05, .1, .5, 1, 2, 3, 5, 10},
		}),
	}
}

func (m *Metrics) IncrementSubmitted(deliveryMethod string) {
	if m == nil {
		return
	}
	m.ApplicationsSubmitted.WithLabelValues(deliveryMethod).Inc()
}

func (m *Metrics) IncrementVerified(paymentMethod string) {
	if m == nil {
		return
	}
	m.PaymentsVerified.WithLabelValues(paymentMethod).Inc()
}

func (m *Metrics) IncrementDuplicateVerifications() {
	if m == nil {
		return
	}
	m.DuplicateVerifications.Inc()
}

func (m *Metrics) IncrementDeliveryFailures() {
	if m == nil {
		return
	}
	m.DeliveryFailures.Inc()
}

func (m *Metrics) ObserveVerifyDuration(seconds float64) {
	if m == nil {
		return
	}
	m.VerifyDuration.Observe(seconds)
}
