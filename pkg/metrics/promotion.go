package metrics

import "github.com/prometheus/client_golang/prometheus"

// PromotionMetrics tracks checkout promotions into durable orders.
type PromotionMetrics struct {
	success prometheus.Counter
	failure *prometheus.CounterVec
}

// NewPromotionMetrics registers promotion metrics on the provided registerer.
func NewPromotionMetrics(reg prometheus.Registerer) *PromotionMetrics {
	if reg == nil {
		return &PromotionMetrics{}
	}
	success := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "promotion_success_total",
		Help: "Sessions promoted into durable orders.",
	})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "promotion_failure_total",
		Help: "Failed promotions by error code.",
	}, []string{"code"})
	reg.MustRegister(success, failure)
	return &PromotionMetrics{success: success, failure: failure}
}

func (p *PromotionMetrics) IncSuccess() {
	if p == nil || p.success == nil {
		return
	}
	p.success.Inc()
}

func (p *PromotionMetrics) IncFailure(code string) {
	if p == nil || p.failure == nil {
		return
	}
	p.failure.WithLabelValues(normalizeLabel(code)).Inc()
}
