package metrics

import "github.com/prometheus/client_golang/prometheus"

// RealtimeMetrics tracks the websocket transport.
type RealtimeMetrics struct {
	connected      prometheus.Gauge
	messagesIn     *prometheus.CounterVec
	messagesOut    *prometheus.CounterVec
	staleDiscarded prometheus.Counter
	duplicates     prometheus.Counter
}

// NewRealtimeMetrics registers transport metrics on the provided registerer.
func NewRealtimeMetrics(reg prometheus.Registerer) *RealtimeMetrics {
	if reg == nil {
		return &RealtimeMetrics{}
	}
	connected := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_connected_channels",
		Help: "Live websocket channels.",
	})
	messagesIn := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_messages_in_total",
		Help: "Inbound envelopes by type.",
	}, []string{"type"})
	messagesOut := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_messages_out_total",
		Help: "Outbound envelopes by type.",
	}, []string{"type"})
	staleDiscarded := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "realtime_stale_callbacks_total",
		Help: "Callbacks discarded because their connection attempt was superseded.",
	})
	duplicates := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "realtime_duplicate_messages_total",
		Help: "Inbound envelopes suppressed by the idempotency guard.",
	})
	reg.MustRegister(connected, messagesIn, messagesOut, staleDiscarded, duplicates)
	return &RealtimeMetrics{
		connected:      connected,
		messagesIn:     messagesIn,
		messagesOut:    messagesOut,
		staleDiscarded: staleDiscarded,
		duplicates:     duplicates,
	}
}

func (r *RealtimeMetrics) ConnOpened() {
	if r == nil || r.connected == nil {
		return
	}
	r.connected.Inc()
}

func (r *RealtimeMetrics) ConnClosed() {
	if r == nil || r.connected == nil {
		return
	}
	r.connected.Dec()
}

func (r *RealtimeMetrics) MessageIn(envelopeType string) {
	if r == nil || r.messagesIn == nil {
		return
	}
	r.messagesIn.WithLabelValues(normalizeLabel(envelopeType)).Inc()
}

func (r *RealtimeMetrics) MessageOut(envelopeType string) {
	if r == nil || r.messagesOut == nil {
		return
	}
	r.messagesOut.WithLabelValues(normalizeLabel(envelopeType)).Inc()
}

func (r *RealtimeMetrics) StaleDiscarded() {
	if r == nil || r.staleDiscarded == nil {
		return
	}
	r.staleDiscarded.Inc()
}

func (r *RealtimeMetrics) DuplicateSuppressed() {
	if r == nil || r.duplicates == nil {
		return
	}
	r.duplicates.Inc()
}
