package workflow

import "github.com/prometheus/client_golang/prometheus"

// Metrics exports turn outcomes; feed it with WithTurnHook(m.Observe).
type Metrics struct {
	turns    *prometheus.CounterVec
	handoffs *prometheus.CounterVec
	duration prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ad_assistant_turns_total",
			Help: "Conversation turns by outcome.",
		}, []string{"outcome"}),
		handoffs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ad_assistant_handoffs_total",
			Help: "Committed changes of the active specialist.",
		}, []string{"from", "to"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ad_assistant_turn_duration_seconds",
			Help:    "Wall time of a turn from start to commit or failure.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.turns, m.handoffs, m.duration)
	}
	return m
}

func (m *Metrics) Observe(r TurnReport) {
	m.duration.Observe(r.Duration.Seconds())
	if r.Err != nil {
		m.turns.WithLabelValues("failed").Inc()
		return
	}
	m.turns.WithLabelValues("ok").Inc()
	if r.From != r.To {
		m.handoffs.WithLabelValues(r.From, r.To).Inc()
	}
}
