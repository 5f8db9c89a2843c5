package service

import "github.com/prometheus/client_golang/prometheus"

// Operation labels.
const (
	opIssue  = "issue"
	opRotate = "rotate"
	opRevoke = "revoke"
)

// Metrics counts token operations. A nil *Metrics records nothing.
type Metrics struct {
	Operations *prometheus.CounterVec
	Replays    prometheus.Counter
}

// NewMetrics creates and registers token metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blueprint_auth_token_operations_total",
				Help: "Total number of token operations by operation and result code",
			},
			[]string{"operation", "result"},
		),
		Replays: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blueprint_auth_refresh_replays_total",
			Help: "Refresh tokens presented after their session was already revoked",
		}),
	}
	reg.MustRegister(m.Operations, m.Replays)
	return m
}

func (m *Metrics) observe(op, result string) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(op, result).Inc()
}

func (m *Metrics) replay() {
	if m == nil {
		return
	}
	m.Replays.Inc()
}
