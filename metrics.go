package prmilter

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts protocol activity. A nil *Metrics records nothing.
type Metrics struct {
	commands       *prometheus.CounterVec
	responses      *prometheus.CounterVec
	protocolErrors *prometheus.CounterVec
	sessions       prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "milter",
				Name:      "commands_total",
				Help:      "Commands received from the MTA.",
			},
			[]string{"command"},
		),
		responses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "milter",
				Name:      "responses_total",
				Help:      "Responses sent to the MTA.",
			},
			[]string{"response"},
		),
		protocolErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "milter",
				Name:      "session_errors_total",
				Help:      "Sessions closed because of an error.",
			},
			[]string{"reason"},
		),
		sessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "milter",
				Name:      "sessions_active",
				Help:      "Sessions currently open.",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.commands, m.responses, m.protocolErrors, m.sessions)
	}
	return m
}

func (m *Metrics) command(c Code) {
	if m == nil {
		return
	}
	name := c.Name()
	if name == "" {
		name = "unrecognized"
	}
	m.commands.WithLabelValues(name).Inc()
}

// optNegLabel labels the negotiation reply, which has no response code of
// its own.
const optNegLabel = "OPTNEG"

func (m *Metrics) response(name string) {
	if m == nil {
		return
	}
	m.responses.WithLabelValues(name).Inc()
}

func (m *Metrics) sessionError(reason string) {
	if m == nil {
		return
	}
	m.protocolErrors.WithLabelValues(reason).Inc()
}

func (m *Metrics) sessionOpened() {
	if m == nil {
		return
	}
	m.sessions.Inc()
}

func (m *Metrics) sessionClosed() {
	if m == nil {
		return
	}
	m.sessions.Dec()
}
