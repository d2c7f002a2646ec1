package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for ledger metrics.
const (
	OutcomeApplied   = "applied"
	OutcomeNoop      = "noop"
	OutcomeForbidden = "forbidden"
	OutcomeRefused   = "refused"
	OutcomeError     = "error"
)

// Metrics counts lifecycle transitions and times ledger operations.
type Metrics struct {
	transitions *prometheus.CounterVec
	operations  *prometheus.HistogramVec
}

// NewMetrics registers the collectors on reg. A nil reg yields unregistered collectors,
// which is what tests that don't scrape want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "school_resources",
			Name:      "transitions_total",
			Help:      "Lifecycle transitions by entity kind, action and outcome.",
		}, []string{"kind", "action", "outcome"}),
		operations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "school_resources",
			Name:      "ledger_operation_duration_seconds",
			Help:      "Latency of mutating ledger operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.transitions, m.operations)
	}
	return m
}

func (m *Metrics) observeTransition(kind, action, outcome string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(kind, action, outcome).Inc()
}

// track times one ledger operation; call the returned func with the final error.
func (m *Metrics) track(operation string) func(err error) {
	start := time.Now()
	return func(err error) {
		if m == nil {
			return
		}
		outcome := OutcomeApplied
		if err != nil {
			outcome = OutcomeError
		}
		m.operations.WithLabelValues(operation, outcome).Observe(time.Since(start).Seconds())
	}
}
