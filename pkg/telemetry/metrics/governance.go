package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// GovernanceMetrics tracks governance verdicts.
type GovernanceMetrics struct {
	verdictsTotal   *prometheus.CounterVec
	violationsTotal *prometheus.CounterVec
	reloadsTotal    *prometheus.CounterVec
}

// NewGovernanceMetrics creates and registers governance metrics.
func NewGovernanceMetrics(namespace string, registry *prometheus.Registry) *GovernanceMetrics {
	gm := &GovernanceMetrics{
		verdictsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "verdicts_total",
				Help:      "Total number of governance verdicts by outcome",
			},
			[]string{"outcome"},
		),

		violationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rule_violations_total",
				Help:      "Total number of governance rule violations",
			},
			[]string{"rule_id"},
		),

		reloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "governance_reloads_total",
				Help:      "Total number of governance reload attempts",
			},
			[]string{"status"},
		),
	}

	registry.MustRegister(
		gm.verdictsTotal,
		gm.violationsTotal,
		gm.reloadsTotal,
	)

	return gm
}

// RecordVerdict records a verdict and each violated rule.
func (gm *GovernanceMetrics) RecordVerdict(allowed bool, violatedRules []string) {
	outcome := "blocked"
	if allowed {
		outcome = "allowed"
	}
	gm.verdictsTotal.WithLabelValues(outcome).Inc()

	for _, rule := range violatedRules {
		gm.violationsTotal.WithLabelValues(rule).Inc()
	}
}

// RecordReload records a reload attempt.
func (gm *GovernanceMetrics) RecordReload(success bool) {
	status := "failure"
	if success {
		status = "success"
	}
	gm.reloadsTotal.WithLabelValues(status).Inc()
}
