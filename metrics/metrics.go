// Package metrics counts rule evaluation outcomes with prometheus.
package metrics

import (
	"net/http"
	"strconv"

	"secwaf/waf"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is a waf.ResultsLogger decorator that counts the events before passing them on.
type Metrics struct {
	next waf.ResultsLogger

	rulesEvaluatedTotal *prometheus.CounterVec
	ruleMatchesTotal    *prometheus.CounterVec
	ruleErrorsTotal     *prometheus.CounterVec
	skippedValuesTotal  prometheus.Counter
	phaseDecisionsTotal *prometheus.CounterVec
}

// NewMetrics registers the counters with reg, or the default registerer if reg is nil. next may be nil.
func NewMetrics(reg prometheus.Registerer, next waf.ResultsLogger) *Metrics {
	m := &Metrics{
		next: next,
		rulesEvaluatedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "secwaf_rules_evaluated_total", Help: "Total rule chains evaluated"},
			[]string{"phase"},
		),
		ruleMatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "secwaf_rule_matches_total", Help: "Total rule chains that matched"},
			[]string{"rule_id", "phase", "decision"},
		),
		ruleErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "secwaf_rule_errors_total", Help: "Total rule chains broken by an operator failure"},
			[]string{"rule_id"},
		),
		skippedValuesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "secwaf_skipped_values_total", Help: "Total values left out because a transformation failed"},
		),
		phaseDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "secwaf_phase_decisions_total", Help: "Total completed phases by decision"},
			[]string{"phase", "decision"},
		),
	}

	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.rulesEvaluatedTotal,
		m.ruleMatchesTotal,
		m.ruleErrorsTotal,
		m.skippedValuesTotal,
		m.phaseDecisionsTotal,
	)

	return m
}

// Handler serves the metrics of reg, or of the default registry if reg is nil.
func (m *Metrics) Handler(reg *prometheus.Registry) http.Handler {
	if reg == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func (m *Metrics) RuleEvaluated(ev waf.EvaluationEvent) {
	phase := strconv.Itoa(ev.Phase)
	m.rulesEvaluatedTotal.WithLabelValues(phase).Inc()
	if ev.Matched {
		m.ruleMatchesTotal.WithLabelValues(strconv.Itoa(ev.RuleID), phase, ev.Decision.String()).Inc()
	}
	if ev.Err != nil {
		m.ruleErrorsTotal.WithLabelValues(strconv.Itoa(ev.RuleID)).Inc()
	}
	if ev.SkippedValues > 0 {
		m.skippedValuesTotal.Add(float64(ev.SkippedValues))
	}

	if m.next != nil {
		m.next.RuleEvaluated(ev)
	}
}

func (m *Metrics) PhaseCompleted(transactionID string, phase int, decision waf.Decision) {
	m.phaseDecisionsTotal.WithLabelValues(strconv.Itoa(phase), decision.String()).Inc()

	if m.next != nil {
		m.next.PhaseCompleted(transactionID, phase, decision)
	}
}
