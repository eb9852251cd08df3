package ruleevaluation

import (
	ast "secwaf/secrule/ast"
	"secwaf/waf"

	"github.com/rs/zerolog"
)

// ActiveRules gives the chains to evaluate in a phase, in declared order. Removed rules are never part of it.
type ActiveRules interface {
	Phase(phase int) []*Chain
}

// PhaseOutcome is the result of running the rules of one phase against a transaction.
type PhaseOutcome struct {
	Phase       int
	Evaluated   int
	Interrupted bool
	Decision    waf.Decision

	// Events has one entry per evaluated chain head.
	Events []waf.EvaluationEvent

	// Errors has the *RuleError of every chain that broke because an operator failed.
	Errors []error
}

// Scheduler runs the active rules of a phase through the chain executor and stops the phase when a rule interrupts the transaction.
// A Scheduler is shared by all transactions.
type Scheduler struct {
	rules ActiveRules
}

// NewScheduler creates a scheduler over a set of active rules.
func NewScheduler(rules ActiveRules) *Scheduler {
	return &Scheduler{rules: rules}
}

// RunPhase evaluates every active chain of the phase in order, until the transaction is interrupted.
// The interrupt is checked after each chain, so a transaction interrupted in an earlier phase still has the first chain evaluated.
// Which phases run after an interrupt is decided by the caller.
func (s *Scheduler) RunPhase(phase int, tx *Transaction, logger zerolog.Logger) (outcome PhaseOutcome) {
	outcome.Phase = phase
	defer func() {
		outcome.Interrupted = tx.Interrupted()
		outcome.Decision = tx.Decision()
	}()

	if phase < ast.PhaseRequestHeaders || phase > ast.NumPhases {
		logger.Warn().Int("phase", phase).Msg("Phase out of range")
		return
	}

	for _, c := range s.rules.Phase(phase) {
		res := c.Execute(tx, logger)
		outcome.Evaluated++
		outcome.Events = append(outcome.Events, res.Event)
		if res.Err != nil {
			outcome.Errors = append(outcome.Errors, res.Err)
		}

		if tx.Interrupted() {
			logger.Debug().Int("ruleID", c.Head().ID).Int("phase", phase).Str("decision", tx.Decision().String()).Msg("Transaction interrupted")
			break
		}
	}

	return
}
