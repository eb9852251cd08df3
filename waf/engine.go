package waf

import (
	"github.com/rs/zerolog"
)

// SecRuleEngineFactory creates SecRuleEngines.
type SecRuleEngineFactory interface {
	NewEngine(config SecRuleConfig) (SecRuleEngine, error)
}

// SecRuleEngine is a compiled rule set. It is shared by concurrent evaluations.
type SecRuleEngine interface {
	NewEvaluation(logger zerolog.Logger, resultsLogger ResultsLogger, req HTTPRequest) (SecRuleEvaluation, error)

	// ActivationErrors has one error for every rule that was left out because it was not valid.
	ActivationErrors() []error

	Close() error
}

// SecRuleEvaluation is the evaluation of one transaction. It must only be used by one goroutine.
type SecRuleEvaluation interface {
	TransactionID() string

	// EvalPhase runs the rules of one phase and gives the decision of the transaction so far.
	EvalPhase(phase int) Decision

	// EvalRequestPhases runs the request headers and request body phases.
	EvalRequestPhases() Decision

	// EvalResponsePhases runs the response headers, response body and logging phases.
	EvalResponsePhases() Decision

	WriteRequestBody(chunk []byte, endOfStream bool) error
	SetResponse(resp HTTPResponse)
	WriteResponseBody(chunk []byte, endOfStream bool) error

	// Close releases the body streams of the transaction.
	Close()
}
