package waf

// EvaluationEvent describes the outcome of evaluating one rule chain against a transaction.
type EvaluationEvent struct {
	TransactionID string
	RuleID        int
	Phase         int
	Matched       bool
	Decision      Decision
	Actions       []string
	Msg           string
	LogData       string
	ShouldLog     bool
	Err           error

	// SkippedValues is the number of values left out because a transformation failed.
	SkippedValues int
}

// ResultsLogger is where the WAF writes high level results of rule evaluation.
type ResultsLogger interface {
	RuleEvaluated(event EvaluationEvent)
	PhaseCompleted(transactionID string, phase int, decision Decision)
}
