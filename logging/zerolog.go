package logging

import (
	"encoding/json"

	"secwaf/waf"

	"github.com/rs/zerolog"
)

// NewZerologResultsLogger creates a results logger for when no results log directory is configured.
// It logs the same entries as the file results logger, as the "entry" field of Info level events.
func NewZerologResultsLogger(logger zerolog.Logger) waf.ResultsLogger {
	return &zerologResultsLogger{logger: logger}
}

type zerologResultsLogger struct {
	logger zerolog.Logger
}

func (l *zerologResultsLogger) RuleEvaluated(ev waf.EvaluationEvent) {
	if shouldLogRule(ev) {
		l.write(ruleLogEntry(ev))
	}
}

func (l *zerologResultsLogger) PhaseCompleted(transactionID string, phase int, decision waf.Decision) {
	if decision != waf.Pass {
		l.write(decisionLogEntry(transactionID, phase, decision))
	}
}

func (l *zerologResultsLogger) write(entry *firewallLogEntry) {
	bb, err := json.Marshal(entry)
	if err != nil {
		l.logger.Error().Err(err).Str("category", entry.Category).Msg("Error while marshaling JSON results log")
		return
	}

	l.logger.Info().
		Str("category", entry.Category).
		Str("transactionId", entry.Properties.TransactionID).
		RawJSON("entry", bb).
		Msg("Results log")
}
