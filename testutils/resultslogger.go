package testutils

import (
	"sync"

	"secwaf/waf"
)

// PhaseRecord is one PhaseCompleted call seen by a RecordingResultsLogger.
type PhaseRecord struct {
	TransactionID string
	Phase         int
	Decision      waf.Decision
}

// RecordingResultsLogger is a waf.ResultsLogger that keeps everything it is given. Safe for concurrent use.
type RecordingResultsLogger struct {
	mu     sync.Mutex
	events []waf.EvaluationEvent
	phases []PhaseRecord
}

// RuleEvaluated records the event.
func (l *RecordingResultsLogger) RuleEvaluated(event waf.EvaluationEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

// PhaseCompleted records the phase decision.
func (l *RecordingResultsLogger) PhaseCompleted(transactionID string, phase int, decision waf.Decision) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.phases = append(l.phases, PhaseRecord{TransactionID: transactionID, Phase: phase, Decision: decision})
}

// Events returns a copy of the recorded events.
func (l *RecordingResultsLogger) Events() []waf.EvaluationEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]waf.EvaluationEvent(nil), l.events...)
}

// MatchedRuleIDs returns the ids of the rules that matched, in the order they were evaluated.
func (l *RecordingResultsLogger) MatchedRuleIDs() (ids []int) {
	for _, ev := range l.Events() {
		if ev.Matched {
			ids = append(ids, ev.RuleID)
		}
	}
	return
}

// Phases returns a copy of the recorded phase decisions.
func (l *RecordingResultsLogger) Phases() []PhaseRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]PhaseRecord(nil), l.phases...)
}
