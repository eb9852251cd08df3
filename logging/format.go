package logging

import (
	"strconv"

	"secwaf/waf"
)

// ruleLogEntry describes a rule that triggered, or that failed.
func ruleLogEntry(ev waf.EvaluationEvent) *firewallLogEntry {
	p := firewallLogEntryProperty{
		TransactionID: ev.TransactionID,
		RuleID:        strconv.Itoa(ev.RuleID),
		Phase:         ev.Phase,
		Message:       ev.Msg,
		Action:        actionName(ev.Decision),
		Details: firewallLogDetailsEntry{
			Message:       ev.LogData,
			Actions:       ev.Actions,
			SkippedValues: ev.SkippedValues,
		},
	}

	if ev.Err != nil {
		p.Action = "Error"
		p.Details.Error = ev.Err.Error()
	}

	return &firewallLogEntry{
		OperationName: operationName,
		Category:      categoryRule,
		Properties:    p,
	}
}

func decisionLogEntry(transactionID string, phase int, decision waf.Decision) *firewallLogEntry {
	return &firewallLogEntry{
		OperationName: operationName,
		Category:      categoryDecision,
		Properties: firewallLogEntryProperty{
			TransactionID: transactionID,
			Phase:         phase,
			Message:       "Transaction " + decision.String(),
			Action:        actionName(decision),
		},
	}
}

// shouldLogRule tells whether an event is worth a results log line: rules that triggered and were not silenced with nolog, and rules that failed.
func shouldLogRule(ev waf.EvaluationEvent) bool {
	return ev.Err != nil || (ev.Matched && ev.ShouldLog)
}

func actionName(d waf.Decision) string {
	switch d {
	case waf.Block:
		return "Blocked"
	case waf.Allow:
		return "Allowed"
	}
	return "Matched"
}
