package logging

type firewallLogEntry struct {
	OperationName string                   `json:"operationName"`
	Category      string                   `json:"category"`
	Properties    firewallLogEntryProperty `json:"properties"`
}

type firewallLogEntryProperty struct {
	TransactionID string                  `json:"transactionId"`
	RuleID        string                  `json:"ruleId,omitempty"`
	Phase         int                     `json:"phase"`
	Message       string                  `json:"message"`
	Action        string                  `json:"action"`
	Details       firewallLogDetailsEntry `json:"details"`
}

type firewallLogDetailsEntry struct {
	Message       string   `json:"message"`
	Actions       []string `json:"actions,omitempty"`
	SkippedValues int      `json:"skippedValues,omitempty"`
	Error         string   `json:"error,omitempty"`
}

const (
	operationName    = "SecRuleEvaluation"
	categoryRule     = "FirewallRuleLog"
	categoryDecision = "FirewallDecisionLog"
)
