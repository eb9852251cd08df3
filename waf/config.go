package waf

// SecRuleConfig is SecRule Engine config
type SecRuleConfig interface {
	RuleFiles() []string
	RemoveByID() []int
	RemoveByTag() []string

	// BodyLimits bound how much of a body is kept for REQUEST_BODY and RESPONSE_BODY, and parsed into arguments.
	BodyLimits() LengthLimits
}

// LengthLimits are limits in bytes for request and response bodies.
type LengthLimits struct {
	MaxLengthField int
	MaxLengthTotal int
}
