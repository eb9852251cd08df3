package waf

// Decision denotes WAF's response to a transaction
type Decision int

const (
	_ Decision = iota
	// Pass means that the transaction should be allowed
	Pass

	// Allow means that the transaction should be allowed regardless of remaining rules
	Allow

	// Block means that the transaction should be blocked regardless of remaining rules
	Block
)

func (d Decision) String() string {
	switch d {
	case Pass:
		return "Pass"
	case Allow:
		return "Allow"
	case Block:
		return "Block"
	}
	return "Unknown"
}

// IsInterrupt tells whether the decision stops further rule processing.
func (d Decision) IsInterrupt() bool {
	return d == Allow || d == Block
}
