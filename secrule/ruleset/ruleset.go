package ruleset

import (
	"errors"
	"fmt"

	ast "secwaf/secrule/ast"
	re "secwaf/secrule/ruleevaluation"
)

// ConfigurationError is an activation failure of a single rule. The rule is left out of the active set.
type ConfigurationError struct {
	RuleID int
	Err    error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("rule %d: configuration error: %v", e.RuleID, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// Removals are the rule ids and tags excluded from evaluation.
type Removals struct {
	IDs  []int
	Tags []string
}

func (r Removals) removes(rule *ast.Rule) bool {
	for _, id := range r.IDs {
		if rule.ID == id {
			return true
		}
	}
	for _, tag := range r.Tags {
		if rule.HasTag(tag) {
			return true
		}
	}
	return false
}

// RuleSet is the compiled, active rules of an engine, grouped by phase in declared order.
// A RuleSet is shared by all transactions. It implements ruleevaluation.ActiveRules.
type RuleSet struct {
	phases  [ast.NumPhases + 1][]*re.Chain
	removed []*ast.Rule
}

// Activate compiles the chain heads among rules, leaving out removed rules and rules that are not valid.
// Every rule that could not be activated is reported as a *ConfigurationError, in declared order.
func Activate(rules []*ast.Rule, removals Removals, m re.Matchers) (rs *RuleSet, errs []error) {
	rs = &RuleSet{}
	seen := make(map[int]bool)
	for _, r := range rules {
		// Links are compiled through their head.
		if !r.IsChainHead() {
			continue
		}

		if removals.removes(r) {
			rs.removed = append(rs.removed, r)
			continue
		}

		if seen[r.ID] {
			errs = append(errs, &ConfigurationError{RuleID: r.ID, Err: errors.New("duplicate rule id")})
			continue
		}
		seen[r.ID] = true

		c, err := re.Compile(r, m)
		if err != nil {
			errs = append(errs, &ConfigurationError{RuleID: r.ID, Err: err})
			continue
		}

		rs.phases[r.Phase] = append(rs.phases[r.Phase], c)
	}

	return
}

// Phase gives the active chains of a phase in declared order.
func (rs *RuleSet) Phase(phase int) []*re.Chain {
	if phase < ast.PhaseRequestHeaders || phase > ast.NumPhases {
		return nil
	}
	return rs.phases[phase]
}

// Chains gives every active chain, phase by phase.
func (rs *RuleSet) Chains() (cc []*re.Chain) {
	for p := ast.PhaseRequestHeaders; p <= ast.NumPhases; p++ {
		cc = append(cc, rs.phases[p]...)
	}
	return
}

// Len is the number of active chains.
func (rs *RuleSet) Len() (n int) {
	for _, cc := range rs.phases {
		n += len(cc)
	}
	return
}

// Removed gives the rules that were excluded by the removal sets. They are kept for diagnostics only.
func (rs *RuleSet) Removed() []*ast.Rule {
	return rs.removed
}

// Close releases the matchers bound to the active chains.
func (rs *RuleSet) Close() (err error) {
	for _, c := range rs.Chains() {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return
}
