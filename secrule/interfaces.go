package secrule

import (
	ast "secwaf/secrule/ast"
)

// RuleDocument is what a rule set file declares: rules in declared order, and the rule removals.
type RuleDocument struct {
	// Rules has chain heads and rules that are not chained. Chain links are reached through Next.
	Rules []*ast.Rule

	RemoveIDs  []int
	RemoveTags []string
}

// Append adds the rules and removals of another document after the ones of this document.
func (d *RuleDocument) Append(other *RuleDocument) {
	if other == nil {
		return
	}
	d.Rules = append(d.Rules, other.Rules...)
	d.RemoveIDs = append(d.RemoveIDs, other.RemoveIDs...)
	d.RemoveTags = append(d.RemoveTags, other.RemoveTags...)
}

// RuleLoader obtains the rules of a rule set.
type RuleLoader interface {
	Rules() (doc *RuleDocument, err error)
}

// PhraseLoaderCb will be called when the rule parser needs to load a phrase file.
type PhraseLoaderCb func(string) ([]string, error)

// IncludeLoaderCb will be called when the rule parser reaches an include-statement.
type IncludeLoaderCb func(filePath string) (doc *RuleDocument, err error)

// RuleParser parses SecRule language files.
type RuleParser interface {
	Parse(input string, pf PhraseLoaderCb, ilcb IncludeLoaderCb) (doc *RuleDocument, err error)
}
