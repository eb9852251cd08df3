package ruleevaluation

import (
	"strings"

	ast "secwaf/secrule/ast"
	"secwaf/secrule/propertytree"
	"secwaf/waf"
)

// WholeTransaction is the history index of matches of completed chains and of rules that are not chained.
const WholeTransaction = -1

// ResolvedValue is a value produced by variable resolution.
type ResolvedValue struct {
	Target ast.TargetName

	// Node is where the value came from. It is absent for synthetic values such as counters.
	Node propertytree.Node

	Value []byte
}

// Name is the qualified variable name of the value, such as ARGS:user.id.
func (v ResolvedValue) Name() string {
	return qualifiedName(v.Target, v.Node)
}

func qualifiedName(target ast.TargetName, n propertytree.Node) string {
	if !n.Valid() || n.IsRoot() {
		return target.String()
	}
	return target.String() + ":" + strings.Join(n.Path(), ".")
}

// Match is a resolved value that satisfied a rule's operator.
type Match struct {
	ResolvedValue

	// Spans reported by a pattern operator. Empty for other operators.
	Spans []waf.Span
}

// MatchHistory records, per chain index, the values every matching link matched.
// Lists are append-only. A chain that broke leaves its partial entries in place, but they are never committed to WholeTransaction.
type MatchHistory struct {
	lists map[int][][]Match
}

func (h *MatchHistory) append(index int, mm []Match) {
	if h.lists == nil {
		h.lists = make(map[int][][]Match)
	}
	h.lists[index] = append(h.lists[index], mm)
}

// Latest returns the most recently appended entry for a chain index.
func (h *MatchHistory) Latest(index int) (mm []Match, ok bool) {
	l := h.lists[index]
	if len(l) == 0 {
		return
	}
	return l[len(l)-1], true
}

// Len is the number of entries recorded for a chain index.
func (h *MatchHistory) Len(index int) int {
	return len(h.lists[index])
}

// Entries returns every entry for a chain index, oldest first.
func (h *MatchHistory) Entries(index int) [][]Match {
	return h.lists[index]
}

// effectiveChainIndex is the history a rule's matched pseudo-variables read: the preceding link for a chained rule, the whole transaction otherwise.
func effectiveChainIndex(rule *ast.Rule) int {
	if rule == nil || rule.ChainIndex == ast.NotChained {
		return WholeTransaction
	}
	return rule.ChainIndex - 1
}
