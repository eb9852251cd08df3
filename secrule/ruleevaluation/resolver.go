package ruleevaluation

import (
	"strings"

	ast "secwaf/secrule/ast"
	"secwaf/secrule/propertytree"
)

var (
	counterZero = []byte("0")
	counterOne  = []byte("1")
)

// Resolve returns the values a variable reference selects, for the given rule, from the transaction's data and match history.
// Resolve has no side effects. A variable that does not exist on the transaction resolves to nothing.
func Resolve(target ast.Target, tx *Transaction, rule *ast.Rule) []ResolvedValue {
	if target.Name.IsMatched() {
		return resolveMatched(target, tx, rule)
	}

	name := target.Name
	collection, isNames := name.NamesOf()
	if !isNames {
		collection = name
	}

	nodes := selectNodes(tx.tree(collection).Root(), target.Path)
	if target.IsCount {
		return []ResolvedValue{counter(name, len(nodes) > 0)}
	}

	vv := make([]ResolvedValue, 0, len(nodes))
	for _, n := range nodes {
		vv = append(vv, read(name, collection, n, isNames))
	}
	return vv
}

func resolveMatched(target ast.Target, tx *Transaction, rule *ast.Rule) (vv []ResolvedValue) {
	mm, ok := tx.history.Latest(effectiveChainIndex(rule))
	if target.IsCount {
		return []ResolvedValue{counter(target.Name, ok && len(mm) > 0)}
	}
	if !ok || len(mm) == 0 {
		return
	}

	// The singular forms read the last value of the latest match only.
	if target.Name == ast.TargetMatchedVar || target.Name == ast.TargetMatchedVarName {
		mm = mm[len(mm)-1:]
	}
	names := target.Name == ast.TargetMatchedVarName || target.Name == ast.TargetMatchedVarsNames

	for _, m := range mm {
		if !m.Node.Valid() {
			// A synthetic value has no tree to walk, so it can only be read as a whole.
			if len(target.Path) > 0 || target.ParentHops > 0 {
				continue
			}
			rv := ResolvedValue{Target: target.Name, Value: m.Value}
			if names {
				rv.Value = []byte(m.Name())
			}
			vv = append(vv, rv)
			continue
		}

		n, ok := hop(m.Node, target.ParentHops)
		if !ok {
			continue
		}
		for _, leaf := range selectNodes(n, target.Path) {
			vv = append(vv, read(target.Name, m.Target, leaf, names))
		}
	}
	return
}

// hop walks upward from n, stopping at the root once at least one step was taken.
// A root node has nothing above it, so asking it for a parent fails.
func hop(n propertytree.Node, hops int) (propertytree.Node, bool) {
	for i := 0; i < hops; i++ {
		p, ok := n.Parent()
		if !ok {
			return n, i > 0
		}
		n = p
	}
	return n, true
}

// selectNodes reads the addressed node: every leaf below it in collection mode, or the leaves found at the end of the path in specific mode.
func selectNodes(n propertytree.Node, path []string) (nn []propertytree.Node) {
	if len(path) == 0 {
		return n.Leaves()
	}
	for _, d := range n.Descend(path) {
		nn = append(nn, d.Leaves()...)
	}
	return
}

// read turns a node into a resolved value. When names is set, the value is the node's name within its collection instead of its content.
// The matched forms qualify the name with the variable it was originally found in, such as ARGS:user.id.
func read(name ast.TargetName, source ast.TargetName, n propertytree.Node, names bool) ResolvedValue {
	rv := ResolvedValue{Target: source, Node: n}
	_, sourceIsNames := source.NamesOf()
	switch {
	case names && name.IsMatched():
		rv.Value = []byte(qualifiedName(source, n))
	case names:
		rv.Target = name
		rv.Value = []byte(strings.Join(n.Path(), "."))
	case sourceIsNames:
		// A value matched through ARGS_NAMES is the name itself.
		rv.Value = []byte(strings.Join(n.Path(), "."))
	default:
		rv.Value = []byte(n.Value())
	}
	return rv
}

func counter(name ast.TargetName, nonEmpty bool) ResolvedValue {
	if nonEmpty {
		return ResolvedValue{Target: name, Value: counterOne}
	}
	return ResolvedValue{Target: name, Value: counterZero}
}
