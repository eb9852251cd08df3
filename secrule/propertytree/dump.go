package propertytree

import (
	"bytes"
	"fmt"
	"strings"
)

// Dump renders the tree as indented text for diagnostics. Values are shown quoted.
func (t *Tree) Dump() string {
	if t == nil || len(t.nodes) == 0 {
		return ""
	}

	var buf bytes.Buffer
	t.dump(&buf, RootID, 0)
	return buf.String()
}

// Dump renders the subtree below n, including n.
func (n Node) Dump() string {
	if n.tree == nil {
		return ""
	}

	var buf bytes.Buffer
	n.tree.dump(&buf, n.id, 0)
	return buf.String()
}

func (t *Tree) dump(buf *bytes.Buffer, id NodeID, depth int) {
	nd := &t.nodes[id]
	buf.WriteString(strings.Repeat("  ", depth))
	buf.WriteString(nd.name)
	if nd.hasValue {
		fmt.Fprintf(buf, " = %q", nd.value)
	}
	buf.WriteByte('\n')

	for _, c := range nd.children {
		t.dump(buf, c, depth+1)
	}
}
