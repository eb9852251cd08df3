package propertytree

import (
	"errors"
	"strings"
)

// NodeID is the position of a node within its tree's arena.
type NodeID int32

const noNode NodeID = -1

// RootID is the id of the root node of every tree.
const RootID NodeID = 0

// ErrPublished is returned when a builder is used after its tree was published.
var ErrPublished = errors.New("property tree was already published")

// ErrUnknownParent is returned when a builder is given a parent id it did not create.
var ErrUnknownParent = errors.New("unknown parent node")

type node struct {
	name     string
	value    string
	hasValue bool
	parent   NodeID
	children []NodeID
}

// Tree is an ordered hierarchy of named nodes holding parsed transaction data, such as the decomposed arguments of a request.
// A published Tree is immutable and may be read concurrently.
type Tree struct {
	nodes []node
}

// Node is a non-owning handle to a node in a Tree. The zero value is an absent node.
type Node struct {
	tree *Tree
	id   NodeID
}

// Builder creates a Tree. Builders are not safe for concurrent use.
type Builder struct {
	tree *Tree
}

// NewBuilder creates a Builder for a tree whose root node has the given name.
func NewBuilder(rootName string) *Builder {
	t := &Tree{nodes: make([]node, 1, 16)}
	t.nodes[0] = node{name: rootName, parent: noNode}
	return &Builder{tree: t}
}

// Add appends a child without a value to the given parent.
func (b *Builder) Add(parent NodeID, name string) (id NodeID, err error) {
	return b.add(parent, name, "", false)
}

// AddValue appends a child with a scalar value to the given parent.
func (b *Builder) AddValue(parent NodeID, name string, value string) (id NodeID, err error) {
	return b.add(parent, name, value, true)
}

// SetValue sets the scalar value of an existing node.
func (b *Builder) SetValue(id NodeID, value string) error {
	if b.tree == nil {
		return ErrPublished
	}
	if id < 0 || int(id) >= len(b.tree.nodes) {
		return ErrUnknownParent
	}

	b.tree.nodes[id].value = value
	b.tree.nodes[id].hasValue = true
	return nil
}

func (b *Builder) add(parent NodeID, name string, value string, hasValue bool) (id NodeID, err error) {
	if b.tree == nil {
		err = ErrPublished
		return
	}

	if parent < 0 || int(parent) >= len(b.tree.nodes) {
		err = ErrUnknownParent
		return
	}

	id = NodeID(len(b.tree.nodes))
	b.tree.nodes = append(b.tree.nodes, node{name: name, value: value, hasValue: hasValue, parent: parent})
	b.tree.nodes[parent].children = append(b.tree.nodes[parent].children, id)
	return
}

// Publish hands out the finished tree. The builder cannot be used afterwards.
func (b *Builder) Publish() *Tree {
	t := b.tree
	b.tree = nil
	return t
}

// Root returns the root node of the tree.
func (t *Tree) Root() Node {
	if t == nil || len(t.nodes) == 0 {
		return Node{}
	}
	return Node{tree: t, id: RootID}
}

// Node returns a handle to the node with the given id.
func (t *Tree) Node(id NodeID) (n Node, ok bool) {
	if t == nil || id < 0 || int(id) >= len(t.nodes) {
		return
	}
	return Node{tree: t, id: id}, true
}

// Len is the number of nodes in the tree, including the root.
func (t *Tree) Len() int {
	if t == nil {
		return 0
	}
	return len(t.nodes)
}

// Valid tells whether the handle refers to a node.
func (n Node) Valid() bool {
	return n.tree != nil
}

// ID is the node's position in its tree.
func (n Node) ID() NodeID {
	if n.tree == nil {
		return noNode
	}
	return n.id
}

// Tree is the tree the node belongs to.
func (n Node) Tree() *Tree {
	return n.tree
}

// Name of the node.
func (n Node) Name() string {
	if n.tree == nil {
		return ""
	}
	return n.tree.nodes[n.id].name
}

// Value is the node's scalar text, or "" if it has none.
func (n Node) Value() string {
	if n.tree == nil {
		return ""
	}
	return n.tree.nodes[n.id].value
}

// HasValue tells whether the node carries a scalar value.
func (n Node) HasValue() bool {
	if n.tree == nil {
		return false
	}
	return n.tree.nodes[n.id].hasValue
}

// Parent is a pure upward lookup. The root has no parent.
func (n Node) Parent() (p Node, ok bool) {
	if n.tree == nil {
		return
	}
	pid := n.tree.nodes[n.id].parent
	if pid == noNode {
		return
	}
	return Node{tree: n.tree, id: pid}, true
}

// Children returns the node's children in insertion order.
func (n Node) Children() []Node {
	if n.tree == nil {
		return nil
	}
	ids := n.tree.nodes[n.id].children
	if len(ids) == 0 {
		return nil
	}

	cc := make([]Node, len(ids))
	for i, id := range ids {
		cc[i] = Node{tree: n.tree, id: id}
	}
	return cc
}

// Child returns the first child with exactly the given name.
func (n Node) Child(name string) (c Node, ok bool) {
	if n.tree == nil {
		return
	}
	for _, id := range n.tree.nodes[n.id].children {
		if n.tree.nodes[id].name == name {
			return Node{tree: n.tree, id: id}, true
		}
	}
	return
}

// ChildrenNamed returns every child whose name equals the given name, ignoring case.
// Collection keys such as header names are case-insensitive, and names are not required to be unique.
func (n Node) ChildrenNamed(name string) (cc []Node) {
	if n.tree == nil {
		return
	}
	for _, id := range n.tree.nodes[n.id].children {
		if strings.EqualFold(n.tree.nodes[id].name, name) {
			cc = append(cc, Node{tree: n.tree, id: id})
		}
	}
	return
}

// Descend follows a path of names downward, ignoring case, and returns all nodes found at the end of the path.
func (n Node) Descend(path []string) (nn []Node) {
	if n.tree == nil {
		return
	}

	nn = []Node{n}
	for _, name := range path {
		var next []Node
		for _, cur := range nn {
			next = append(next, cur.ChildrenNamed(name)...)
		}
		if len(next) == 0 {
			return nil
		}
		nn = next
	}
	return
}

// Leaves returns the leaf-equivalent nodes under n in document order.
// A leaf-equivalent node is a node that carries a value or has no children. If n itself is one, it is the only result.
// A bare root is an empty collection, so it has no leaves.
func (n Node) Leaves() (nn []Node) {
	if n.tree == nil {
		return
	}
	if nd := &n.tree.nodes[n.id]; n.id == RootID && !nd.hasValue && len(nd.children) == 0 {
		return
	}
	n.tree.collectLeaves(n.id, &nn)
	return
}

func (t *Tree) collectLeaves(id NodeID, out *[]Node) {
	nd := &t.nodes[id]
	if nd.hasValue || len(nd.children) == 0 {
		*out = append(*out, Node{tree: t, id: id})
		return
	}
	for _, c := range nd.children {
		t.collectLeaves(c, out)
	}
}

// Path returns the names from just below the root down to n.
func (n Node) Path() (path []string) {
	if n.tree == nil {
		return
	}
	for id := n.id; id != RootID && id != noNode; id = n.tree.nodes[id].parent {
		path = append(path, n.tree.nodes[id].name)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return
}

// IsRoot tells whether n is the root of its tree.
func (n Node) IsRoot() bool {
	return n.tree != nil && n.id == RootID
}
