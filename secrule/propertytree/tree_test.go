package propertytree

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newArgsTree(t *testing.T) *Tree {
	b := NewBuilder("args")
	_, err := b.AddValue(RootID, "id", "1")
	require.NoError(t, err)
	user, err := b.Add(RootID, "user")
	require.NoError(t, err)
	_, err = b.AddValue(user, "name", "bob")
	require.NoError(t, err)
	_, err = b.AddValue(user, "Name", "alice")
	require.NoError(t, err)
	_, err = b.AddValue(RootID, "empty", "")
	require.NoError(t, err)
	return b.Publish()
}

func TestTreeTraversal(t *testing.T) {
	// Arrange
	assert := assert.New(t)
	tree := newArgsTree(t)

	// Act
	root := tree.Root()
	id, okID := root.Child("id")
	user, okUser := root.Child("user")
	_, okMissing := root.Child("missing")

	// Assert
	assert.True(root.IsRoot())
	assert.True(okID)
	assert.Equal("1", id.Value())
	assert.True(id.HasValue())
	assert.True(okUser)
	assert.False(user.HasValue())
	assert.False(okMissing)
	assert.Len(root.Children(), 3)
	assert.Equal([]string{"user", "name"}, user.Children()[0].Path())

	p, ok := id.Parent()
	assert.True(ok)
	assert.True(p.IsRoot())

	_, ok = root.Parent()
	assert.False(ok)
}

func TestChildrenNamedIsCaseInsensitiveAndKeepsDuplicates(t *testing.T) {
	assert := assert.New(t)
	tree := newArgsTree(t)
	user, _ := tree.Root().Child("user")

	nn := user.ChildrenNamed("NAME")

	assert.Len(nn, 2)
	assert.Equal("bob", nn[0].Value())
	assert.Equal("alice", nn[1].Value())
}

func TestDescend(t *testing.T) {
	assert := assert.New(t)
	tree := newArgsTree(t)

	assert.Len(tree.Root().Descend([]string{"user", "name"}), 2)
	assert.Nil(tree.Root().Descend([]string{"user", "missing"}))
	assert.Len(tree.Root().Descend(nil), 1)
}

func TestLeaves(t *testing.T) {
	assert := assert.New(t)
	tree := newArgsTree(t)

	leaves := tree.Root().Leaves()

	var values []string
	for _, l := range leaves {
		values = append(values, l.Value())
	}
	assert.Equal([]string{"1", "bob", "alice", ""}, values)

	id, _ := tree.Root().Child("id")
	assert.Equal([]Node{id}, id.Leaves())
}

func TestAbsentNodeIsHarmless(t *testing.T) {
	assert := assert.New(t)
	var n Node

	assert.False(n.Valid())
	assert.Equal("", n.Value())
	assert.Equal("", n.Name())
	assert.Nil(n.Children())
	assert.Nil(n.Leaves())
	assert.Nil(n.Path())
	_, ok := n.Parent()
	assert.False(ok)
	_, ok = n.Child("x")
	assert.False(ok)

	var tree *Tree
	assert.False(tree.Root().Valid())
	assert.Equal("", tree.Dump())
}

func TestBuilderAfterPublish(t *testing.T) {
	assert := assert.New(t)
	b := NewBuilder("args")
	b.Publish()

	_, err := b.AddValue(RootID, "a", "b")
	assert.Equal(ErrPublished, err)
	assert.Equal(ErrPublished, b.SetValue(RootID, "x"))
}

func TestBuilderUnknownParent(t *testing.T) {
	b := NewBuilder("args")
	_, err := b.Add(NodeID(42), "a")
	assert.Equal(t, ErrUnknownParent, err)
}

func TestDump(t *testing.T) {
	tree := newArgsTree(t)

	g := goldie.New(t, goldie.WithFixtureDir("testdata"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "args_tree", []byte(tree.Dump()))
}

func TestLeavesOfEmptyCollection(t *testing.T) {
	assert := assert.New(t)

	empty := NewBuilder("ARGS").Publish()
	scalar := NewBuilder("REQUEST_METHOD")
	scalar.SetValue(RootID, "GET")
	scalarTree := scalar.Publish()

	assert.Nil(empty.Root().Leaves())
	assert.Equal([]Node{scalarTree.Root()}, scalarTree.Root().Leaves())
}
