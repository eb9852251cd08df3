package ast

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTargetMode(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(ModeCollection, Target{Name: TargetArgs}.Mode())
	assert.Equal(ModeSpecific, Target{Name: TargetArgs, Path: []string{"id"}}.Mode())
	assert.Equal(ModeCounter, Target{Name: TargetArgs, Path: []string{"id"}, IsCount: true}.Mode())
}

func TestRuleLinks(t *testing.T) {
	assert := assert.New(t)
	tail := &Rule{ID: 1, ChainIndex: 1}
	head := &Rule{ID: 1, ChainIndex: 0, Next: tail}
	single := &Rule{ID: 2, ChainIndex: NotChained}

	assert.Equal([]*Rule{head, tail}, head.Links())
	assert.True(head.IsChainHead())
	assert.False(tail.IsChainHead())
	assert.True(single.IsChainHead())
}

func TestTargetNamesInSync(t *testing.T) {
	for n := TargetName(1); n < _lastTarget; n++ {
		s, ok := TargetNamesStrings[n]
		if !assert.True(t, ok, "missing name for target %d", n) {
			continue
		}
		assert.Equal(t, n, TargetNamesFromStr[s])
	}
}

func TestIsDisruptive(t *testing.T) {
	assert := assert.New(t)
	assert.True(IsDisruptive(&DenyAction{}))
	assert.True(IsDisruptive(&AllowAction{}))
	assert.False(IsDisruptive(&MsgAction{}))
	assert.Equal("deny", ActionName(&DenyAction{}))
}
