package ruleevaluation

import (
	"testing"

	ast "secwaf/secrule/ast"
	"secwaf/waf"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunPhaseStopsAtInterrupt(t *testing.T) {
	// Arrange
	assert := assert.New(t)
	chain := chainRules(
		newRule(100, 2, argsID, ast.Streq, ast.Value{ast.StringToken("1")}),
		newRule(100, 2, ast.Target{Name: ast.TargetMatchedVar}, ast.Streq, ast.Value{ast.StringToken("1")}, &ast.DenyAction{}),
	)
	later := newRule(200, 2, ast.Target{Name: ast.TargetArgs}, ast.UnconditionalMatch, nil,
		&ast.SetVarAction{Variable: value(t, "tx.later"), Operator: ast.Set, Value: ast.Value{ast.IntToken(1)}})
	rules := staticRules{2: {compile(t, chain), compile(t, later)}}
	s := NewScheduler(rules)
	tx := newTestTx(t, "/?id=1")

	// Act
	outcome := s.RunPhase(2, tx, testLogger(t))

	// Assert
	assert.True(outcome.Interrupted)
	assert.Equal(waf.Block, outcome.Decision)
	assert.Equal(1, outcome.Evaluated)
	assert.Len(outcome.Events, 1)
	assert.Equal(100, outcome.Events[0].RuleID)
	_, ok := tx.TxVar("later")
	assert.False(ok)
}

func TestRunPhaseEvaluatesInDeclaredOrder(t *testing.T) {
	// Arrange
	assert := assert.New(t)
	var chains []*Chain
	for i := 1; i <= 3; i++ {
		chains = append(chains, compile(t, newRule(i, 1, argsID, ast.UnconditionalMatch, nil,
			&ast.SetVarAction{Variable: value(t, "tx.last"), Operator: ast.Set, Value: ast.Value{ast.IntToken(i)}})))
	}
	s := NewScheduler(staticRules{1: chains})
	tx := newTestTx(t, "/?id=1")

	// Act
	outcome := s.RunPhase(1, tx, testLogger(t))

	// Assert
	assert.False(outcome.Interrupted)
	assert.Equal(waf.Pass, outcome.Decision)
	assert.Equal(3, outcome.Evaluated)
	var ids []int
	for _, ev := range outcome.Events {
		ids = append(ids, ev.RuleID)
	}
	assert.Equal([]int{1, 2, 3}, ids)
	last, _ := tx.TxVar("last")
	assert.Equal("3", last.String())
}

func TestRunPhaseContinuesAfterRuleError(t *testing.T) {
	// Arrange
	assert := assert.New(t)
	failing, err := Compile(newRule(1, 2, argsID, ast.Rx, ast.Value{ast.StringToken("x")}), Matchers{Factory: failingFactory{}})
	require.Nil(t, err)
	sibling := compile(t, newRule(2, 2, argsID, ast.Streq, ast.Value{ast.StringToken("1")}, &ast.DenyAction{}))
	s := NewScheduler(staticRules{2: {failing, sibling}})
	tx := newTestTx(t, "/?id=1")

	// Act
	outcome := s.RunPhase(2, tx, testLogger(t))

	// Assert
	assert.Len(outcome.Errors, 1)
	assert.Equal(2, outcome.Evaluated)
	assert.True(outcome.Interrupted)
}

func TestRunPhaseAfterInterrupt(t *testing.T) {
	// Arrange
	assert := assert.New(t)
	deny := compile(t, newRule(1, 1, argsID, ast.Streq, ast.Value{ast.StringToken("1")}, &ast.DenyAction{}))
	phase3 := compile(t, newRule(2, 3, argsID, ast.UnconditionalMatch, nil))
	phase3b := compile(t, newRule(3, 3, argsID, ast.UnconditionalMatch, nil))
	logging := compile(t, newRule(4, 5, argsID, ast.UnconditionalMatch, nil, &ast.DenyAction{}))
	logging2 := compile(t, newRule(5, 5, argsID, ast.UnconditionalMatch, nil))
	s := NewScheduler(staticRules{1: {deny}, 3: {phase3, phase3b}, 5: {logging, logging2}})
	tx := newTestTx(t, "/?id=1")

	// Act
	o1 := s.RunPhase(1, tx, testLogger(t))
	o3 := s.RunPhase(3, tx, testLogger(t))
	o5 := s.RunPhase(5, tx, testLogger(t))

	// Assert
	assert.True(o1.Interrupted)
	assert.Equal(1, o3.Evaluated)
	assert.Equal(2, o3.Events[0].RuleID)
	assert.True(o3.Interrupted)
	assert.Equal(1, o5.Evaluated)
	assert.Equal(4, o5.Events[0].RuleID)
	assert.Equal(waf.Block, o5.Decision)
	assert.Equal(1, tx.InterruptedBy())
}

func TestRunPhaseLoggingNeverInterrupts(t *testing.T) {
	// Arrange
	assert := assert.New(t)
	logging := compile(t, newRule(1, 5, argsID, ast.UnconditionalMatch, nil, &ast.DenyAction{}))
	logging2 := compile(t, newRule(2, 5, argsID, ast.UnconditionalMatch, nil))
	s := NewScheduler(staticRules{5: {logging, logging2}})
	tx := newTestTx(t, "/?id=1")

	// Act
	o5 := s.RunPhase(5, tx, testLogger(t))

	// Assert
	assert.False(o5.Interrupted)
	assert.Equal(2, o5.Evaluated)
	assert.Equal(waf.Pass, o5.Decision)
}

func TestRunPhaseOutOfRange(t *testing.T) {
	// Arrange
	s := NewScheduler(staticRules{})

	// Act
	o := s.RunPhase(6, NewTransaction("abc", nil), testLogger(t))

	// Assert
	assert.Equal(t, 0, o.Evaluated)
	assert.Equal(t, waf.Pass, o.Decision)
}
