package ruleevaluation

import (
	"testing"

	"secwaf/patternmatching"
	ast "secwaf/secrule/ast"
	"secwaf/secrule/txdata"
	"secwaf/testutils"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func testMatchers(t *testing.T) Matchers {
	cache, err := patternmatching.NewCache(patternmatching.NewFactory(), 16)
	require.Nil(t, err)
	return Matchers{Factory: patternmatching.NewFactory(), Runtime: cache}
}

func newTestTx(t *testing.T, uri string, headers ...txdata.Pair) *Transaction {
	d := txdata.New()
	require.Nil(t, d.SetRequest("GET", uri, "HTTP/1.1", headers))
	return NewTransaction("abc", d)
}

func value(t *testing.T, s string) ast.Value {
	v, err := ast.ParseValue(s)
	require.Nil(t, err)
	return v
}

func newRule(id int, phase int, target ast.Target, op ast.Operator, arg ast.Value, actions ...ast.Action) *ast.Rule {
	return &ast.Rule{
		ID:         id,
		Phase:      phase,
		ChainIndex: ast.NotChained,
		Targets:    []ast.Target{target},
		Op:         ast.OperatorConfig{Op: op, Val: arg},
		Actions:    actions,
	}
}

// chainRules links rules into a chain, numbering the links.
func chainRules(rr ...*ast.Rule) *ast.Rule {
	for i, r := range rr {
		r.ChainIndex = i
		if i+1 < len(rr) {
			r.Next = rr[i+1]
		}
	}
	return rr[0]
}

func compile(t *testing.T, head *ast.Rule) *Chain {
	c, err := Compile(head, testMatchers(t))
	require.Nil(t, err)
	return c
}

func testLogger(t *testing.T) zerolog.Logger {
	return testutils.NewTestLogger(t)
}

type staticRules map[int][]*Chain

func (s staticRules) Phase(phase int) []*Chain {
	return s[phase]
}

func values(vv []ResolvedValue) (ss []string) {
	for _, v := range vv {
		ss = append(ss, string(v.Value))
	}
	return
}

func txPair(k, v string) txdata.Pair {
	return txdata.Pair{Key: k, Value: v}
}
