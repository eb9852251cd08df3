package ruleevaluation

import (
	"errors"
	"fmt"

	ast "secwaf/secrule/ast"
	tr "secwaf/secrule/transformations"
)

// Chain is a compiled rule chain, or a single rule that is not chained. Its operators and transformation pipelines are bound once, and a Chain is shared read-only by all transactions.
type Chain struct {
	links []*Link

	// Set when a later link, or a msg or logdata of the chain, reads every matched value rather than the last.
	needsAllMatches bool
}

// Link is one compiled rule of a chain.
type Link struct {
	Rule     *ast.Rule
	pipeline *tr.Pipeline
	op       *boundOperator
}

// Compile validates a rule chain, starting at its head, and binds its operators and transformation pipelines.
func Compile(head *ast.Rule, m Matchers) (c *Chain, err error) {
	if !head.IsChainHead() {
		err = fmt.Errorf("rule %d is not a chain head", head.ID)
		return
	}

	c = &Chain{}
	for i, r := range head.Links() {
		var l *Link
		l, err = compileLink(r, head, i)
		if err == nil {
			l.op, err = bindOperator(r.Op, m)
		}
		if err != nil {
			c.Close()
			c = nil
			return
		}
		c.links = append(c.links, l)
	}

	c.needsAllMatches = needsAllMatches(c.links)
	return
}

func compileLink(r *ast.Rule, head *ast.Rule, position int) (l *Link, err error) {
	if r.Phase < ast.PhaseRequestHeaders || r.Phase > ast.NumPhases {
		err = fmt.Errorf("phase %d is out of range", r.Phase)
		return
	}
	if r.Phase != head.Phase {
		err = fmt.Errorf("link %d is in phase %d, but the chain is in phase %d", position, r.Phase, head.Phase)
		return
	}
	if head.Next != nil || head.ChainIndex == 0 {
		if r.ChainIndex != position {
			err = fmt.Errorf("link %d has chain index %d", position, r.ChainIndex)
			return
		}
	}

	if len(r.Targets) == 0 && r.Op.Op != ast.UnconditionalMatch {
		err = errors.New("rule has no variables")
		return
	}
	for _, t := range r.Targets {
		if !t.Name.IsKnown() {
			err = fmt.Errorf("unknown variable kind %d", t.Name)
			return
		}
		if t.ParentHops < 0 || t.ParentHops > 0 && !t.Name.IsMatched() {
			err = fmt.Errorf("parent hops are not valid on %v", t.Name)
			return
		}
	}

	for _, a := range r.Actions {
		if err = validateAction(a); err != nil {
			return
		}
	}

	l = &Link{Rule: r}
	l.pipeline, err = tr.NewPipeline(r.Transformations)
	if err != nil {
		l = nil
	}
	return
}

func validateAction(a ast.Action) error {
	var vv []ast.Value
	switch a := a.(type) {
	case *ast.MsgAction:
		vv = []ast.Value{a.Msg}
	case *ast.LogDataAction:
		vv = []ast.Value{a.LogData}
	case *ast.SetVarAction:
		vv = []ast.Value{a.Variable, a.Value}
	case nil:
		return errors.New("nil action")
	}

	for _, v := range vv {
		for _, mt := range v.Macros() {
			if !mt.Name.IsKnown() {
				return fmt.Errorf("unknown variable kind %d in macro", mt.Name)
			}
		}
	}
	return nil
}

func needsAllMatches(links []*Link) bool {
	for i, l := range links {
		if i > 0 {
			for _, t := range l.Rule.Targets {
				if readsAllMatches(t.Name) {
					return true
				}
			}
		}

		for _, a := range l.Rule.Actions {
			var v ast.Value
			switch a := a.(type) {
			case *ast.MsgAction:
				v = a.Msg
			case *ast.LogDataAction:
				v = a.LogData
			}
			for _, mt := range v.Macros() {
				if readsAllMatches(mt.Name) {
					return true
				}
			}
		}
	}
	return false
}

func readsAllMatches(name ast.TargetName) bool {
	return name == ast.TargetMatchedVars || name == ast.TargetMatchedVarsNames
}

// Head is the rule the chain starts with.
func (c *Chain) Head() *ast.Rule {
	return c.links[0].Rule
}

// Links are the compiled rules of the chain in order.
func (c *Chain) Links() []*Link {
	return c.links
}

// Close releases resources held by the chain's pattern matchers, such as Hyperscan databases.
func (c *Chain) Close() (err error) {
	for _, l := range c.links {
		if l.op == nil {
			continue
		}
		if cerr := l.op.close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return
}

// Pipeline is the link's transformation pipeline.
func (l *Link) Pipeline() *tr.Pipeline {
	return l.pipeline
}

// readsStream tells whether the link resolves the values of a body stream.
func (l *Link) readsStream(name ast.TargetName) bool {
	for _, t := range l.Rule.Targets {
		if t.Name == name && !t.IsCount {
			return true
		}
	}
	return false
}
