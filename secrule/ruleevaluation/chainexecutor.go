package ruleevaluation

import (
	"fmt"

	ast "secwaf/secrule/ast"
	"secwaf/waf"

	"github.com/rs/zerolog"
)

// ChainState is the terminal state of a chain evaluation.
type ChainState int

// Chain states.
const (
	_ ChainState = iota
	Matched
	Broken
)

func (s ChainState) String() string {
	switch s {
	case Matched:
		return "Matched"
	case Broken:
		return "Broken"
	}
	return "Evaluating"
}

// ErrorKind tells which stage of a rule's evaluation failed.
type ErrorKind int

// Kinds of per-rule evaluation errors.
const (
	_ ErrorKind = iota

	// OperatorFailure breaks the chain.
	OperatorFailure

	// TransformationFailure skips the value that could not be transformed.
	TransformationFailure
)

func (k ErrorKind) String() string {
	switch k {
	case OperatorFailure:
		return "OperatorFailure"
	case TransformationFailure:
		return "TransformationFailure"
	}
	return "Unknown"
}

// RuleError is a failure while evaluating one rule. It never stops the evaluation of other rules.
type RuleError struct {
	RuleID int
	Kind   ErrorKind
	Err    error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("rule %d: %v: %v", e.RuleID, e.Kind, e.Err)
}

func (e *RuleError) Unwrap() error {
	return e.Err
}

// ChainResult is the outcome of evaluating a chain against a transaction.
type ChainResult struct {
	State ChainState
	Event waf.EvaluationEvent

	// Err is a *RuleError of kind OperatorFailure, if the chain broke because an operator failed.
	Err error

	// Skipped has the values that were left out because a transformation failed.
	Skipped []*RuleError
}

// Execute evaluates the chain, link by link, against the transaction. Actions fire once if every link matched.
func (c *Chain) Execute(tx *Transaction, logger zerolog.Logger) (res ChainResult) {
	head := c.Head()
	res.Event = waf.EvaluationEvent{
		TransactionID: tx.ID(),
		RuleID:        head.ID,
		Phase:         head.Phase,
		Decision:      waf.Pass,
	}

	var all []Match
	res.State = Matched
	for _, l := range c.links {
		mm, skipped, err := c.evalLink(l, tx)
		res.Skipped = append(res.Skipped, skipped...)
		if err != nil {
			logger.Warn().Int("ruleID", l.Rule.ID).Int("chainIndex", l.Rule.ChainIndex).Err(err).Msg("Error evaluating operator")
			res.State = Broken
			res.Err = err
			break
		}
		if len(mm) == 0 {
			res.State = Broken
			break
		}

		tx.history.append(l.Rule.ChainIndex, mm)
		all = append(all, mm...)
	}

	for _, s := range res.Skipped {
		logger.Debug().Int("ruleID", s.RuleID).Err(s.Err).Msg("Skipped a value that could not be transformed")
	}

	res.Event.Matched = res.State == Matched
	res.Event.Err = res.Err
	res.Event.SkippedValues = len(res.Skipped)
	if res.State != Matched {
		return
	}

	if head.ChainIndex != ast.NotChained {
		tx.history.append(WholeTransaction, all)
	}

	logger.Debug().Int("ruleID", head.ID).Msg("Rule triggered")
	c.runActions(tx, &res.Event, logger)
	return
}

// evalLink returns the values that satisfied the link's operator. It stops at the first one unless the chain needs them all.
func (c *Chain) evalLink(l *Link, tx *Transaction) (mm []Match, skipped []*RuleError, err error) {
	r := l.Rule
	arg := r.Op.Val
	if arg.HasMacros() {
		arg = expandMacros(arg, tx, r)
	}

	if len(r.Targets) == 0 {
		// Only unconditional rules have no variables.
		mm = []Match{{ResolvedValue: ResolvedValue{Value: counterOne}}}
		return
	}

	for _, t := range r.Targets {
		for _, rv := range c.values(l, t, tx) {
			value, ready, terr := c.prepare(l, t, rv, tx)
			if terr != nil {
				skipped = append(skipped, &RuleError{RuleID: r.ID, Kind: TransformationFailure, Err: terr})
				continue
			}
			if !ready {
				continue
			}

			var matched bool
			var spans []waf.Span
			matched, spans, err = l.op.match(value, arg)
			if err != nil {
				mm = nil
				err = &RuleError{RuleID: r.ID, Kind: OperatorFailure, Err: err}
				return
			}

			if matched != r.Op.Neg {
				mm = append(mm, Match{ResolvedValue: rv, Spans: spans})
				if !c.needsAllMatches {
					return
				}
			}
		}
	}
	return
}

// values resolves a target. A body stream that was fed through the link's pipeline still needs one value to carry its result.
func (c *Chain) values(l *Link, t ast.Target, tx *Transaction) []ResolvedValue {
	vv := Resolve(t, tx, l.Rule)
	if len(vv) > 0 || !t.Name.IsStream() || t.IsCount {
		return vv
	}
	if _, ok := tx.streamOutput(l, t.Name); ok {
		return []ResolvedValue{{Target: t.Name}}
	}
	return nil
}

// prepare transforms a resolved value. Body streams use the output their stream produced, which is only ready once the stream ended. Counters are not transformed.
func (c *Chain) prepare(l *Link, t ast.Target, rv ResolvedValue, tx *Transaction) (value []byte, ready bool, err error) {
	if t.IsCount {
		return rv.Value, true, nil
	}

	if t.Name.IsStream() {
		if bs, ok := tx.streamOutput(l, t.Name); ok {
			return bs.out, bs.done && bs.err == nil, bs.err
		}
	}

	if l.pipeline.Len() == 0 {
		return rv.Value, true, nil
	}
	value, _, err = l.pipeline.Evaluate(rv.Value)
	return value, err == nil, err
}

// runActions fires the actions of every link, head first, in the order they were declared.
func (c *Chain) runActions(tx *Transaction, ev *waf.EvaluationEvent, logger zerolog.Logger) {
	head := c.Head()
	ev.ShouldLog = true

	var msg, logData ast.Value
	decision := waf.Pass
	for _, l := range c.links {
		for _, action := range l.Rule.Actions {
			ev.Actions = append(ev.Actions, ast.ActionName(action))

			switch action := action.(type) {
			case *ast.SetVarAction:
				if err := executeSetVarAction(action, tx, head); err != nil {
					logger.Warn().Int("ruleID", l.Rule.ID).Err(err).Msg("Error executing setVar action")
				}

			case *ast.NoLogAction:
				ev.ShouldLog = false

			case *ast.LogAction:
				ev.ShouldLog = true

			case *ast.MsgAction:
				msg = action.Msg

			case *ast.LogDataAction:
				logData = action.LogData

			case *ast.AllowAction:
				if decision == waf.Pass {
					decision = waf.Allow
				}

			case *ast.DenyAction:
				if decision == waf.Pass {
					decision = waf.Block
				}
			}
		}
	}

	// Nothing is interrupted in the logging phase. It is evaluated after the transaction was already decided.
	if head.Phase != ast.PhaseLogging && decision.IsInterrupt() {
		tx.interrupt(decision, head.ID)
		ev.Decision = decision
	}

	ev.Msg = expandMacros(msg, tx, head).String()
	ev.LogData = expandMacros(logData, tx, head).String()
}
