package ruleevaluation

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"secwaf/encoding"
	ast "secwaf/secrule/ast"
	"secwaf/waf"
)

// RuntimeMatchers provides matchers for patterns that are only known at evaluation time, because the operator argument has macros.
type RuntimeMatchers interface {
	RegexMatcher(expr string) (waf.PatternMatcher, error)
	PhraseMatcher(phrases []string) (waf.PatternMatcher, error)
}

// Matchers are what pattern operators are bound to when rules are compiled.
type Matchers struct {
	Factory waf.PatternMatcherFactory
	Runtime RuntimeMatchers
}

var operatorFuncsMap = map[ast.Operator]operatorFunc{
	ast.BeginsWith:          beginsWithOperatorEval,
	ast.EndsWith:            endsWithOperatorEval,
	ast.Contains:            containsOperatorEval,
	ast.ContainsWord:        containsWordOperatorEval,
	ast.Eq:                  equalOperatorEval,
	ast.Ge:                  greaterOrEqualOperatorEval,
	ast.Gt:                  greaterThanOperatorEval,
	ast.Le:                  lessOrEqualOperatorEval,
	ast.Lt:                  lessThanOperatorEval,
	ast.Pm:                  patternOperatorEval,
	ast.Rx:                  patternOperatorEval,
	ast.Streq:               strEqOperatorEval,
	ast.UnconditionalMatch:  unconditionalMatchOperatorEval,
	ast.ValidateURLEncoding: validateURLEncodingOperatorEval,
	ast.Within:              withinOperatorEval,
}

type operatorFunc func(o *boundOperator, value []byte, arg ast.Value) (bool, []waf.Span, error)

// boundOperator is an operator resolved at compile time, with its pattern matcher when the argument is static.
type boundOperator struct {
	cfg     ast.OperatorConfig
	eval    operatorFunc
	mode    waf.MatchMode
	matcher waf.PatternMatcher
	runtime RuntimeMatchers
}

func bindOperator(cfg ast.OperatorConfig, m Matchers) (o *boundOperator, err error) {
	eval, ok := operatorFuncsMap[cfg.Op]
	if !ok {
		err = fmt.Errorf("unsupported operator: %v", cfg.Op)
		return
	}

	o = &boundOperator{cfg: cfg, eval: eval, mode: cfg.Mode, runtime: m.Runtime}
	if !cfg.Op.IsPattern() {
		return
	}

	if o.mode == waf.MatchModeDefault {
		o.mode = waf.MatchAll
		if cfg.Op == ast.Pm {
			o.mode = waf.MatchGlobal
		}
	}

	if cfg.Val.HasMacros() {
		if m.Runtime == nil {
			err = fmt.Errorf("operator %v has macros in its argument, but no runtime matchers are available", cfg.Op)
			o = nil
		}
		return
	}

	if m.Factory == nil {
		err = fmt.Errorf("operator %v needs a pattern matcher factory", cfg.Op)
		o = nil
		return
	}

	if cfg.Op == ast.Rx {
		o.matcher, err = m.Factory.NewRegexMatcher(cfg.Val.String())
	} else {
		pp := cfg.Phrases
		if pp == nil {
			pp = phrases(cfg.Val)
		}
		o.matcher, err = m.Factory.NewPhraseMatcher(pp)
	}
	if err != nil {
		err = fmt.Errorf("invalid %v argument %q: %w", cfg.Op, cfg.Val.String(), err)
		o = nil
	}
	return
}

// match runs the operator on one transformed value. The argument must already have its macros expanded.
func (o *boundOperator) match(value []byte, arg ast.Value) (matched bool, spans []waf.Span, err error) {
	return o.eval(o, value, arg)
}

func (o *boundOperator) close() error {
	if c, ok := o.matcher.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func phrases(v ast.Value) []string {
	return strings.Fields(v.String())
}

func patternOperatorEval(o *boundOperator, value []byte, arg ast.Value) (bool, []waf.Span, error) {
	m := o.matcher
	if m == nil {
		var err error
		if o.cfg.Op == ast.Rx {
			m, err = o.runtime.RegexMatcher(arg.String())
		} else {
			m, err = o.runtime.PhraseMatcher(phrases(arg))
		}
		if err != nil {
			return false, nil, err
		}
	}

	spans, err := m.Match(value, o.mode)
	if err != nil {
		return false, nil, err
	}
	return len(spans) > 0, spans, nil
}

func numbers(value []byte, arg ast.Value) (a int, b int, ok bool) {
	var err error
	if a, err = strconv.Atoi(string(value)); err != nil {
		return
	}
	b, ok = arg.Int()
	return
}

func equalOperatorEval(_ *boundOperator, value []byte, arg ast.Value) (bool, []waf.Span, error) {
	a, b, ok := numbers(value, arg)
	return ok && a == b, nil, nil
}

func greaterOrEqualOperatorEval(_ *boundOperator, value []byte, arg ast.Value) (bool, []waf.Span, error) {
	a, b, ok := numbers(value, arg)
	return ok && a >= b, nil, nil
}

func greaterThanOperatorEval(_ *boundOperator, value []byte, arg ast.Value) (bool, []waf.Span, error) {
	a, b, ok := numbers(value, arg)
	return ok && a > b, nil, nil
}

func lessOrEqualOperatorEval(_ *boundOperator, value []byte, arg ast.Value) (bool, []waf.Span, error) {
	a, b, ok := numbers(value, arg)
	return ok && a <= b, nil, nil
}

func lessThanOperatorEval(_ *boundOperator, value []byte, arg ast.Value) (bool, []waf.Span, error) {
	a, b, ok := numbers(value, arg)
	return ok && a < b, nil, nil
}

func beginsWithOperatorEval(_ *boundOperator, value []byte, arg ast.Value) (bool, []waf.Span, error) {
	return bytes.HasPrefix(value, arg.Bytes()), nil, nil
}

func endsWithOperatorEval(_ *boundOperator, value []byte, arg ast.Value) (bool, []waf.Span, error) {
	return bytes.HasSuffix(value, arg.Bytes()), nil, nil
}

func containsOperatorEval(_ *boundOperator, value []byte, arg ast.Value) (bool, []waf.Span, error) {
	return bytes.Contains(value, arg.Bytes()), nil, nil
}

// containsWordOperatorEval looks for the argument with no word character directly before or after it.
func containsWordOperatorEval(_ *boundOperator, value []byte, arg ast.Value) (bool, []waf.Span, error) {
	word := arg.Bytes()
	if len(word) == 0 {
		return true, nil, nil
	}

	for start := 0; start <= len(value)-len(word); {
		i := bytes.Index(value[start:], word)
		if i < 0 {
			break
		}
		i += start
		end := i + len(word)
		if (i == 0 || !isWordChar(value[i-1])) && (end == len(value) || !isWordChar(value[end])) {
			return true, nil, nil
		}
		start = i + 1
	}

	return false, nil, nil
}

func isWordChar(c byte) bool {
	return c == '_' || '0' <= c && c <= '9' || 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z'
}

func strEqOperatorEval(_ *boundOperator, value []byte, arg ast.Value) (bool, []waf.Span, error) {
	return bytes.Equal(value, arg.Bytes()), nil, nil
}

func unconditionalMatchOperatorEval(_ *boundOperator, _ []byte, _ ast.Value) (bool, []waf.Span, error) {
	return true, nil, nil
}

// validateURLEncodingOperatorEval matches values that are not valid URL encoding.
func validateURLEncodingOperatorEval(_ *boundOperator, value []byte, _ ast.Value) (bool, []waf.Span, error) {
	return !encoding.IsValidURLEncoding(string(value)), nil, nil
}

// withinOperatorEval matches when the value is found inside the argument, like a method in an allowed methods list.
func withinOperatorEval(_ *boundOperator, value []byte, arg ast.Value) (bool, []waf.Span, error) {
	if len(value) == 0 {
		return false, nil, nil
	}
	return bytes.Contains(arg.Bytes(), value), nil, nil
}
