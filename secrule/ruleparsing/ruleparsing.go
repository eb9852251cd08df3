package ruleparsing

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	sr "secwaf/secrule"
	ast "secwaf/secrule/ast"
)

var transformationsMap = func() map[string]ast.Transformation {
	m := make(map[string]ast.Transformation, len(ast.TransformationNamesStrings)+2)
	for t, s := range ast.TransformationNamesStrings {
		m[strings.ToLower(s)] = t
	}
	m["normalisepath"] = ast.NormalizePath
	m["normalisepathwin"] = ast.NormalizePathWin
	return m
}()

var operatorsMap = map[string]ast.Operator{
	"@beginswith":          ast.BeginsWith,
	"@endswith":            ast.EndsWith,
	"@contains":            ast.Contains,
	"@containsword":        ast.ContainsWord,
	"@eq":                  ast.Eq,
	"@ge":                  ast.Ge,
	"@gt":                  ast.Gt,
	"@le":                  ast.Le,
	"@lt":                  ast.Lt,
	"@pm":                  ast.Pm,
	"@pmf":                 ast.Pm,
	"@pmfromfile":          ast.Pm,
	"@rx":                  ast.Rx,
	"@streq":               ast.Streq,
	"@unconditionalmatch":  ast.UnconditionalMatch,
	"@validateurlencoding": ast.ValidateURLEncoding,
	"@within":              ast.Within,
}

// Actions that only carry metadata for audit logs. They do not change how a rule is evaluated.
var metadataActions = map[string]bool{
	"accuracy":   true,
	"auditlog":   true,
	"block":      true,
	"capture":    true,
	"maturity":   true,
	"noauditlog": true,
	"pass":       true,
	"rev":        true,
	"severity":   true,
	"ver":        true,
}

type ruleParserImpl struct {
}

// NewRuleParser creates a secrule.RuleParser.
func NewRuleParser() sr.RuleParser {
	return &ruleParserImpl{}
}

// parseState is the rule chain being built while statements are parsed.
type parseState struct {
	head *ast.Rule
	last *ast.Rule
}

// Parse a rule set. Statements are handled in order, and included files are parsed where the include statement is.
func (r *ruleParserImpl) Parse(input string, pf sr.PhraseLoaderCb, ilcb sr.IncludeLoaderCb) (doc *sr.RuleDocument, err error) {
	doc = &sr.RuleDocument{}
	var st parseState
	stmts := newStatementReader(input)
	for {
		stmt, lineNumber, ok := stmts.next()
		if !ok {
			break
		}

		// A commented out first line of a multiline statement leaves its remaining args behind.
		if stmt[0] == '"' {
			continue
		}

		statementName, rest := word(stmt)
		statementName = strings.ToLower(statementName)
		rest = skipSpace(rest)

		if st.head != nil && statementName != "secrule" {
			err = fmt.Errorf("rule chain of rule %d not terminated before line %d", st.head.ID, lineNumber)
			return
		}

		switch statementName {
		case "secrule":
			err = parseSecRule(rest, &st, doc, pf)
			if err != nil {
				err = fmt.Errorf("parse error in SecRule on line %d: %w", lineNumber, err)
				return
			}
		case "secaction":
			err = parseSecActionStmt(rest, doc)
			if err != nil {
				err = fmt.Errorf("parse error in SecAction on line %d: %w", lineNumber, err)
				return
			}
		case "secruleremovebyid":
			err = parseRemoveByID(rest, doc)
			if err != nil {
				err = fmt.Errorf("parse error in SecRuleRemoveById on line %d: %w", lineNumber, err)
				return
			}
		case "secruleremovebytag":
			for rest != "" {
				var tag string
				tag, rest = nextArg(rest)
				rest = skipSpace(rest)
				if tag == "" {
					break
				}
				doc.RemoveTags = append(doc.RemoveTags, tag)
			}
		case "secmarker", "secdefaultaction", "seccollectiontimeout", "seccomponentsignature", "secruleengine", "secrequestbodyaccess", "secresponsebodyaccess":
			// Engine directives. They do not change how rules are evaluated.
		case "include":
			if ilcb == nil {
				err = errors.New("rules include statement, but no loader callback was given")
				return
			}

			includeFilePath, _ := nextArg(rest)
			var included *sr.RuleDocument
			included, err = ilcb(includeFilePath)
			if err != nil {
				err = fmt.Errorf("include on line %d: %w", lineNumber, err)
				return
			}
			doc.Append(included)

		default:
			err = fmt.Errorf("unknown statement on line %d: %s", lineNumber, stmt)
			return
		}
	}

	if err = stmts.err(); err != nil {
		err = fmt.Errorf("failed to read rules: %w", err)
		return
	}

	if st.head != nil {
		err = fmt.Errorf("rule chain of rule %d is not terminated", st.head.ID)
	}

	return
}

// Parse a single rule, which may start or continue a chain.
func parseSecRule(s string, st *parseState, doc *sr.RuleDocument, pf sr.PhraseLoaderCb) (err error) {
	ru := &ast.Rule{ChainIndex: ast.NotChained}

	ru.Targets, s, err = parseTargets(s)
	if err != nil {
		return
	}

	s = skipSpace(s)

	ru.Op, s, err = parseOperator(s)
	if err != nil {
		return
	}

	s = skipSpace(s)

	rawActions, s, err := parseRawActions(s)
	if err != nil {
		return
	}

	s = skipSpace(s)
	s, _ = nextArg(s)
	if s != "" {
		err = fmt.Errorf("unexpected arg: %s", s)
		return
	}

	pa, err := parseActions(rawActions)
	if err != nil {
		err = fmt.Errorf("error while parsing actions: %s", err)
		return
	}
	ru.Actions = pa.actions
	ru.Transformations = pa.transformations
	ru.Tags = pa.tags

	if ru.Op.Phrases != nil {
		if pf == nil {
			err = errors.New("rules contained @pmFromFile but no loader callback was given")
			return
		}
		ru.Op.Phrases, err = pf(ru.Op.Val.String())
		if err != nil {
			return
		}
		if ru.Op.Phrases == nil {
			ru.Op.Phrases = []string{}
		}
	}

	if st.head == nil {
		if pa.id == 0 {
			err = errors.New("missing ID")
			return
		}
		ru.ID = pa.id
		ru.Phase = pa.phase
		if ru.Phase == 0 {
			ru.Phase = ast.PhaseRequestBody
		}

		if pa.chain {
			ru.ChainIndex = 0
			st.head, st.last = ru, ru
			return
		}

		doc.Rules = append(doc.Rules, ru)
		return
	}

	// A link of the current chain.
	if pa.id != 0 && pa.id != st.head.ID {
		err = fmt.Errorf("chain link has id %d, but the chain has id %d", pa.id, st.head.ID)
		return
	}
	if pa.phase != 0 && pa.phase != st.head.Phase {
		err = errors.New("rule chain has conflicting phases")
		return
	}
	ru.ID = st.head.ID
	ru.Phase = st.head.Phase
	ru.ChainIndex = st.last.ChainIndex + 1
	st.last.Next = ru
	st.last = ru

	if !pa.chain {
		// End of rule chain
		doc.Rules = append(doc.Rules, st.head)
		st.head, st.last = nil, nil
	}

	return
}

// Parse a single SecAction statement. It is a rule that matches unconditionally.
func parseSecActionStmt(s string, doc *sr.RuleDocument) (err error) {
	rawActions, s, err := parseRawActions(s)
	if err != nil {
		return
	}

	s = skipSpace(s)
	s, _ = nextArg(s)
	if s != "" {
		err = fmt.Errorf("unexpected arg: %s", s)
		return
	}

	pa, err := parseActions(rawActions)
	if err != nil {
		return
	}

	if pa.id == 0 {
		err = errors.New("missing ID")
		return
	}

	if pa.chain {
		err = errors.New("SecAction cannot start a chain")
		return
	}

	phase := pa.phase
	if phase == 0 {
		phase = ast.PhaseRequestBody
	}

	doc.Rules = append(doc.Rules, &ast.Rule{
		ID:         pa.id,
		Phase:      phase,
		Tags:       pa.tags,
		ChainIndex: ast.NotChained,
		Op:         ast.OperatorConfig{Op: ast.UnconditionalMatch},
		Actions:    pa.actions,
	})

	return
}

func parseRemoveByID(s string, doc *sr.RuleDocument) (err error) {
	for _, f := range strings.Fields(strings.Trim(s, " \\\t\r\n")) {
		var id int
		id, err = strconv.Atoi(f)
		if err != nil {
			err = fmt.Errorf("invalid rule id %q", f)
			return
		}
		doc.RemoveIDs = append(doc.RemoveIDs, id)
	}
	return
}

// parseTargets parses the variables field of a SecRule, like "ARGS|REQUEST_HEADERS:User-Agent".
func parseTargets(s string) (targets []ast.Target, rest string, err error) {
	s, rest = nextArg(s)

	for {
		var targetStr string
		targetStr, s = nextTarget(s)
		if targetStr == "" {
			err = fmt.Errorf("unable to parse targets at %q", s)
			return
		}

		if targetStr[0] == '!' {
			err = fmt.Errorf("target exclusions are not supported: %s", targetStr)
			return
		}

		var target ast.Target
		target, err = parseTarget(targetStr)
		if err != nil {
			return
		}
		targets = append(targets, target)

		s = skipSpace(s)
		if s == "" {
			return
		}
		if s[0] != '|' && s[0] != ',' {
			err = fmt.Errorf("unexpected text after target %s: %s", targetStr, s)
			return
		}
		s = skipSpace(s[1:])
	}
}

// Parse a single target like "&ARGS", "ARGS:user.id" or "MATCHED_VAR^1:age".
func parseTarget(targetStr string) (target ast.Target, err error) {
	if targetStr[0] == '&' {
		target.IsCount = true
		targetStr = targetStr[1:]
	}

	var nameStr, selector string
	colonIdx := strings.Index(targetStr, ":")
	if colonIdx != -1 {
		nameStr = targetStr[:colonIdx]
		selector = targetStr[colonIdx+1:]
	} else {
		nameStr = targetStr
	}

	if i := strings.Index(nameStr, "^"); i != -1 {
		target.ParentHops, err = strconv.Atoi(nameStr[i+1:])
		if err != nil {
			err = fmt.Errorf("invalid parent hops in target %v", targetStr)
			return
		}
		nameStr = nameStr[:i]
	}

	var ok bool
	target.Name, ok = ast.TargetNamesFromStr[strings.ToUpper(nameStr)]
	if !ok {
		err = fmt.Errorf("invalid target name: %v", nameStr)
		return
	}

	if target.ParentHops > 0 && !target.Name.IsMatched() {
		err = fmt.Errorf("parent hops are only valid on matched variables: %v", targetStr)
		return
	}

	if len(selector) >= 2 && selector[0] == '\'' && selector[len(selector)-1] == '\'' {
		selector, _ = nextArg(selector)
	}

	if len(selector) >= 2 && selector[0] == '/' && selector[len(selector)-1] == '/' {
		err = fmt.Errorf("regex target selectors are not supported: %v", targetStr)
		return
	}

	if selector != "" {
		target.Path = strings.Split(selector, ".")
	}

	return
}

// parseOperator parses the operator field of a SecRule. A field without an operator name is a regex.
func parseOperator(s string) (cfg ast.OperatorConfig, rest string, err error) {
	cfg.Op = ast.Rx

	s, rest = nextArg(s)

	if len(s) > 0 && s[0] == '!' {
		cfg.Neg = true
		s = s[1:]
	}

	var ops string
	if strings.HasPrefix(s, "@") {
		ops, s = word(s[1:])
		ops = "@" + ops
	}
	if ops != "" {
		ops = strings.ToLower(ops)
		if o, ok := operatorsMap[ops]; ok {
			cfg.Op = o
		} else {
			err = fmt.Errorf("unable to parse operator %s", ops)
			return
		}

		s = strings.TrimLeft(s, " ")

		if ops == "@pmf" || ops == "@pmfromfile" {
			// The phrases are loaded once the actions were parsed.
			cfg.Phrases = []string{}
		}
	}

	cfg.Val, err = ast.ParseValue(s)
	if err != nil {
		return
	}

	if cfg.Phrases != nil && cfg.Val.HasMacros() {
		err = errors.New("macros in @pmFromFile not supported")
	}

	return
}

type rawAction struct {
	Key string
	Val string
}

// Parse a raw SecRule actions arg into key-value pairs.
func parseRawActions(s string) (actions []rawAction, rest string, err error) {
	s, rest = nextArg(s)
	s = strings.Trim(s, " \t\r\n")

	// The last link of a chain may have no actions at all.
	if s == "" {
		return
	}

	for {
		k, v, next, ok := nextAction(s)
		if !ok {
			err = fmt.Errorf("unable to parse actions at %q", s)
			return
		}
		actions = append(actions, rawAction{strings.ToLower(k), v})

		s = skipSpace(next)
		if s == "" {
			return
		}
		if s[0] != ',' {
			err = fmt.Errorf("expected comma between actions at %q", s)
			return
		}
		s = skipSpace(s[1:])
	}
}

type parsedActions struct {
	actions         []ast.Action
	id              int
	transformations []ast.Transformation
	tags            []string
	chain           bool
	phase           int
}

func parseActions(rawActions []rawAction) (pa parsedActions, err error) {
	var deny *ast.DenyAction
	status := 0
	for _, a := range rawActions {
		switch a.Key {

		case "id":
			pa.id, err = strconv.Atoi(a.Val)
			if err != nil {
				return
			}

		case "chain":
			pa.chain = true

		case "allow":
			pa.actions = append(pa.actions, &ast.AllowAction{})

		case "deny":
			deny = &ast.DenyAction{}
			pa.actions = append(pa.actions, deny)

		case "status":
			status, err = strconv.Atoi(a.Val)
			if err != nil {
				err = fmt.Errorf("invalid status %q", a.Val)
				return
			}

		case "msg":
			var v ast.Value
			v, err = ast.ParseValue(a.Val)
			if err != nil {
				return
			}

			pa.actions = append(pa.actions, &ast.MsgAction{Msg: v})

		case "logdata":
			var v ast.Value
			v, err = ast.ParseValue(a.Val)
			if err != nil {
				return
			}

			pa.actions = append(pa.actions, &ast.LogDataAction{LogData: v})

		case "t":
			name := strings.ToLower(a.Val)
			t, ok := transformationsMap[name]
			if !ok {
				err = fmt.Errorf("unknown transformation: %s", a.Val)
				return
			}

			// t:none clears the transformations that came before it.
			if t == ast.None {
				pa.transformations = nil
				continue
			}
			pa.transformations = append(pa.transformations, t)

		case "tag":
			pa.tags = append(pa.tags, a.Val)

		case "setvar":
			var sv ast.SetVarAction
			sv, err = parseSetVarAction(a.Val)
			if err != nil {
				return
			}

			pa.actions = append(pa.actions, &sv)

		case "nolog":
			pa.actions = append(pa.actions, &ast.NoLogAction{})

		case "log":
			pa.actions = append(pa.actions, &ast.LogAction{})

		case "phase":
			pa.phase, err = parsePhase(a.Val)
			if err != nil {
				return
			}

		default:
			if !metadataActions[a.Key] {
				err = fmt.Errorf("unsupported action: %s", a.Key)
				return
			}
		}
	}

	if deny != nil {
		deny.Status = status
	}

	return
}

func parsePhase(s string) (phase int, err error) {
	switch s {
	case "1":
		phase = ast.PhaseRequestHeaders
	case "2", "request":
		phase = ast.PhaseRequestBody
	case "3":
		phase = ast.PhaseResponseHeaders
	case "4", "response":
		phase = ast.PhaseResponseBody
	case "5", "logging":
		phase = ast.PhaseLogging
	default:
		err = fmt.Errorf("unknown phase: %s", s)
	}

	return
}
