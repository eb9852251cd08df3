package ast

import "secwaf/waf"

// Phases a rule can belong to.
const (
	PhaseRequestHeaders  = 1
	PhaseRequestBody     = 2
	PhaseResponseHeaders = 3
	PhaseResponseBody    = 4
	PhaseLogging         = 5

	// NumPhases is the fixed number of evaluation phases.
	NumPhases = 5
)

// NotChained is the ChainIndex of a rule that is not part of a chain.
const NotChained = -1

// Rule is a single rule, which might be a link in a chain.
// Rules are built once at load time and are shared read-only between concurrent transaction evaluations. Never modify a Rule after it was loaded.
type Rule struct {
	ID    int
	Tags  []string
	Phase int

	// ChainIndex is 0 for a chain head, increasing for each following link, and NotChained otherwise.
	ChainIndex int
	Next       *Rule

	Targets         []Target
	Transformations []Transformation
	Op              OperatorConfig
	Actions         []Action
}

// IsChainHead tells whether this rule is evaluated directly by the phase scheduler.
func (r *Rule) IsChainHead() bool {
	return r.ChainIndex == NotChained || r.ChainIndex == 0
}

// HasTag tells whether the rule carries the given tag.
func (r *Rule) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Links returns the rule followed by every link chained after it.
func (r *Rule) Links() (rr []*Rule) {
	for cur := r; cur != nil; cur = cur.Next {
		rr = append(rr, cur)
	}
	return
}

// OperatorConfig describes how the rule matches the transformed values against its argument.
type OperatorConfig struct {
	Op  Operator
	Neg bool
	Val Value

	// Mode overrides the operator's default pattern matching mode. Only used by pattern operators.
	Mode waf.MatchMode

	// Phrases of a pm operator that were loaded from a file. When nil, the phrases are the words of Val.
	Phrases []string
}

// Target is a variable reference. It describes which data of the transaction a rule is looking at.
type Target struct {
	Name TargetName // Example value: TargetArgs if the rule said ARGS

	// Path selects specific children, like [user id] for ARGS:user.id. When empty, the whole collection is used.
	Path []string

	IsCount bool // Example of target where this is true, meaning number of args: &ARGS

	// ParentHops walks upward from a matched tree before reading it. Only used by the matched pseudo-variables.
	ParentHops int
}

// Mode is the resolution mode implied by the target.
func (t Target) Mode() TargetMode {
	if t.IsCount {
		return ModeCounter
	}
	if len(t.Path) > 0 {
		return ModeSpecific
	}
	return ModeCollection
}

// TargetMode is how a variable reference is resolved.
type TargetMode int

// Target resolution modes.
const (
	_ TargetMode = iota
	ModeCollection
	ModeSpecific
	ModeCounter
)

// Operator that the rule will use to evaluate the input against the value.
type Operator int

// Operators that rules can use.
const (
	_ Operator = iota
	BeginsWith
	EndsWith
	Contains
	ContainsWord
	Eq
	Ge
	Gt
	Le
	Lt
	Pm
	Rx
	Streq
	UnconditionalMatch
	ValidateURLEncoding
	Within
	_lastOperator
)

// IsKnown tells whether the operator is one of the declared operators.
func (o Operator) IsKnown() bool {
	return o > 0 && o < _lastOperator
}

// IsPattern tells whether the operator is backed by a pattern matcher.
func (o Operator) IsPattern() bool {
	return o == Rx || o == Pm
}

// OperatorNamesStrings gets string names of operators.
var OperatorNamesStrings = map[Operator]string{
	BeginsWith:          "beginsWith",
	EndsWith:            "endsWith",
	Contains:            "contains",
	ContainsWord:        "containsWord",
	Eq:                  "eq",
	Ge:                  "ge",
	Gt:                  "gt",
	Le:                  "le",
	Lt:                  "lt",
	Pm:                  "pm",
	Rx:                  "rx",
	Streq:               "streq",
	UnconditionalMatch:  "unconditionalMatch",
	ValidateURLEncoding: "validateUrlEncoding",
	Within:              "within",
}

func (o Operator) String() string {
	if s, ok := OperatorNamesStrings[o]; ok {
		return s
	}
	return "unknown"
}

// Transformation is what will be applied to the input before it is evaluated against the operator of the rule.
type Transformation int

// Transformations that rules can use.
const (
	_ Transformation = iota
	CompressWhitespace
	HexDecode
	HexEncode
	HTMLEntityDecode
	JsDecode
	Length
	Lowercase
	None
	NormalizePath
	NormalizePathWin
	RemoveNulls
	RemoveWhitespace
	ReplaceNulls
	Sha1
	Trim
	TrimLeft
	TrimRight
	Uppercase
	URLDecode
	URLDecodeUni
	Utf8toUnicode
	_lastTransformation
)

// IsKnown tells whether the transformation is one of the declared transformations.
func (t Transformation) IsKnown() bool {
	return t > 0 && t < _lastTransformation
}

// TransformationNamesStrings gets string names of transformations.
var TransformationNamesStrings = map[Transformation]string{
	CompressWhitespace: "compressWhitespace",
	HexDecode:          "hexDecode",
	HexEncode:          "hexEncode",
	HTMLEntityDecode:   "htmlEntityDecode",
	JsDecode:           "jsDecode",
	Length:             "length",
	Lowercase:          "lowercase",
	None:               "none",
	NormalizePath:      "normalizePath",
	NormalizePathWin:   "normalizePathWin",
	RemoveNulls:        "removeNulls",
	RemoveWhitespace:   "removeWhitespace",
	ReplaceNulls:       "replaceNulls",
	Sha1:               "sha1",
	Trim:               "trim",
	TrimLeft:           "trimLeft",
	TrimRight:          "trimRight",
	Uppercase:          "uppercase",
	URLDecode:          "urlDecode",
	URLDecodeUni:       "urlDecodeUni",
	Utf8toUnicode:      "utf8toUnicode",
}

func (t Transformation) String() string {
	if s, ok := TransformationNamesStrings[t]; ok {
		return s
	}
	return "unknown"
}
