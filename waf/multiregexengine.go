package waf

// MatchMode is the reporting policy of a PatternMatcher.
type MatchMode int

const (
	// MatchModeDefault lets the operator pick its usual mode.
	MatchModeDefault MatchMode = iota

	// MatchAll reports every occurrence, including overlapping ones where the backend can find them.
	MatchAll

	// MatchLongest reports only the single longest match.
	MatchLongest

	// MatchGlobal reports the longest non-overlapping matches, scanning left to right.
	MatchGlobal
)

func (m MatchMode) String() string {
	switch m {
	case MatchAll:
		return "all"
	case MatchLongest:
		return "longest"
	case MatchGlobal:
		return "global"
	}
	return "default"
}

// Span is a half-open byte range [Start, End) of a match within the scanned value.
type Span struct {
	Start int
	End   int
}

// Len is the number of bytes covered by the span.
func (s Span) Len() int {
	return s.End - s.Start
}

// PatternMatcher scans a value and reports where it matched. A PatternMatcher is built once and may be used concurrently.
type PatternMatcher interface {
	Match(value []byte, mode MatchMode) (spans []Span, err error)
}

// PatternMatcherFactory is an interface to a factory that creates pattern matchers, such as Go regexp or Hyperscan backed ones.
type PatternMatcherFactory interface {
	NewRegexMatcher(expr string) (m PatternMatcher, err error)
	NewPhraseMatcher(phrases []string) (m PatternMatcher, err error)
}
