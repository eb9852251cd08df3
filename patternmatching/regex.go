package patternmatching

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"secwaf/waf"

	"rsc.io/binaryregexp"
)

// regexMatcher is a waf.PatternMatcher backed by Go regexp. Expressions that look for raw bytes use Russ Cox's binary-safe fork instead.
// Two copies are compiled: leftmost-first for plain reporting, and leftmost-longest for the longest and global modes.
type regexMatcher struct {
	first   finder
	longest finder
}

// finder is the part of the regexp API shared by regexp and binaryregexp.
type finder interface {
	FindAllIndex(b []byte, n int) [][]int
}

func newRegexMatcher(expr string) (m *regexMatcher, err error) {
	expr = removePcrePossessiveQuantifier(expr)
	hasHexEscapedBytes := containsHexEscapedBytes(expr)

	// If there are any non-printable characters, then convert them into the \x00 representation
	var b bytes.Buffer
	for i := 0; i < len(expr); i++ {
		// ' ' is the lowest value printable ASCII char, and '~' is the highest
		if ' ' <= expr[i] && expr[i] <= '~' {
			b.WriteByte(expr[i])
		} else {
			fmt.Fprintf(&b, "\\x%02X", expr[i])
			hasHexEscapedBytes = true
		}
	}
	expr = b.String()

	m = &regexMatcher{}
	if !hasHexEscapedBytes {
		var first, longest *regexp.Regexp
		if first, err = regexp.Compile(expr); err != nil {
			err = fmt.Errorf("failed to compile Go regexp pattern %v. Error was: %v", expr, err)
			m = nil
			return
		}
		longest = regexp.MustCompile(expr)
		longest.Longest()
		m.first, m.longest = first, longest
		return
	}

	var first, longest *binaryregexp.Regexp
	if first, err = binaryregexp.Compile(expr); err != nil {
		err = fmt.Errorf("failed to compile Go regexp pattern %v using binary regexp engine. Error was: %v", expr, err)
		m = nil
		return
	}
	longest = binaryregexp.MustCompile(expr)
	longest.Longest()
	m.first, m.longest = first, longest
	return
}

// Match scans the value. Go regexp never reports overlapping matches, so MatchAll gives the leftmost-first non-overlapping ones.
func (m *regexMatcher) Match(value []byte, mode waf.MatchMode) (spans []waf.Span, err error) {
	f := m.first
	if mode == waf.MatchLongest || mode == waf.MatchGlobal {
		f = m.longest
	}

	for _, loc := range f.FindAllIndex(value, -1) {
		spans = append(spans, waf.Span{Start: loc[0], End: loc[1]})
	}

	spans = SelectSpans(spans, mode)
	return
}

var hexEscapeRegexp = regexp.MustCompile(`((^|[^\\])(\\\\)*)\\x([0-9a-fA-F]{2})`)

func containsHexEscapedBytes(s string) bool {
	return hexEscapeRegexp.MatchString(s)
}

var removePcrePlusPossessiveQuantifierRegex = regexp.MustCompile(`((^|[^\\])(\\\\)*)\+\+`)
var removePcreStarPossessiveQuantifierRegex = regexp.MustCompile(`((^|[^\\])(\\\\)*)\*\+`)
var removePcreQuestionmarkPossessiveQuantifierRegex = regexp.MustCompile(`((^|[^\\])(\\\\)*)\?\+`)
var removePcreRangePossessiveQuantifierRegex = regexp.MustCompile(`((^|[^\\])(\\\\)*)({\d+(,(\d+)?)?})\+`)

// PCRE has possessive quantifiers such as "++", which are only a hint to not backtrack.
// Go regexp never backtracks, and does not accept the syntax. This function removes it from a regex.
func removePcrePossessiveQuantifier(r string) string {
	if strings.Contains(r, "++") {
		r = removePcrePlusPossessiveQuantifierRegex.ReplaceAllString(r, "${1}+")
	}

	if strings.Contains(r, "*+") {
		r = removePcreStarPossessiveQuantifierRegex.ReplaceAllString(r, "${1}*")
	}

	if strings.Contains(r, "?+") {
		r = removePcreQuestionmarkPossessiveQuantifierRegex.ReplaceAllString(r, "${1}?")
	}

	if strings.Contains(r, "}+") {
		r = removePcreRangePossessiveQuantifierRegex.ReplaceAllString(r, "${1}${4}")
	}

	return r
}
