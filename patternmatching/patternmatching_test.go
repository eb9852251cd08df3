package patternmatching

import (
	"fmt"
	"strings"
	"testing"

	"secwaf/waf"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"rsc.io/binaryregexp"
)

func TestRegexMatcherModes(t *testing.T) {
	// Arrange
	assert := assert.New(t)
	f := NewFactory()
	m, err := f.NewRegexMatcher(`a+|b`)
	require.Nil(t, err)
	value := []byte("xaaxbaaaa")

	// Act
	all, err1 := m.Match(value, waf.MatchAll)
	longest, err2 := m.Match(value, waf.MatchLongest)
	global, err3 := m.Match(value, waf.MatchGlobal)
	none, err4 := m.Match([]byte("xyz"), waf.MatchAll)

	// Assert
	assert.Nil(err1)
	assert.Nil(err2)
	assert.Nil(err3)
	assert.Nil(err4)
	assert.Equal([]waf.Span{{Start: 1, End: 3}, {Start: 4, End: 5}, {Start: 5, End: 9}}, all)
	assert.Equal([]waf.Span{{Start: 5, End: 9}}, longest)
	assert.Equal([]waf.Span{{Start: 1, End: 3}, {Start: 4, End: 5}, {Start: 5, End: 9}}, global)
	assert.Nil(none)
}

func TestRegexMatcherLeftmostLongest(t *testing.T) {
	// Arrange
	assert := assert.New(t)
	m, err := NewFactory().NewRegexMatcher(`ab|abcd`)
	require.Nil(t, err)

	// Act
	first, _ := m.Match([]byte("abcd"), waf.MatchAll)
	global, _ := m.Match([]byte("abcd"), waf.MatchGlobal)

	// Assert
	assert.Equal([]waf.Span{{Start: 0, End: 2}}, first)
	assert.Equal([]waf.Span{{Start: 0, End: 4}}, global)
}

func TestRegexMatcherBinary(t *testing.T) {
	// Arrange
	assert := assert.New(t)
	m, err := NewFactory().NewRegexMatcher(`\xff\x00`)
	require.Nil(t, err)

	// Act
	spans, err := m.Match([]byte("a\xff\x00b"), waf.MatchAll)

	// Assert
	assert.Nil(err)
	assert.Equal([]waf.Span{{Start: 1, End: 3}}, spans)
	_, isBinary := m.(*regexMatcher).first.(*binaryregexp.Regexp)
	assert.True(isBinary)
}

func TestRegexMatcherInvalid(t *testing.T) {
	// Arrange
	f := NewFactory()

	// Act
	m, err := f.NewRegexMatcher(`(abc`)

	// Assert
	assert.Nil(t, m)
	assert.NotNil(t, err)
}

func TestRegexMatcherPossessive(t *testing.T) {
	// Arrange
	m, err := NewFactory().NewRegexMatcher(`\d++x`)
	require.Nil(t, err)

	// Act
	spans, _ := m.Match([]byte("a123x"), waf.MatchAll)

	// Assert
	assert.Equal(t, []waf.Span{{Start: 1, End: 5}}, spans)
}

func TestPhraseMatcher(t *testing.T) {
	// Arrange
	assert := assert.New(t)
	m, err := NewFactory().NewPhraseMatcher([]string{"he", "she", "hers", "HIS", ""})
	require.Nil(t, err)
	value := []byte("uShers his")

	// Act
	all, _ := m.Match(value, waf.MatchAll)
	longest, _ := m.Match(value, waf.MatchLongest)
	global, _ := m.Match(value, waf.MatchGlobal)

	// Assert
	assert.Equal([]waf.Span{{Start: 1, End: 4}, {Start: 2, End: 6}, {Start: 2, End: 4}, {Start: 7, End: 10}}, all)
	assert.Equal([]waf.Span{{Start: 2, End: 6}}, longest)
	assert.Equal([]waf.Span{{Start: 1, End: 4}, {Start: 7, End: 10}}, global)
}

func TestPhraseMatcherNoPhrases(t *testing.T) {
	// Act
	m, err := NewFactory().NewPhraseMatcher([]string{"", ""})

	// Assert
	assert.Nil(t, m)
	assert.Equal(t, errNoPhrases, err)
}

func TestPhraseMatcherSharedSuffixes(t *testing.T) {
	// Arrange
	m, err := NewFactory().NewPhraseMatcher([]string{"abcd", "bc", "c"})
	require.Nil(t, err)

	// Act
	spans, _ := m.Match([]byte("xabcx"), waf.MatchAll)

	// Assert
	assert.Equal(t, []waf.Span{{Start: 2, End: 4}, {Start: 3, End: 4}}, spans)
}

func TestSelectSpans(t *testing.T) {
	// Arrange
	type testcase struct {
		spans    []waf.Span
		mode     waf.MatchMode
		expected []waf.Span
	}
	tests := []testcase{
		{nil, waf.MatchAll, nil},
		{[]waf.Span{{Start: 5, End: 6}, {Start: 0, End: 2}}, waf.MatchModeDefault, []waf.Span{{Start: 0, End: 2}, {Start: 5, End: 6}}},
		{[]waf.Span{{Start: 0, End: 2}, {Start: 1, End: 3}}, waf.MatchLongest, []waf.Span{{Start: 0, End: 2}}},
		{[]waf.Span{{Start: 0, End: 2}, {Start: 1, End: 5}, {Start: 2, End: 4}, {Start: 5, End: 6}}, waf.MatchGlobal, []waf.Span{{Start: 0, End: 2}, {Start: 2, End: 4}, {Start: 5, End: 6}}},
		{[]waf.Span{{Start: 0, End: 0}, {Start: 0, End: 0}, {Start: 1, End: 1}}, waf.MatchGlobal, []waf.Span{{Start: 0, End: 0}, {Start: 1, End: 1}}},
	}

	// Act and assert
	var b strings.Builder
	for i, test := range tests {
		r := SelectSpans(test.spans, test.mode)
		if fmt.Sprint(r) != fmt.Sprint(test.expected) {
			fmt.Fprintf(&b, "Test %d. Expected: %v. Actual: %v.\n", i, test.expected, r)
		}
	}

	if b.Len() > 0 {
		t.Fatalf("%s", b.String())
	}
}

func TestCache(t *testing.T) {
	// Arrange
	assert := assert.New(t)
	c, err := NewCache(NewFactory(), 2)
	require.Nil(t, err)

	// Act
	m1, err1 := c.RegexMatcher("abc")
	m2, err2 := c.RegexMatcher("abc")
	_, err3 := c.RegexMatcher("(")
	c.RegexMatcher("x")
	c.RegexMatcher("y")

	// Assert
	assert.Nil(err1)
	assert.Nil(err2)
	assert.NotNil(err3)
	assert.True(m1 == m2)
	assert.Equal(2, c.Len())
}

func TestNewCacheInvalidSize(t *testing.T) {
	// Act
	_, err := NewCache(NewFactory(), 0)

	// Assert
	assert.NotNil(t, err)
}

func TestContainsHexEscapedBytes(t *testing.T) {
	// Arrange
	type testcase struct {
		rx                 string
		hasHexEscapedBytes bool
	}
	tests := []testcase{
		{`xyz\xaaxyz`, true},
		{`xyz\x00xyz`, true},
		{`xyz\X00xyz`, false},
		{`xyz\\x00xyz`, false},
		{`xyz\\\x00xyz`, true},
		{`\\\\x00xyz`, false},
	}

	for _, test := range tests {
		// Act and assert
		if containsHexEscapedBytes(test.rx) != test.hasHexEscapedBytes {
			t.Fatalf("Got unexpected containsHexEscapedBytes(test.rx) for %v", test.rx)
		}
	}
}

func TestRemovePcrePossessiveQuantifier(t *testing.T) {
	// Arrange
	type testcase struct {
		input    string
		expected string
	}
	tests := []testcase{
		{`a++`, `a+`},
		{`a\++`, `a\++`},
		{`\\++`, `\\+`},
		{`xa++a++x`, `xa+a+x`},
		{`a*+`, `a*`},
		{`\\\*+`, `\\\*+`},
		{`a?+`, `a?`},
		{`a{2,5}+`, `a{2,5}`},
		{`a{2,}+`, `a{2,}`},
		{`a\{2}+`, `a\{2}+`},
	}

	// Act and assert
	var b strings.Builder
	for i, test := range tests {
		r := removePcrePossessiveQuantifier(test.input)

		if r != test.expected {
			fmt.Fprintf(&b, "Unexpected result %d. Expected: %s. Actual: %s.\n", i, test.expected, r)
		}
	}

	if b.Len() > 0 {
		t.Fatalf("%s", b.String())
	}
}

func TestCachePhrasesAndRegexesAreSeparate(t *testing.T) {
	// Arrange
	assert := assert.New(t)
	c, err := NewCache(NewFactory(), 10)
	require.Nil(t, err)

	// Act
	p1, err1 := c.PhraseMatcher([]string{"abc"})
	p2, err2 := c.PhraseMatcher([]string{"abc"})
	r, err3 := c.RegexMatcher("abc")
	spans, _ := p1.Match([]byte("xABC"), waf.MatchAll)

	// Assert
	assert.Nil(err1)
	assert.Nil(err2)
	assert.Nil(err3)
	assert.True(p1 == p2)
	assert.False(p1 == r)
	assert.Equal(2, c.Len())
	assert.Equal([]waf.Span{{Start: 1, End: 4}}, spans)
}
