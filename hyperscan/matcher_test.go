package hyperscan

import (
	"sync"
	"testing"

	"secwaf/patternmatching"
	"secwaf/testutils"
	"secwaf/waf"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHyperscanRegexMatcher(t *testing.T) {
	// Arrange
	assert := assert.New(t)
	f := NewFactory(testutils.NewTestLogger(t), patternmatching.NewFactory(), nil)

	// Act
	m, err := f.NewRegexMatcher("ab+c")
	require.Nil(t, err)
	hit, err1 := m.Match([]byte("xyzabbbbcxyzabc"), waf.MatchAll)
	miss, err2 := m.Match([]byte("xyz"), waf.MatchAll)

	// Assert
	assert.Nil(err1)
	assert.Nil(err2)
	assert.Equal([]waf.Span{{3, 9}, {12, 15}}, hit)
	assert.Nil(miss)
	_, prefiltered := m.(*prefilteredMatcher)
	assert.True(prefiltered)
	m.(*prefilteredMatcher).Close()
}

func TestHyperscanPhraseMatcher(t *testing.T) {
	// Arrange
	assert := assert.New(t)
	f := NewFactory(testutils.NewTestLogger(t), patternmatching.NewFactory(), nil)

	// Act
	m, err := f.NewPhraseMatcher([]string{"select", "union", "a.b"})
	require.Nil(t, err)
	hit, _ := m.Match([]byte("1 UNION SELECT"), waf.MatchGlobal)
	miss, _ := m.Match([]byte("axb"), waf.MatchAll)

	// Assert
	assert.Equal([]waf.Span{{2, 7}, {8, 14}}, hit)
	assert.Nil(miss)
}

func TestHyperscanVerifierErrors(t *testing.T) {
	// Arrange
	f := NewFactory(testutils.NewTestLogger(t), patternmatching.NewFactory(), nil)

	// Act
	_, err1 := f.NewRegexMatcher("(abc")
	_, err2 := f.NewPhraseMatcher(nil)

	// Assert
	assert.NotNil(t, err1)
	assert.NotNil(t, err2)
}

func TestHyperscanFallsBackToVerifier(t *testing.T) {
	// Arrange
	f := NewFactory(testutils.NewTestLogger(t), patternmatching.NewFactory(), nil)

	// Act
	// Hyperscan refuses patterns that match the empty buffer.
	m, err := f.NewRegexMatcher("x*")

	// Assert
	assert.Nil(t, err)
	_, prefiltered := m.(*prefilteredMatcher)
	assert.False(t, prefiltered)
}

func TestHyperscanConcurrentUse(t *testing.T) {
	// Arrange
	f := NewFactory(testutils.NewTestLogger(t), patternmatching.NewFactory(), nil)
	m, err := f.NewRegexMatcher("a+b")
	require.Nil(t, err)

	// Act
	var wg sync.WaitGroup
	results := make([]int, 50)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			spans, _ := m.Match([]byte("xxaab"), waf.MatchAll)
			results[i] = len(spans)
		}(i)
	}
	wg.Wait()

	// Assert
	for _, n := range results {
		assert.Equal(t, 1, n)
	}
}
