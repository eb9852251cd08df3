package patternmatching

import (
	"fmt"
	"strings"

	"secwaf/waf"

	lru "github.com/hashicorp/golang-lru"
)

// Factory creates pattern matchers backed by Go regexp and Aho-Corasick.
type Factory struct{}

// NewFactory creates a waf.PatternMatcherFactory using Go regexp and Aho-Corasick.
func NewFactory() waf.PatternMatcherFactory {
	return &Factory{}
}

// NewRegexMatcher compiles a regular expression. PCRE possessive quantifiers are accepted and ignored.
func (f *Factory) NewRegexMatcher(expr string) (m waf.PatternMatcher, err error) {
	var rm *regexMatcher
	rm, err = newRegexMatcher(expr)
	if err != nil {
		return
	}
	m = rm
	return
}

// NewPhraseMatcher builds a case-insensitive matcher for a list of phrases.
func (f *Factory) NewPhraseMatcher(phrases []string) (m waf.PatternMatcher, err error) {
	var pm *phraseMatcher
	pm, err = newPhraseMatcher(phrases)
	if err != nil {
		return
	}
	m = pm
	return
}

// Cache keeps recently compiled matchers. It is for patterns that are only known at evaluation time, such as an rx operator argument containing a macro.
// A Cache is safe for concurrent use.
type Cache struct {
	factory waf.PatternMatcherFactory
	lru     *lru.Cache
}

type cacheKey struct {
	phrases bool
	pattern string
}

// NewCache creates a cache holding up to size matchers created by the given factory.
func NewCache(factory waf.PatternMatcherFactory, size int) (c *Cache, err error) {
	var l *lru.Cache
	l, err = lru.New(size)
	if err != nil {
		err = fmt.Errorf("failed to create pattern cache: %w", err)
		return
	}
	c = &Cache{factory: factory, lru: l}
	return
}

// RegexMatcher returns the cached matcher for expr, compiling it on a miss. Failed compilations are not cached.
func (c *Cache) RegexMatcher(expr string) (m waf.PatternMatcher, err error) {
	return c.get(cacheKey{pattern: expr}, func() (waf.PatternMatcher, error) {
		return c.factory.NewRegexMatcher(expr)
	})
}

// PhraseMatcher returns the cached matcher for a phrase list, building it on a miss.
func (c *Cache) PhraseMatcher(phrases []string) (m waf.PatternMatcher, err error) {
	return c.get(cacheKey{phrases: true, pattern: strings.Join(phrases, "\x00")}, func() (waf.PatternMatcher, error) {
		return c.factory.NewPhraseMatcher(phrases)
	})
}

func (c *Cache) get(key cacheKey, build func() (waf.PatternMatcher, error)) (m waf.PatternMatcher, err error) {
	if v, ok := c.lru.Get(key); ok {
		m = v.(waf.PatternMatcher)
		return
	}

	m, err = build()
	if err != nil {
		return
	}
	c.lru.Add(key, m)
	return
}

// Len is the number of cached matchers.
func (c *Cache) Len() int {
	return c.lru.Len()
}
