// Package hyperscan puts a Hyperscan prefilter in front of the Go pattern matchers.
// Hyperscan quickly rules out values that cannot match. Only values that pass the prefilter are scanned again by the verifying matcher, which produces the exact spans.
package hyperscan

import (
	"regexp"

	"secwaf/waf"

	hs "github.com/flier/gohs/hyperscan"
	"github.com/rs/zerolog"
)

// Number of idle scratch spaces kept per database.
const scratchPoolSize = 8

// Factory implements waf.PatternMatcherFactory.
type Factory struct {
	logger   zerolog.Logger
	verifier waf.PatternMatcherFactory
	dbCache  DbCache
}

// NewFactory creates a waf.PatternMatcherFactory backed by Hyperscan. The verifier creates the matchers that find the exact spans. dbCache may be nil.
func NewFactory(logger zerolog.Logger, verifier waf.PatternMatcherFactory, dbCache DbCache) waf.PatternMatcherFactory {
	return &Factory{logger: logger, verifier: verifier, dbCache: dbCache}
}

// NewRegexMatcher creates a matcher for a regular expression. If Hyperscan cannot compile the expression, the verifier is used on its own.
func (f *Factory) NewRegexMatcher(expr string) (m waf.PatternMatcher, err error) {
	var v waf.PatternMatcher
	v, err = f.verifier.NewRegexMatcher(expr)
	if err != nil {
		return
	}

	p := hs.NewPattern(expr, 0)
	p.Id = 0

	// SingleMatch makes Hyperscan only return one match per regex. So if a regex is found multiple time, still only one match is recorded.
	// PrefilterMode gives broader regex compatibility, at the cost possible false positives. Potential matches therefore must be verified with another regex engine.
	p.Flags = hs.SingleMatch | hs.PrefilterMode

	m = f.prefiltered([]*hs.Pattern{p}, v)
	return
}

// NewPhraseMatcher creates a case-insensitive matcher for a list of phrases.
func (f *Factory) NewPhraseMatcher(phrases []string) (m waf.PatternMatcher, err error) {
	var v waf.PatternMatcher
	v, err = f.verifier.NewPhraseMatcher(phrases)
	if err != nil {
		return
	}

	var patterns []*hs.Pattern
	for i, phrase := range phrases {
		if phrase == "" {
			continue
		}
		p := hs.NewPattern(regexp.QuoteMeta(phrase), 0)
		p.Id = i
		p.Flags = hs.SingleMatch | hs.Caseless
		patterns = append(patterns, p)
	}

	m = f.prefiltered(patterns, v)
	return
}

func (f *Factory) prefiltered(patterns []*hs.Pattern, verifier waf.PatternMatcher) waf.PatternMatcher {
	db, err := f.buildDatabase(patterns)
	if err != nil {
		f.logger.Debug().Err(err).Msg("Hyperscan could not compile patterns, so only the verifying matcher is used")
		return verifier
	}

	scratch, err := hs.NewScratch(db)
	if err != nil {
		f.logger.Warn().Err(err).Msg("Failed to allocate Hyperscan scratch space")
		db.Close()
		return verifier
	}

	pm := &prefilteredMatcher{
		db:        db,
		scratches: make(chan *hs.Scratch, scratchPoolSize),
		verifier:  verifier,
	}
	pm.scratches <- scratch
	return pm
}

func (f *Factory) buildDatabase(patterns []*hs.Pattern) (db hs.BlockDatabase, err error) {
	var key string
	if f.dbCache != nil {
		key = f.dbCache.key(patterns)
		if db = f.dbCache.load(key); db != nil {
			return
		}
	}

	db, err = hs.NewBlockDatabase(patterns...)
	if err != nil {
		return
	}

	if f.dbCache != nil {
		f.dbCache.save(key, db)
	}
	return
}

// prefilteredMatcher only runs the verifier on values that Hyperscan says might match.
type prefilteredMatcher struct {
	db hs.BlockDatabase

	// Hyperscan scratch spaces are not safe for concurrent use, so each scan takes one from this pool.
	scratches chan *hs.Scratch

	verifier waf.PatternMatcher
}

// Match implements waf.PatternMatcher.
func (pm *prefilteredMatcher) Match(value []byte, mode waf.MatchMode) (spans []waf.Span, err error) {
	var scratch *hs.Scratch
	scratch, err = pm.getScratch()
	if err != nil {
		return
	}
	defer pm.putScratch(scratch)

	found := false
	handler := func(id uint, from, to uint64, flags uint, context interface{}) error {
		found = true
		return nil
	}

	err = pm.db.Scan(value, scratch, handler, nil)
	if err != nil || !found {
		return
	}

	return pm.verifier.Match(value, mode)
}

func (pm *prefilteredMatcher) getScratch() (s *hs.Scratch, err error) {
	select {
	case s = <-pm.scratches:
		return
	default:
	}

	return hs.NewScratch(pm.db)
}

func (pm *prefilteredMatcher) putScratch(s *hs.Scratch) {
	select {
	case pm.scratches <- s:
	default:
		s.Free()
	}
}

// Close frees the Hyperscan database and the pooled scratch spaces.
func (pm *prefilteredMatcher) Close() error {
	for {
		select {
		case s := <-pm.scratches:
			s.Free()
		default:
			return pm.db.Close()
		}
	}
}
