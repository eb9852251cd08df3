// Package patternmatching has the pattern matchers behind the rx and pm operators, implemented with Go regexp and an Aho-Corasick automaton.
package patternmatching

import (
	"sort"

	"secwaf/waf"
)

// SelectSpans applies a reporting mode to a set of raw match spans, as found by any backend.
//   - MatchAll (and the default) keeps every span, ordered by position.
//   - MatchLongest keeps the single longest span. On a tie the leftmost wins.
//   - MatchGlobal scans left to right, and at each position takes the longest span that does not overlap the previously taken one.
func SelectSpans(spans []waf.Span, mode waf.MatchMode) []waf.Span {
	if len(spans) == 0 {
		return nil
	}

	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].Start != spans[j].Start {
			return spans[i].Start < spans[j].Start
		}
		return spans[i].Len() > spans[j].Len()
	})

	switch mode {
	case waf.MatchLongest:
		best := spans[0]
		for _, s := range spans[1:] {
			if s.Len() > best.Len() {
				best = s
			}
		}
		return []waf.Span{best}

	case waf.MatchGlobal:
		out := spans[:0:0]
		end := -1
		for _, s := range spans {
			if s.Start < end {
				continue
			}
			out = append(out, s)
			end = s.End
			if s.Len() == 0 {
				// An empty span does not consume anything, but two empty spans at one position are the same match.
				end = s.End + 1
			}
		}
		return out
	}

	return spans
}
