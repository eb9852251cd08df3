package patternmatching

import (
	"errors"

	"secwaf/waf"
)

// phraseMatcher is an Aho-Corasick automaton over a set of phrases. Matching is case-insensitive for ASCII, like the pm operator.
type phraseMatcher struct {
	nodes []ahoNode
}

type ahoNode struct {
	next map[byte]int
	fail int

	// Lengths of the phrases ending at this node, including those reachable through fail links.
	out []int
}

var errNoPhrases = errors.New("phrase list has no non-empty phrases")

func newPhraseMatcher(phrases []string) (m *phraseMatcher, err error) {
	nodes := []ahoNode{{next: map[byte]int{}}}
	for _, phrase := range phrases {
		if phrase == "" {
			continue
		}
		current := 0
		for i := 0; i < len(phrase); i++ {
			b := toLower(phrase[i])
			next, ok := nodes[current].next[b]
			if !ok {
				nodes = append(nodes, ahoNode{next: map[byte]int{}})
				next = len(nodes) - 1
				nodes[current].next[b] = next
			}
			current = next
		}
		nodes[current].out = append(nodes[current].out, len(phrase))
	}

	if len(nodes) == 1 {
		err = errNoPhrases
		return
	}

	// Breadth first, so fail links always point to nodes that are already done.
	queue := make([]int, 0, len(nodes))
	for _, next := range nodes[0].next {
		queue = append(queue, next)
	}

	for len(queue) > 0 {
		state := queue[0]
		queue = queue[1:]

		for b, next := range nodes[state].next {
			fail := nodes[state].fail
			for {
				if target, ok := nodes[fail].next[b]; ok && target != next {
					nodes[next].fail = target
					break
				}
				if fail == 0 {
					break
				}
				fail = nodes[fail].fail
			}
			nodes[next].out = append(nodes[next].out, nodes[nodes[next].fail].out...)
			queue = append(queue, next)
		}
	}

	m = &phraseMatcher{nodes: nodes}
	return
}

// Match reports every occurrence of every phrase, also overlapping ones, before applying the mode.
func (m *phraseMatcher) Match(value []byte, mode waf.MatchMode) (spans []waf.Span, err error) {
	state := 0
	for i := 0; i < len(value); i++ {
		b := toLower(value[i])
		for {
			if next, ok := m.nodes[state].next[b]; ok {
				state = next
				break
			}
			if state == 0 {
				break
			}
			state = m.nodes[state].fail
		}

		for _, n := range m.nodes[state].out {
			spans = append(spans, waf.Span{Start: i + 1 - n, End: i + 1})
		}
	}

	spans = SelectSpans(spans, mode)
	return
}

func toLower(c byte) byte {
	if 'A' <= c && c <= 'Z' {
		return c + 'a' - 'A'
	}
	return c
}
