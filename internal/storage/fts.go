package storage

import (
	"sort"
	"strings"
	"unicode"

	"github.com/Benny93/reelgraph/internal/graph"
)

// tokenIndex is a simple inverted index over node identities.
type tokenIndex struct {
	tokens map[string][]int // token -> node positions
	ids    []string
	kinds  []graph.NodeKind
}

func newTokenIndex() *tokenIndex {
	return &tokenIndex{tokens: make(map[string][]int)}
}

// tokenize splits text into lowercase alphanumeric tokens.
// "Ocean's Eleven" -> "ocean", "s", "eleven".
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]bool, len(fields))
	result := make([]string, 0, len(fields))
	for _, f := range fields {
		if !seen[f] {
			seen[f] = true
			result = append(result, f)
		}
	}
	return result
}

// add indexes a node. Positions must be added in insertion order.
func (x *tokenIndex) add(id string, kind graph.NodeKind) {
	pos := len(x.ids)
	x.ids = append(x.ids, id)
	x.kinds = append(x.kinds, kind)

	for _, token := range tokenize(id) {
		x.tokens[token] = append(x.tokens[token], pos)
	}
}

// search scores nodes by the number of distinct query tokens they contain.
// An identity equal to the query (ignoring case) scores one extra point.
// Ties keep insertion order.
func (x *tokenIndex) search(query string, limit int) []SearchResult {
	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return []SearchResult{}
	}

	scores := make(map[int]float64)
	for _, token := range queryTokens {
		for _, pos := range x.tokens[token] {
			scores[pos]++
		}
	}

	positions := make([]int, 0, len(scores))
	for pos := range scores {
		if strings.EqualFold(x.ids[pos], strings.TrimSpace(query)) {
			scores[pos]++
		}
		positions = append(positions, pos)
	}

	sort.Slice(positions, func(i, j int) bool {
		pi, pj := positions[i], positions[j]
		if scores[pi] != scores[pj] {
			return scores[pi] > scores[pj]
		}
		return pi < pj
	})

	if limit > 0 && len(positions) > limit {
		positions = positions[:limit]
	}

	results := make([]SearchResult, len(positions))
	for i, pos := range positions {
		results[i] = SearchResult{NodeID: x.ids[pos], Kind: x.kinds[pos], Score: scores[pos]}
	}
	return results
}

// size returns the number of distinct indexed tokens.
func (x *tokenIndex) size() int {
	return len(x.tokens)
}
