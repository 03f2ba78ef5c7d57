package discovery

import (
	"slices"
	"strings"

	"golang.org/x/text/cases"

	"github.com/petal-labs/toolbridge/tool"
)

type matchRank int

const (
	rankNone matchRank = iota
	rankTokens
	rankDescription
	rankNameSubstring
	rankExactName
)

// Match reports whether a tool matches query under the search rules.
func Match(t *tool.Tool, query string) bool {
	return matchScore(t, normalizeQuery(query)) != rankNone
}

// normalizeQuery trims surrounding whitespace and case-folds the query. A
// query of only whitespace is empty and matches everything.
func normalizeQuery(query string) string {
	return fold(strings.TrimSpace(query))
}

// fold applies full Unicode case folding, so "STRASSE" and "straße" compare
// equal. Casers are stateful, so each call gets its own.
func fold(s string) string {
	return cases.Fold().String(s)
}

func matchScore(t *tool.Tool, query string) matchRank {
	if query == "" {
		return rankTokens
	}
	name := fold(t.Name())
	desc := fold(t.Description())

	switch {
	case name == query:
		return rankExactName
	case strings.Contains(name, query):
		return rankNameSubstring
	case strings.Contains(desc, query):
		return rankDescription
	}

	haystack := name + " " + desc
	tokens := strings.Fields(query)
	for _, token := range tokens {
		if !strings.Contains(haystack, token) {
			return rankNone
		}
	}
	return rankTokens
}

func rank(tools Toolset, query string) Toolset {
	query = normalizeQuery(query)
	type scored struct {
		tool  *tool.Tool
		score matchRank
	}
	candidates := make([]scored, 0, len(tools))
	for _, t := range tools {
		if score := matchScore(t, query); score != rankNone {
			candidates = append(candidates, scored{tool: t, score: score})
		}
	}
	slices.SortStableFunc(candidates, func(a, b scored) int {
		return int(b.score) - int(a.score)
	})

	out := make(Toolset, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.tool)
	}
	return out
}
