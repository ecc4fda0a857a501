package scoring

import (
	"strings"

	"triage_server/core/domain"
)

// =============================================================================
// Goal Matcher
// =============================================================================

// MatchGoals returns, in input order, every goal whose keywords, title words
// or category equal one of tokens (case-insensitive).
func MatchGoals(tokens []string, goals []domain.Goal) []domain.Goal {
	matched := []domain.Goal{}
	if len(tokens) == 0 || len(goals) == 0 {
		return matched
	}

	lowered := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		lowered[strings.ToLower(t)] = struct{}{}
	}

	for _, g := range goals {
		if goalMatches(lowered, g) {
			matched = append(matched, g)
		}
	}
	return matched
}

func goalMatches(tokens map[string]struct{}, g domain.Goal) bool {
	for _, term := range goalTerms(g) {
		if _, ok := tokens[term]; ok {
			return true
		}
	}
	return false
}

func goalTerms(g domain.Goal) []string {
	terms := make([]string, 0, len(g.Keywords)+4)
	for _, kw := range g.Keywords {
		terms = append(terms, strings.ToLower(kw))
	}
	terms = append(terms, strings.Fields(strings.ToLower(g.Title))...)
	terms = append(terms, strings.ToLower(string(g.Category)))
	return terms
}
