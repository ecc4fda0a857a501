// Package scoring implements the deterministic email priority scoring pipeline:
// keyword extraction, goal matching, the five factor scorers, the weighted
// priority score, confidence and the two decision policies.
package scoring

import (
	"iter"
	"strings"
	"unicode"
)

// =============================================================================
// Keyword Extractor
// =============================================================================

const minKeywordLength = 3

var stopWords = toSet([]string{
	"the", "a", "an", "is", "are", "was", "were", "be", "been", "being",
	"have", "has", "had", "do", "does", "did", "will", "would", "could", "should",
	"may", "might", "must", "shall", "can", "need", "dare", "ought", "used",
	"to", "of", "in", "for", "on", "with", "at", "by", "from", "as",
	"into", "through", "during", "before", "after", "above", "below", "between", "under",
	"again", "further", "then", "once", "here", "there", "when", "where", "why", "how",
	"all", "each", "few", "more", "most", "other", "some", "such",
	"no", "nor", "not", "only", "own", "same", "so", "than", "too", "very",
	"s", "t", "just", "don", "now",
})

func toSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// IsStopWord reports whether w is on the fixed English function-word list.
func IsStopWord(w string) bool {
	_, ok := stopWords[w]
	return ok
}

// ExtractKeywords lazily yields the keywords of text in order of appearance.
// Text is lower-cased, every rune outside [a-z0-9_] and whitespace is
// dropped, and tokens shorter than three characters or on the stop list are
// skipped. Duplicates are yielded as they occur. The sequence may be ranged
// over any number of times.
func ExtractKeywords(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		var b strings.Builder
		flush := func() bool {
			if b.Len() == 0 {
				return true
			}
			tok := b.String()
			b.Reset()
			if len(tok) < minKeywordLength || IsStopWord(tok) {
				return true
			}
			return yield(tok)
		}

		for _, r := range strings.ToLower(text) {
			switch {
			case unicode.IsSpace(r):
				if !flush() {
					return
				}
			case isWordRune(r):
				b.WriteRune(r)
			}
		}
		flush()
	}
}

func isWordRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_'
}

// Keywords collects ExtractKeywords into a slice, keeping duplicates.
func Keywords(text string) []string {
	out := []string{}
	for kw := range ExtractKeywords(text) {
		out = append(out, kw)
	}
	return out
}

// KeywordSet collects ExtractKeywords into a set.
func KeywordSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for kw := range ExtractKeywords(text) {
		set[kw] = struct{}{}
	}
	return set
}
