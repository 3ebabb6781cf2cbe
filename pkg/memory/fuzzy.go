package memory

import (
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// LevenshteinMatcher scores names as 1 - editDistance/maxLen on lower-cased input.
type LevenshteinMatcher struct{}

func (LevenshteinMatcher) Similarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == b {
		return 1
	}
	maxLen := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > maxLen {
		maxLen = n
	}
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(maxLen)
}
