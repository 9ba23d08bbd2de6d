package textutil

import (
	"regexp"
	"strings"
)

// tokenSplitPattern matches runs of non-word characters.
var tokenSplitPattern = regexp.MustCompile(`[^a-z0-9_]+`)

// Tokenize splits text into lowercase word tokens, filtering short tokens.
func Tokenize(text string) []string {
	lowered := strings.ToLower(text)
	raw := tokenSplitPattern.Split(lowered, -1)
	terms := make([]string, 0, len(raw))
	for _, token := range raw {
		if len(token) < 3 {
			continue
		}
		terms = append(terms, token)
	}
	return terms
}

// TokenSet is a set of distinct tokens.
type TokenSet map[string]struct{}

// NewTokenSet tokenizes each text and collects the distinct tokens.
func NewTokenSet(texts ...string) TokenSet {
	set := make(TokenSet)
	for _, text := range texts {
		for _, token := range Tokenize(text) {
			set[token] = struct{}{}
		}
	}
	return set
}

// Jaccard returns |a∩b| / |a∪b|. Two empty sets have similarity 0.
func Jaccard(a, b TokenSet) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	intersection := 0
	for token := range small {
		if _, ok := large[token]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// JaccardDistance returns 1 - Jaccard(a, b). Two empty sets have distance 0.
func JaccardDistance(a, b TokenSet) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	return 1 - Jaccard(a, b)
}
