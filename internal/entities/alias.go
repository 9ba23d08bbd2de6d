package entities

import (
	"regexp"
	"strings"
)

var (
	aliasSpace    = regexp.MustCompile(`\s+`)
	aliasQuotes   = regexp.MustCompile(`^["'“”‘’]+|["'“”‘’]+$`)
	aliasTrailing = regexp.MustCompile(`[.,;:!?]+$`)
)

// NormAlias folds a surface form for alias matching.
func NormAlias(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = aliasSpace.ReplaceAllString(s, " ")
	s = aliasQuotes.ReplaceAllString(s, "")
	return aliasTrailing.ReplaceAllString(s, "")
}

// UniqStrings trims items and drops blanks and NormAlias duplicates, keeping
// the first spelling. limit <= 0 means 1000.
func UniqStrings(items []string, limit int) []string {
	if limit <= 0 {
		limit = 1000
	}
	out := make([]string, 0, min(len(items), limit))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		s := strings.TrimSpace(item)
		if s == "" {
			continue
		}
		key := NormAlias(s)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
		if len(out) >= limit {
			break
		}
	}
	return out
}

var (
	leadingThe  = regexp.MustCompile(`(?i)^the\s+`)
	trailingInc = regexp.MustCompile(`(?i)\s+inc\.?$`)
	trailingLLC = regexp.MustCompile(`(?i)\s+llc\.?$`)
)

// lookupVariants lists the spellings tried against the alias index.
func lookupVariants(surface string) []string {
	return []string{
		surface,
		leadingThe.ReplaceAllString(surface, ""),
		trailingInc.ReplaceAllString(surface, ""),
		trailingLLC.ReplaceAllString(surface, ""),
	}
}
