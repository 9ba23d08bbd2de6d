package transcript

import (
	"math"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	musicTagPattern   = regexp.MustCompile(`(?i)\[music\]`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// NormalizeText cleans cue text for display.
func NormalizeText(text string) string {
	text = norm.NFC.String(text)
	text = strings.ReplaceAll(text, "\u00a0", " ")
	text = musicTagPattern.ReplaceAllString(text, "")
	text = whitespacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// SecondsToMs converts provider seconds to non-negative milliseconds.
func SecondsToMs(seconds float64) int64 {
	if math.IsNaN(seconds) || seconds <= 0 {
		return 0
	}
	return int64(math.Round(seconds * 1000))
}

// Normalize converts provider cues to millisecond cues, dropping cues whose
// text is empty after cleaning. Idx keeps the provider position.
func Normalize(raw []RawCue) []Cue {
	cues := make([]Cue, 0, len(raw))
	for i, rc := range raw {
		text := NormalizeText(rc.Text)
		if text == "" {
			continue
		}
		start := SecondsToMs(rc.Start)
		end := max(start, SecondsToMs(rc.Start+rc.Duration))
		cues = append(cues, Cue{
			Idx:      i,
			StartMs:  start,
			EndMs:    end,
			Text:     text,
			NormText: strings.ToLower(text),
		})
	}
	return cues
}
