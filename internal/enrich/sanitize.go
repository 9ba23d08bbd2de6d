package enrich

import (
	"math"
	"sort"
	"strings"

	"vidintel/internal/entities"
)

const (
	maxEntities      = 250
	maxEntityAliases = 64
	maxTags          = 100
	maxChapters      = 200
)

// Chapter is a model-proposed chapter in milliseconds.
type Chapter struct {
	StartMs int64  `json:"start_ms"`
	EndMs   int64  `json:"end_ms"`
	Title   string `json:"title"`
}

// Output is a decoded canonicalization reply.
type Output struct {
	Entities []entities.CanonicalEntity `json:"entities"`
	Tags     []string                   `json:"tags"`
	Chapters []Chapter                  `json:"chapters"`
}

// Sanitize applies the caps and ordering guarantees to a decoded reply.
// Chapter bounds are clamped to [0, transcriptEndMs]; a zero end leaves them
// unbounded above.
func Sanitize(raw Output, transcriptEndMs int64) Output {
	var out Output
	for _, e := range raw.Entities {
		canonical := strings.TrimSpace(e.CanonicalName)
		if canonical == "" {
			continue
		}
		aliases := append(append([]string(nil), e.Aliases...), e.CanonicalName)
		out.Entities = append(out.Entities, entities.CanonicalEntity{
			Type:          e.Type,
			CanonicalName: canonical,
			Aliases:       entities.UniqStrings(aliases, maxEntityAliases),
		})
		if len(out.Entities) == maxEntities {
			break
		}
	}

	for _, tag := range entities.UniqStrings(raw.Tags, maxTags) {
		if tag = strings.ToLower(strings.TrimSpace(tag)); tag != "" {
			out.Tags = append(out.Tags, tag)
		}
	}

	out.Chapters = sanitizeChapters(raw.Chapters, transcriptEndMs)
	return out
}

func sanitizeChapters(raw []Chapter, transcriptEndMs int64) []Chapter {
	upper := max(0, transcriptEndMs)
	if upper == 0 {
		upper = math.MaxInt64
	}
	valid := make([]Chapter, 0, len(raw))
	for _, ch := range raw {
		c := Chapter{
			StartMs: min(max(ch.StartMs, 0), upper),
			EndMs:   min(max(ch.EndMs, 0), upper),
			Title:   strings.TrimSpace(ch.Title),
		}
		if c.Title == "" || c.EndMs <= c.StartMs {
			continue
		}
		valid = append(valid, c)
	}
	sort.SliceStable(valid, func(i, j int) bool { return valid[i].StartMs < valid[j].StartMs })
	if len(valid) > maxChapters {
		valid = valid[:maxChapters]
	}

	cleaned := make([]Chapter, 0, len(valid))
	for _, ch := range valid {
		if n := len(cleaned); n > 0 && ch.StartMs < cleaned[n-1].EndMs {
			ch.StartMs = cleaned[n-1].EndMs
			if ch.EndMs <= ch.StartMs {
				continue
			}
		}
		cleaned = append(cleaned, ch)
	}
	return cleaned
}
