package enrich

import (
	"strings"

	"vidintel/internal/services/llm"
)

const schemaName = "video_enrichment"

func object(required []string, properties map[string]any) map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             required,
		"properties":           properties,
	}
}

// Schema is the structured-output contract for canonicalization replies.
func Schema() llm.Schema {
	entity := object([]string{"type", "canonical_name", "aliases"}, map[string]any{
		"type":           map[string]any{"type": "string", "enum": []string{"person", "org", "location"}},
		"canonical_name": map[string]any{"type": "string", "minLength": 1},
		"aliases":        map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
	})
	chapter := object([]string{"start_ms", "end_ms", "title"}, map[string]any{
		"start_ms": map[string]any{"type": "integer", "minimum": 0},
		"end_ms":   map[string]any{"type": "integer", "minimum": 0},
		"title":    map[string]any{"type": "string", "minLength": 1},
	})
	return llm.Schema{
		Name: schemaName,
		Schema: object([]string{"entities", "tags", "chapters"}, map[string]any{
			"entities": map[string]any{"type": "array", "items": entity},
			"tags":     map[string]any{"type": "array", "items": map[string]any{"type": "string", "minLength": 1}},
			"chapters": map[string]any{"type": "array", "items": chapter},
		}),
	}
}

// SystemPrompt is the fixed instruction block sent with every request.
func SystemPrompt() string {
	return strings.Join([]string{
		"You are a strict JSON generator for video transcript enrichment.",
		"",
		"You will receive JSON with:",
		"- video metadata",
		"- transcript stats",
		"- NER candidate mentions (surface forms + counts + example timestamps)",
		"- a trimmed list of transcript chunks with {start_ms,end_ms,text}",
		"",
		"Return ONLY valid JSON (no markdown, no prose) matching:",
		"{",
		`  "entities": Array<{ "type": "person"|"org"|"location", "canonical_name": string, "aliases": string[] }>,`,
		`  "tags": string[],`,
		`  "chapters": Array<{ "start_ms": number, "end_ms": number, "title": string }>`,
		"}",
		"",
		"Rules:",
		"- Entities: dedupe/canonicalize fuzzy matches (aliases should include common variants found). Keep it high-signal (avoid generic words).",
		"- Tags: 10-30 short lowercase topics.",
		"- Chapters: 8-25, ordered, non-overlapping, covering major sections of the video. Use ms (integers).",
	}, "\n")
}
