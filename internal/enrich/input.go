package enrich

import "vidintel/internal/entities"

const minPromptBudget = 10_000

// VideoInfo is the video block of the request.
type VideoInfo struct {
	ID              string  `json:"id"`
	Provider        string  `json:"provider"`
	ProviderVideoID string  `json:"provider_video_id"`
	URL             string  `json:"url"`
	Title           string  `json:"title"`
	ChannelName     *string `json:"channel_name"`
}

// TranscriptStats summarizes the transcript being enriched.
type TranscriptStats struct {
	Language string `json:"language"`
	Cues     int    `json:"cues"`
	Chunks   int    `json:"chunks"`
	EndMs    int64  `json:"end_ms"`
}

// ChunkText is one transcript chunk as shown to the model.
type ChunkText struct {
	StartMs int64  `json:"start_ms"`
	EndMs   int64  `json:"end_ms"`
	Text    string `json:"text"`
}

// Input is the JSON document sent as the user message.
type Input struct {
	Video            VideoInfo            `json:"video"`
	Transcript       TranscriptStats      `json:"transcript"`
	EntityCandidates []entities.Candidate `json:"entity_candidates"`
	Chunks           []ChunkText          `json:"chunks"`
}

// TrimChunks keeps chunks in order until budget characters are used, cutting
// the last one short. Budgets below 10000 are raised to 10000.
func TrimChunks(chunks []ChunkText, budget int) []ChunkText {
	budget = max(minPromptBudget, budget)
	out := make([]ChunkText, 0, len(chunks))
	used := 0
	for _, ch := range chunks {
		if used >= budget {
			break
		}
		text := []rune(ch.Text)
		if remain := budget - used; len(text) > remain {
			text = text[:remain]
		}
		out = append(out, ChunkText{StartMs: ch.StartMs, EndMs: ch.EndMs, Text: string(text)})
		used += len(text)
	}
	return out
}
