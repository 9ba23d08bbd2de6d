package transcript_test

import (
	"strings"
	"testing"

	"vidintel/internal/transcript"
)

func makeCues(n, size int) []transcript.Cue {
	cues := make([]transcript.Cue, n)
	for i := range cues {
		text := strings.Repeat(string(rune('a'+i%26)), size)
		cues[i] = transcript.Cue{
			Idx:     i,
			StartMs: int64(i) * 1000,
			EndMs:   int64(i)*1000 + 900,
			Text:    text,
		}
	}
	return cues
}

func TestBuildChunksSingleWindow(t *testing.T) {
	chunks := transcript.BuildChunks(makeCues(3, 10), transcript.DefaultChunkOptions())
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	ch := chunks[0]
	if ch.CueStartIdx != 0 || ch.CueEndIdx != 2 || ch.StartMs != 0 || ch.EndMs != 2900 {
		t.Fatalf("unexpected bounds: %#v", ch)
	}
	if ch.TokenEstimate != 8 {
		t.Fatalf("token estimate = %d, want 8", ch.TokenEstimate)
	}
}

func TestBuildChunksOverlapsOneCue(t *testing.T) {
	opts := transcript.ChunkOptions{MaxChars: 50, MinChars: 20, OverlapCues: 1}
	chunks := transcript.BuildChunks(makeCues(6, 20), opts)
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	for i := 1; i < len(chunks); i++ {
		if chunks[i].CueStartIdx != chunks[i-1].CueEndIdx {
			t.Fatalf("chunk %d starts at %d, previous ends at %d", i, chunks[i].CueStartIdx, chunks[i-1].CueEndIdx)
		}
	}
	last := chunks[len(chunks)-1]
	if last.CueEndIdx != 5 {
		t.Fatalf("last chunk ends at %d, want 5", last.CueEndIdx)
	}
}

func TestBuildChunksKeepsShortWindowUntilMin(t *testing.T) {
	opts := transcript.ChunkOptions{MaxChars: 10, MinChars: 100, OverlapCues: 0}
	chunks := transcript.BuildChunks(makeCues(4, 8), opts)
	if len(chunks) != 1 {
		t.Fatalf("expected min size to block cuts, got %d chunks", len(chunks))
	}
}

func TestBuildChunksUsesProviderIndexes(t *testing.T) {
	cues := []transcript.Cue{
		{Idx: 3, StartMs: 100, EndMs: 200, Text: "three"},
		{Idx: 7, StartMs: 300, EndMs: 400, Text: "seven"},
	}
	chunks := transcript.BuildChunks(cues, transcript.DefaultChunkOptions())
	if len(chunks) != 1 || chunks[0].CueStartIdx != 3 || chunks[0].CueEndIdx != 7 || chunks[0].Text != "three seven" {
		t.Fatalf("unexpected chunk: %#v", chunks)
	}
}

func TestEstimateTokensCountsRunes(t *testing.T) {
	if got := transcript.EstimateTokens(""); got != 1 {
		t.Fatalf("EstimateTokens(empty) = %d", got)
	}
	if got := transcript.EstimateTokens("ééééé"); got != 2 {
		t.Fatalf("EstimateTokens(runes) = %d, want 2", got)
	}
}

func TestBuildChunksEmpty(t *testing.T) {
	if chunks := transcript.BuildChunks(nil, transcript.DefaultChunkOptions()); chunks != nil {
		t.Fatalf("expected nil, got %#v", chunks)
	}
}
