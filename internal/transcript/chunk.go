package transcript

import (
	"strings"
	"unicode/utf8"
)

// ChunkOptions bounds chunk sizes in characters.
type ChunkOptions struct {
	MaxChars    int
	MinChars    int
	OverlapCues int
}

// DefaultChunkOptions returns the standard retrieval window sizes.
func DefaultChunkOptions() ChunkOptions {
	return ChunkOptions{MaxChars: 1800, MinChars: 400, OverlapCues: 1}
}

// EstimateTokens approximates the token count of text at four characters per token.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return max(1, (n+3)/4)
}

// BuildChunks greedily packs cues into windows. A window is cut once adding
// the next cue would exceed MaxChars and the window already holds MinChars;
// the next window starts OverlapCues cues before the cut.
func BuildChunks(cues []Cue, opts ChunkOptions) []Chunk {
	if len(cues) == 0 {
		return nil
	}
	defaults := DefaultChunkOptions()
	if opts.MaxChars <= 0 {
		opts.MaxChars = defaults.MaxChars
	}
	if opts.MinChars < 0 {
		opts.MinChars = defaults.MinChars
	}
	overlap := max(0, opts.OverlapCues)

	var (
		chunks   []Chunk
		startIdx int
		buf      []string
		bufLen   int
	)
	flush := func(endIdx int) {
		if endIdx < startIdx {
			return
		}
		text := strings.TrimSpace(whitespacePattern.ReplaceAllString(strings.Join(buf, " "), " "))
		if text == "" {
			return
		}
		chunks = append(chunks, Chunk{
			CueStartIdx:   cues[startIdx].Idx,
			CueEndIdx:     cues[endIdx].Idx,
			StartMs:       cues[startIdx].StartMs,
			EndMs:         cues[endIdx].EndMs,
			Text:          text,
			TokenEstimate: EstimateTokens(text),
		})
	}

	for i := range cues {
		text := strings.TrimSpace(cues[i].Text)
		if text == "" {
			continue
		}
		nextLen := bufLen + utf8.RuneCountInString(text) + 1
		if nextLen > opts.MaxChars && bufLen >= opts.MinChars {
			flush(i - 1)
			startIdx = max(0, i-overlap)
			buf = buf[:0]
			bufLen = 0
			for k := startIdx; k <= i; k++ {
				t := strings.TrimSpace(cues[k].Text)
				if t == "" {
					continue
				}
				buf = append(buf, t)
				bufLen += utf8.RuneCountInString(t) + 1
			}
			continue
		}
		buf = append(buf, text)
		bufLen = nextLen
	}
	flush(len(cues) - 1)
	return chunks
}
