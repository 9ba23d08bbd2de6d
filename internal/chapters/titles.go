package chapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"vidintel/internal/textutil"
)

// TitleFunc sends a prompt to a text model and returns its raw reply.
type TitleFunc func(ctx context.Context, prompt string) (string, error)

// Title sources reported in job output.
const (
	TitlesFromLLM      = "llm"
	TitlesFromFallback = "fallback"
)

// TitleResult carries one title per chapter. Err is set when the model call
// or its reply failed and the fallback titles were used.
type TitleResult struct {
	Titles []string
	Source string
	Err    error
}

const (
	maxVisualLines     = 3
	maxTranscriptLines = 5
	contextLineRunes   = 100
)

var codeFencePattern = regexp.MustCompile("(?is)```(?:json)?\\s*(.*?)\\s*```")

// Titles asks fn for every chapter title in one batched prompt. A nil fn,
// a failed call or an unparseable reply yields the fallback titles.
func Titles(ctx context.Context, chapters []Chapter, frames []Frame, cues []Cue, fn TitleFunc) TitleResult {
	if len(chapters) == 0 {
		return TitleResult{Source: TitlesFromFallback}
	}
	fallback := FallbackTitles(chapters)
	if fn == nil {
		return TitleResult{Titles: fallback, Source: TitlesFromFallback}
	}
	raw, err := fn(ctx, BuildTitlePrompt(chapters, frames, cues))
	if err != nil {
		return TitleResult{Titles: fallback, Source: TitlesFromFallback, Err: err}
	}
	parsed, err := ParseTitles(raw, len(chapters))
	if err != nil {
		return TitleResult{Titles: fallback, Source: TitlesFromFallback, Err: err}
	}
	titles := make([]string, len(chapters))
	for i := range titles {
		if i < len(parsed) && parsed[i] != "" {
			titles[i] = parsed[i]
			continue
		}
		titles[i] = fallback[i]
	}
	return TitleResult{Titles: titles, Source: TitlesFromLLM}
}

// FallbackTitles names chapters "Section N" plus their first signal.
func FallbackTitles(chapters []Chapter) []string {
	titles := make([]string, len(chapters))
	for i, ch := range chapters {
		if len(ch.Signals) > 0 {
			titles[i] = fmt.Sprintf("Section %d: %s", i+1, strings.ReplaceAll(string(ch.Signals[0]), "_", " "))
			continue
		}
		titles[i] = fmt.Sprintf("Section %d", i+1)
	}
	return titles
}

// BuildTitlePrompt lists each chapter with its signals and a few visual and
// transcript lines that start inside it.
func BuildTitlePrompt(chapters []Chapter, frames []Frame, cues []Cue) string {
	var b strings.Builder
	b.WriteString("Generate short chapter titles (5-10 words each) for these video chapters based on the visual and transcript context.\n")
	b.WriteString(`Return ONLY valid JSON: { "titles": ["title1", "title2", ...] }` + "\n")
	fmt.Fprintf(&b, "Generate exactly %d titles.\n", len(chapters))
	for i, ch := range chapters {
		b.WriteString("\n")
		fmt.Fprintf(&b, "Chapter %d: %s - %s\n", i+1, FormatTimestamp(ch.StartMs), FormatTimestamp(ch.EndMs))
		signals := strings.Join(ch.SignalNames(), ", ")
		if signals == "" {
			signals = "none"
		}
		fmt.Fprintf(&b, "  Signals: %s\n", signals)

		visual := 0
		for _, f := range frames {
			if visual == maxVisualLines {
				break
			}
			if f.StartMs >= ch.StartMs && f.StartMs < ch.EndMs {
				fmt.Fprintf(&b, "  [Visual] %s\n", textutil.Truncate(f.Description, contextLineRunes))
				visual++
			}
		}
		if visual == 0 {
			b.WriteString("  [No visual context]\n")
		}

		spoken := 0
		for _, c := range cues {
			if spoken == maxTranscriptLines {
				break
			}
			if c.StartMs >= ch.StartMs && c.StartMs < ch.EndMs {
				fmt.Fprintf(&b, "  [Transcript] %s\n", textutil.Truncate(c.Text, contextLineRunes))
				spoken++
			}
		}
		if spoken == 0 {
			b.WriteString("  [No transcript context]\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// ParseTitles decodes {"titles": [...]} from a model reply, tolerating a code
// fence or surrounding prose. At most expected titles are returned.
func ParseTitles(raw string, expected int) ([]string, error) {
	text := strings.TrimSpace(raw)
	var payload struct {
		Titles []any `json:"titles"`
	}
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		body := ""
		if m := codeFencePattern.FindStringSubmatch(text); m != nil {
			body = strings.TrimSpace(m[1])
		} else if first, last := strings.Index(text, "{"), strings.LastIndex(text, "}"); first >= 0 && last > first {
			body = text[first : last+1]
		}
		if body == "" {
			return nil, errors.New("failed to parse title response")
		}
		if err := json.Unmarshal([]byte(body), &payload); err != nil {
			return nil, fmt.Errorf("parse title response: %w", err)
		}
	}
	if payload.Titles == nil {
		return nil, errors.New("response missing 'titles' array")
	}
	titles := make([]string, 0, min(len(payload.Titles), expected))
	for _, t := range payload.Titles {
		if len(titles) == expected {
			break
		}
		titles = append(titles, strings.TrimSpace(fmt.Sprint(t)))
	}
	return titles, nil
}

// FormatTimestamp renders milliseconds as HH:MM:SS.
func FormatTimestamp(ms int64) string {
	total := max(0, ms) / 1000
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}
