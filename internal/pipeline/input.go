package pipeline

import (
	"strings"

	"vidintel/internal/services"
	"vidintel/internal/stepgate"
)

// IngestInput is the ingest_video job input. Steps distinguishes a missing
// list (nil) from an explicit empty one.
type IngestInput struct {
	VideoID  string    `json:"video_id"`
	Language string    `json:"language,omitempty"`
	Steps    *[]string `json:"steps"`
	TraceID  string    `json:"trace_id,omitempty"`
}

// Gate parses the step list.
func (in IngestInput) Gate() stepgate.Gate {
	if in.Steps == nil {
		return stepgate.Parse(nil, false)
	}
	return stepgate.Parse(*in.Steps, true)
}

// DetectInput is the detect_chapters job input.
type DetectInput struct {
	VideoID    string `json:"video_id"`
	MinSignals *int   `json:"min_signals,omitempty"`
	WindowMs   *int64 `json:"window_ms,omitempty"`
	Force      bool   `json:"force,omitempty"`
	TraceID    string `json:"trace_id,omitempty"`
}

// VoiceInput is the ingest_voice follow-up job input.
type VoiceInput struct {
	VideoID string `json:"video_id"`
	TraceID string `json:"trace_id,omitempty"`
}

func requireVideoID(id, stage string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", services.Wrap(services.ErrValidation, stage, "decode input", "video_id is required", nil)
	}
	return id, nil
}
