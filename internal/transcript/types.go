package transcript

import "context"

// RawCue is a provider cue in seconds.
type RawCue struct {
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
	Text     string  `json:"text"`
}

// Result is what a caption provider returns.
type Result struct {
	IsGenerated bool
	Language    string
	Cues        []RawCue
}

// STTResult is what a speech-to-text backend returns.
type STTResult struct {
	Provider string
	Model    string
	Cues     []RawCue
}

// Provider fetches existing captions for a video.
type Provider interface {
	Fetch(ctx context.Context, providerVideoID, language string) (Result, error)
}

// STT transcribes a video's audio.
type STT interface {
	Transcribe(ctx context.Context, mediaURL, language string) (STTResult, error)
}

// Cue is a normalized cue.
type Cue struct {
	Idx      int
	StartMs  int64
	EndMs    int64
	Text     string
	NormText string
}

// Chunk is a contiguous window of cues used for embeddings and prompts.
type Chunk struct {
	CueStartIdx   int
	CueEndIdx     int
	StartMs       int64
	EndMs         int64
	Text          string
	TokenEstimate int
}
