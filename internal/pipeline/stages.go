package pipeline

import "sync"

// StageStatus is the outcome of one pipeline stage.
type StageStatus string

const (
	StageSucceeded StageStatus = "succeeded"
	StageFailed    StageStatus = "failed"
	StageSkipped   StageStatus = "skipped"
	StageDisabled  StageStatus = "disabled"
)

// Stage names reported in the output's stage map.
const (
	StageMetadata     = "metadata"
	StageTranscript   = "transcript"
	StageChunks       = "chunks"
	StageEmbeddings   = "embeddings"
	StageDiarize      = "diarize"
	StageVoice        = "voice"
	StageNER          = "ner"
	StageCanonicalize = "canonicalize"
	StageEntities     = "entities"
	StageContext      = "context"
)

// stageRecorder collects stage outcomes for the output JSON.
type stageRecorder struct {
	mu     sync.Mutex
	states map[string]StageStatus
}

func newStageRecorder() *stageRecorder {
	return &stageRecorder{states: make(map[string]StageStatus)}
}

func (r *stageRecorder) set(stage string, status StageStatus) {
	r.mu.Lock()
	r.states[stage] = status
	r.mu.Unlock()
}

func (r *stageRecorder) snapshot() map[string]StageStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]StageStatus, len(r.states))
	for k, v := range r.states {
		out[k] = v
	}
	return out
}
