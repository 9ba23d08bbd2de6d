package store

import (
	"encoding/json"
	"time"
)

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCanceled  JobStatus = "canceled"
)

// Terminal reports whether no further transitions are allowed.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCanceled:
		return true
	default:
		return false
	}
}

// Job types handled by the workflow manager.
const (
	JobTypeIngestVideo    = "ingest_video"
	JobTypeIngestVoice    = "ingest_voice"
	JobTypeDetectChapters = "detect_chapters"
)

// Job is a unit of asynchronous work.
type Job struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Status        JobStatus       `json:"status"`
	Progress      int             `json:"progress"`
	Input         json.RawMessage `json:"input,omitempty"`
	Output        json.RawMessage `json:"output,omitempty"`
	Error         string          `json:"error,omitempty"`
	Attempts      int             `json:"attempts"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	StartedAt     *time.Time      `json:"started_at,omitempty"`
	FinishedAt    *time.Time      `json:"finished_at,omitempty"`
	LastHeartbeat *time.Time      `json:"last_heartbeat,omitempty"`
}

// JobLog is one append-only log entry of a job.
type JobLog struct {
	ID        int64           `json:"id"`
	JobID     string          `json:"job_id"`
	Timestamp time.Time       `json:"ts"`
	Level     string          `json:"level"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Video is the media item under enrichment.
type Video struct {
	ID              string    `json:"id"`
	Provider        string    `json:"provider"`
	ProviderVideoID string    `json:"provider_video_id"`
	URL             string    `json:"url"`
	Title           string    `json:"title,omitempty"`
	ChannelName     string    `json:"channel_name,omitempty"`
	DurationMs      *int64    `json:"duration_ms,omitempty"`
	ThumbnailURL    string    `json:"thumbnail_url,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// VideoMetadata is a partial update; empty fields leave the stored value untouched.
type VideoMetadata struct {
	Title        string
	ChannelName  string
	DurationMs   *int64
	ThumbnailURL string
}

// Transcript source values.
const (
	TranscriptSourceBestEffort = "best_effort"
	TranscriptSourceSTT        = "stt"
)

// Transcript identifies one language/source rendition of a video's speech.
type Transcript struct {
	ID              string          `json:"id"`
	VideoID         string          `json:"video_id"`
	Language        string          `json:"language"`
	Source          string          `json:"source"`
	IsGenerated     bool            `json:"is_generated"`
	ProviderPayload json.RawMessage `json:"provider_payload,omitempty"`
	FetchedAt       time.Time       `json:"fetched_at"`
}

// NewTranscript is the input to CreateTranscriptIfMissing.
type NewTranscript struct {
	VideoID         string
	Language        string
	Source          string
	IsGenerated     bool
	ProviderPayload any
}

// Cue is a stored transcript cue.
type Cue struct {
	ID           string `json:"id"`
	TranscriptID string `json:"transcript_id"`
	Idx          int    `json:"idx"`
	StartMs      int64  `json:"start_ms"`
	EndMs        int64  `json:"end_ms"`
	Text         string `json:"text"`
	NormText     string `json:"norm_text"`
}

// CueInput is a normalized cue ready for insertion.
type CueInput struct {
	Idx      int
	StartMs  int64
	EndMs    int64
	Text     string
	NormText string
}

// Chunk is a stored retrieval chunk.
type Chunk struct {
	ID            string `json:"id"`
	TranscriptID  string `json:"transcript_id"`
	StartMs       int64  `json:"start_ms"`
	EndMs         int64  `json:"end_ms"`
	CueStartIdx   int    `json:"cue_start_idx"`
	CueEndIdx     int    `json:"cue_end_idx"`
	Text          string `json:"text"`
	TokenEstimate int    `json:"token_estimate"`
}

// ChunkInput is a chunk ready for insertion.
type ChunkInput struct {
	StartMs       int64
	EndMs         int64
	CueStartIdx   int
	CueEndIdx     int
	Text          string
	TokenEstimate int
}

// EmbeddingInput is one vector for a chunk.
type EmbeddingInput struct {
	TranscriptID string
	ChunkID      string
	ModelID      string
	Vector       []float32
	TextHash     string
}

// Speaker is a diarized voice scoped to a video.
type Speaker struct {
	ID      string `json:"id"`
	VideoID string `json:"video_id"`
	Key     string `json:"key"`
	Label   string `json:"label,omitempty"`
	Source  string `json:"source"`
}

// SpeakerSegment is one stored speaking interval.
type SpeakerSegment struct {
	SpeakerID  string   `json:"speaker_id"`
	SpeakerKey string   `json:"speaker_key"`
	StartMs    int64    `json:"start_ms"`
	EndMs      int64    `json:"end_ms"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// DiarizationWrite replaces a transcript's diarization artifacts.
type DiarizationWrite struct {
	VideoID        string
	TranscriptID   string
	Source         string
	Speakers       []DiarizedSpeaker
	CueAssignments []CueAssignment
}

// DiarizedSpeaker groups a speaker key with its segments.
type DiarizedSpeaker struct {
	Key      string
	Segments []SegmentInput
}

// SegmentInput is a raw speaker segment; confidence is clamped on write.
type SegmentInput struct {
	StartMs    int64
	EndMs      int64
	Confidence *float64
}

// CueAssignment attributes a cue to a speaker key.
type CueAssignment struct {
	CueID      string
	SpeakerKey string
	Confidence *float64
}

// DiarizationCounts reports rows written by ReplaceDiarization.
type DiarizationCounts struct {
	Speakers       int `json:"speakers"`
	Segments       int `json:"segments"`
	CueAssignments int `json:"cue_assignments"`
}

// Entity is a canonical named thing in a video.
type Entity struct {
	ID            string    `json:"id"`
	VideoID       string    `json:"video_id"`
	Type          string    `json:"type"`
	CanonicalName string    `json:"canonical_name"`
	Aliases       []string  `json:"aliases"`
	CreatedAt     time.Time `json:"created_at"`
	MentionCount  int       `json:"mention_count,omitempty"`
}

// MentionInput links an entity to a cue.
type MentionInput struct {
	VideoID    string
	EntityID   string
	CueID      string
	StartMs    int64
	EndMs      int64
	Surface    string
	Confidence *float64
}

// ContextItemInput is an external context record for an entity.
type ContextItemInput struct {
	EntityID string
	Source   string
	SourceID string
	Title    string
	Snippet  string
	URL      string
	Payload  any
}

// ContextItem is a stored external context record.
type ContextItem struct {
	ID        string    `json:"id"`
	EntityID  string    `json:"entity_id"`
	Source    string    `json:"source"`
	SourceID  string    `json:"source_id"`
	Title     string    `json:"title"`
	Snippet   string    `json:"snippet"`
	URL       string    `json:"url,omitempty"`
	FetchedAt time.Time `json:"fetched_at"`
}

// ChapterInput is a chapter to persist under a source.
type ChapterInput struct {
	StartMs    int64
	EndMs      int64
	Title      string
	Signals    []string
	Confidence *float64
}

// Chapter is a stored chapter.
type Chapter struct {
	ID           string   `json:"id"`
	VideoID      string   `json:"video_id"`
	TranscriptID string   `json:"transcript_id,omitempty"`
	StartMs      int64    `json:"start_ms"`
	EndMs        int64    `json:"end_ms"`
	Title        string   `json:"title"`
	Source       string   `json:"source"`
	Signals      []string `json:"signals,omitempty"`
	Confidence   *float64 `json:"confidence,omitempty"`
}

// MarkInput is a significant moment to persist.
type MarkInput struct {
	TimestampMs int64
	MarkType    string
	Confidence  float64
	Description string
	Metadata    map[string]any
}

// SignificantMark is a stored significant moment.
type SignificantMark struct {
	ID          string          `json:"id"`
	VideoID     string          `json:"video_id"`
	TimestampMs int64           `json:"timestamp_ms"`
	MarkType    string          `json:"mark_type"`
	Confidence  float64         `json:"confidence"`
	Description string          `json:"description,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}

// FrameAnalysis is one analyzed frame span produced by an external frame pipeline.
type FrameAnalysis struct {
	StartMs     int64  `json:"start_ms"`
	EndMs       int64  `json:"end_ms"`
	SceneType   string `json:"scene_type,omitempty"`
	TextOverlay string `json:"text_overlay,omitempty"`
	PHash       string `json:"phash,omitempty"`
	Description string `json:"description,omitempty"`
}

// HealthSummary aggregates job counts by lifecycle bucket.
type HealthSummary struct {
	Total     int `json:"total"`
	Queued    int `json:"queued"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Canceled  int `json:"canceled"`
}

// DatabaseHealth describes the database file and connectivity.
type DatabaseHealth struct {
	DBPath           string `json:"db_path"`
	DatabaseExists   bool   `json:"database_exists"`
	DatabaseReadable bool   `json:"database_readable"`
	SchemaVersion    int    `json:"schema_version"`
	JobCount         int    `json:"job_count"`
	VideoCount       int    `json:"video_count"`
	IntegrityCheck   bool   `json:"integrity_check"`
	Error            string `json:"error,omitempty"`
}
