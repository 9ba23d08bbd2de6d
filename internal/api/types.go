package api

import "encoding/json"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Job describes a job in a transport-friendly format.
type Job struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Status        string          `json:"status"`
	Progress      int             `json:"progress"`
	Attempts      int             `json:"attempts"`
	Error         string          `json:"error,omitempty"`
	Input         json.RawMessage `json:"input,omitempty"`
	Output        json.RawMessage `json:"output,omitempty"`
	CreatedAt     string          `json:"created_at,omitempty"`
	UpdatedAt     string          `json:"updated_at,omitempty"`
	StartedAt     string          `json:"started_at,omitempty"`
	FinishedAt    string          `json:"finished_at,omitempty"`
	LastHeartbeat string          `json:"last_heartbeat,omitempty"`
}

// JobLog is one job log entry.
type JobLog struct {
	ID        int64           `json:"id"`
	Timestamp string          `json:"ts"`
	Level     string          `json:"level"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// CreateJobRequest enqueues an ingest_video or detect_chapters job. Fields
// that do not apply to the job type are ignored.
type CreateJobRequest struct {
	Type       string    `json:"type"`
	VideoID    string    `json:"video_id"`
	Language   string    `json:"language,omitempty"`
	Steps      *[]string `json:"steps,omitempty"`
	TraceID    string    `json:"trace_id,omitempty"`
	Force      bool      `json:"force,omitempty"`
	MinSignals *int      `json:"min_signals,omitempty"`
	WindowMs   *int64    `json:"window_ms,omitempty"`
}

// WorkflowStatus summarizes workflow execution state.
type WorkflowStatus struct {
	Running     bool              `json:"running"`
	Workers     int               `json:"workers"`
	Transport   string            `json:"transport"`
	JobStats    map[string]int    `json:"job_stats"`
	ActiveJobs  map[string]string `json:"active_jobs,omitempty"`
	LastError   string            `json:"last_error,omitempty"`
	LastJob     *Job              `json:"last_job,omitempty"`
	StageHealth []StageHealth     `json:"stage_health"`
}

// StageHealth mirrors readiness reporting for job handlers.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	DatabasePath string             `json:"database_path"`
	LockFilePath string             `json:"lock_file_path"`
	Workflow     WorkflowStatus     `json:"workflow"`
	Dependencies []DependencyStatus `json:"dependencies"`
}

// JobListResponse wraps a collection of jobs.
type JobListResponse struct {
	Jobs []Job `json:"jobs"`
}

// JobResponse wraps a single job.
type JobResponse struct {
	Job Job `json:"job"`
}

// JobLogsResponse pages job logs; Next is the cursor for the following call.
type JobLogsResponse struct {
	Logs []JobLog `json:"logs"`
	Next int64    `json:"next"`
}

// ActionResponse reports the result of cancel and retry.
type ActionResponse struct {
	JobID   string `json:"job_id"`
	Changed bool   `json:"changed"`
	Status  string `json:"status"`
}

// Entity is a canonical entity with its mention count.
type Entity struct {
	ID            string   `json:"id"`
	Type          string   `json:"type"`
	CanonicalName string   `json:"canonical_name"`
	Aliases       []string `json:"aliases"`
	Mentions      int      `json:"mentions"`
}

// EntitiesResponse lists a video's entities and tags.
type EntitiesResponse struct {
	VideoID  string   `json:"video_id"`
	Entities []Entity `json:"entities"`
	Tags     []string `json:"tags"`
}

// Chapter is a stored chapter.
type Chapter struct {
	StartMs    int64    `json:"start_ms"`
	EndMs      int64    `json:"end_ms"`
	Title      string   `json:"title"`
	Source     string   `json:"source"`
	Signals    []string `json:"signals,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Mark is a significant moment.
type Mark struct {
	TimestampMs int64   `json:"timestamp_ms"`
	MarkType    string  `json:"mark_type"`
	Confidence  float64 `json:"confidence"`
	Description string  `json:"description,omitempty"`
}

// ChaptersResponse lists a video's chapters and marks.
type ChaptersResponse struct {
	VideoID  string    `json:"video_id"`
	Chapters []Chapter `json:"chapters"`
	Marks    []Mark    `json:"marks"`
}
