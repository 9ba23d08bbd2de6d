package api

import (
	"sort"
	"time"

	"vidintel/internal/stage"
	"vidintel/internal/store"
	"vidintel/internal/workflow"
)

// FromJob converts a store job into its API representation.
func FromJob(job *store.Job) Job {
	if job == nil {
		return Job{}
	}
	return Job{
		ID:            job.ID,
		Type:          job.Type,
		Status:        string(job.Status),
		Progress:      job.Progress,
		Attempts:      job.Attempts,
		Error:         job.Error,
		Input:         job.Input,
		Output:        job.Output,
		CreatedAt:     formatTime(job.CreatedAt),
		UpdatedAt:     formatTime(job.UpdatedAt),
		StartedAt:     formatTimePtr(job.StartedAt),
		FinishedAt:    formatTimePtr(job.FinishedAt),
		LastHeartbeat: formatTimePtr(job.LastHeartbeat),
	}
}

// FromJobs converts a slice of store jobs.
func FromJobs(jobs []*store.Job) []Job {
	out := make([]Job, 0, len(jobs))
	for _, job := range jobs {
		if job == nil {
			continue
		}
		out = append(out, FromJob(job))
	}
	return out
}

// FromJobLogs converts log rows and returns the next cursor, which stays at
// after when no rows are returned.
func FromJobLogs(logs []store.JobLog, after int64) ([]JobLog, int64) {
	out := make([]JobLog, 0, len(logs))
	next := after
	for _, entry := range logs {
		out = append(out, JobLog{
			ID:        entry.ID,
			Timestamp: formatTime(entry.Timestamp),
			Level:     entry.Level,
			Message:   entry.Message,
			Data:      entry.Data,
		})
		next = max(next, entry.ID)
	}
	return out, next
}

// FromStatusSummary converts the workflow status.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	status := WorkflowStatus{
		Running:     summary.Running,
		Workers:     summary.Workers,
		Transport:   summary.Transport,
		JobStats:    MergeJobStats(summary.JobStats),
		ActiveJobs:  summary.ActiveJobs,
		LastError:   summary.LastError,
		StageHealth: StageHealthSlice(summary.StageHealth),
	}
	if summary.LastJob != nil {
		job := FromJob(summary.LastJob)
		status.LastJob = &job
	}
	return status
}

// MergeJobStats returns counts for every status, including zero counts.
func MergeJobStats(stats map[store.JobStatus]int) map[string]int {
	out := map[string]int{
		string(store.JobQueued):    0,
		string(store.JobRunning):   0,
		string(store.JobCompleted): 0,
		string(store.JobFailed):    0,
		string(store.JobCanceled):  0,
	}
	for status, count := range stats {
		out[string(status)] += count
	}
	return out
}

// StageHealthSlice orders the health map by handler name.
func StageHealthSlice(health map[string]stage.Health) []StageHealth {
	out := make([]StageHealth, 0, len(health))
	for name, h := range health {
		out = append(out, StageHealth{Name: name, Ready: h.Ready, Detail: h.Detail})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
