package logs

import (
	"context"
	"time"

	"vidintel/internal/api"
	"vidintel/internal/store"
)

const (
	defaultPageSize = 200
	defaultInterval = time.Second
)

// Source is the job surface Stream reads from.
type Source interface {
	Describe(ctx context.Context, id string) (api.Job, error)
	Logs(ctx context.Context, id string, after int64, limit int) (api.JobLogsResponse, error)
}

// Options controls a Stream call.
type Options struct {
	// After skips entries with ids up to and including this value.
	After    int64
	PageSize int
	Follow   bool
	Interval time.Duration
}

// Stream emits log entries for jobID and returns the id of the last entry
// seen. Without Follow it returns once all current entries are emitted.
func Stream(ctx context.Context, src Source, jobID string, opts Options, emit func(api.JobLog) error) (int64, error) {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	cursor := opts.After

	for {
		drained, err := drain(ctx, src, jobID, &cursor, pageSize, emit)
		if err != nil {
			return cursor, err
		}
		if !opts.Follow {
			return cursor, nil
		}
		if drained == 0 {
			job, err := src.Describe(ctx, jobID)
			if err != nil {
				return cursor, err
			}
			if Terminal(job.Status) {
				// Entries written between the last page and the status flip.
				if _, err := drain(ctx, src, jobID, &cursor, pageSize, emit); err != nil {
					return cursor, err
				}
				return cursor, nil
			}
		}
		select {
		case <-ctx.Done():
			return cursor, ctx.Err()
		case <-time.After(interval):
		}
	}
}

func drain(ctx context.Context, src Source, jobID string, cursor *int64, pageSize int, emit func(api.JobLog) error) (int, error) {
	total := 0
	for {
		page, err := src.Logs(ctx, jobID, *cursor, pageSize)
		if err != nil {
			return total, err
		}
		for _, entry := range page.Logs {
			if err := emit(entry); err != nil {
				return total, err
			}
			*cursor = entry.ID
			total++
		}
		if len(page.Logs) < pageSize {
			return total, nil
		}
	}
}

// Terminal reports whether a job status is final.
func Terminal(status string) bool {
	switch store.JobStatus(status) {
	case store.JobCompleted, store.JobFailed, store.JobCanceled:
		return true
	default:
		return false
	}
}
