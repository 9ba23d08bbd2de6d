package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const jobColumns = `id, type, status, progress, input_json, output_json, error,
    attempts, created_at, updated_at, started_at, finished_at, last_heartbeat`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(scanner rowScanner) (*Job, error) {
	var (
		job                              Job
		status                           string
		input, output, errMsg            sql.NullString
		createdAt, updatedAt             string
		startedAt, finishedAt, heartbeat sql.NullString
	)
	if err := scanner.Scan(
		&job.ID, &job.Type, &status, &job.Progress, &input, &output, &errMsg,
		&job.Attempts, &createdAt, &updatedAt, &startedAt, &finishedAt, &heartbeat,
	); err != nil {
		return nil, err
	}
	job.Status = JobStatus(status)
	job.Input = rawJSON(input)
	job.Output = rawJSON(output)
	job.Error = errMsg.String
	if t, err := parseTimeString(createdAt); err == nil {
		job.CreatedAt = t
	}
	if t, err := parseTimeString(updatedAt); err == nil {
		job.UpdatedAt = t
	}
	job.StartedAt = parseNullTime(startedAt)
	job.FinishedAt = parseNullTime(finishedAt)
	job.LastHeartbeat = parseNullTime(heartbeat)
	return &job, nil
}

// CreateJob inserts a queued job of the given type. input may be nil.
func (s *Store) CreateJob(ctx context.Context, jobType string, input any) (*Job, error) {
	jobType = strings.TrimSpace(jobType)
	if jobType == "" {
		return nil, errors.New("create job: type is required")
	}
	encoded, err := encodeJSON(input)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	id := newID()
	now := nowString()
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO jobs (id, type, status, progress, input_json, created_at, updated_at)
         VALUES (?, ?, ?, 0, ?, ?, ?)`,
		id, jobType, JobQueued, encoded, now, now,
	); err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return s.GetJob(ctx, id)
}

// GetJob fetches a job by id. A missing job yields nil, nil.
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// JobStatus returns only the status column; used for cooperative cancellation checks.
func (s *Store) JobStatus(ctx context.Context, id string) (JobStatus, error) {
	ctx = ensureContext(ctx)
	var status string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("job status: %w", err)
	}
	return JobStatus(status), nil
}

// ListJobs returns jobs ordered by creation time, optionally filtered by status.
func (s *Store) ListJobs(ctx context.Context, statuses ...JobStatus) ([]*Job, error) {
	ctx = ensureContext(ctx)
	query := `SELECT ` + jobColumns + ` FROM jobs`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, string(status))
		}
	}
	query += ` ORDER BY created_at, id`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// ListQueuedIDs returns up to limit queued job ids, oldest first. When types
// is non-empty only jobs of those types are listed.
func (s *Store) ListQueuedIDs(ctx context.Context, limit int, types ...string) ([]string, error) {
	ctx = ensureContext(ctx)
	if limit <= 0 {
		limit = 1
	}
	query := `SELECT id FROM jobs WHERE status = ?`
	args := []any{JobQueued}
	if len(types) > 0 {
		query += ` AND type IN (` + strings.TrimSuffix(strings.Repeat("?,", len(types)), ",") + `)`
		for _, jobType := range types {
			args = append(args, jobType)
		}
	}
	query += ` ORDER BY created_at, id LIMIT ?`
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list queued jobs: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ClaimJob atomically moves a queued job to running. It reports false when the
// job is missing or in any other state.
func (s *Store) ClaimJob(ctx context.Context, id string) (bool, error) {
	now := nowString()
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET status = ?, started_at = ?, last_heartbeat = ?, updated_at = ?,
             attempts = attempts + 1, error = NULL
         WHERE id = ? AND status = ?`,
		JobRunning, now, now, now, id, JobQueued,
	)
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// UpdateProgress records progress for a running job; values are clamped to 0..100.
func (s *Store) UpdateProgress(ctx context.Context, id string, progress int) error {
	progress = max(0, min(100, progress))
	if _, err := s.execWithRetry(ctx,
		`UPDATE jobs SET progress = ?, updated_at = ? WHERE id = ? AND status = ?`,
		progress, nowString(), id, JobRunning,
	); err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

// CompleteJob writes status, progress and output in one update. A job that was
// canceled mid-flight keeps its canceled status.
func (s *Store) CompleteJob(ctx context.Context, id string, output any) error {
	encoded, err := encodeJSON(output)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	now := nowString()
	if _, err := s.execWithRetry(ctx,
		`UPDATE jobs SET status = ?, progress = 100, output_json = ?, error = NULL,
             finished_at = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		JobCompleted, encoded, now, now, id, JobRunning,
	); err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return nil
}

// FailJob marks a running job failed with the given message.
func (s *Store) FailJob(ctx context.Context, id, message string) error {
	now := nowString()
	if _, err := s.execWithRetry(ctx,
		`UPDATE jobs SET status = ?, progress = 100, error = ?, finished_at = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		JobFailed, nullableString(message), now, now, id, JobRunning,
	); err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return nil
}

// CancelJob moves a queued or running job to canceled.
func (s *Store) CancelJob(ctx context.Context, id string) (bool, error) {
	now := nowString()
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET status = ?, finished_at = ?, updated_at = ?
         WHERE id = ? AND status IN (?, ?)`,
		JobCanceled, now, now, id, JobQueued, JobRunning,
	)
	if err != nil {
		return false, fmt.Errorf("cancel job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// RetryJob returns a failed or canceled job to the queue with its output cleared.
func (s *Store) RetryJob(ctx context.Context, id string) (bool, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET status = ?, progress = 0, output_json = NULL, error = NULL,
             started_at = NULL, finished_at = NULL, last_heartbeat = NULL, updated_at = ?
         WHERE id = ? AND status IN (?, ?)`,
		JobQueued, nowString(), id, JobFailed, JobCanceled,
	)
	if err != nil {
		return false, fmt.Errorf("retry job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// UpdateHeartbeat stamps the last heartbeat of a running job.
func (s *Store) UpdateHeartbeat(ctx context.Context, id string) error {
	now := nowString()
	if _, err := s.execWithRetry(ctx,
		`UPDATE jobs SET last_heartbeat = ?, updated_at = ? WHERE id = ? AND status = ?`,
		now, now, id, JobRunning,
	); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// ReclaimStale returns running jobs whose heartbeat is older than cutoff to the queue.
func (s *Store) ReclaimStale(ctx context.Context, cutoff time.Time) ([]string, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM jobs WHERE status = ? AND (last_heartbeat IS NULL OR last_heartbeat < ?)`,
		JobRunning, formatTimestamp(cutoff),
	)
	if err != nil {
		return nil, fmt.Errorf("find stale jobs: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	reclaimed := ids[:0]
	for _, id := range ids {
		res, err := s.execWithRetry(ctx,
			`UPDATE jobs SET status = ?, progress = 0, last_heartbeat = NULL, started_at = NULL, updated_at = ?
             WHERE id = ? AND status = ?`,
			JobQueued, nowString(), id, JobRunning,
		)
		if err != nil {
			return reclaimed, fmt.Errorf("reclaim stale job: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			reclaimed = append(reclaimed, id)
		}
	}
	return reclaimed, nil
}
