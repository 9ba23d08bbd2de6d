package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"vidintel/internal/logging"
)

const defaultJobLogLimit = 500

// AppendJobLog persists one job log line. It satisfies logging.JobLogSink.
func (s *Store) AppendJobLog(ctx context.Context, entry logging.JobLogEntry) error {
	if strings.TrimSpace(entry.JobID) == "" {
		return fmt.Errorf("append job log: job id is required")
	}
	ts := entry.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	level := strings.ToLower(strings.TrimSpace(entry.Level))
	if level == "" {
		level = "info"
	}
	var data any
	if len(entry.Data) > 0 {
		data = entry.Data
	}
	encoded, err := encodeJSON(data)
	if err != nil {
		return fmt.Errorf("append job log: %w", err)
	}
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO job_logs (job_id, ts, level, message, data_json) VALUES (?, ?, ?, ?, ?)`,
		entry.JobID, formatTimestamp(ts), level, entry.Message, encoded,
	); err != nil {
		return fmt.Errorf("append job log: %w", err)
	}
	return nil
}

// ListJobLogs returns entries with id greater than afterID in append order.
func (s *Store) ListJobLogs(ctx context.Context, jobID string, afterID int64, limit int) ([]JobLog, error) {
	ctx = ensureContext(ctx)
	if limit <= 0 {
		limit = defaultJobLogLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, job_id, ts, level, message, data_json FROM job_logs
         WHERE job_id = ? AND id > ? ORDER BY id LIMIT ?`,
		jobID, afterID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list job logs: %w", err)
	}
	defer rows.Close()
	var logs []JobLog
	for rows.Next() {
		var (
			entry JobLog
			ts    string
			data  sql.NullString
		)
		if err := rows.Scan(&entry.ID, &entry.JobID, &ts, &entry.Level, &entry.Message, &data); err != nil {
			return nil, fmt.Errorf("scan job log: %w", err)
		}
		if t, err := parseTimeString(ts); err == nil {
			entry.Timestamp = t
		}
		entry.Data = rawJSON(data)
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}
