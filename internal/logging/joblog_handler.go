package logging

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// JobLogEntry is one append-only log line attached to a job.
type JobLogEntry struct {
	JobID     string
	Timestamp time.Time
	Level     string
	Message   string
	Data      map[string]any
}

// JobLogSink persists job log entries. The store implements it.
type JobLogSink interface {
	AppendJobLog(ctx context.Context, entry JobLogEntry) error
}

// jobLogHandler copies records into a job's persistent log. Identity fields
// already stored on the job row are left out of the payload.
type jobLogHandler struct {
	sink   JobLogSink
	jobID  string
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

var jobLogOmittedKeys = map[string]struct{}{
	FieldComponent: {},
	FieldJobID:     {},
	FieldJobType:   {},
	FieldWorker:    {},
}

// NewJobLogHandler returns a handler that appends records at or above level
// to the job's log through sink.
func NewJobLogHandler(sink JobLogSink, jobID string, level slog.Level) slog.Handler {
	if sink == nil || strings.TrimSpace(jobID) == "" {
		return NoopHandler{}
	}
	return &jobLogHandler{sink: sink, jobID: jobID, level: level}
}

// WithJobLog tees logger output into the job's persistent log.
func WithJobLog(logger *slog.Logger, sink JobLogSink, jobID string) *slog.Logger {
	return TeeLogger(logger, NewJobLogHandler(sink, jobID, slog.LevelInfo))
}

func (h *jobLogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *jobLogHandler) Handle(ctx context.Context, record slog.Record) error {
	kvs := make([]kv, 0, record.NumAttrs()+len(h.attrs))
	flattenAttrs(&kvs, h.groups, h.attrs)
	record.Attrs(func(attr slog.Attr) bool {
		flattenAttr(&kvs, h.groups, attr)
		return true
	})
	kvs = dedupeKVsByKey(kvs)

	data := make(map[string]any, len(kvs))
	for _, item := range kvs {
		if _, skip := jobLogOmittedKeys[item.key]; skip {
			continue
		}
		data[item.key] = plainValue(item.value)
	}
	if len(data) == 0 {
		data = nil
	}

	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	// A canceled job context must not lose its final log lines.
	ctx = context.WithoutCancel(ctx)
	return h.sink.AppendJobLog(ctx, JobLogEntry{
		JobID:     h.jobID,
		Timestamp: ts.UTC(),
		Level:     LevelName(record.Level),
		Message:   record.Message,
		Data:      data,
	})
}

func (h *jobLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &clone
}

func (h *jobLogHandler) WithGroup(name string) slog.Handler {
	clone := *h
	clone.groups = append(append([]string(nil), h.groups...), name)
	return &clone
}
