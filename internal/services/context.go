package services

import "context"

type contextKey string

const (
	jobIDKey     contextKey = "job_id"
	jobTypeKey   contextKey = "job_type"
	stageKey     contextKey = "stage"
	workerKey    contextKey = "worker"
	requestIDKey contextKey = "request_id"
	traceIDKey   contextKey = "trace_id"
)

// WithJobID annotates context with the job identifier.
func WithJobID(ctx context.Context, id string) context.Context {
	return withString(ctx, jobIDKey, id)
}

// JobIDFromContext extracts the job identifier if present.
func JobIDFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, jobIDKey)
}

// WithJobType annotates context with the job type (ingest_video, detect_chapters, ...).
func WithJobType(ctx context.Context, jobType string) context.Context {
	return withString(ctx, jobTypeKey, jobType)
}

func JobTypeFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, jobTypeKey)
}

// WithStage annotates context with the pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	return withString(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, stageKey)
}

// WithWorker annotates context with the worker slot name.
func WithWorker(ctx context.Context, worker string) context.Context {
	return withString(ctx, workerKey, worker)
}

func WorkerFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, workerKey)
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withString(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, requestIDKey)
}

// WithTraceID annotates context with the caller-supplied trace identifier.
func WithTraceID(ctx context.Context, id string) context.Context {
	return withString(ctx, traceIDKey, id)
}

func TraceIDFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, traceIDKey)
}

func withString(ctx context.Context, key contextKey, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func stringFrom(ctx context.Context, key contextKey) (string, bool) {
	if ctx == nil {
		return "", false
	}
	if v, ok := ctx.Value(key).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
