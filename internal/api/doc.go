// Package api defines the wire types and the job service shared by the
// daemon HTTP API and the CLI.
//
// JobService wraps the store with the operations clients need: listing and
// describing jobs, paging job logs, creating ingest_video and
// detect_chapters jobs (persisted first, then announced on the transport),
// cancel and retry, and read-only views of a video's entities, chapters and
// marks. Validation failures carry services.ErrValidation and missing rows
// carry services.ErrNotFound so HTTP handlers can map them to status codes.
//
// DTOs use the same snake_case JSON field names as job inputs and outputs.
// Timestamps are RFC3339 with milliseconds.
package api
