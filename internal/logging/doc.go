// Package logging assembles structured slog loggers and formatting helpers used
// across vidintel.
//
// It owns the console and JSON handlers, level and output plumbing, and the
// context helpers that tag lines with job ids, stages, workers and trace ids.
// The job log handler tees a logger into the append-only log stored on each
// job so operators can read a job's history through the CLI or API.
package logging
