// Package logs pages and follows persisted job logs for the CLI.
//
// Stream reads a job's log entries in id order from any Source (the daemon
// API or the store) and, in follow mode, keeps polling until the job reaches
// a terminal status. Callers supply a context so polling stops when the CLI
// exits.
package logs
