// Package daemon coordinates the long-running vidintel process.
//
// It wires configuration, the store, the workflow manager, and the HTTP API
// into a single lifecycle with flock-based locking to prevent multiple
// instances. The API is served with gin behind an optional bearer token and
// exposes job listing, creation, cancel, retry, logs, and per-video entity and
// chapter views.
//
// Keep orchestration logic here: job handlers live in internal/pipeline and
// worker scheduling lives in internal/workflow.
package daemon
