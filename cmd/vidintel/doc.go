// Command vidintel is the operator CLI for the vidintel enrichment pipeline.
//
// Job commands go through the daemon HTTP API when the daemon answers on
// paths.api_bind and fall back to the SQLite store otherwise. Video
// registration, frame imports, and one-shot "job run" executions always use
// the store directly.
package main
