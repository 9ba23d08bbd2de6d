// Package store persists jobs, job logs, and the per-video enrichment artifacts
// (transcripts, cues, chunks, embeddings, speakers, entities, context items,
// tags, chapters, marks and frame analyses) in SQLite.
//
// A Store owns a single pooled connection. Writers retry on SQLITE_BUSY, and
// multi-row replacements run in one transaction so readers never observe a
// half-written artifact set. Cue and chunk rows use name-based ids so repeated
// job deliveries rewrite the same rows instead of duplicating them.
//
// Schema changes bump the version in schema.go; an existing database with a
// different version is rejected with ErrSchemaMismatch and must be recreated.
package store
