// Package pipeline implements the job handlers run by the workflow manager.
//
// Ingest (job type ingest_video) drives a video from metadata refresh through
// transcript acquisition, chunking, embeddings, diarization, entity
// extraction, LLM canonicalization and Wikipedia context. Only the video
// lookup, transcript acquisition, chunking and entity materialization are
// fatal; every other stage degrades to a warning in the job log and a
// "failed", "skipped" or "disabled" entry in the output's stage map.
//
// DetectChapters (job type detect_chapters) fuses frame, transcript and
// speaker signals into chapter boundaries and significant marks.
//
// Handlers own the job's terminal transition: they write the output and set
// completed, or set failed with the error message. Between stages they
// re-read the job status so a cancellation requested through the API stops
// the run without writing output.
package pipeline
