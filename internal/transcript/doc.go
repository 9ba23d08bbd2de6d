// Package transcript acquires, normalizes and chunks timestamped captions.
//
// Engine tries the best-effort caption Provider first and falls back to a
// speech-to-text backend only when one is configured and the job's step gate
// allows it. Provider cues arrive in floating-point seconds; Normalize turns
// them into millisecond cues with cleaned display text and a lowercased search
// shadow, keeping each cue's original position as its idx so re-delivered
// transcripts map onto the same rows. BuildChunks packs cues into overlapping
// retrieval windows.
package transcript
