// Package language normalizes the language codes that arrive on jobs and that
// providers report back, so transcripts are keyed by a single ISO 639-1 form.
package language
