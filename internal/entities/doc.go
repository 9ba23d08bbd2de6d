// Package entities turns per-cue named-entity mentions into a deduplicated
// entity set for a video.
//
// Extraction is deterministic (prose NER plus an organization suffix rule).
// When an LLM supplies a canonical entity set, mentions are resolved against
// its alias index and unmatched surfaces are dropped; otherwise every distinct
// surface becomes its own entity.
package entities
