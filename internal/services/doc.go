// Package services defines shared utilities consumed by the pipeline stages and
// external provider integrations.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, worker slots, and trace
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper so the orchestrator can tell
//     configuration problems from provider failures and cancellations.
//
// Subpackages hold the provider clients (LLM, embeddings, STT, Wikipedia,
// oEmbed, WhisperX).
package services
