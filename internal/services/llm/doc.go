// Package llm is a small chat-completions client used for transcript
// enrichment.
//
// Callers use three request shapes:
//   - CompleteStructured: JSON constrained by a JSON schema (entity
//     canonicalization, tags and chapters);
//   - CompleteJSON: JSON object mode without a schema;
//   - CompleteText: free text (chapter titles, parsed leniently by the caller).
//
// Requests are retried on HTTP 408/429/5xx, empty replies and network
// timeouts with exponential backoff. Context cancellation stops retries.
// Replies wrapped in code fences or prose are unwrapped by DecodeLLMJSON.
package llm
