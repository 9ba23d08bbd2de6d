// Package stt provides the speech-to-text fallback used when a video has no
// captions: a deterministic mock, the OpenAI transcription endpoint, and a
// local WhisperX run. Remote audio is fetched with yt-dlp first.
package stt
