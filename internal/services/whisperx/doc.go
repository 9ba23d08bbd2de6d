// Package whisperx runs WhisperX through uvx to transcribe a downloaded audio
// file into timed segments.
//
// Configuration options (model, CUDA, VAD method) are passed via Config.
package whisperx
