// Package diarization runs an external speaker diarization backend and aligns
// its speaker segments with transcript cues.
//
// Alignment picks one speaker per cue: the speaker with the most overlapping
// milliseconds wins, ties go to the speaker seen first, and the confidence is
// the winning overlap divided by the cue duration.
package diarization
