// Package chapters detects chapter boundaries by letting independent signals
// vote.
//
// Each detector (scene type, on-screen text, transcript topic, speaker and
// perceptual hash) emits boundary candidates. Candidates that cluster within a
// time window and carry enough distinct signal types become chapter starts;
// the rest are kept as significant marks.
package chapters
