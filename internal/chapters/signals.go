package chapters

import (
	"sort"
	"strings"

	"vidintel/internal/textutil"
)

// Signal names a boundary detector.
type Signal string

const (
	SignalVisual  Signal = "visual_transition"
	SignalOCR     Signal = "ocr_change"
	SignalTopic   Signal = "topic_shift"
	SignalSpeaker Signal = "speaker_change"
	SignalPHash   Signal = "phash_jump"
)

const (
	visualConfidence  = 0.7
	speakerConfidence = 0.6
	ocrThreshold      = 0.7
	topicThreshold    = 0.6
	phashThreshold    = 12
)

// DefaultTopicWindow is the number of cues on each side of a topic comparison.
const DefaultTopicWindow = 10

// Candidate is one detector's vote for a boundary.
type Candidate struct {
	TimestampMs int64
	Signal      Signal
	Confidence  float64
	Metadata    map[string]any
}

// Frame is an analyzed span of video produced by the frame pipeline.
type Frame struct {
	StartMs     int64
	EndMs       int64
	SceneType   string
	TextOverlay string
	PHash       string
	Description string
}

// Cue is the transcript view the detectors need.
type Cue struct {
	StartMs int64
	EndMs   int64
	Text    string
}

// SpeakerSegment is a diarized speaker turn.
type SpeakerSegment struct {
	SpeakerKey string
	StartMs    int64
	EndMs      int64
}

func sortedFrames(frames []Frame) []Frame {
	out := append([]Frame(nil), frames...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartMs < out[j].StartMs })
	return out
}

// VisualTransitions fires where adjacent frames carry different scene types.
func VisualTransitions(frames []Frame) []Candidate {
	if len(frames) < 2 {
		return nil
	}
	sorted := sortedFrames(frames)
	var out []Candidate
	for i := 1; i < len(sorted); i++ {
		prev, curr := sorted[i-1], sorted[i]
		if prev.SceneType == "" || curr.SceneType == "" || prev.SceneType == curr.SceneType {
			continue
		}
		out = append(out, Candidate{
			TimestampMs: curr.StartMs,
			Signal:      SignalVisual,
			Confidence:  visualConfidence,
			Metadata:    map[string]any{"from_scene": prev.SceneType, "to_scene": curr.SceneType},
		})
	}
	return out
}

// OCRChanges fires where on-screen text changes substantially between
// adjacent frames. Pairs with no text on either side are skipped.
func OCRChanges(frames []Frame) []Candidate {
	if len(frames) < 2 {
		return nil
	}
	sorted := sortedFrames(frames)
	var out []Candidate
	for i := 1; i < len(sorted); i++ {
		prevText := strings.TrimSpace(sorted[i-1].TextOverlay)
		currText := strings.TrimSpace(sorted[i].TextOverlay)
		if prevText == "" && currText == "" {
			continue
		}
		dist := textutil.JaccardDistance(textutil.NewTokenSet(prevText), textutil.NewTokenSet(currText))
		if dist <= ocrThreshold {
			continue
		}
		out = append(out, Candidate{
			TimestampMs: sorted[i].StartMs,
			Signal:      SignalOCR,
			Confidence:  min(1, dist),
			Metadata:    map[string]any{"jaccard_distance": dist},
		})
	}
	return out
}

// TopicShifts compares the vocabulary of the window cues before and after each
// position. It needs at least two full windows of cues.
func TopicShifts(cues []Cue, window int) []Candidate {
	if window <= 0 {
		window = DefaultTopicWindow
	}
	if len(cues) < window*2 {
		return nil
	}
	texts := make([]string, len(cues))
	for i, c := range cues {
		texts[i] = c.Text
	}
	var out []Candidate
	for i := window; i < len(cues)-window; i++ {
		before := textutil.NewTokenSet(texts[i-window : i]...)
		after := textutil.NewTokenSet(texts[i : i+window]...)
		dist := textutil.JaccardDistance(before, after)
		if dist <= topicThreshold {
			continue
		}
		out = append(out, Candidate{
			TimestampMs: cues[i].StartMs,
			Signal:      SignalTopic,
			Confidence:  min(1, dist*0.9),
			Metadata:    map[string]any{"jaccard_distance": dist, "window_size": window},
		})
	}
	return out
}

// SpeakerChanges fires where consecutive segments belong to different speakers.
func SpeakerChanges(segments []SpeakerSegment) []Candidate {
	if len(segments) < 2 {
		return nil
	}
	sorted := append([]SpeakerSegment(nil), segments...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].StartMs < sorted[j].StartMs })
	var out []Candidate
	for i := 1; i < len(sorted); i++ {
		prev, curr := sorted[i-1], sorted[i]
		if prev.SpeakerKey == curr.SpeakerKey {
			continue
		}
		out = append(out, Candidate{
			TimestampMs: curr.StartMs,
			Signal:      SignalSpeaker,
			Confidence:  speakerConfidence,
			Metadata:    map[string]any{"from_speaker": prev.SpeakerKey, "to_speaker": curr.SpeakerKey},
		})
	}
	return out
}

// PHashJumps fires where the perceptual hash of adjacent frames differs in
// more than twelve positions. Frames without a hash are ignored.
func PHashJumps(frames []Frame) []Candidate {
	var hashed []Frame
	for _, f := range sortedFrames(frames) {
		if strings.TrimSpace(f.PHash) != "" {
			hashed = append(hashed, f)
		}
	}
	if len(hashed) < 2 {
		return nil
	}
	var out []Candidate
	for i := 1; i < len(hashed); i++ {
		dist := HammingDistance(hashed[i-1].PHash, hashed[i].PHash)
		if dist <= phashThreshold {
			continue
		}
		out = append(out, Candidate{
			TimestampMs: hashed[i].StartMs,
			Signal:      SignalPHash,
			Confidence:  min(1, float64(dist)/32),
			Metadata:    map[string]any{"hamming_distance": dist},
		})
	}
	return out
}

// HammingDistance counts differing characters plus the length difference.
func HammingDistance(a, b string) int {
	n := min(len(a), len(b))
	dist := 0
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			dist++
		}
	}
	if len(a) > len(b) {
		return dist + len(a) - len(b)
	}
	return dist + len(b) - len(a)
}

// Inputs bundles everything the detectors read.
type Inputs struct {
	Frames      []Frame
	Cues        []Cue
	Segments    []SpeakerSegment
	TopicWindow int
}

// CollectSignals runs every detector.
func CollectSignals(in Inputs) []Candidate {
	var out []Candidate
	out = append(out, VisualTransitions(in.Frames)...)
	out = append(out, OCRChanges(in.Frames)...)
	out = append(out, TopicShifts(in.Cues, in.TopicWindow)...)
	out = append(out, SpeakerChanges(in.Segments)...)
	out = append(out, PHashJumps(in.Frames)...)
	return out
}

// CountBySignal tallies candidates per detector for logging.
func CountBySignal(candidates []Candidate) map[string]int {
	counts := map[string]int{"visual": 0, "ocr": 0, "topic": 0, "speaker": 0, "phash": 0}
	for _, c := range candidates {
		switch c.Signal {
		case SignalVisual:
			counts["visual"]++
		case SignalOCR:
			counts["ocr"]++
		case SignalTopic:
			counts["topic"]++
		case SignalSpeaker:
			counts["speaker"]++
		case SignalPHash:
			counts["phash"]++
		}
	}
	return counts
}
