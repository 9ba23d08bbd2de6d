package diarization

import "sort"

// Segment is one speaker turn in milliseconds.
type Segment struct {
	StartMs    int64    `json:"start_ms"`
	EndMs      int64    `json:"end_ms"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Speaker groups the turns attributed to one diarized speaker.
type Speaker struct {
	Key      string    `json:"key"`
	Segments []Segment `json:"segments"`
}

// Cue is the minimal cue view alignment needs.
type Cue struct {
	ID      string
	StartMs int64
	EndMs   int64
}

// FlatSegment is a segment tagged with its speaker.
type FlatSegment struct {
	SpeakerKey string
	StartMs    int64
	EndMs      int64
}

// Assignment attributes a cue to a speaker.
type Assignment struct {
	CueID      string
	SpeakerKey string
	Confidence float64
}

// Flatten returns every non-empty segment ordered by start then end.
func Flatten(speakers []Speaker) []FlatSegment {
	var flat []FlatSegment
	for _, sp := range speakers {
		for _, seg := range sp.Segments {
			if seg.EndMs <= seg.StartMs {
				continue
			}
			flat = append(flat, FlatSegment{SpeakerKey: sp.Key, StartMs: seg.StartMs, EndMs: seg.EndMs})
		}
	}
	sort.SliceStable(flat, func(i, j int) bool {
		if flat[i].StartMs != flat[j].StartMs {
			return flat[i].StartMs < flat[j].StartMs
		}
		return flat[i].EndMs < flat[j].EndMs
	})
	return flat
}

// Assign sweeps cues (ordered by start) against the flattened segments.
// Cues without any overlapping segment get no assignment.
func Assign(cues []Cue, speakers []Speaker) []Assignment {
	segs := Flatten(speakers)
	if len(segs) == 0 {
		return nil
	}
	assignments := make([]Assignment, 0, len(cues))
	j := 0
	for _, cue := range cues {
		for j < len(segs) && segs[j].EndMs <= cue.StartMs {
			j++
		}
		var (
			order   []string
			overlap = map[string]int64{}
		)
		for k := j; k < len(segs) && segs[k].StartMs < cue.EndMs; k++ {
			ov := min(cue.EndMs, segs[k].EndMs) - max(cue.StartMs, segs[k].StartMs)
			if ov <= 0 {
				continue
			}
			if _, seen := overlap[segs[k].SpeakerKey]; !seen {
				order = append(order, segs[k].SpeakerKey)
			}
			overlap[segs[k].SpeakerKey] += ov
		}
		if len(order) == 0 {
			continue
		}
		bestKey, bestMs := "", int64(0)
		for _, key := range order {
			if overlap[key] > bestMs {
				bestKey, bestMs = key, overlap[key]
			}
		}
		duration := max(1, cue.EndMs-cue.StartMs)
		conf := float64(bestMs) / float64(duration)
		assignments = append(assignments, Assignment{
			CueID:      cue.ID,
			SpeakerKey: bestKey,
			Confidence: max(0, min(1, conf)),
		})
	}
	return assignments
}

// SegmentCount totals the segments across speakers.
func SegmentCount(speakers []Speaker) int {
	n := 0
	for _, sp := range speakers {
		n += len(sp.Segments)
	}
	return n
}
