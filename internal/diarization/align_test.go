package diarization

import "testing"

func conf(v float64) *float64 { return &v }

func TestAssignPicksLargestOverlap(t *testing.T) {
	speakers := []Speaker{
		{Key: "A", Segments: []Segment{{StartMs: 0, EndMs: 1500}}},
		{Key: "B", Segments: []Segment{{StartMs: 1500, EndMs: 4000}}},
	}
	cues := []Cue{
		{ID: "c1", StartMs: 0, EndMs: 1000},
		{ID: "c2", StartMs: 1000, EndMs: 3000},
		{ID: "c3", StartMs: 5000, EndMs: 6000},
	}
	got := Assign(cues, speakers)
	if len(got) != 2 {
		t.Fatalf("expected 2 assignments, got %#v", got)
	}
	if got[0].CueID != "c1" || got[0].SpeakerKey != "A" || got[0].Confidence != 1 {
		t.Fatalf("unexpected first assignment: %#v", got[0])
	}
	if got[1].CueID != "c2" || got[1].SpeakerKey != "B" || got[1].Confidence != 0.75 {
		t.Fatalf("unexpected second assignment: %#v", got[1])
	}
}

func TestAssignTieGoesToFirstSeen(t *testing.T) {
	speakers := []Speaker{
		{Key: "late", Segments: []Segment{{StartMs: 500, EndMs: 1000}}},
		{Key: "early", Segments: []Segment{{StartMs: 0, EndMs: 500}}},
	}
	got := Assign([]Cue{{ID: "c", StartMs: 0, EndMs: 1000}}, speakers)
	if len(got) != 1 || got[0].SpeakerKey != "early" || got[0].Confidence != 0.5 {
		t.Fatalf("unexpected assignment: %#v", got)
	}
}

func TestAssignSumsSegmentsPerSpeaker(t *testing.T) {
	speakers := []Speaker{
		{Key: "A", Segments: []Segment{{StartMs: 0, EndMs: 300}, {StartMs: 600, EndMs: 900}}},
		{Key: "B", Segments: []Segment{{StartMs: 300, EndMs: 600}}},
	}
	got := Assign([]Cue{{ID: "c", StartMs: 0, EndMs: 1000}}, speakers)
	if len(got) != 1 || got[0].SpeakerKey != "A" || got[0].Confidence != 0.6 {
		t.Fatalf("unexpected assignment: %#v", got)
	}
}

func TestAssignZeroLengthCueClampsConfidence(t *testing.T) {
	speakers := []Speaker{{Key: "A", Segments: []Segment{{StartMs: 0, EndMs: 100}}}}
	got := Assign([]Cue{{ID: "c", StartMs: 50, EndMs: 50}}, speakers)
	if len(got) != 0 {
		t.Fatalf("zero-length cue has no overlap, got %#v", got)
	}
}

func TestFlattenDropsEmptyAndSorts(t *testing.T) {
	speakers := []Speaker{
		{Key: "A", Segments: []Segment{{StartMs: 500, EndMs: 600}, {StartMs: 10, EndMs: 10}}},
		{Key: "B", Segments: []Segment{{StartMs: 0, EndMs: 200, Confidence: conf(0.9)}}},
	}
	flat := Flatten(speakers)
	if len(flat) != 2 || flat[0].SpeakerKey != "B" || flat[1].SpeakerKey != "A" {
		t.Fatalf("unexpected flatten: %#v", flat)
	}
	if SegmentCount(speakers) != 3 {
		t.Fatalf("SegmentCount = %d", SegmentCount(speakers))
	}
}
