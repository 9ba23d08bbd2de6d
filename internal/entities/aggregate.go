package entities

import (
	"sort"
	"strings"
)

// Entity types.
const (
	TypePerson   = "person"
	TypeOrg      = "org"
	TypeLocation = "location"
)

const (
	maxCandidates     = 350
	maxExamples       = 3
	maxEntityAliases  = 64
	maxIndexedAliases = 128
)

// RawMention is one extracted surface form anchored to a cue.
type RawMention struct {
	Type       string
	Surface    string
	CueID      string
	StartMs    int64
	EndMs      int64
	Confidence float64
}

// Candidate is an aggregated surface form offered to canonicalization.
type Candidate struct {
	Type       string  `json:"type"`
	Surface    string  `json:"surface"`
	Count      int     `json:"count"`
	ExamplesMs []int64 `json:"examples_ms"`
}

// Aggregate groups mentions by type and lowercased surface, keeping the first
// spelling and up to three example timestamps. Candidates are ordered by
// count, ties in first-seen order, and capped at 350.
func Aggregate(mentions []RawMention) []Candidate {
	index := make(map[string]int)
	var out []Candidate
	for _, m := range mentions {
		key := m.Type + ":" + strings.ToLower(m.Surface)
		if i, ok := index[key]; ok {
			out[i].Count++
			if len(out[i].ExamplesMs) < maxExamples {
				out[i].ExamplesMs = append(out[i].ExamplesMs, m.StartMs)
			}
			continue
		}
		index[key] = len(out)
		out = append(out, Candidate{Type: m.Type, Surface: m.Surface, Count: 1, ExamplesMs: []int64{m.StartMs}})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if len(out) > maxCandidates {
		out = out[:maxCandidates]
	}
	return out
}
