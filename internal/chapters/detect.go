package chapters

import "sort"

// Options tunes boundary voting.
type Options struct {
	MinSignals      int
	WindowMs        int64
	TotalDurationMs int64
}

// Defaults for Options.
const (
	DefaultMinSignals  = 2
	DefaultWindowMs    = 3000
	fallbackChapterMs  = 60000
	leadingChapterConf = 0.5
)

// Chapter is a detected span.
type Chapter struct {
	StartMs    int64
	EndMs      int64
	Signals    []Signal
	Confidence float64
}

// SignalNames returns the chapter signals as strings.
func (c Chapter) SignalNames() []string {
	out := make([]string, len(c.Signals))
	for i, s := range c.Signals {
		out[i] = string(s)
	}
	return out
}

// Result holds confirmed chapters and the candidates that did not confirm one.
type Result struct {
	Chapters []Chapter
	Marks    []Candidate
}

type cluster struct {
	anchor     int64
	signals    []Signal
	confidence float64
	members    []Candidate
}

func (c *cluster) add(cand Candidate) {
	seen := false
	for _, s := range c.signals {
		if s == cand.Signal {
			seen = true
			break
		}
	}
	if !seen {
		c.signals = append(c.signals, cand.Signal)
	}
	c.confidence = max(c.confidence, cand.Confidence)
	c.members = append(c.members, cand)
}

// Detect clusters candidates around the earliest unclaimed candidate (the
// anchor does not move as members join) and confirms clusters carrying at
// least MinSignals distinct signals.
func Detect(candidates []Candidate, opts Options) Result {
	if opts.MinSignals <= 0 {
		opts.MinSignals = DefaultMinSignals
	}
	if opts.WindowMs <= 0 {
		opts.WindowMs = DefaultWindowMs
	}
	if len(candidates) == 0 {
		return Result{}
	}
	sorted := append([]Candidate(nil), candidates...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].TimestampMs < sorted[j].TimestampMs })

	used := make([]bool, len(sorted))
	var clusters []*cluster
	for i := range sorted {
		if used[i] {
			continue
		}
		c := &cluster{anchor: sorted[i].TimestampMs}
		c.add(sorted[i])
		used[i] = true
		for j := i + 1; j < len(sorted); j++ {
			if used[j] {
				continue
			}
			delta := sorted[j].TimestampMs - c.anchor
			if delta < 0 {
				delta = -delta
			}
			if delta <= opts.WindowMs {
				c.add(sorted[j])
				used[j] = true
			}
		}
		clusters = append(clusters, c)
	}

	var (
		boundaries []*cluster
		result     Result
	)
	for _, c := range clusters {
		// A boundary at or past the known duration cannot open a chapter.
		pastEnd := opts.TotalDurationMs > 0 && c.anchor >= opts.TotalDurationMs
		if len(c.signals) >= opts.MinSignals && !pastEnd {
			boundaries = append(boundaries, c)
			continue
		}
		result.Marks = append(result.Marks, c.members...)
	}

	for i, b := range boundaries {
		end := b.anchor + fallbackChapterMs
		if opts.TotalDurationMs > 0 {
			end = opts.TotalDurationMs
		}
		if i+1 < len(boundaries) {
			end = boundaries[i+1].anchor
		}
		result.Chapters = append(result.Chapters, Chapter{
			StartMs:    b.anchor,
			EndMs:      end,
			Signals:    b.signals,
			Confidence: b.confidence,
		})
	}
	if len(result.Chapters) > 0 && result.Chapters[0].StartMs > 0 {
		lead := Chapter{StartMs: 0, EndMs: result.Chapters[0].StartMs, Signals: []Signal{}, Confidence: leadingChapterConf}
		result.Chapters = append([]Chapter{lead}, result.Chapters...)
	}
	return result
}

// MarkType maps a signal to the significant mark vocabulary.
func MarkType(signal Signal) string {
	switch signal {
	case SignalVisual, SignalPHash:
		return "visual_transition"
	case SignalOCR:
		return "text_appears"
	case SignalSpeaker:
		return "speaker_change"
	default:
		return "topic_shift"
	}
}
