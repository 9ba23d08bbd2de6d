package pipeline

import (
	"context"
	"log/slog"
	"strings"

	"vidintel/internal/chapters"
	"vidintel/internal/config"
	"vidintel/internal/logging"
	"vidintel/internal/services"
	"vidintel/internal/stage"
	"vidintel/internal/store"
)

// Chapters detected from signals are stored under this source.
const SignalsSource = "signals"

const (
	progressDetectInputs  = 20
	progressDetectSignals = 50
	progressDetectVotes   = 60
	progressDetectTitles  = 80
)

// DetectOutput is stored as the output of a completed detect_chapters job.
type DetectOutput struct {
	VideoID      string         `json:"video_id"`
	Chapters     int            `json:"chapters"`
	Marks        int            `json:"marks"`
	MarksSkipped bool           `json:"marks_skipped,omitempty"`
	Candidates   int            `json:"candidates"`
	Signals      map[string]int `json:"signals"`
	TitlesSource string         `json:"titles_source"`
	TraceID      *string        `json:"trace_id"`
}

// DetectChapters handles detect_chapters jobs.
type DetectChapters struct {
	cfg    *config.Config
	deps   Deps
	logger *slog.Logger
}

// NewDetectChapters builds the chapter detection handler.
func NewDetectChapters(cfg *config.Config, deps Deps) *DetectChapters {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &DetectChapters{cfg: cfg, deps: deps, logger: logging.NewComponentLogger(logger, "chapters")}
}

// SetLogger replaces the handler logger.
func (h *DetectChapters) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = logging.NewNop()
	}
	h.logger = logging.NewComponentLogger(logger, "chapters")
}

// HealthCheck reports whether the handler can run.
func (h *DetectChapters) HealthCheck(context.Context) stage.Health {
	if h.deps.Store == nil {
		return stage.Unhealthy("detect_chapters", "store unavailable")
	}
	return stage.Healthy("detect_chapters")
}

type detectRun struct {
	jobRun
	h     *DetectChapters
	input DetectInput
	out   DetectOutput

	transcriptID string
	frames       []chapters.Frame
	cues         []chapters.Cue
	segments     []chapters.SpeakerSegment
}

// Execute detects chapters and significant marks for the job's video.
func (h *DetectChapters) Execute(ctx context.Context, job *store.Job) error {
	if job == nil {
		return services.Wrap(services.ErrValidation, "detect_chapters", "execute", "job is nil", nil)
	}
	st := h.deps.Store
	if st == nil {
		return services.Wrap(services.ErrConfiguration, "detect_chapters", "execute", "store unavailable", nil)
	}
	ctx = services.WithJobID(ctx, job.ID)
	ctx = services.WithJobType(ctx, job.Type)

	var input DetectInput
	decodeErr := stage.DecodeInput("detect_chapters", job.Input, &input)
	if decodeErr == nil {
		input.VideoID, decodeErr = requireVideoID(input.VideoID, "detect_chapters")
	}
	input.TraceID = strings.TrimSpace(input.TraceID)
	if input.TraceID != "" {
		ctx = services.WithTraceID(ctx, input.TraceID)
	}

	run := &detectRun{
		jobRun: newJobRun(ctx, st, job, h.logger, "Chapter detection"),
		h:      h,
		input:  input,
	}
	run.out.VideoID = input.VideoID
	if input.TraceID != "" {
		trace := input.TraceID
		run.out.TraceID = &trace
	}

	run.logger.InfoContext(ctx, "Chapter detection started",
		logging.String(logging.FieldEventType, "job_started"),
		logging.String("video_id", input.VideoID),
		logging.Bool("force", input.Force),
	)
	if decodeErr != nil {
		return run.fail(ctx, decodeErr)
	}
	if err := run.execute(ctx); err != nil {
		return run.fail(ctx, err)
	}
	return nil
}

func (r *detectRun) options() chapters.Options {
	opts := chapters.Options{
		MinSignals: r.h.cfg.Chapters.MinSignals,
		WindowMs:   r.h.cfg.Chapters.WindowMs,
	}
	if r.input.MinSignals != nil && *r.input.MinSignals > 0 {
		opts.MinSignals = *r.input.MinSignals
	}
	if r.input.WindowMs != nil && *r.input.WindowMs > 0 {
		opts.WindowMs = *r.input.WindowMs
	}
	if opts.MinSignals <= 0 {
		opts.MinSignals = chapters.DefaultMinSignals
	}
	if opts.WindowMs <= 0 {
		opts.WindowMs = chapters.DefaultWindowMs
	}
	return opts
}

func (r *detectRun) execute(ctx context.Context) error {
	if err := r.fetchVideo(ctx, r.input.VideoID); err != nil {
		return err
	}
	if err := r.loadInputs(ctx); err != nil {
		return err
	}
	r.progress(ctx, progressDetectInputs)
	if err := r.checkpoint(ctx); err != nil {
		return err
	}

	topicWindow := r.h.cfg.Chapters.TopicWindow
	if topicWindow <= 0 {
		topicWindow = chapters.DefaultTopicWindow
	}
	candidates := chapters.CollectSignals(chapters.Inputs{
		Frames:      r.frames,
		Cues:        r.cues,
		Segments:    r.segments,
		TopicWindow: topicWindow,
	})
	r.out.Candidates = len(candidates)
	r.out.Signals = chapters.CountBySignal(candidates)
	r.progress(ctx, progressDetectSignals)
	r.logger.InfoContext(ctx, "Signals collected",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Int("candidates", len(candidates)),
		logging.Any("signals", r.out.Signals),
	)

	opts := r.options()
	opts.TotalDurationMs = r.totalDurationMs()
	result := chapters.Detect(candidates, opts)
	r.progress(ctx, progressDetectVotes)
	if err := r.checkpoint(ctx); err != nil {
		return err
	}

	titles := chapters.Titles(ctx, result.Chapters, r.frames, r.cues, r.h.deps.Titles)
	if titles.Err != nil {
		logging.WarnWithContext(ctx, r.logger, "Chapter titles fell back", "chapter_titles_fallback",
			logging.Error(titles.Err),
			logging.String(logging.FieldImpact, "chapters use generated section titles"),
		)
	}
	r.out.TitlesSource = titles.Source
	r.progress(ctx, progressDetectTitles)
	if err := r.checkpoint(ctx); err != nil {
		return err
	}

	if err := r.storeChapters(ctx, result.Chapters, titles.Titles); err != nil {
		return err
	}
	if err := r.storeMarks(ctx, result.Marks); err != nil {
		return err
	}

	if err := r.finish(ctx, r.out); err != nil {
		return err
	}
	r.logger.InfoContext(ctx, "Chapter detection completed",
		logging.String(logging.FieldEventType, "job_completed"),
		logging.Int("chapters", r.out.Chapters),
		logging.Int("marks", r.out.Marks),
		logging.String("titles_source", r.out.TitlesSource),
	)
	return nil
}

func (r *detectRun) loadInputs(ctx context.Context) error {
	frames, err := r.st.ListFrameAnalyses(ctx, r.video.ID)
	if err != nil {
		return services.Wrap(services.ErrTransient, "detect_chapters", "load inputs", "list frame analyses", err)
	}
	for _, f := range frames {
		r.frames = append(r.frames, chapters.Frame{
			StartMs:     f.StartMs,
			EndMs:       f.EndMs,
			SceneType:   f.SceneType,
			TextOverlay: f.TextOverlay,
			PHash:       f.PHash,
			Description: f.Description,
		})
	}

	tr, err := r.st.LatestTranscript(ctx, r.video.ID)
	if err != nil {
		return services.Wrap(services.ErrTransient, "detect_chapters", "load inputs", "latest transcript", err)
	}
	if tr != nil {
		r.transcriptID = tr.ID
		cues, err := r.st.ListCues(ctx, tr.ID)
		if err != nil {
			return services.Wrap(services.ErrTransient, "detect_chapters", "load inputs", "list cues", err)
		}
		for _, c := range cues {
			r.cues = append(r.cues, chapters.Cue{StartMs: c.StartMs, EndMs: c.EndMs, Text: c.Text})
		}
	}

	segments, err := r.st.ListSpeakerSegments(ctx, r.video.ID)
	if err != nil {
		return services.Wrap(services.ErrTransient, "detect_chapters", "load inputs", "list speaker segments", err)
	}
	for _, s := range segments {
		r.segments = append(r.segments, chapters.SpeakerSegment{SpeakerKey: s.SpeakerKey, StartMs: s.StartMs, EndMs: s.EndMs})
	}

	r.logger.InfoContext(ctx, "Chapter inputs loaded",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Int("frames", len(r.frames)),
		logging.Int("cues", len(r.cues)),
		logging.Int("speaker_segments", len(r.segments)),
	)
	return nil
}

func (r *detectRun) totalDurationMs() int64 {
	if r.video.DurationMs != nil && *r.video.DurationMs > 0 {
		return *r.video.DurationMs
	}
	var end int64
	for _, c := range r.cues {
		end = max(end, c.EndMs)
	}
	return end
}

func (r *detectRun) storeChapters(ctx context.Context, detected []chapters.Chapter, titles []string) error {
	inputs := make([]store.ChapterInput, 0, len(detected))
	for i, ch := range detected {
		title := ""
		if i < len(titles) {
			title = titles[i]
		}
		confidence := ch.Confidence
		inputs = append(inputs, store.ChapterInput{
			StartMs:    ch.StartMs,
			EndMs:      ch.EndMs,
			Title:      title,
			Signals:    ch.SignalNames(),
			Confidence: &confidence,
		})
	}
	stored, err := r.st.ReplaceVideoChapters(ctx, r.video.ID, r.transcriptID, SignalsSource, inputs)
	if err != nil {
		return services.Wrap(services.ErrTransient, "detect_chapters", "store chapters", "replace chapters", err)
	}
	r.out.Chapters = stored
	return nil
}

// storeMarks persists unconfirmed candidates as significant marks. Existing
// marks are kept unless the job forces a rebuild.
func (r *detectRun) storeMarks(ctx context.Context, candidates []chapters.Candidate) error {
	if r.input.Force {
		deleted, err := r.st.DeleteSignificantMarks(ctx, r.video.ID)
		if err != nil {
			return services.Wrap(services.ErrTransient, "detect_chapters", "store marks", "delete marks", err)
		}
		r.logger.InfoContext(ctx, "Existing marks deleted", logging.Int64("deleted", deleted))
	} else {
		existing, err := r.st.ListSignificantMarks(ctx, r.video.ID)
		if err != nil {
			return services.Wrap(services.ErrTransient, "detect_chapters", "store marks", "list marks", err)
		}
		if len(existing) > 0 {
			r.out.MarksSkipped = true
			r.logger.InfoContext(ctx, "Significant marks already exist; skipping (use force to rebuild)",
				logging.Int("existing", len(existing)))
			return nil
		}
	}

	marks := make([]store.MarkInput, 0, len(candidates))
	for _, c := range candidates {
		metadata := map[string]any{"signal": string(c.Signal)}
		for k, v := range c.Metadata {
			metadata[k] = v
		}
		marks = append(marks, store.MarkInput{
			TimestampMs: c.TimestampMs,
			MarkType:    chapters.MarkType(c.Signal),
			Confidence:  c.Confidence,
			Description: describeMark(c),
			Metadata:    metadata,
		})
	}
	inserted, err := r.st.InsertSignificantMarks(ctx, r.video.ID, marks)
	if err != nil {
		return services.Wrap(services.ErrTransient, "detect_chapters", "store marks", "insert marks", err)
	}
	r.out.Marks = inserted
	return nil
}

func describeMark(c chapters.Candidate) string {
	label := strings.ReplaceAll(string(c.Signal), "_", " ")
	return label + " at " + chapters.FormatTimestamp(c.TimestampMs)
}
