package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"vidintel/internal/config"
	"vidintel/internal/entities"
	"vidintel/internal/language"
	"vidintel/internal/logging"
	"vidintel/internal/services"
	"vidintel/internal/stage"
	"vidintel/internal/stepgate"
	"vidintel/internal/store"
)

// DiarizeSummary reports the diarization stage in the ingest output.
type DiarizeSummary struct {
	Backend        string `json:"backend"`
	Model          string `json:"model,omitempty"`
	Device         string `json:"device,omitempty"`
	DurationMs     int64  `json:"duration_ms"`
	ProviderMs     *int64 `json:"provider_ms,omitempty"`
	Speakers       int    `json:"speakers"`
	Segments       int    `json:"segments"`
	CueAssignments int    `json:"cue_assignments"`
	Error          string `json:"error,omitempty"`
}

// CanonicalizeSummary reports the canonicalization stage in the ingest output.
type CanonicalizeSummary struct {
	Provider   string `json:"provider"`
	Model      string `json:"model,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	Entities   int    `json:"entities"`
	Tags       int    `json:"tags"`
	Chapters   int    `json:"chapters"`
	Error      string `json:"error,omitempty"`
}

// IngestOutput is stored as the output of a completed ingest_video job.
type IngestOutput struct {
	VideoID                 string                 `json:"video_id"`
	TranscriptID            string                 `json:"transcript_id"`
	TranscriptSource        string                 `json:"transcript_source"`
	Cues                    int                    `json:"cues"`
	Chunks                  int                    `json:"chunks"`
	Embeddings              int                    `json:"embeddings"`
	EmbeddingsModelID       *string                `json:"embeddings_model_id"`
	EmbeddingsError         *string                `json:"embeddings_error"`
	Diarize                 *DiarizeSummary        `json:"diarize"`
	VoiceEnqueued           bool                   `json:"voice_enqueued"`
	Entities                int                    `json:"entities"`
	Mentions                int                    `json:"mentions"`
	MentionsInserted        int                    `json:"mentions_inserted"`
	MentionsSkipped         int                    `json:"mentions_skipped"`
	FallbackEntitiesCreated int                    `json:"fallback_entities_created"`
	Canonicalize            *CanonicalizeSummary   `json:"canonicalize"`
	TagsSource              *string                `json:"tags_source"`
	Tags                    *int                   `json:"tags"`
	Chapters                *int                   `json:"chapters"`
	ContextItems            int                    `json:"context_items"`
	TraceID                 *string                `json:"trace_id"`
	Stages                  map[string]StageStatus `json:"stages"`
}

// Ingest handles ingest_video jobs: transcript acquisition, chunking,
// embeddings, diarization, entity extraction, canonicalization and context.
type Ingest struct {
	cfg    *config.Config
	deps   Deps
	logger *slog.Logger
	now    func() time.Time
}

// NewIngest builds the ingest handler.
func NewIngest(cfg *config.Config, deps Deps) *Ingest {
	if deps.Extractor == nil {
		deps.Extractor = entities.NewProseExtractor()
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Ingest{
		cfg:    cfg,
		deps:   deps,
		logger: logging.NewComponentLogger(logger, "ingest"),
		now:    time.Now,
	}
}

// SetLogger replaces the handler logger.
func (h *Ingest) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = logging.NewNop()
	}
	h.logger = logging.NewComponentLogger(logger, "ingest")
}

// HealthCheck reports whether the handler can run.
func (h *Ingest) HealthCheck(context.Context) stage.Health {
	const name = "ingest_video"
	switch {
	case h.deps.Store == nil:
		return stage.Unhealthy(name, "store unavailable")
	case h.deps.Transcripts == nil:
		return stage.Unhealthy(name, "no transcript provider configured")
	}
	return stage.Healthy(name)
}

// ingestRun is the state of one ingest_video execution.
type ingestRun struct {
	jobRun
	h      *Ingest
	input  IngestInput
	gate   stepgate.Gate
	stages *stageRecorder
	out    IngestOutput

	language   string
	transcript *store.Transcript
	cues       []store.Cue
	chunks     []store.Chunk
	endMs      int64
	mentions   []entities.RawMention
	candidates []entities.Candidate
	canonical  *entities.CanonicalSet
	speakers   int
}

// Execute runs the pipeline for job and records the terminal transition.
func (h *Ingest) Execute(ctx context.Context, job *store.Job) error {
	if job == nil {
		return services.Wrap(services.ErrValidation, "ingest", "execute", "job is nil", nil)
	}
	st := h.deps.Store
	if st == nil {
		return services.Wrap(services.ErrConfiguration, "ingest", "execute", "store unavailable", nil)
	}
	ctx = services.WithJobID(ctx, job.ID)
	ctx = services.WithJobType(ctx, job.Type)

	var input IngestInput
	decodeErr := stage.DecodeInput("ingest", job.Input, &input)
	if decodeErr == nil {
		input.VideoID, decodeErr = requireVideoID(input.VideoID, "ingest")
	}
	if strings.TrimSpace(input.TraceID) != "" {
		ctx = services.WithTraceID(ctx, strings.TrimSpace(input.TraceID))
	}

	run := &ingestRun{
		jobRun: newJobRun(ctx, st, job, h.logger, "Ingest"),
		h:      h,
		input:  input,
		gate:   input.Gate(),
		stages: newStageRecorder(),
	}
	run.out.VideoID = input.VideoID
	if input.TraceID != "" {
		trace := strings.TrimSpace(input.TraceID)
		run.out.TraceID = &trace
	}

	run.logger.InfoContext(ctx, "Ingest started",
		logging.String(logging.FieldEventType, "job_started"),
		logging.String("video_id", input.VideoID),
		logging.String("language", input.Language),
		logging.Any("steps", run.gate.Names()),
	)
	if decodeErr != nil {
		return run.fail(ctx, decodeErr)
	}
	if err := run.execute(ctx); err != nil {
		return run.fail(ctx, err)
	}
	return nil
}

func (r *ingestRun) execute(ctx context.Context) error {
	if err := r.loadVideo(ctx); err != nil {
		return err
	}
	r.refreshMetadata(ctx)

	steps := []func(context.Context) error{
		r.acquireTranscript,
		r.buildChunks,
		r.embed,
		r.diarize,
		r.enqueueVoice,
		r.extractCandidates,
		r.canonicalize,
		r.storeEntities,
		r.fetchContext,
	}
	for _, step := range steps {
		if err := r.checkpoint(ctx); err != nil {
			return err
		}
		if err := step(ctx); err != nil {
			return err
		}
	}
	return r.complete(ctx)
}

func (r *ingestRun) loadVideo(ctx context.Context) error {
	if err := r.fetchVideo(ctx, r.input.VideoID); err != nil {
		return err
	}

	lang := strings.TrimSpace(r.input.Language)
	if lang == "" {
		lang = r.h.cfg.Ingest.DefaultLanguage
	}
	r.language = language.Normalize(lang)
	return nil
}

func (r *ingestRun) complete(ctx context.Context) error {
	r.out.Stages = r.stages.snapshot()
	if err := r.finish(ctx, r.out); err != nil {
		return err
	}
	r.logger.InfoContext(ctx, "Ingest completed",
		logging.String(logging.FieldEventType, "job_completed"),
		logging.Int("context_items", r.out.ContextItems),
		logging.Int("cues", r.out.Cues),
		logging.Int("entities", r.out.Entities),
	)
	return nil
}

// stageFailed logs a non-fatal stage failure and records it.
func (r *ingestRun) stageFailed(ctx context.Context, name, msg string, err error, attrs ...logging.Attr) {
	r.stages.set(name, StageFailed)
	attrs = append(attrs, logging.String(logging.FieldStage, name))
	attrs = append(attrs, logging.ErrorDetails(err)...)
	logging.WarnWithContext(ctx, r.logger, msg, "stage_failed", attrs...)
}

func (r *ingestRun) stageInfo(ctx context.Context, name, msg, eventType string, attrs ...logging.Attr) {
	attrs = append(attrs,
		logging.String(logging.FieldStage, name),
		logging.String(logging.FieldEventType, eventType),
	)
	r.logger.InfoContext(ctx, msg, logging.Args(attrs...)...)
}
