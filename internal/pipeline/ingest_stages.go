package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"vidintel/internal/config"
	"vidintel/internal/diarization"
	"vidintel/internal/enrich"
	"vidintel/internal/entities"
	"vidintel/internal/logging"
	"vidintel/internal/services"
	"vidintel/internal/services/embeddings"
	"vidintel/internal/services/youtube"
	"vidintel/internal/stepgate"
	"vidintel/internal/store"
	"vidintel/internal/transcript"
)

// Progress checkpoints reported while ingesting.
const (
	progressTranscript = 35
	progressChunks     = 45
	progressEmbeddings = 60
	progressDiarize    = 65
	progressEntities   = 75
	progressContext    = 90
)

const (
	captionProviderName = "python_youtube_transcript_api"
	contextSource       = "wikipedia"
)

func (r *ingestRun) refreshMetadata(ctx context.Context) {
	if r.h.deps.OEmbed == nil {
		r.stages.set(StageMetadata, StageDisabled)
		return
	}
	if r.video.Provider != youtube.ProviderName {
		r.stages.set(StageMetadata, StageSkipped)
		return
	}
	meta := r.h.deps.OEmbed.Fetch(ctx, r.video.URL)
	if meta == nil {
		r.stages.set(StageMetadata, StageFailed)
		r.logger.DebugContext(ctx, "oEmbed metadata unavailable", logging.String("url", r.video.URL))
		return
	}
	update := store.VideoMetadata{
		Title:        meta.Title,
		ChannelName:  meta.AuthorName,
		ThumbnailURL: meta.ThumbnailURL,
	}
	if err := r.st.UpdateVideoMetadata(ctx, r.video.ID, update); err != nil {
		r.stageFailed(ctx, StageMetadata, "Metadata refresh failed", err,
			logging.String(logging.FieldImpact, "stored title and channel left unchanged"))
		return
	}
	if meta.Title != "" {
		r.video.Title = meta.Title
	}
	if meta.AuthorName != "" {
		r.video.ChannelName = meta.AuthorName
	}
	r.stages.set(StageMetadata, StageSucceeded)
}

func (r *ingestRun) acquireTranscript(ctx context.Context) error {
	engine := r.h.deps.Transcripts.WithObserver(func(a transcript.Attempt) {
		if a.Err == nil {
			return
		}
		if a.Source == transcript.SourceBestEffort {
			logging.WarnWithContext(ctx, r.logger, "Transcript best_effort failed", "transcript_attempt_failed",
				logging.String(logging.FieldStage, StageTranscript),
				logging.String("provider", captionProviderName),
				logging.Error(a.Err),
				logging.String(logging.FieldImpact, "falling back to speech-to-text when allowed"),
			)
			if r.h.deps.Transcripts.STTConfigured() && r.gate.Enabled(stepgate.STT) {
				r.stageInfo(ctx, StageTranscript, "Transcribing audio (STT)", "stage_start")
			}
			return
		}
		logging.WarnWithContext(ctx, r.logger, "Transcript stt failed", "transcript_attempt_failed",
			logging.String(logging.FieldStage, StageTranscript),
			logging.String("provider", a.Provider),
			logging.Error(a.Err),
			logging.String(logging.FieldImpact, "no transcript available"),
		)
	})

	r.stageInfo(ctx, StageTranscript, "Fetching transcript", "stage_start", logging.String("language", r.language))
	acquired, err := engine.Acquire(ctx, transcript.Request{
		ProviderVideoID: r.video.ProviderVideoID,
		MediaURL:        r.video.URL,
		Language:        r.language,
		Gate:            r.gate,
	})
	if err != nil {
		r.stages.set(StageTranscript, StageFailed)
		return err
	}

	payload := map[string]any{"provider": captionProviderName}
	if acquired.Source == transcript.SourceSTT {
		payload = map[string]any{"provider": acquired.Provider, "model": acquired.Model}
	}
	tr, created, err := r.st.CreateTranscriptIfMissing(ctx, store.NewTranscript{
		VideoID:         r.video.ID,
		Language:        r.language,
		Source:          acquired.Source,
		IsGenerated:     acquired.IsGenerated,
		ProviderPayload: payload,
	})
	if err != nil {
		r.stages.set(StageTranscript, StageFailed)
		return services.Wrap(services.ErrTransient, "ingest", "store transcript", "create transcript", err)
	}

	inputs := make([]store.CueInput, 0, len(acquired.Cues))
	for _, cue := range acquired.Cues {
		inputs = append(inputs, store.CueInput{
			Idx:      cue.Idx,
			StartMs:  cue.StartMs,
			EndMs:    cue.EndMs,
			Text:     cue.Text,
			NormText: cue.NormText,
		})
	}
	if _, err := r.st.InsertCues(ctx, r.video.ID, tr.ID, inputs); err != nil {
		r.stages.set(StageTranscript, StageFailed)
		return services.Wrap(services.ErrTransient, "ingest", "store transcript", "insert cues", err)
	}
	cues, err := r.st.ListCues(ctx, tr.ID)
	if err != nil {
		r.stages.set(StageTranscript, StageFailed)
		return services.Wrap(services.ErrTransient, "ingest", "store transcript", "list cues", err)
	}

	r.transcript = tr
	r.cues = cues
	for _, cue := range cues {
		r.endMs = max(r.endMs, cue.EndMs)
	}
	r.out.TranscriptID = tr.ID
	r.out.TranscriptSource = tr.Source
	r.out.Cues = len(cues)
	r.stages.set(StageTranscript, StageSucceeded)
	r.progress(ctx, progressTranscript)
	r.stageInfo(ctx, StageTranscript, "Transcript stored", "stage_complete",
		logging.String("transcript_id", tr.ID),
		logging.String("source", tr.Source),
		logging.Int("cues", len(cues)),
		logging.Int("raw_cues", acquired.RawCount),
		logging.Bool("created", created),
	)
	return nil
}

func (r *ingestRun) buildChunks(ctx context.Context) error {
	cfg := r.h.cfg.Ingest
	cues := make([]transcript.Cue, 0, len(r.cues))
	for _, cue := range r.cues {
		cues = append(cues, transcript.Cue{
			Idx:      cue.Idx,
			StartMs:  cue.StartMs,
			EndMs:    cue.EndMs,
			Text:     cue.Text,
			NormText: cue.NormText,
		})
	}
	built := transcript.BuildChunks(cues, transcript.ChunkOptions{
		MaxChars:    cfg.ChunkMaxChars,
		MinChars:    cfg.ChunkMinChars,
		OverlapCues: cfg.ChunkOverlapCues,
	})
	inputs := make([]store.ChunkInput, 0, len(built))
	for _, ch := range built {
		inputs = append(inputs, store.ChunkInput{
			StartMs:       ch.StartMs,
			EndMs:         ch.EndMs,
			CueStartIdx:   ch.CueStartIdx,
			CueEndIdx:     ch.CueEndIdx,
			Text:          ch.Text,
			TokenEstimate: ch.TokenEstimate,
		})
	}
	stored, err := r.st.RebuildChunks(ctx, r.transcript.ID, inputs)
	if err != nil {
		r.stages.set(StageChunks, StageFailed)
		return services.Wrap(services.ErrTransient, "ingest", "store chunks", "rebuild chunks", err)
	}
	r.chunks = stored
	r.out.Chunks = len(stored)
	r.stages.set(StageChunks, StageSucceeded)
	r.progress(ctx, progressChunks)
	r.stageInfo(ctx, StageChunks, "Chunks stored", "stage_complete", logging.Int("chunks", len(stored)))
	return nil
}

// embed vectorizes every chunk. Failures are recorded in the output and do
// not fail the job.
func (r *ingestRun) embed(ctx context.Context) error {
	if !r.gate.Enabled(stepgate.Embeddings) {
		r.stages.set(StageEmbeddings, StageSkipped)
		return nil
	}
	emb := r.h.deps.Embedder
	if emb == nil {
		reason := strings.TrimSpace(r.h.deps.EmbedStatus.Reason)
		if reason == "" {
			reason = "embeddings disabled"
		}
		r.out.EmbeddingsError = &reason
		r.stages.set(StageEmbeddings, StageDisabled)
		r.stageInfo(ctx, StageEmbeddings, "Embeddings disabled", "stage_skipped", logging.String("reason", reason))
		return nil
	}

	modelID := emb.ModelID()
	r.out.EmbeddingsModelID = &modelID
	r.stageInfo(ctx, StageEmbeddings, "Building embeddings", "stage_start",
		logging.String("provider", emb.Provider()),
		logging.String("model_id", modelID),
		logging.Int("dimensions", emb.Dimensions()),
	)

	count := 0
	for _, ch := range r.chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		vec, err := emb.Embed(ctx, ch.Text)
		if err == nil {
			err = embeddings.CheckDimensions(vec, config.ExpectedEmbeddingDimensions)
		}
		if err == nil {
			err = r.st.UpsertEmbedding(ctx, store.EmbeddingInput{
				TranscriptID: r.transcript.ID,
				ChunkID:      ch.ID,
				ModelID:      modelID,
				Vector:       vec,
				TextHash:     embeddings.HashText(ch.Text),
			})
		}
		if err != nil {
			msg := err.Error()
			r.out.EmbeddingsError = &msg
			r.out.Embeddings = count
			r.stageFailed(ctx, StageEmbeddings, "Embeddings skipped/failed", err,
				logging.Int("embeddings", count),
				logging.String(logging.FieldImpact, "semantic search unavailable for this transcript"),
			)
			return nil
		}
		count++
	}

	r.out.Embeddings = count
	r.stages.set(StageEmbeddings, StageSucceeded)
	r.progress(ctx, progressEmbeddings)
	r.stageInfo(ctx, StageEmbeddings, "Embeddings stored", "stage_complete", logging.Int("embeddings", count))
	return nil
}

func (r *ingestRun) diarize(ctx context.Context) error {
	backend := strings.ToLower(strings.TrimSpace(r.h.cfg.Diarization.Backend))
	if backend == "" && r.gate.Has(stepgate.Diarize) {
		backend = config.DefaultDiarizationBackend
	}
	switch {
	case backend == "" || r.h.deps.Diarizer == nil:
		r.stages.set(StageDiarize, StageDisabled)
		return nil
	case !r.gate.Enabled(stepgate.Diarize):
		r.stages.set(StageDiarize, StageSkipped)
		return nil
	}

	started := r.h.now()
	r.stageInfo(ctx, StageDiarize, "Diarization started", "stage_start",
		logging.String("backend", backend),
		logging.Int64("transcript_end_ms", r.endMs),
	)
	summary := &DiarizeSummary{Backend: backend}
	r.out.Diarize = summary

	result, err := r.h.deps.Diarizer.Run(ctx, r.video.URL, backend, r.endMs)
	var counts store.DiarizationCounts
	if err == nil {
		counts, err = r.st.ReplaceDiarization(ctx, diarizationWrite(r.video.ID, r.transcript.ID, r.cues, result))
	}
	summary.DurationMs = r.h.now().Sub(started).Milliseconds()
	if err != nil {
		summary.Error = err.Error()
		r.stageFailed(ctx, StageDiarize, "Diarization failed (skipping)", err,
			logging.String("backend", backend),
			logging.String(logging.FieldImpact, "cues carry no speaker attribution"),
		)
		return nil
	}

	summary.Backend = result.Backend
	summary.Model = result.Model
	summary.Device = result.Device
	if result.DurationMs > 0 {
		providerMs := result.DurationMs
		summary.ProviderMs = &providerMs
	}
	summary.Speakers = counts.Speakers
	summary.Segments = counts.Segments
	summary.CueAssignments = counts.CueAssignments
	r.speakers = counts.Speakers

	r.stages.set(StageDiarize, StageSucceeded)
	r.progress(ctx, progressDiarize)
	r.stageInfo(ctx, StageDiarize, "Diarization stored", "stage_complete",
		logging.String("backend", summary.Backend),
		logging.Int("speakers", counts.Speakers),
		logging.Int("segments", counts.Segments),
		logging.Int("cue_assignments", counts.CueAssignments),
	)
	return nil
}

func diarizationWrite(videoID, transcriptID string, cues []store.Cue, result diarization.Result) store.DiarizationWrite {
	speakers := make([]store.DiarizedSpeaker, 0, len(result.Speakers))
	for _, sp := range result.Speakers {
		segments := make([]store.SegmentInput, 0, len(sp.Segments))
		for _, seg := range sp.Segments {
			segments = append(segments, store.SegmentInput{StartMs: seg.StartMs, EndMs: seg.EndMs, Confidence: seg.Confidence})
		}
		speakers = append(speakers, store.DiarizedSpeaker{Key: sp.Key, Segments: segments})
	}

	alignCues := make([]diarization.Cue, 0, len(cues))
	for _, cue := range cues {
		alignCues = append(alignCues, diarization.Cue{ID: cue.ID, StartMs: cue.StartMs, EndMs: cue.EndMs})
	}
	var assignments []store.CueAssignment
	for _, a := range diarization.Assign(alignCues, result.Speakers) {
		confidence := a.Confidence
		assignments = append(assignments, store.CueAssignment{CueID: a.CueID, SpeakerKey: a.SpeakerKey, Confidence: &confidence})
	}

	return store.DiarizationWrite{
		VideoID:        videoID,
		TranscriptID:   transcriptID,
		Source:         result.Source(),
		Speakers:       speakers,
		CueAssignments: assignments,
	}
}

// enqueueVoice schedules the speaker voice follow-up. Failures never block
// the ingest.
func (r *ingestRun) enqueueVoice(ctx context.Context) error {
	if r.speakers == 0 || !r.gate.Enabled(stepgate.Voice) {
		r.stages.set(StageVoice, StageSkipped)
		return nil
	}
	job, err := r.st.CreateJob(ctx, store.JobTypeIngestVoice, VoiceInput{VideoID: r.video.ID, TraceID: r.input.TraceID})
	if err == nil && r.h.deps.Enqueuer != nil {
		err = r.h.deps.Enqueuer.Enqueue(ctx, job.ID)
	}
	if err != nil {
		r.stageFailed(ctx, StageVoice, "Failed to enqueue voice embedding (non-blocking)", err,
			logging.String(logging.FieldImpact, "speaker voice embeddings not scheduled"))
		return nil
	}
	r.out.VoiceEnqueued = true
	r.stages.set(StageVoice, StageSucceeded)
	r.stageInfo(ctx, StageVoice, fmt.Sprintf("Enqueued ingest_voice job: %s", job.ID), "stage_complete",
		logging.String("voice_job_id", job.ID))
	return nil
}

func (r *ingestRun) extractCandidates(ctx context.Context) error {
	r.stageInfo(ctx, StageNER, "Extracting entity candidates", "stage_start", logging.Int("cues", len(r.cues)))
	texts := make([]entities.CueText, 0, len(r.cues))
	for _, cue := range r.cues {
		texts = append(texts, entities.CueText{ID: cue.ID, StartMs: cue.StartMs, EndMs: cue.EndMs, Text: cue.Text})
	}
	r.mentions = entities.ExtractMentions(r.h.deps.Extractor, texts)
	r.candidates = entities.Aggregate(r.mentions)
	r.out.Mentions = len(r.mentions)
	r.stages.set(StageNER, StageSucceeded)
	r.stageInfo(ctx, StageNER, "Entity candidates extracted", "stage_complete",
		logging.Int("mentions", len(r.mentions)),
		logging.Int("candidates", len(r.candidates)),
	)
	return nil
}

// canonicalize asks the LLM for canonical entities, tags and chapters. A
// failure falls back to deterministic entity resolution.
func (r *ingestRun) canonicalize(ctx context.Context) error {
	canon := r.h.deps.Canonicalizer
	wanted := (canon != nil || r.gate.Has(stepgate.EnrichCLI)) && r.gate.Enabled(stepgate.EnrichCLI)
	if !wanted {
		if canon == nil {
			r.stages.set(StageCanonicalize, StageDisabled)
		} else {
			r.stages.set(StageCanonicalize, StageSkipped)
		}
		return nil
	}
	if canon == nil {
		canon = enrich.New(nil, r.h.cfg.Enrichment.Provider, time.Duration(r.h.cfg.Enrichment.TimeoutMs)*time.Millisecond)
	}

	r.stageInfo(ctx, StageCanonicalize, "CLI enrichment started", "stage_start",
		logging.String("provider", canon.Provider()),
		logging.String("model", canon.Model()),
		logging.Int("candidates", len(r.candidates)),
	)
	started := r.h.now()
	output, err := canon.Run(ctx, r.enrichInput())
	summary := &CanonicalizeSummary{
		Provider:   canon.Provider(),
		Model:      canon.Model(),
		DurationMs: r.h.now().Sub(started).Milliseconds(),
	}
	r.out.Canonicalize = summary
	source := canon.Source()
	r.out.TagsSource = &source

	if err != nil {
		summary.Error = err.Error()
		r.canonical = &entities.CanonicalSet{Err: err}
		r.stageFailed(ctx, StageCanonicalize, "CLI enrichment failed (falling back to deterministic)", err,
			logging.String(logging.FieldImpact, "entities resolved from raw mentions"))
		return nil
	}

	summary.Entities = len(output.Entities)
	summary.Tags = len(output.Tags)
	summary.Chapters = len(output.Chapters)
	r.canonical = &entities.CanonicalSet{Entities: output.Entities}

	tags, err := r.st.ReplaceVideoTags(ctx, r.video.ID, source, output.Tags)
	if err != nil {
		logging.WarnWithContext(ctx, r.logger, "Storing tags failed", "stage_failed",
			logging.String(logging.FieldStage, StageCanonicalize),
			logging.Error(err),
			logging.String(logging.FieldImpact, "video tags not updated"),
		)
	} else {
		r.out.Tags = &tags
	}

	chapterInputs := make([]store.ChapterInput, 0, len(output.Chapters))
	for _, ch := range output.Chapters {
		chapterInputs = append(chapterInputs, store.ChapterInput{StartMs: ch.StartMs, EndMs: ch.EndMs, Title: ch.Title})
	}
	stored, err := r.st.ReplaceVideoChapters(ctx, r.video.ID, r.transcript.ID, source, chapterInputs)
	if err != nil {
		logging.WarnWithContext(ctx, r.logger, "Storing chapters failed", "stage_failed",
			logging.String(logging.FieldStage, StageCanonicalize),
			logging.Error(err),
			logging.String(logging.FieldImpact, "video chapters not updated"),
		)
	} else {
		r.out.Chapters = &stored
	}

	r.stages.set(StageCanonicalize, StageSucceeded)
	r.stageInfo(ctx, StageCanonicalize, "CLI enrichment completed", "stage_complete",
		logging.Int("entities", summary.Entities),
		logging.Int("tags", summary.Tags),
		logging.Int("chapters", summary.Chapters),
		logging.Int64("duration_ms", summary.DurationMs),
	)
	return nil
}

func (r *ingestRun) enrichInput() enrich.Input {
	var channel *string
	if r.video.ChannelName != "" {
		name := r.video.ChannelName
		channel = &name
	}
	chunks := make([]enrich.ChunkText, 0, len(r.chunks))
	for _, ch := range r.chunks {
		chunks = append(chunks, enrich.ChunkText{StartMs: ch.StartMs, EndMs: ch.EndMs, Text: ch.Text})
	}
	return enrich.Input{
		Video: enrich.VideoInfo{
			ID:              r.video.ID,
			Provider:        r.video.Provider,
			ProviderVideoID: r.video.ProviderVideoID,
			URL:             r.video.URL,
			Title:           r.video.Title,
			ChannelName:     channel,
		},
		Transcript: enrich.TranscriptStats{
			Language: r.transcript.Language,
			Cues:     len(r.cues),
			Chunks:   len(r.chunks),
			EndMs:    r.endMs,
		},
		EntityCandidates: r.candidates,
		Chunks:           enrich.TrimChunks(chunks, r.h.cfg.Ingest.PromptCharBudget),
	}
}

// storeEntities rebuilds the video's entities and mentions from scratch.
func (r *ingestRun) storeEntities(ctx context.Context) error {
	if err := r.st.ClearEntitiesForVideo(ctx, r.video.ID); err != nil {
		r.stages.set(StageEntities, StageFailed)
		return services.Wrap(services.ErrTransient, "ingest", "store entities", "clear entities", err)
	}
	res := entities.Resolve(r.mentions, r.candidates, r.canonical)

	ids := make(map[string]string, len(res.Entities))
	for _, planned := range res.Entities {
		ent, err := r.st.UpsertEntity(ctx, r.video.ID, planned.Type, planned.CanonicalName, planned.Aliases)
		if err != nil {
			r.stages.set(StageEntities, StageFailed)
			return services.Wrap(services.ErrTransient, "ingest", "store entities", "upsert entity", err)
		}
		ids[planned.Key] = ent.ID
	}

	mentions := make([]store.MentionInput, 0, len(res.Mentions))
	for _, m := range res.Mentions {
		entityID, ok := ids[m.EntityKey]
		if !ok {
			continue
		}
		confidence := m.Mention.Confidence
		mentions = append(mentions, store.MentionInput{
			VideoID:    r.video.ID,
			EntityID:   entityID,
			CueID:      m.Mention.CueID,
			StartMs:    m.Mention.StartMs,
			EndMs:      m.Mention.EndMs,
			Surface:    m.Mention.Surface,
			Confidence: &confidence,
		})
	}
	if _, err := r.st.InsertEntityMentions(ctx, mentions); err != nil {
		r.stages.set(StageEntities, StageFailed)
		return services.Wrap(services.ErrTransient, "ingest", "store entities", "insert mentions", err)
	}

	r.out.Entities = len(res.Entities)
	r.out.MentionsInserted = res.Inserted
	r.out.MentionsSkipped = res.Skipped
	r.out.FallbackEntitiesCreated = res.FallbackCreated
	r.stages.set(StageEntities, StageSucceeded)
	r.progress(ctx, progressEntities)

	attrs := []logging.Attr{
		logging.Int("entities", r.out.Entities),
		logging.Int("mentions", r.out.Mentions),
		logging.Int("mentions_inserted", res.Inserted),
		logging.Int("mentions_skipped", res.Skipped),
		logging.Int("fallback_entities_created", res.FallbackCreated),
		logging.Bool("canonical", res.UsingCanonical),
	}
	if r.out.Canonicalize != nil {
		attrs = append(attrs, logging.Any("canonicalize", r.out.Canonicalize))
	}
	r.stageInfo(ctx, StageEntities, "Entities stored", "stage_complete", attrs...)
	return nil
}

// fetchContext attaches encyclopedia summaries to entities mentioned around
// the configured anchor. Lookup failures are per entity.
func (r *ingestRun) fetchContext(ctx context.Context) error {
	if !r.gate.Enabled(stepgate.Context) {
		r.stages.set(StageContext, StageSkipped)
		return nil
	}
	lookup := r.h.deps.Wikipedia
	if lookup == nil {
		r.stages.set(StageContext, StageDisabled)
		return nil
	}

	at, window := r.h.cfg.Ingest.ContextAtMs, r.h.cfg.Ingest.ContextWindowMs
	start, end := max(0, at-window/2), at+window/2
	ents, err := r.st.ListEntitiesInWindow(ctx, r.video.ID, start, end, r.h.cfg.Ingest.ContextLimit)
	if err != nil {
		r.stageFailed(ctx, StageContext, "Context lookup failed", err,
			logging.String(logging.FieldImpact, "no context items stored"))
		return nil
	}

	stored, failures := 0, 0
	for _, ent := range ents {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		summary, err := lookup.Summary(ctx, ent.CanonicalName)
		if err == nil && summary != nil {
			err = r.st.UpsertContextItem(ctx, store.ContextItemInput{
				EntityID: ent.ID,
				Source:   contextSource,
				SourceID: summary.Title,
				Title:    summary.Title,
				Snippet:  summary.Snippet(),
				URL:      summary.PageURL(),
				Payload:  summary,
			})
			if err == nil {
				stored++
			}
		}
		if err != nil {
			failures++
			logging.WarnWithContext(ctx, r.logger, "Context lookup failed", "context_lookup_failed",
				logging.String(logging.FieldStage, StageContext),
				logging.String("entity", ent.CanonicalName),
				logging.Error(err),
				logging.String(logging.FieldImpact, "entity has no context item"),
			)
		}
	}

	r.out.ContextItems = stored
	if failures > 0 && stored == 0 {
		r.stages.set(StageContext, StageFailed)
	} else {
		r.stages.set(StageContext, StageSucceeded)
	}
	r.progress(ctx, progressContext)
	r.stageInfo(ctx, StageContext, "Context stored", "stage_complete",
		logging.Int("context_items", stored),
		logging.Int("entities", len(ents)),
		logging.Int("failures", failures),
	)
	return nil
}
