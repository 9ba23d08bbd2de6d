package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"vidintel/internal/config"
	"vidintel/internal/diarization"
	"vidintel/internal/enrich"
	"vidintel/internal/entities"
	"vidintel/internal/pipeline"
	"vidintel/internal/services"
	"vidintel/internal/services/embeddings"
	"vidintel/internal/services/wikipedia"
	"vidintel/internal/store"
	"vidintel/internal/testsupport"
	"vidintel/internal/transcript"
)

type fakeCaptions struct {
	result transcript.Result
	err    error
	onCall func()
}

func (f *fakeCaptions) Fetch(context.Context, string, string) (transcript.Result, error) {
	if f.onCall != nil {
		f.onCall()
	}
	return f.result, f.err
}

type keywordExtractor struct{}

func (keywordExtractor) Extract(text string) []entities.NamedEntity {
	var out []entities.NamedEntity
	if strings.Contains(text, "Ada Lovelace") {
		out = append(out, entities.NamedEntity{Type: entities.TypePerson, Name: "Ada Lovelace", Confidence: 0.6})
	}
	if strings.Contains(text, "Acme Corp") {
		out = append(out, entities.NamedEntity{Type: entities.TypeOrg, Name: "Acme Corp", Confidence: 0.55})
	}
	return out
}

type fakeCanonicalizer struct {
	output enrich.Output
	err    error
	got    enrich.Input
}

func (f *fakeCanonicalizer) Run(_ context.Context, in enrich.Input) (enrich.Output, error) {
	f.got = in
	return f.output, f.err
}
func (f *fakeCanonicalizer) Provider() string { return "fake" }
func (f *fakeCanonicalizer) Model() string    { return "m1" }
func (f *fakeCanonicalizer) Source() string   { return "cli:fake:m1" }

type fakeDiarizer struct {
	result  diarization.Result
	err     error
	backend string
}

func (f *fakeDiarizer) Run(_ context.Context, _ string, backend string, _ int64) (diarization.Result, error) {
	f.backend = backend
	return f.result, f.err
}

type recordingEnqueuer struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (r *recordingEnqueuer) Enqueue(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.ids = append(r.ids, id)
	return nil
}

type fakeEmbedder struct {
	dims int
}

func (f fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	return make([]float32, f.dims), nil
}
func (fakeEmbedder) Provider() string  { return "fake" }
func (fakeEmbedder) ModelID() string   { return "fake-embed" }
func (f fakeEmbedder) Dimensions() int { return f.dims }

type fakeWikipedia struct {
	titles []string
}

func (f *fakeWikipedia) Summary(_ context.Context, title string) (*wikipedia.Summary, error) {
	f.titles = append(f.titles, title)
	if title == "Acme Corp" {
		return nil, nil
	}
	return &wikipedia.Summary{Title: title, Extract: title + " was a mathematician."}, nil
}

var sampleCaptions = transcript.Result{
	Language: "en",
	Cues: []transcript.RawCue{
		{Start: 0, Duration: 4, Text: "Ada Lovelace joined Acme Corp"},
		{Start: 5, Duration: 4, Text: "Acme Corp shipped a new engine"},
		{Start: 10, Duration: 4, Text: "Thanks for watching"},
	},
}

type ingestFixture struct {
	cfg   *config.Config
	st    *store.Store
	video *store.Video
	deps  pipeline.Deps
}

func newIngestFixture(t *testing.T, captions transcript.Provider) *ingestFixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	video := testsupport.SeedVideo(t, st, "dQw4w9WgXcQ")
	return &ingestFixture{
		cfg:   cfg,
		st:    st,
		video: video,
		deps: pipeline.Deps{
			Store:       st,
			Transcripts: transcript.NewEngine(captions, nil, ""),
			EmbedStatus: embeddings.Status{Provider: config.EmbeddingsDisabled, Reason: "embeddings provider disabled"},
			Extractor:   keywordExtractor{},
		},
	}
}

func (f *ingestFixture) run(t *testing.T, input map[string]any) (*store.Job, error) {
	t.Helper()
	if _, ok := input["video_id"]; !ok {
		input["video_id"] = f.video.ID
	}
	job := testsupport.CreateJob(t, f.st, store.JobTypeIngestVideo, input)
	if ok, err := f.st.ClaimJob(context.Background(), job.ID); err != nil || !ok {
		t.Fatalf("ClaimJob = %v, %v", ok, err)
	}
	err := pipeline.NewIngest(f.cfg, f.deps).Execute(context.Background(), job)
	done, getErr := f.st.GetJob(context.Background(), job.ID)
	if getErr != nil {
		t.Fatalf("GetJob: %v", getErr)
	}
	return done, err
}

func decodeOutput(t *testing.T, job *store.Job) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(job.Output, &out); err != nil {
		t.Fatalf("decode output %s: %v", job.Output, err)
	}
	return out
}

func logMessages(t *testing.T, st *store.Store, jobID string) []string {
	t.Helper()
	logs, err := st.ListJobLogs(context.Background(), jobID, 0, 0)
	if err != nil {
		t.Fatalf("ListJobLogs: %v", err)
	}
	msgs := make([]string, len(logs))
	for i, l := range logs {
		msgs[i] = l.Message
	}
	return msgs
}

func containsMessage(msgs []string, want string) bool {
	for _, m := range msgs {
		if m == want {
			return true
		}
	}
	return false
}

func TestIngestDeterministicPipeline(t *testing.T) {
	f := newIngestFixture(t, &fakeCaptions{result: sampleCaptions})
	job, err := f.run(t, map[string]any{"trace_id": "trace-1"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if job.Status != store.JobCompleted || job.Progress != 100 {
		t.Fatalf("unexpected job state: %s %d (%s)", job.Status, job.Progress, job.Error)
	}

	out := decodeOutput(t, job)
	checks := map[string]any{
		"video_id":                  f.video.ID,
		"transcript_source":         "best_effort",
		"cues":                      float64(3),
		"chunks":                    float64(1),
		"embeddings":                float64(0),
		"embeddings_error":          "embeddings provider disabled",
		"entities":                  float64(2),
		"mentions":                  float64(3),
		"mentions_inserted":         float64(3),
		"mentions_skipped":          float64(0),
		"fallback_entities_created": float64(0),
		"voice_enqueued":            false,
		"context_items":             float64(0),
		"trace_id":                  "trace-1",
	}
	for key, want := range checks {
		if out[key] != want {
			t.Errorf("output[%q] = %#v, want %#v", key, out[key], want)
		}
	}
	for _, key := range []string{"diarize", "canonicalize", "tags_source", "tags", "chapters", "embeddings_model_id"} {
		if v, ok := out[key]; !ok || v != nil {
			t.Errorf("output[%q] = %#v, want explicit null", key, v)
		}
	}

	stages, _ := out["stages"].(map[string]any)
	wantStages := map[string]string{
		pipeline.StageMetadata:     "disabled",
		pipeline.StageTranscript:   "succeeded",
		pipeline.StageChunks:       "succeeded",
		pipeline.StageEmbeddings:   "disabled",
		pipeline.StageDiarize:      "disabled",
		pipeline.StageVoice:        "skipped",
		pipeline.StageNER:          "succeeded",
		pipeline.StageCanonicalize: "disabled",
		pipeline.StageEntities:     "succeeded",
		pipeline.StageContext:      "disabled",
	}
	for name, want := range wantStages {
		if stages[name] != want {
			t.Errorf("stages[%q] = %v, want %s", name, stages[name], want)
		}
	}

	ents, err := f.st.ListEntitiesForVideo(context.Background(), f.video.ID)
	if err != nil || len(ents) != 2 {
		t.Fatalf("entities = %#v, %v", ents, err)
	}

	msgs := logMessages(t, f.st, job.ID)
	for _, want := range []string{"Ingest started", "Transcript stored", "Chunks stored", "Extracting entity candidates", "Entities stored", "Ingest completed"} {
		if !containsMessage(msgs, want) {
			t.Errorf("job logs missing %q: %v", want, msgs)
		}
	}
}

func TestIngestRerunIsIdempotent(t *testing.T) {
	f := newIngestFixture(t, &fakeCaptions{result: sampleCaptions})
	first, err := f.run(t, map[string]any{})
	if err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	second, err := f.run(t, map[string]any{})
	if err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	a, b := decodeOutput(t, first), decodeOutput(t, second)
	if a["transcript_id"] != b["transcript_id"] || a["cues"] != b["cues"] || a["entities"] != b["entities"] {
		t.Fatalf("rerun diverged: %v vs %v", a, b)
	}
	ents, _ := f.st.ListEntitiesForVideo(context.Background(), f.video.ID)
	if len(ents) != 2 {
		t.Fatalf("entities after rerun = %d, want 2", len(ents))
	}
}

func TestIngestMissingVideoFailsJob(t *testing.T) {
	f := newIngestFixture(t, &fakeCaptions{result: sampleCaptions})
	job, err := f.run(t, map[string]any{"video_id": "missing"})
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("Execute error = %v, want ErrNotFound", err)
	}
	if job.Status != store.JobFailed || job.Error != "Video not found" || job.Progress != 100 {
		t.Fatalf("unexpected job: status=%s error=%q progress=%d", job.Status, job.Error, job.Progress)
	}
}

func TestIngestInvalidInputFailsJob(t *testing.T) {
	f := newIngestFixture(t, &fakeCaptions{result: sampleCaptions})
	job, err := f.run(t, map[string]any{"video_id": "  "})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("Execute error = %v, want ErrValidation", err)
	}
	if job.Status != store.JobFailed {
		t.Fatalf("status = %s, want failed", job.Status)
	}
}

func TestIngestTranscriptFailureIsFatal(t *testing.T) {
	f := newIngestFixture(t, &fakeCaptions{err: errors.New("captions disabled")})
	job, err := f.run(t, map[string]any{})
	if err == nil {
		t.Fatal("expected transcript failure")
	}
	if job.Status != store.JobFailed || job.Output != nil {
		t.Fatalf("unexpected job: %s output=%s", job.Status, job.Output)
	}
	if !strings.Contains(job.Error, "no transcript available") {
		t.Fatalf("error = %q", job.Error)
	}
	msgs := logMessages(t, f.st, job.ID)
	if !containsMessage(msgs, "Transcript best_effort failed") || !containsMessage(msgs, "Ingest failed") {
		t.Fatalf("job logs = %v", msgs)
	}
}

type fakeSTT struct {
	result transcript.STTResult
	err    error
	calls  int
}

func (f *fakeSTT) Transcribe(context.Context, string, string) (transcript.STTResult, error) {
	f.calls++
	return f.result, f.err
}

var sampleSTT = transcript.STTResult{
	Provider: "mock",
	Model:    "tiny.en",
	Cues: []transcript.RawCue{
		{Start: 0, Duration: 3, Text: "Ada Lovelace wrote notes"},
		{Start: 3, Duration: 3, Text: "on the analytical engine"},
	},
}

func TestIngestEmptyStepsBlockSTTFallback(t *testing.T) {
	f := newIngestFixture(t, &fakeCaptions{err: errors.New("captions disabled")})
	sttBackend := &fakeSTT{result: sampleSTT}
	f.deps.Transcripts = transcript.NewEngine(&fakeCaptions{err: errors.New("captions disabled")}, sttBackend, "mock")

	job, err := f.run(t, map[string]any{"steps": []string{}})
	if err == nil {
		t.Fatal("expected transcript failure")
	}
	if job.Status != store.JobFailed || !strings.Contains(job.Error, "no transcript available") {
		t.Fatalf("unexpected job: status=%s error=%q", job.Status, job.Error)
	}
	if sttBackend.calls != 0 {
		t.Fatalf("stt calls = %d, want 0", sttBackend.calls)
	}
	if tr, _ := f.st.LatestTranscript(context.Background(), f.video.ID); tr != nil {
		t.Fatalf("unexpected transcript stored: %#v", tr)
	}
}

func TestIngestDiarizeStepFallsBackToSTT(t *testing.T) {
	f := newIngestFixture(t, nil)
	sttBackend := &fakeSTT{result: sampleSTT}
	f.deps.Transcripts = transcript.NewEngine(&fakeCaptions{err: errors.New("captions disabled")}, sttBackend, "mock")
	f.deps.Diarizer = &fakeDiarizer{result: diarization.Result{
		Backend: "pyannote",
		Speakers: []diarization.Speaker{
			{Key: "SPEAKER_00", Segments: []diarization.Segment{{StartMs: 0, EndMs: 6000}}},
		},
	}}

	job, err := f.run(t, map[string]any{"steps": []string{"diarize"}})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if job.Status != store.JobCompleted {
		t.Fatalf("status = %s (%s)", job.Status, job.Error)
	}
	if sttBackend.calls != 1 {
		t.Fatalf("stt calls = %d, want 1", sttBackend.calls)
	}
	out := decodeOutput(t, job)
	if out["transcript_source"] != transcript.SourceSTT || out["cues"] != float64(2) {
		t.Fatalf("unexpected output: %v", out)
	}
	stages := out["stages"].(map[string]any)
	if stages[pipeline.StageDiarize] != "succeeded" || stages[pipeline.StageEmbeddings] != "skipped" {
		t.Fatalf("stages = %v", stages)
	}

	ctx := context.Background()
	tr, err := f.st.LatestTranscript(ctx, f.video.ID)
	if err != nil || tr == nil || tr.Source != transcript.SourceSTT || !tr.IsGenerated {
		t.Fatalf("transcript = %#v, %v", tr, err)
	}
	var payload map[string]any
	if err := json.Unmarshal(tr.ProviderPayload, &payload); err != nil {
		t.Fatalf("decode payload %s: %v", tr.ProviderPayload, err)
	}
	if payload["provider"] != "stt:mock" || payload["model"] != "tiny.en" {
		t.Fatalf("provider payload = %v", payload)
	}
	cues, err := f.st.ListCues(ctx, tr.ID)
	if err != nil || len(cues) != 2 || cues[1].StartMs != 3000 {
		t.Fatalf("cues = %#v, %v", cues, err)
	}
	msgs := logMessages(t, f.st, job.ID)
	if !containsMessage(msgs, "Transcript best_effort failed") || !containsMessage(msgs, "Transcribing audio (STT)") {
		t.Fatalf("job logs = %v", msgs)
	}
}

func TestIngestCanonicalizationDiarizationAndVoice(t *testing.T) {
	f := newIngestFixture(t, &fakeCaptions{result: sampleCaptions})
	f.cfg.Diarization.Backend = "pyannote"
	canon := &fakeCanonicalizer{output: enrich.Output{
		Entities: []entities.CanonicalEntity{
			{Type: entities.TypePerson, CanonicalName: "Ada Lovelace", Aliases: []string{"Ada Lovelace", "Lovelace"}},
			{Type: entities.TypeOrg, CanonicalName: "Acme Corporation", Aliases: []string{"Acme Corp"}},
		},
		Tags:     []string{"history", "engines"},
		Chapters: []enrich.Chapter{{StartMs: 0, EndMs: 9000, Title: "Intro"}, {StartMs: 9000, EndMs: 14000, Title: "Outro"}},
	}}
	diarizer := &fakeDiarizer{result: diarization.Result{
		Backend:    "pyannote",
		Model:      "3.1",
		DurationMs: 1200,
		Speakers: []diarization.Speaker{
			{Key: "SPEAKER_00", Segments: []diarization.Segment{{StartMs: 0, EndMs: 7000}}},
			{Key: "SPEAKER_01", Segments: []diarization.Segment{{StartMs: 7000, EndMs: 15000}}},
		},
	}}
	enqueuer := &recordingEnqueuer{}
	f.deps.Canonicalizer = canon
	f.deps.Diarizer = diarizer
	f.deps.Enqueuer = enqueuer

	job, err := f.run(t, map[string]any{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	out := decodeOutput(t, job)
	if out["voice_enqueued"] != true || out["tags_source"] != "cli:fake:m1" || out["tags"] != float64(2) || out["chapters"] != float64(2) {
		t.Fatalf("unexpected output: %v", out)
	}
	if out["entities"] != float64(2) || out["mentions_inserted"] != float64(3) {
		t.Fatalf("canonical entity counts: %v", out)
	}
	diar, _ := out["diarize"].(map[string]any)
	if diar["speakers"] != float64(2) || diar["provider_ms"] != float64(1200) || diar["cue_assignments"] != float64(3) {
		t.Fatalf("diarize summary = %v", diar)
	}
	if diarizer.backend != "pyannote" {
		t.Fatalf("diarizer backend = %q", diarizer.backend)
	}
	if len(canon.got.EntityCandidates) != 2 || canon.got.Transcript.Cues != 3 {
		t.Fatalf("canonicalizer input = %#v", canon.got)
	}

	ctx := context.Background()
	tags, _ := f.st.ListVideoTags(ctx, f.video.ID)
	if len(tags) != 2 {
		t.Fatalf("tags = %v", tags)
	}
	chapters, _ := f.st.ListVideoChapters(ctx, f.video.ID, "cli:fake:m1")
	if len(chapters) != 2 || chapters[0].Title != "Intro" {
		t.Fatalf("chapters = %#v", chapters)
	}
	ents, _ := f.st.ListEntitiesForVideo(ctx, f.video.ID)
	names := map[string]bool{}
	for _, e := range ents {
		names[e.CanonicalName] = true
	}
	if !names["Acme Corporation"] || !names["Ada Lovelace"] {
		t.Fatalf("canonical entities = %v", names)
	}

	if len(enqueuer.ids) != 1 {
		t.Fatalf("enqueued = %v", enqueuer.ids)
	}
	voice, _ := f.st.GetJob(ctx, enqueuer.ids[0])
	if voice == nil || voice.Type != store.JobTypeIngestVoice || voice.Status != store.JobQueued {
		t.Fatalf("voice job = %#v", voice)
	}
	msgs := logMessages(t, f.st, job.ID)
	if !containsMessage(msgs, "Enqueued ingest_voice job: "+voice.ID) || !containsMessage(msgs, "CLI enrichment completed") {
		t.Fatalf("job logs = %v", msgs)
	}
}

func TestIngestCanonicalizationFailureFallsBack(t *testing.T) {
	f := newIngestFixture(t, &fakeCaptions{result: sampleCaptions})
	f.deps.Canonicalizer = &fakeCanonicalizer{err: services.Wrap(services.ErrTimeout, "enrich", "canonicalize", "Enrichment timed out", nil)}

	job, err := f.run(t, map[string]any{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	out := decodeOutput(t, job)
	stages := out["stages"].(map[string]any)
	if stages[pipeline.StageCanonicalize] != "failed" || out["entities"] != float64(2) {
		t.Fatalf("unexpected output: %v", out)
	}
	canon := out["canonicalize"].(map[string]any)
	if !strings.Contains(canon["error"].(string), "timed out") {
		t.Fatalf("canonicalize summary = %v", canon)
	}
	if !containsMessage(logMessages(t, f.st, job.ID), "CLI enrichment failed (falling back to deterministic)") {
		t.Fatal("missing fallback warning")
	}
}

func TestIngestEnrichStepWithoutLLMRecordsFailure(t *testing.T) {
	f := newIngestFixture(t, &fakeCaptions{result: sampleCaptions})
	job, err := f.run(t, map[string]any{"steps": []string{"enrich_cli"}})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	out := decodeOutput(t, job)
	stages := out["stages"].(map[string]any)
	if stages[pipeline.StageCanonicalize] != "failed" || stages[pipeline.StageEmbeddings] != "skipped" || stages[pipeline.StageContext] != "skipped" {
		t.Fatalf("stages = %v", stages)
	}
}

func TestIngestEmbeddings(t *testing.T) {
	tests := []struct {
		name      string
		dims      int
		wantCount float64
		wantStage string
	}{
		{name: "expected dimensions", dims: config.ExpectedEmbeddingDimensions, wantCount: 1, wantStage: "succeeded"},
		{name: "wrong dimensions", dims: 16, wantCount: 0, wantStage: "failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newIngestFixture(t, &fakeCaptions{result: sampleCaptions})
			f.deps.Embedder = fakeEmbedder{dims: tt.dims}
			job, err := f.run(t, map[string]any{})
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			out := decodeOutput(t, job)
			stages := out["stages"].(map[string]any)
			if out["embeddings"] != tt.wantCount || stages[pipeline.StageEmbeddings] != tt.wantStage {
				t.Fatalf("embeddings=%v stage=%v", out["embeddings"], stages[pipeline.StageEmbeddings])
			}
			if out["embeddings_model_id"] != "fake-embed" {
				t.Fatalf("model id = %v", out["embeddings_model_id"])
			}
			if tt.wantStage == "failed" && out["embeddings_error"] == nil {
				t.Fatal("expected embeddings_error")
			}
		})
	}
}

func TestIngestContextItems(t *testing.T) {
	f := newIngestFixture(t, &fakeCaptions{result: sampleCaptions})
	wiki := &fakeWikipedia{}
	f.deps.Wikipedia = wiki

	job, err := f.run(t, map[string]any{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	out := decodeOutput(t, job)
	if out["context_items"] != float64(1) {
		t.Fatalf("context_items = %v", out["context_items"])
	}
	if len(wiki.titles) != 2 {
		t.Fatalf("lookups = %v", wiki.titles)
	}
	items, err := f.st.ListContextItems(context.Background(), f.video.ID)
	if err != nil || len(items) != 1 || items[0].Title != "Ada Lovelace" || items[0].Source != "wikipedia" {
		t.Fatalf("context items = %#v, %v", items, err)
	}
}

func TestIngestCanceledBetweenStages(t *testing.T) {
	var f *ingestFixture
	var jobID string
	captions := &fakeCaptions{result: sampleCaptions}
	captions.onCall = func() {
		if _, err := f.st.CancelJob(context.Background(), jobID); err != nil {
			t.Errorf("CancelJob: %v", err)
		}
	}
	f = newIngestFixture(t, captions)

	job := testsupport.CreateJob(t, f.st, store.JobTypeIngestVideo, map[string]any{"video_id": f.video.ID})
	jobID = job.ID
	if _, err := f.st.ClaimJob(context.Background(), job.ID); err != nil {
		t.Fatalf("ClaimJob: %v", err)
	}
	err := pipeline.NewIngest(f.cfg, f.deps).Execute(context.Background(), job)
	if !errors.Is(err, services.ErrCanceled) {
		t.Fatalf("Execute error = %v, want ErrCanceled", err)
	}
	done, _ := f.st.GetJob(context.Background(), job.ID)
	if done.Status != store.JobCanceled || done.Output != nil || done.Error != "" {
		t.Fatalf("unexpected canceled job: %#v", done)
	}
	msgs := logMessages(t, f.st, job.ID)
	if !containsMessage(msgs, "Ingest canceled") || containsMessage(msgs, "Chunks stored") {
		t.Fatalf("job logs = %v", msgs)
	}
}
