package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"vidintel/internal/api"
	"vidintel/internal/logging"
	"vidintel/internal/services"
	"vidintel/internal/store"
	"vidintel/internal/testsupport"
)

type recordingEnqueuer struct {
	ids []string
	err error
}

func (r *recordingEnqueuer) Enqueue(_ context.Context, id string) error {
	r.ids = append(r.ids, id)
	return r.err
}

func newService(t *testing.T) (*api.JobService, *store.Store, *recordingEnqueuer) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	enq := &recordingEnqueuer{}
	return api.NewJobService(st, enq), st, enq
}

func TestCreateJobBuildsTypedInput(t *testing.T) {
	svc, _, enq := newService(t)
	ctx := context.Background()
	empty := []string{}

	tests := []struct {
		name    string
		req     api.CreateJobRequest
		wantKey string
		want    any
	}{
		{
			name:    "ingest with explicit empty steps",
			req:     api.CreateJobRequest{Type: store.JobTypeIngestVideo, VideoID: " v1 ", Steps: &empty, TraceID: "tr"},
			wantKey: "steps",
			want:    []any{},
		},
		{
			name:    "detect with force",
			req:     api.CreateJobRequest{Type: store.JobTypeDetectChapters, VideoID: "v1", Force: true},
			wantKey: "force",
			want:    true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job, err := svc.Create(ctx, tt.req)
			if err != nil {
				t.Fatalf("Create: %v", err)
			}
			if job.Status != string(store.JobQueued) || job.Type != tt.req.Type {
				t.Fatalf("job = %#v", job)
			}
			var input map[string]any
			if err := json.Unmarshal(job.Input, &input); err != nil {
				t.Fatalf("decode input: %v", err)
			}
			if input["video_id"] != "v1" {
				t.Fatalf("video_id = %v", input["video_id"])
			}
			got, _ := json.Marshal(input[tt.wantKey])
			want, _ := json.Marshal(tt.want)
			if string(got) != string(want) {
				t.Fatalf("%s = %s, want %s", tt.wantKey, got, want)
			}
			if enq.ids[len(enq.ids)-1] != job.ID {
				t.Fatalf("enqueued = %v", enq.ids)
			}
		})
	}
}

func TestCreateJobValidation(t *testing.T) {
	svc, _, enq := newService(t)
	for _, req := range []api.CreateJobRequest{
		{Type: store.JobTypeIngestVideo},
		{Type: store.JobTypeIngestVoice, VideoID: "v1"},
		{Type: "transcode", VideoID: "v1"},
	} {
		if _, err := svc.Create(context.Background(), req); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("Create(%+v) err = %v, want validation", req, err)
		}
	}
	if len(enq.ids) != 0 {
		t.Fatalf("unexpected enqueues: %v", enq.ids)
	}
}

func TestCreateJobReportsAnnounceFailure(t *testing.T) {
	svc, st, enq := newService(t)
	enq.err = errors.New("redis down")
	job, err := svc.Create(context.Background(), api.CreateJobRequest{Type: store.JobTypeDetectChapters, VideoID: "v1"})
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("err = %v, want transient", err)
	}
	stored, _ := st.GetJob(context.Background(), job.ID)
	if stored == nil || stored.Status != store.JobQueued {
		t.Fatalf("expected persisted queued job, got %#v", stored)
	}
}

func TestCancelRetryAndLogs(t *testing.T) {
	svc, st, enq := newService(t)
	ctx := context.Background()
	job := testsupport.CreateJob(t, st, store.JobTypeDetectChapters, map[string]any{"video_id": "v1"})

	res, err := svc.Cancel(ctx, job.ID)
	if err != nil || !res.Changed || res.Status != string(store.JobCanceled) {
		t.Fatalf("Cancel = %#v, %v", res, err)
	}
	res, err = svc.Cancel(ctx, job.ID)
	if err != nil || res.Changed {
		t.Fatalf("second Cancel = %#v, %v", res, err)
	}
	res, err = svc.Retry(ctx, job.ID)
	if err != nil || !res.Changed || res.Status != string(store.JobQueued) {
		t.Fatalf("Retry = %#v, %v", res, err)
	}
	if len(enq.ids) != 1 || enq.ids[0] != job.ID {
		t.Fatalf("enqueued = %v", enq.ids)
	}

	if _, err := svc.Cancel(ctx, "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("missing cancel err = %v", err)
	}

	for _, msg := range []string{"one", "two", "three"} {
		if err := st.AppendJobLog(ctx, logEntry(job.ID, msg)); err != nil {
			t.Fatalf("AppendJobLog: %v", err)
		}
	}
	page, err := svc.Logs(ctx, job.ID, 0, 2)
	if err != nil || len(page.Logs) != 2 || page.Logs[0].Message != "one" {
		t.Fatalf("first page = %#v, %v", page, err)
	}
	page, err = svc.Logs(ctx, job.ID, page.Next, 2)
	if err != nil || len(page.Logs) != 1 || page.Logs[0].Message != "three" {
		t.Fatalf("second page = %#v, %v", page, err)
	}
	empty, err := svc.Logs(ctx, job.ID, page.Next, 2)
	if err != nil || len(empty.Logs) != 0 || empty.Next != page.Next {
		t.Fatalf("empty page = %#v, %v", empty, err)
	}
}

func TestListRejectsUnknownStatus(t *testing.T) {
	svc, st, _ := newService(t)
	testsupport.CreateJob(t, st, store.JobTypeDetectChapters, map[string]any{"video_id": "v1"})
	jobs, err := svc.List(context.Background(), "queued", "")
	if err != nil || len(jobs) != 1 {
		t.Fatalf("List = %d, %v", len(jobs), err)
	}
	if _, err := svc.List(context.Background(), "paused"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("List(paused) err = %v", err)
	}
}

func TestEntitiesAndChaptersViews(t *testing.T) {
	svc, st, _ := newService(t)
	ctx := context.Background()
	video := testsupport.SeedVideo(t, st, "views01")
	if _, err := st.ReplaceVideoChapters(ctx, video.ID, "", "signals", []store.ChapterInput{
		{StartMs: 0, EndMs: 1000, Title: "Intro"},
	}); err != nil {
		t.Fatalf("ReplaceVideoChapters: %v", err)
	}

	chapters, err := svc.Chapters(ctx, video.ID, "")
	if err != nil || len(chapters.Chapters) != 1 || chapters.Chapters[0].Title != "Intro" {
		t.Fatalf("Chapters = %#v, %v", chapters, err)
	}
	entities, err := svc.Entities(ctx, video.ID)
	if err != nil || entities.Entities == nil || entities.Tags == nil {
		t.Fatalf("Entities = %#v, %v", entities, err)
	}
	if _, err := svc.Chapters(ctx, "nope", ""); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("missing video err = %v", err)
	}
}

func logEntry(jobID, msg string) logging.JobLogEntry {
	return logging.JobLogEntry{JobID: jobID, Level: "info", Message: msg}
}
