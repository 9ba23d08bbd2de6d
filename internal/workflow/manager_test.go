package workflow_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"vidintel/internal/archive"
	"vidintel/internal/config"
	"vidintel/internal/notifications"
	"vidintel/internal/stage"
	"vidintel/internal/store"
	"vidintel/internal/testsupport"
	"vidintel/internal/transport"
	"vidintel/internal/workflow"
)

type stubHandler struct {
	name    string
	st      *store.Store
	execute func(context.Context, *store.Job) error
	health  stage.Health

	mu    sync.Mutex
	calls int
}

func newStubHandler(name string, st *store.Store) *stubHandler {
	return &stubHandler{name: name, st: st, health: stage.Healthy(name)}
}

func (s *stubHandler) Execute(ctx context.Context, job *store.Job) error {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.execute != nil {
		return s.execute(ctx, job)
	}
	return s.st.CompleteJob(ctx, job.ID, map[string]any{"handled_by": s.name})
}

func (s *stubHandler) HealthCheck(context.Context) stage.Health { return s.health }

func (s *stubHandler) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
	jobIDs []string
}

func (r *recordingNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	if id, ok := payload["job_id"].(string); ok {
		r.jobIDs = append(r.jobIDs, id)
	}
	return nil
}

func (r *recordingNotifier) Close() error { return nil }

func (r *recordingNotifier) count(event notifications.Event) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == event {
			n++
		}
	}
	return n
}

type managerFixture struct {
	cfg      *config.Config
	st       *store.Store
	tr       *transport.StoreTransport
	notifier *recordingNotifier
}

func newManagerFixture(t *testing.T, opts ...testsupport.ConfigOption) *managerFixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	st := testsupport.MustOpenStore(t, cfg)
	tr := transport.NewStoreTransport(st, 20*time.Millisecond)
	t.Cleanup(func() { tr.Close() })
	return &managerFixture{cfg: cfg, st: st, tr: tr, notifier: &recordingNotifier{}}
}

func (f *managerFixture) start(t *testing.T, handlers map[string]stage.Handler, opts ...workflow.ManagerOption) *workflow.Manager {
	t.Helper()
	opts = append([]workflow.ManagerOption{workflow.WithNotifier(f.notifier)}, opts...)
	mgr := workflow.NewManager(f.cfg, f.st, f.tr, nil, opts...)
	for jobType, h := range handlers {
		mgr.Register(jobType, h)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(mgr.Stop)
	return mgr
}

func waitForStatus(t *testing.T, st *store.Store, id string, want store.JobStatus, timeout time.Duration) *store.Job {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		job, err := st.GetJob(context.Background(), id)
		if err != nil {
			t.Fatalf("GetJob failed: %v", err)
		}
		if job != nil && job.Status == want {
			return job
		}
		if time.Now().After(deadline) {
			status := store.JobStatus("missing")
			if job != nil {
				status = job.Status
			}
			t.Fatalf("job %s status = %s, want %s", id, status, want)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestManagerProcessesJobs(t *testing.T) {
	f := newManagerFixture(t, testsupport.WithWorkers(2))
	handler := newStubHandler("detect", f.st)
	archiver := archive.NewFS(f.cfg.Archive.Dir)
	f.start(t, map[string]stage.Handler{store.JobTypeDetectChapters: handler}, workflow.WithArchiver(archiver))

	var jobs []*store.Job
	for range 3 {
		job := testsupport.CreateJob(t, f.st, store.JobTypeDetectChapters, map[string]any{"video_id": "v1"})
		if err := f.tr.Enqueue(context.Background(), job.ID); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
		jobs = append(jobs, job)
	}

	for _, job := range jobs {
		done := waitForStatus(t, f.st, job.ID, store.JobCompleted, 10*time.Second)
		if done.Progress != 100 || done.Attempts != 1 {
			t.Fatalf("job %s progress=%d attempts=%d", job.ID, done.Progress, done.Attempts)
		}
	}
	if handler.callCount() != 3 {
		t.Fatalf("handler calls = %d, want 3", handler.callCount())
	}

	deadline := time.Now().Add(5 * time.Second)
	for f.notifier.count(notifications.EventJobCompleted) < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := f.notifier.count(notifications.EventJobStarted); got != 3 {
		t.Fatalf("started notifications = %d, want 3", got)
	}
	if got := f.notifier.count(notifications.EventJobCompleted); got != 3 {
		t.Fatalf("completed notifications = %d, want 3", got)
	}

	for _, job := range jobs {
		path := filepath.Join(f.cfg.Archive.Dir, filepath.FromSlash(archive.ObjectKey(job)))
		deadline := time.Now().Add(5 * time.Second)
		for {
			if _, err := os.Stat(path); err == nil {
				break
			}
			if time.Now().After(deadline) {
				t.Fatalf("archive record missing: %s", path)
			}
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func TestManagerFailsJobWhenHandlerReturnsEarly(t *testing.T) {
	f := newManagerFixture(t)
	handler := newStubHandler("detect", f.st)
	handler.execute = func(context.Context, *store.Job) error {
		return errors.New("store unavailable")
	}
	f.start(t, map[string]stage.Handler{store.JobTypeDetectChapters: handler})

	job := testsupport.CreateJob(t, f.st, store.JobTypeDetectChapters, map[string]any{"video_id": "v1"})
	done := waitForStatus(t, f.st, job.ID, store.JobFailed, 10*time.Second)
	if done.Error != "store unavailable" {
		t.Fatalf("error = %q", done.Error)
	}
}

func TestManagerLeavesUnhandledJobsQueued(t *testing.T) {
	f := newManagerFixture(t)
	handler := newStubHandler("detect", f.st)
	f.start(t, map[string]stage.Handler{store.JobTypeDetectChapters: handler})

	voice := testsupport.CreateJob(t, f.st, store.JobTypeIngestVoice, map[string]any{"video_id": "v1"})
	detect := testsupport.CreateJob(t, f.st, store.JobTypeDetectChapters, map[string]any{"video_id": "v1"})
	waitForStatus(t, f.st, detect.ID, store.JobCompleted, 10*time.Second)

	time.Sleep(100 * time.Millisecond)
	got, err := f.st.GetJob(context.Background(), voice.ID)
	if err != nil || got.Status != store.JobQueued || got.Attempts != 0 {
		t.Fatalf("voice job = %#v, %v", got, err)
	}
}

func TestManagerDeliversHandledJobsBehindUnhandledBacklog(t *testing.T) {
	f := newManagerFixture(t)
	for range 40 {
		testsupport.CreateJob(t, f.st, store.JobTypeIngestVoice, map[string]any{"video_id": "v1"})
	}
	ingest := testsupport.CreateJob(t, f.st, store.JobTypeIngestVideo, map[string]any{"video_id": "v1"})

	handler := newStubHandler("ingest", f.st)
	f.start(t, map[string]stage.Handler{store.JobTypeIngestVideo: handler})

	waitForStatus(t, f.st, ingest.ID, store.JobCompleted, 5*time.Second)
	if handler.callCount() != 1 {
		t.Fatalf("handler calls = %d, want 1", handler.callCount())
	}
	stats, err := f.st.Stats(context.Background())
	if err != nil || stats[store.JobQueued] != 40 {
		t.Fatalf("queued voice jobs = %v, %v", stats, err)
	}
}

func TestManagerCancelsRunningJob(t *testing.T) {
	f := newManagerFixture(t)
	started := make(chan struct{})
	handler := newStubHandler("ingest", f.st)
	handler.execute = func(ctx context.Context, job *store.Job) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}
	f.start(t, map[string]stage.Handler{store.JobTypeIngestVideo: handler})

	job := testsupport.CreateJob(t, f.st, store.JobTypeIngestVideo, map[string]any{"video_id": "v1"})
	select {
	case <-started:
	case <-time.After(10 * time.Second):
		t.Fatal("handler never started")
	}
	if ok, err := f.st.CancelJob(context.Background(), job.ID); err != nil || !ok {
		t.Fatalf("CancelJob = %v, %v", ok, err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for f.notifier.count(notifications.EventJobCanceled) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("cancel notification not published")
		}
		time.Sleep(20 * time.Millisecond)
	}
	waitForStatus(t, f.st, job.ID, store.JobCanceled, time.Second)
}

func TestManagerReclaimsStaleJobs(t *testing.T) {
	f := newManagerFixture(t)
	f.cfg.Workflow.HeartbeatTimeout = 1
	ctx := context.Background()

	job := testsupport.CreateJob(t, f.st, store.JobTypeDetectChapters, map[string]any{"video_id": "v1"})
	// Simulate a worker that died after claiming the job.
	if ok, err := f.st.ClaimJob(ctx, job.ID); err != nil || !ok {
		t.Fatalf("ClaimJob = %v, %v", ok, err)
	}

	handler := newStubHandler("detect", f.st)
	f.start(t, map[string]stage.Handler{store.JobTypeDetectChapters: handler})

	done := waitForStatus(t, f.st, job.ID, store.JobCompleted, 15*time.Second)
	if done.Attempts != 2 {
		t.Fatalf("attempts = %d, want 2", done.Attempts)
	}
	if f.notifier.count(notifications.EventJobReclaimed) != 1 {
		t.Fatalf("reclaim notifications = %d, want 1", f.notifier.count(notifications.EventJobReclaimed))
	}
}

func TestManagerStartValidation(t *testing.T) {
	f := newManagerFixture(t)
	mgr := workflow.NewManager(f.cfg, f.st, f.tr, nil)
	if err := mgr.Start(context.Background()); err == nil {
		t.Fatal("expected error without handlers")
	}

	mgr.Register(store.JobTypeDetectChapters, newStubHandler("detect", f.st))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer mgr.Stop()
	if err := mgr.Start(ctx); err == nil {
		t.Fatal("expected error on second start")
	}
}

func TestManagerStatus(t *testing.T) {
	f := newManagerFixture(t, testsupport.WithWorkers(3))
	ready := newStubHandler("detect", f.st)
	broken := newStubHandler("ingest", f.st)
	broken.health = stage.Unhealthy("ingest_video", "no transcript provider configured")
	mgr := f.start(t, map[string]stage.Handler{
		store.JobTypeDetectChapters: ready,
		store.JobTypeIngestVideo:    broken,
	})

	testsupport.CreateJob(t, f.st, store.JobTypeIngestVoice, nil)
	status := mgr.Status(context.Background())
	if !status.Running || status.Workers != 3 || status.Transport != config.TransportStore {
		t.Fatalf("status = %#v", status)
	}
	if status.JobStats[store.JobQueued] != 1 {
		t.Fatalf("job stats = %#v", status.JobStats)
	}
	if !status.StageHealth[store.JobTypeDetectChapters].Ready || status.StageHealth[store.JobTypeIngestVideo].Ready {
		t.Fatalf("stage health = %#v", status.StageHealth)
	}

	mgr.Stop()
	if mgr.Status(context.Background()).Running {
		t.Fatal("expected stopped manager")
	}
}
