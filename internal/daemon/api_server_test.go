package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"vidintel/internal/api"
	"vidintel/internal/config"
	"vidintel/internal/store"
	"vidintel/internal/testsupport"
	"vidintel/internal/transport"
	"vidintel/internal/workflow"
)

type apiFixture struct {
	cfg    *config.Config
	st     *store.Store
	daemon *Daemon
}

func newAPIFixture(t *testing.T, token string) *apiFixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIToken = token
	st := testsupport.MustOpenStore(t, cfg)
	tr := transport.NewStoreTransport(st, 0)
	t.Cleanup(func() { tr.Close() })
	mgr := workflow.NewManager(cfg, st, tr, nil)
	d, err := New(cfg, st, nil, mgr, api.NewJobService(st, nil))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if d.api == nil {
		t.Fatal("expected api server for configured bind")
	}
	return &apiFixture{cfg: cfg, st: st, daemon: d}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.daemon.api.engine.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func TestAPIServerAuth(t *testing.T) {
	f := newAPIFixture(t, "secret")

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{name: "missing token", want: http.StatusUnauthorized},
		{name: "wrong token", token: "nope", want: http.StatusUnauthorized},
		{name: "valid token", token: "secret", want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, http.MethodGet, "/api/jobs", nil, tt.token)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestAPIServerJobLifecycle(t *testing.T) {
	f := newAPIFixture(t, "")
	video := testsupport.SeedVideo(t, f.st, "api01")

	w := f.do(t, http.MethodPost, "/api/jobs", api.CreateJobRequest{
		Type:    store.JobTypeDetectChapters,
		VideoID: video.ID,
		TraceID: "trace-1",
	}, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d (%s)", w.Code, w.Body.String())
	}
	if w.Header().Get(requestIDHeader) == "" {
		t.Fatal("expected request id header")
	}
	created := decodeBody[api.JobResponse](t, w).Job
	if created.ID == "" || created.Status != string(store.JobQueued) {
		t.Fatalf("created job = %#v", created)
	}

	w = f.do(t, http.MethodGet, "/api/jobs?status=queued", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	if jobs := decodeBody[api.JobListResponse](t, w).Jobs; len(jobs) != 1 || jobs[0].ID != created.ID {
		t.Fatalf("listed jobs = %#v", jobs)
	}

	w = f.do(t, http.MethodGet, "/api/jobs/"+created.ID, nil, "")
	if w.Code != http.StatusOK || decodeBody[api.JobResponse](t, w).Job.Type != store.JobTypeDetectChapters {
		t.Fatalf("describe = %d %s", w.Code, w.Body.String())
	}

	w = f.do(t, http.MethodPost, "/api/jobs/"+created.ID+"/cancel", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("cancel status = %d", w.Code)
	}
	if action := decodeBody[api.ActionResponse](t, w); !action.Changed || action.Status != string(store.JobCanceled) {
		t.Fatalf("cancel = %#v", action)
	}

	w = f.do(t, http.MethodPost, "/api/jobs/"+created.ID+"/retry", nil, "")
	if action := decodeBody[api.ActionResponse](t, w); w.Code != http.StatusOK || !action.Changed {
		t.Fatalf("retry = %d %#v", w.Code, action)
	}

	w = f.do(t, http.MethodGet, "/api/jobs/"+created.ID+"/logs?after=0&limit=10", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("logs status = %d (%s)", w.Code, w.Body.String())
	}
}

func TestAPIServerErrors(t *testing.T) {
	f := newAPIFixture(t, "")

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{name: "unknown job", method: http.MethodGet, path: "/api/jobs/missing", want: http.StatusNotFound},
		{name: "unknown status filter", method: http.MethodGet, path: "/api/jobs?status=bogus", want: http.StatusBadRequest},
		{name: "missing video id", method: http.MethodPost, path: "/api/jobs", body: api.CreateJobRequest{Type: store.JobTypeIngestVideo}, want: http.StatusBadRequest},
		{name: "bad logs cursor", method: http.MethodGet, path: "/api/jobs/missing/logs?after=abc", want: http.StatusBadRequest},
		{name: "unknown video", method: http.MethodGet, path: "/api/videos/missing/entities", want: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, tt.method, tt.path, tt.body, "")
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
			if body := decodeBody[map[string]string](t, w); body["error"] == "" {
				t.Fatalf("expected error message, got %s", w.Body.String())
			}
		})
	}
}

func TestAPIServerVideoViews(t *testing.T) {
	f := newAPIFixture(t, "")
	video := testsupport.SeedVideo(t, f.st, "api02")

	w := f.do(t, http.MethodGet, "/api/videos/"+video.ID+"/entities", nil, "")
	if w.Code != http.StatusOK || decodeBody[api.EntitiesResponse](t, w).VideoID != video.ID {
		t.Fatalf("entities = %d %s", w.Code, w.Body.String())
	}
	w = f.do(t, http.MethodGet, "/api/videos/"+video.ID+"/chapters?source=signals", nil, "")
	if w.Code != http.StatusOK || decodeBody[api.ChaptersResponse](t, w).VideoID != video.ID {
		t.Fatalf("chapters = %d %s", w.Code, w.Body.String())
	}
}

func TestAPIServerStatus(t *testing.T) {
	f := newAPIFixture(t, "")
	testsupport.CreateJob(t, f.st, store.JobTypeIngestVideo, map[string]any{"video_id": "v1"})

	w := f.do(t, http.MethodGet, "/api/status", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status code = %d", w.Code)
	}
	status := decodeBody[api.DaemonStatus](t, w)
	if status.Running || status.PID == 0 || status.DatabasePath != f.cfg.DatabasePath() {
		t.Fatalf("status = %#v", status)
	}
	if status.Workflow.JobStats[string(store.JobQueued)] != 1 {
		t.Fatalf("job stats = %#v", status.Workflow.JobStats)
	}
	if len(status.Dependencies) == 0 {
		t.Fatal("expected dependency report")
	}
}

func TestAPIServerDisabledWithoutBind(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = ""
	if srv := newAPIServer(cfg, &Daemon{}, nil); srv != nil {
		t.Fatal("expected nil api server")
	}
	var srv *apiServer
	if err := srv.start(context.Background()); err != nil || srv.address() != "" {
		t.Fatalf("nil server start = %v addr=%q", err, srv.address())
	}
	srv.stop()
}
