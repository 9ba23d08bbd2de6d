package queueaccess_test

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"vidintel/internal/api"
	"vidintel/internal/queueaccess"
	"vidintel/internal/services"
	"vidintel/internal/store"
	"vidintel/internal/testsupport"
)

func TestHTTPAccessRequests(t *testing.T) {
	var (
		mu       sync.Mutex
		seen     []string
		authSeen string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Method+" "+r.URL.RequestURI())
		authSeen = r.Header.Get("Authorization")
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/jobs":
			if r.Method == http.MethodPost {
				var req api.CreateJobRequest
				_ = json.NewDecoder(r.Body).Decode(&req)
				w.WriteHeader(http.StatusCreated)
				_ = json.NewEncoder(w).Encode(api.JobResponse{Job: api.Job{ID: "j1", Type: req.Type, Status: "queued"}})
				return
			}
			_ = json.NewEncoder(w).Encode(api.JobListResponse{Jobs: []api.Job{{ID: "j1"}}})
		case "/api/jobs/j1/logs":
			_ = json.NewEncoder(w).Encode(api.JobLogsResponse{Logs: []api.JobLog{{ID: 8, Message: "hi"}}, Next: 8})
		case "/api/jobs/missing":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"job missing not found"}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	access, err := queueaccess.NewHTTPAccess(srv.URL, "tok")
	if err != nil {
		t.Fatalf("NewHTTPAccess: %v", err)
	}
	ctx := context.Background()

	job, err := access.Create(ctx, api.CreateJobRequest{Type: store.JobTypeIngestVideo, VideoID: "v1"})
	if err != nil || job.ID != "j1" || job.Type != store.JobTypeIngestVideo {
		t.Fatalf("Create = %#v, %v", job, err)
	}
	if jobs, err := access.List(ctx, []string{"queued", "failed"}); err != nil || len(jobs) != 1 {
		t.Fatalf("List = %#v, %v", jobs, err)
	}
	logs, err := access.Logs(ctx, "j1", 7, 50)
	if err != nil || logs.Next != 8 || len(logs.Logs) != 1 {
		t.Fatalf("Logs = %#v, %v", logs, err)
	}

	_, err = access.Describe(ctx, "missing")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("Describe missing err = %v", err)
	}
	if msg := services.Details(err).Message; !strings.Contains(msg, "job missing not found") {
		t.Fatalf("error message = %q", msg)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{
		"POST /api/jobs",
		"GET /api/jobs?status=queued%2Cfailed",
		"GET /api/jobs/j1/logs?after=7&limit=50",
		"GET /api/jobs/missing",
	}
	if len(seen) != len(want) {
		t.Fatalf("requests = %v", seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("request %d = %q, want %q", i, seen[i], want[i])
		}
	}
	if authSeen != "Bearer tok" {
		t.Fatalf("authorization = %q", authSeen)
	}
}

func TestNewHTTPAccessEmptyBind(t *testing.T) {
	if _, err := queueaccess.NewHTTPAccess(" ", ""); !queueaccess.IsAPIUnavailable(err) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}

func TestIsAPIUnavailable(t *testing.T) {
	if !queueaccess.IsAPIUnavailable(queueaccess.ErrAPIUnavailable) {
		t.Fatal("expected ErrAPIUnavailable to be unavailable")
	}
	if queueaccess.IsAPIUnavailable(errors.New("other")) {
		t.Fatal("did not expect generic error to be unavailable")
	}
}

func closedAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}

type recordingEnqueuer struct {
	ids    []string
	closed bool
}

func (r *recordingEnqueuer) Enqueue(_ context.Context, id string) error {
	r.ids = append(r.ids, id)
	return nil
}

func (r *recordingEnqueuer) Close() error {
	r.closed = true
	return nil
}

func TestOpenWithFallbackUsesStoreWhenDaemonDown(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	remote, err := queueaccess.NewHTTPAccess(closedAddr(t), "")
	if err != nil {
		t.Fatalf("NewHTTPAccess: %v", err)
	}
	enq := &recordingEnqueuer{}
	session, err := queueaccess.OpenWithFallback(context.Background(), remote,
		func() (*store.Store, error) { return store.Open(cfg) },
		func() (queueaccess.EnqueueCloser, error) { return enq, nil },
	)
	if err != nil {
		t.Fatalf("OpenWithFallback: %v", err)
	}
	if session.Remote {
		t.Fatal("expected store-backed session")
	}

	ctx := context.Background()
	job, err := session.Access.Create(ctx, api.CreateJobRequest{Type: store.JobTypeDetectChapters, VideoID: "v1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(enq.ids) != 1 || enq.ids[0] != job.ID {
		t.Fatalf("enqueued = %v", enq.ids)
	}
	stats, err := session.Access.Stats(ctx)
	if err != nil || stats[string(store.JobQueued)] != 1 {
		t.Fatalf("Stats = %v, %v", stats, err)
	}
	if err := session.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !enq.closed {
		t.Fatal("expected enqueuer closed with session")
	}
}

func TestOpenWithFallbackPrefersDaemon(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(api.DaemonStatus{Running: true})
	}))
	defer srv.Close()

	remote, err := queueaccess.NewHTTPAccess(srv.URL, "")
	if err != nil {
		t.Fatalf("NewHTTPAccess: %v", err)
	}
	opened := false
	session, err := queueaccess.OpenWithFallback(context.Background(), remote,
		func() (*store.Store, error) { opened = true; return nil, errors.New("unexpected") },
		nil,
	)
	if err != nil {
		t.Fatalf("OpenWithFallback: %v", err)
	}
	if !session.Remote || opened {
		t.Fatalf("session remote=%v store opened=%v", session.Remote, opened)
	}
}

func TestOpenWithFallbackSurfacesAuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
	}))
	defer srv.Close()

	remote, _ := queueaccess.NewHTTPAccess(srv.URL, "wrong")
	_, err := queueaccess.OpenWithFallback(context.Background(), remote, nil, nil)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("err = %v, want configuration error", err)
	}
}
