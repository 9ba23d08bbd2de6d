package logs_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"vidintel/internal/api"
	"vidintel/internal/logs"
)

type fakeSource struct {
	mu      sync.Mutex
	entries []api.JobLog
	status  string
	// onDescribe runs on each Describe call to simulate job progress.
	onDescribe func(*fakeSource)
}

func (f *fakeSource) Describe(context.Context, string) (api.Job, error) {
	f.mu.Lock()
	hook := f.onDescribe
	f.mu.Unlock()
	if hook != nil {
		hook(f)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return api.Job{ID: "j1", Status: f.status}, nil
}

func (f *fakeSource) Logs(_ context.Context, _ string, after int64, limit int) (api.JobLogsResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []api.JobLog
	for _, e := range f.entries {
		if e.ID > after && len(out) < limit {
			out = append(out, e)
		}
	}
	return api.JobLogsResponse{Logs: out}, nil
}

func (f *fakeSource) add(msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, api.JobLog{ID: int64(len(f.entries) + 1), Message: msg})
}

func collect(got *[]string) func(api.JobLog) error {
	return func(e api.JobLog) error {
		*got = append(*got, e.Message)
		return nil
	}
}

func TestStreamPagesWithoutFollow(t *testing.T) {
	src := &fakeSource{status: "running"}
	for _, msg := range []string{"a", "b", "c", "d", "e"} {
		src.add(msg)
	}

	var got []string
	last, err := logs.Stream(context.Background(), src, "j1", logs.Options{After: 1, PageSize: 2}, collect(&got))
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if last != 5 || len(got) != 4 || got[0] != "b" {
		t.Fatalf("last=%d got=%v", last, got)
	}
}

func TestStreamFollowsUntilTerminal(t *testing.T) {
	src := &fakeSource{status: "running"}
	src.add("started")
	calls := 0
	src.onDescribe = func(f *fakeSource) {
		calls++
		switch calls {
		case 1:
			f.add("stage transcript")
		case 2:
			f.add("job completed")
			f.mu.Lock()
			f.status = "completed"
			f.mu.Unlock()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var got []string
	if _, err := logs.Stream(ctx, src, "j1", logs.Options{Follow: true, Interval: time.Millisecond}, collect(&got)); err != nil {
		t.Fatalf("Stream: %v", err)
	}
	want := []string{"started", "stage transcript", "job completed"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestStreamStopsOnCancel(t *testing.T) {
	src := &fakeSource{status: "running"}
	ctx, cancel := context.WithCancel(context.Background())
	src.onDescribe = func(*fakeSource) { cancel() }

	_, err := logs.Stream(ctx, src, "j1", logs.Options{Follow: true, Interval: time.Hour}, func(api.JobLog) error { return nil })
	if err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestTerminal(t *testing.T) {
	for status, want := range map[string]bool{
		"queued":    false,
		"running":   false,
		"completed": true,
		"failed":    true,
		"canceled":  true,
	} {
		if got := logs.Terminal(status); got != want {
			t.Fatalf("Terminal(%q) = %v", status, got)
		}
	}
}
