package stageexec_test

import (
	"context"
	"errors"
	"testing"

	"vidintel/internal/notifications"
	"vidintel/internal/services"
	"vidintel/internal/stage"
	"vidintel/internal/stageexec"
	"vidintel/internal/store"
	"vidintel/internal/testsupport"
)

type funcHandler func(context.Context, *store.Job) error

func (f funcHandler) Execute(ctx context.Context, job *store.Job) error { return f(ctx, job) }
func (funcHandler) HealthCheck(context.Context) stage.Health           { return stage.Healthy("func") }

type eventLog struct{ events []notifications.Event }

func (e *eventLog) Publish(_ context.Context, event notifications.Event, _ notifications.Payload) error {
	e.events = append(e.events, event)
	return nil
}

func (e *eventLog) Close() error { return nil }

func TestClaimRequiresQueuedJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if _, err := stageexec.Claim(ctx, st, "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("missing job err = %v", err)
	}
	job := testsupport.CreateJob(t, st, store.JobTypeDetectChapters, map[string]any{"video_id": "v"})
	claimed, err := stageexec.Claim(ctx, st, job.ID)
	if err != nil || claimed.Status != store.JobRunning {
		t.Fatalf("Claim = %#v, %v", claimed, err)
	}
	if _, err := stageexec.Claim(ctx, st, job.ID); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("second claim err = %v", err)
	}
}

func TestRunOutcomes(t *testing.T) {
	tests := []struct {
		name      string
		handler   func(*store.Store) funcHandler
		wantErr   bool
		want      store.JobStatus
		wantEvent notifications.Event
	}{
		{
			name: "completed",
			handler: func(st *store.Store) funcHandler {
				return func(ctx context.Context, job *store.Job) error {
					return st.CompleteJob(ctx, job.ID, map[string]int{"chapters": 1})
				}
			},
			want:      store.JobCompleted,
			wantEvent: notifications.EventJobCompleted,
		},
		{
			name: "handler error without transition",
			handler: func(*store.Store) funcHandler {
				return func(context.Context, *store.Job) error {
					return services.Wrap(services.ErrValidation, "detect", "decode", "bad input", nil)
				}
			},
			wantErr:   true,
			want:      store.JobFailed,
			wantEvent: notifications.EventJobFailed,
		},
		{
			name: "nil error without transition",
			handler: func(*store.Store) funcHandler {
				return func(context.Context, *store.Job) error { return nil }
			},
			want:      store.JobFailed,
			wantEvent: notifications.EventJobFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testsupport.NewConfig(t)
			st := testsupport.MustOpenStore(t, cfg)
			ctx := context.Background()
			job := testsupport.CreateJob(t, st, store.JobTypeDetectChapters, map[string]any{"video_id": "v", "trace_id": "tr"})
			claimed, err := stageexec.Claim(ctx, st, job.ID)
			if err != nil {
				t.Fatalf("Claim: %v", err)
			}
			events := &eventLog{}
			res, err := stageexec.Run(ctx, stageexec.Options{Store: st, Notifier: events, Handler: tt.handler(st), Job: claimed})
			if (err != nil) != tt.wantErr {
				t.Fatalf("Run err = %v, wantErr %v", err, tt.wantErr)
			}
			if res.Job == nil || res.Job.Status != tt.want {
				t.Fatalf("job = %#v, want %s", res.Job, tt.want)
			}
			if len(events.events) != 2 || events.events[0] != notifications.EventJobStarted || events.events[1] != tt.wantEvent {
				t.Fatalf("events = %v", events.events)
			}
		})
	}
}

func TestPayloadReadsJobInput(t *testing.T) {
	job := &store.Job{ID: "j1", Type: store.JobTypeIngestVideo, Input: []byte(`{"video_id":"v9","trace_id":" t1 "}`)}
	payload := stageexec.Payload(job)
	if payload["job_id"] != "j1" || payload["video_id"] != "v9" || payload["trace_id"] != "t1" {
		t.Fatalf("payload = %#v", payload)
	}
	if len(stageexec.Payload(nil)) != 0 {
		t.Fatal("expected empty payload for nil job")
	}
}
