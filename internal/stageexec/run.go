package stageexec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"vidintel/internal/archive"
	"vidintel/internal/logging"
	"vidintel/internal/notifications"
	"vidintel/internal/services"
	"vidintel/internal/stage"
	"vidintel/internal/store"
)

// Heartbeater keeps a running job's heartbeat fresh. StartLoop must call
// wg.Done on return and may call cancel when the job is canceled externally.
type Heartbeater interface {
	StartLoop(ctx context.Context, wg *sync.WaitGroup, jobID string, cancel context.CancelFunc)
}

// Options controls one job execution.
type Options struct {
	Logger    *slog.Logger
	Store     *store.Store
	Notifier  notifications.Service
	Archiver  archive.Archiver
	Heartbeat Heartbeater
	Handler   stage.Handler
	// Job must already be claimed (running).
	Job *store.Job
}

// Result is the state of the job after Run.
type Result struct {
	Job      *store.Job
	Archive  *archive.Result
	Duration time.Duration
}

// Claim moves a queued job to running for a one-shot execution.
func Claim(ctx context.Context, st *store.Store, id string) (*store.Job, error) {
	job, err := st.GetJob(ctx, id)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "stageexec", "claim", "load job", err)
	}
	if job == nil {
		return nil, services.Wrap(services.ErrNotFound, "stageexec", "claim", fmt.Sprintf("job %s not found", id), nil)
	}
	if job.Status != store.JobQueued {
		return nil, services.Wrap(services.ErrValidation, "stageexec", "claim",
			fmt.Sprintf("job %s is %s; only queued jobs can run", id, job.Status), nil)
	}
	claimed, err := st.ClaimJob(ctx, id)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "stageexec", "claim", "claim job", err)
	}
	if !claimed {
		return nil, services.Wrap(services.ErrValidation, "stageexec", "claim",
			fmt.Sprintf("job %s was claimed by another worker", id), nil)
	}
	return st.GetJob(ctx, id)
}

// Run executes a claimed job and applies the bookkeeping shared by the daemon
// and one-shot runs: heartbeats, lifecycle events, a fallback failure when the
// handler returns without a terminal transition, and archiving.
func Run(ctx context.Context, opts Options) (Result, error) {
	if opts.Handler == nil {
		return Result{}, errors.New("job handler unavailable")
	}
	if opts.Store == nil {
		return Result{}, errors.New("store is required")
	}
	if opts.Job == nil {
		return Result{}, errors.New("job is required")
	}
	job := opts.Job
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	jobCtx := services.WithJobID(ctx, job.ID)
	jobCtx = services.WithJobType(jobCtx, job.Type)
	jobLogger := logging.WithContext(jobCtx, logger)
	if aware, ok := opts.Handler.(stage.LoggerAware); ok {
		aware.SetLogger(logger)
	}

	publish(jobCtx, jobLogger, opts.Notifier, notifications.EventJobStarted, Payload(job))

	start := time.Now()
	execErr := execute(jobCtx, opts)
	elapsed := time.Since(start)

	// Bookkeeping outlives a canceled run context.
	bookCtx := context.WithoutCancel(jobCtx)
	final, err := opts.Store.GetJob(bookCtx, job.ID)
	if err != nil || final == nil {
		jobLogger.Warn("job state unavailable after execution",
			logging.Error(err),
			logging.String(logging.FieldEventType, "job_state_unavailable"),
			logging.String(logging.FieldErrorHint, "check database access"),
		)
		return Result{Job: job, Duration: elapsed}, errors.Join(execErr, err)
	}

	if final.Status == store.JobRunning && ctx.Err() == nil {
		message := "job handler returned without finishing the job"
		if execErr != nil {
			message = stage.FailureMessage(execErr)
		}
		if err := opts.Store.FailJob(bookCtx, job.ID, message); err != nil {
			jobLogger.Error("failed to persist job failure", logging.Error(err))
		} else if reloaded, err := opts.Store.GetJob(bookCtx, job.ID); err == nil && reloaded != nil {
			final = reloaded
		}
	}

	result := Result{Job: final, Duration: elapsed}
	payload := Payload(final)
	payload["duration"] = elapsed.Round(time.Second).String()
	switch final.Status {
	case store.JobCompleted:
		publish(bookCtx, jobLogger, opts.Notifier, notifications.EventJobCompleted, payload)
		result.Archive = archiveJob(bookCtx, jobLogger, opts.Archiver, final)
	case store.JobFailed:
		payload["error"] = final.Error
		publish(bookCtx, jobLogger, opts.Notifier, notifications.EventJobFailed, payload)
	case store.JobCanceled:
		publish(bookCtx, jobLogger, opts.Notifier, notifications.EventJobCanceled, payload)
	default:
		jobLogger.Info("job left running for reclaim",
			logging.String(logging.FieldEventType, "job_interrupted"),
			logging.String("status", string(final.Status)),
		)
	}
	return result, execErr
}

func execute(ctx context.Context, opts Options) error {
	if opts.Heartbeat == nil {
		return opts.Handler.Execute(ctx, opts.Job)
	}
	execCtx, cancel := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go opts.Heartbeat.StartLoop(execCtx, &hbWG, opts.Job.ID, cancel)

	err := opts.Handler.Execute(execCtx, opts.Job)
	cancel()
	hbWG.Wait()
	return err
}

func archiveJob(ctx context.Context, logger *slog.Logger, archiver archive.Archiver, job *store.Job) *archive.Result {
	if archiver == nil {
		return nil
	}
	res, err := archiver.Archive(ctx, job)
	if err != nil {
		logging.WarnWithContext(ctx, logger, "job archive failed", "archive_failed",
			logging.String("backend", archiver.Name()),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check archive backend configuration"),
			logging.String(logging.FieldImpact, "job output is only available in the database"),
		)
		return nil
	}
	logger.Info("job archived",
		logging.String(logging.FieldEventType, "job_archived"),
		logging.String("backend", archiver.Name()),
		logging.String("location", res.Location),
		logging.Int64("bytes", res.Bytes),
	)
	return &res
}

func publish(ctx context.Context, logger *slog.Logger, notifier notifications.Service, event notifications.Event, payload notifications.Payload) {
	if notifier == nil {
		return
	}
	if err := notifier.Publish(ctx, event, payload); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("daemon shutting down, could not send notification", logging.String("event", string(event)))
		} else {
			logger.Debug("job notification failed", logging.String("event", string(event)), logging.Error(err))
		}
	}
}

// Payload builds the notification fields for a job.
func Payload(job *store.Job) notifications.Payload {
	payload := notifications.Payload{}
	if job == nil {
		return payload
	}
	payload["job_id"] = job.ID
	payload["job_type"] = job.Type
	var input struct {
		VideoID string `json:"video_id"`
		TraceID string `json:"trace_id"`
	}
	if len(job.Input) > 0 && json.Unmarshal(job.Input, &input) == nil {
		if v := strings.TrimSpace(input.VideoID); v != "" {
			payload["video_id"] = v
		}
		if v := strings.TrimSpace(input.TraceID); v != "" {
			payload["trace_id"] = v
		}
	}
	return payload
}
