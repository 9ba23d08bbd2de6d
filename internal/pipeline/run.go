package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"vidintel/internal/logging"
	"vidintel/internal/services"
	"vidintel/internal/stage"
	"vidintel/internal/store"
)

const videoNotFoundMessage = "Video not found"

// jobRun carries the lifecycle plumbing shared by the job handlers. label
// prefixes the terminal log lines ("Ingest failed", ...).
type jobRun struct {
	st     *store.Store
	job    *store.Job
	logger *slog.Logger
	label  string
	video  *store.Video
}

func newJobRun(ctx context.Context, st *store.Store, job *store.Job, logger *slog.Logger, label string) jobRun {
	return jobRun{
		st:     st,
		job:    job,
		logger: logging.WithJobLog(logging.WithContext(ctx, logger), st, job.ID),
		label:  label,
	}
}

func (r *jobRun) fetchVideo(ctx context.Context, videoID string) error {
	video, err := r.st.GetVideo(ctx, videoID)
	if err != nil {
		return services.Wrap(services.ErrTransient, r.job.Type, "load video", "video lookup failed", err)
	}
	if video == nil {
		return services.Wrap(services.ErrNotFound, r.job.Type, "load video", videoNotFoundMessage, nil)
	}
	r.video = video
	return nil
}

// checkpoint stops the run when the job was canceled or the worker is
// shutting down.
func (r *jobRun) checkpoint(ctx context.Context) error {
	status, err := r.st.JobStatus(context.WithoutCancel(ctx), r.job.ID)
	if err == nil && status == store.JobCanceled {
		return services.Wrap(services.ErrCanceled, r.job.Type, "checkpoint", "job canceled", nil)
	}
	return ctx.Err()
}

func (r *jobRun) progress(ctx context.Context, pct int) {
	if err := r.st.UpdateProgress(context.WithoutCancel(ctx), r.job.ID, pct); err != nil {
		logging.WarnWithContext(ctx, r.logger, "progress update failed", "progress_update_failed",
			logging.Int("progress", pct),
			logging.Error(err),
			logging.String(logging.FieldImpact, "job progress may lag"),
		)
	}
}

// finish writes the output and terminal status in one update. A job
// canceled while the last stage ran keeps its canceled status.
func (r *jobRun) finish(ctx context.Context, output any) error {
	bg := context.WithoutCancel(ctx)
	if err := r.st.CompleteJob(bg, r.job.ID, output); err != nil {
		return services.Wrap(services.ErrTransient, r.job.Type, "complete", "store job output", err)
	}
	if status, err := r.st.JobStatus(bg, r.job.ID); err == nil && status == store.JobCanceled {
		return services.Wrap(services.ErrCanceled, r.job.Type, "complete", "job canceled", nil)
	}
	return nil
}

// fail records the terminal state for err. Cancellation leaves the row
// canceled; a worker shutdown leaves it running for the reclaimer.
func (r *jobRun) fail(ctx context.Context, err error) error {
	bg := context.WithoutCancel(ctx)
	status, statusErr := r.st.JobStatus(bg, r.job.ID)
	if errors.Is(err, services.ErrCanceled) || (statusErr == nil && status == store.JobCanceled) {
		r.logger.InfoContext(ctx, r.label+" canceled", logging.String(logging.FieldEventType, "job_canceled"))
		if errors.Is(err, services.ErrCanceled) {
			return err
		}
		return services.Wrap(services.ErrCanceled, r.job.Type, "execute", "job canceled", err)
	}
	if ctx.Err() != nil {
		logging.WarnWithContext(ctx, r.logger, r.label+" interrupted", "job_interrupted",
			logging.Error(err),
			logging.String(logging.FieldImpact, "job stays running until reclaimed"),
			logging.String(logging.FieldErrorHint, "the job is requeued after the heartbeat timeout"),
		)
		return ctx.Err()
	}

	message := stage.FailureMessage(err)
	if errors.Is(err, services.ErrNotFound) && r.video == nil {
		message = videoNotFoundMessage
	}
	if failErr := r.st.FailJob(bg, r.job.ID, message); failErr != nil {
		err = errors.Join(err, fmt.Errorf("record failure: %w", failErr))
	}
	logging.ErrorWithContext(ctx, r.logger, r.label+" failed", "job_failed", logging.ErrorDetails(err)...)
	return err
}
