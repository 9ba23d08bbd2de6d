package api

import (
	"context"
	"fmt"
	"strings"

	"vidintel/internal/pipeline"
	"vidintel/internal/services"
	"vidintel/internal/store"
)

const (
	defaultLogLimit = 200
	maxLogLimit     = 1000
)

// Enqueuer announces persisted jobs to workers.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobID string) error
}

// JobService exposes job and result operations returning API DTOs.
type JobService struct {
	store    *store.Store
	enqueuer Enqueuer
}

// NewJobService constructs a JobService. A nil enqueuer leaves new jobs for
// the polling transport to find.
func NewJobService(st *store.Store, enqueuer Enqueuer) *JobService {
	if st == nil {
		return nil
	}
	return &JobService{store: st, enqueuer: enqueuer}
}

// List returns jobs filtered by status names.
func (s *JobService) List(ctx context.Context, statuses ...string) ([]Job, error) {
	var filter []store.JobStatus
	for _, value := range statuses {
		value = strings.ToLower(strings.TrimSpace(value))
		if value == "" {
			continue
		}
		status := store.JobStatus(value)
		if !validStatus(status) {
			return nil, services.Wrap(services.ErrValidation, "api", "list jobs", fmt.Sprintf("unknown status %q", value), nil)
		}
		filter = append(filter, status)
	}
	jobs, err := s.store.ListJobs(ctx, filter...)
	if err != nil {
		return nil, err
	}
	return FromJobs(jobs), nil
}

// Describe fetches a single job.
func (s *JobService) Describe(ctx context.Context, id string) (Job, error) {
	job, err := s.load(ctx, id)
	if err != nil {
		return Job{}, err
	}
	return FromJob(job), nil
}

// Logs pages a job's log entries after the given id.
func (s *JobService) Logs(ctx context.Context, id string, after int64, limit int) (JobLogsResponse, error) {
	if _, err := s.load(ctx, id); err != nil {
		return JobLogsResponse{}, err
	}
	if limit <= 0 {
		limit = defaultLogLimit
	}
	limit = min(limit, maxLogLimit)
	rows, err := s.store.ListJobLogs(ctx, id, after, limit)
	if err != nil {
		return JobLogsResponse{}, err
	}
	logs, next := FromJobLogs(rows, after)
	return JobLogsResponse{Logs: logs, Next: next}, nil
}

// Create persists a queued job and announces it.
func (s *JobService) Create(ctx context.Context, req CreateJobRequest) (Job, error) {
	videoID := strings.TrimSpace(req.VideoID)
	if videoID == "" {
		return Job{}, services.Wrap(services.ErrValidation, "api", "create job", "video_id is required", nil)
	}
	traceID := strings.TrimSpace(req.TraceID)

	var input any
	jobType := strings.TrimSpace(req.Type)
	switch jobType {
	case store.JobTypeIngestVideo:
		input = pipeline.IngestInput{
			VideoID:  videoID,
			Language: strings.TrimSpace(req.Language),
			Steps:    req.Steps,
			TraceID:  traceID,
		}
	case store.JobTypeDetectChapters:
		input = pipeline.DetectInput{
			VideoID:    videoID,
			MinSignals: req.MinSignals,
			WindowMs:   req.WindowMs,
			Force:      req.Force,
			TraceID:    traceID,
		}
	default:
		return Job{}, services.Wrap(services.ErrValidation, "api", "create job",
			fmt.Sprintf("unsupported job type %q (want %s or %s)", req.Type, store.JobTypeIngestVideo, store.JobTypeDetectChapters), nil)
	}

	job, err := s.store.CreateJob(ctx, jobType, input)
	if err != nil {
		return Job{}, err
	}
	if err := s.announce(ctx, job.ID); err != nil {
		return FromJob(job), err
	}
	return FromJob(job), nil
}

// Cancel moves a queued or running job to canceled.
func (s *JobService) Cancel(ctx context.Context, id string) (ActionResponse, error) {
	if _, err := s.load(ctx, id); err != nil {
		return ActionResponse{}, err
	}
	changed, err := s.store.CancelJob(ctx, id)
	if err != nil {
		return ActionResponse{}, err
	}
	return s.action(ctx, id, changed)
}

// Retry requeues a failed or canceled job and announces it again.
func (s *JobService) Retry(ctx context.Context, id string) (ActionResponse, error) {
	if _, err := s.load(ctx, id); err != nil {
		return ActionResponse{}, err
	}
	changed, err := s.store.RetryJob(ctx, id)
	if err != nil {
		return ActionResponse{}, err
	}
	if changed {
		if err := s.announce(ctx, id); err != nil {
			return ActionResponse{}, err
		}
	}
	return s.action(ctx, id, changed)
}

// Entities lists a video's canonical entities and tags.
func (s *JobService) Entities(ctx context.Context, videoID string) (EntitiesResponse, error) {
	video, err := s.video(ctx, videoID)
	if err != nil {
		return EntitiesResponse{}, err
	}
	rows, err := s.store.ListEntitiesForVideo(ctx, video.ID)
	if err != nil {
		return EntitiesResponse{}, err
	}
	tags, err := s.store.ListVideoTags(ctx, video.ID)
	if err != nil {
		return EntitiesResponse{}, err
	}
	resp := EntitiesResponse{VideoID: video.ID, Entities: make([]Entity, 0, len(rows)), Tags: tags}
	if resp.Tags == nil {
		resp.Tags = []string{}
	}
	for _, e := range rows {
		aliases := e.Aliases
		if aliases == nil {
			aliases = []string{}
		}
		resp.Entities = append(resp.Entities, Entity{
			ID:            e.ID,
			Type:          e.Type,
			CanonicalName: e.CanonicalName,
			Aliases:       aliases,
			Mentions:      e.MentionCount,
		})
	}
	return resp, nil
}

// Chapters lists a video's chapters for source (all sources when empty) and
// its significant marks.
func (s *JobService) Chapters(ctx context.Context, videoID, source string) (ChaptersResponse, error) {
	video, err := s.video(ctx, videoID)
	if err != nil {
		return ChaptersResponse{}, err
	}
	rows, err := s.store.ListVideoChapters(ctx, video.ID, strings.TrimSpace(source))
	if err != nil {
		return ChaptersResponse{}, err
	}
	marks, err := s.store.ListSignificantMarks(ctx, video.ID)
	if err != nil {
		return ChaptersResponse{}, err
	}
	resp := ChaptersResponse{
		VideoID:  video.ID,
		Chapters: make([]Chapter, 0, len(rows)),
		Marks:    make([]Mark, 0, len(marks)),
	}
	for _, ch := range rows {
		resp.Chapters = append(resp.Chapters, Chapter{
			StartMs:    ch.StartMs,
			EndMs:      ch.EndMs,
			Title:      ch.Title,
			Source:     ch.Source,
			Signals:    ch.Signals,
			Confidence: ch.Confidence,
		})
	}
	for _, m := range marks {
		resp.Marks = append(resp.Marks, Mark{
			TimestampMs: m.TimestampMs,
			MarkType:    m.MarkType,
			Confidence:  m.Confidence,
			Description: m.Description,
		})
	}
	return resp, nil
}

func (s *JobService) load(ctx context.Context, id string) (*store.Job, error) {
	id = strings.TrimSpace(id)
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, services.Wrap(services.ErrNotFound, "api", "load job", fmt.Sprintf("job %s not found", id), nil)
	}
	return job, nil
}

func (s *JobService) video(ctx context.Context, id string) (*store.Video, error) {
	id = strings.TrimSpace(id)
	video, err := s.store.GetVideo(ctx, id)
	if err != nil {
		return nil, err
	}
	if video == nil {
		return nil, services.Wrap(services.ErrNotFound, "api", "load video", fmt.Sprintf("video %s not found", id), nil)
	}
	return video, nil
}

func (s *JobService) action(ctx context.Context, id string, changed bool) (ActionResponse, error) {
	status, err := s.store.JobStatus(ctx, id)
	if err != nil {
		return ActionResponse{}, err
	}
	return ActionResponse{JobID: id, Changed: changed, Status: string(status)}, nil
}

func (s *JobService) announce(ctx context.Context, id string) error {
	if s.enqueuer == nil {
		return nil
	}
	if err := s.enqueuer.Enqueue(ctx, id); err != nil {
		return services.Wrap(services.ErrTransient, "api", "enqueue", "job persisted but not announced; it is picked up on the next daemon start", err)
	}
	return nil
}

func validStatus(status store.JobStatus) bool {
	switch status {
	case store.JobQueued, store.JobRunning, store.JobCompleted, store.JobFailed, store.JobCanceled:
		return true
	}
	return false
}
