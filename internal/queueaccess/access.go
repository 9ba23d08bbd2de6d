package queueaccess

import (
	"context"

	"vidintel/internal/api"
	"vidintel/internal/store"
)

// Access provides job operations regardless of daemon API or direct store backing.
type Access interface {
	Stats(ctx context.Context) (map[string]int, error)
	List(ctx context.Context, statuses []string) ([]api.Job, error)
	Describe(ctx context.Context, id string) (api.Job, error)
	Create(ctx context.Context, req api.CreateJobRequest) (api.Job, error)
	Cancel(ctx context.Context, id string) (api.ActionResponse, error)
	Retry(ctx context.Context, id string) (api.ActionResponse, error)
	Logs(ctx context.Context, id string, after int64, limit int) (api.JobLogsResponse, error)
	Entities(ctx context.Context, videoID string) (api.EntitiesResponse, error)
	Chapters(ctx context.Context, videoID, source string) (api.ChaptersResponse, error)
}

// NewStoreAccess returns an Access backed by direct DB access. enqueuer may
// be nil; queued jobs are then announced when the daemon next starts.
func NewStoreAccess(st *store.Store, enqueuer api.Enqueuer) Access {
	return &storeAccess{store: st, service: api.NewJobService(st, enqueuer)}
}

type storeAccess struct {
	store   *store.Store
	service *api.JobService
}

func (a *storeAccess) Stats(ctx context.Context) (map[string]int, error) {
	stats, err := a.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return api.MergeJobStats(stats), nil
}

func (a *storeAccess) List(ctx context.Context, statuses []string) ([]api.Job, error) {
	return a.service.List(ctx, statuses...)
}

func (a *storeAccess) Describe(ctx context.Context, id string) (api.Job, error) {
	return a.service.Describe(ctx, id)
}

func (a *storeAccess) Create(ctx context.Context, req api.CreateJobRequest) (api.Job, error) {
	return a.service.Create(ctx, req)
}

func (a *storeAccess) Cancel(ctx context.Context, id string) (api.ActionResponse, error) {
	return a.service.Cancel(ctx, id)
}

func (a *storeAccess) Retry(ctx context.Context, id string) (api.ActionResponse, error) {
	return a.service.Retry(ctx, id)
}

func (a *storeAccess) Logs(ctx context.Context, id string, after int64, limit int) (api.JobLogsResponse, error) {
	return a.service.Logs(ctx, id, after, limit)
}

func (a *storeAccess) Entities(ctx context.Context, videoID string) (api.EntitiesResponse, error) {
	return a.service.Entities(ctx, videoID)
}

func (a *storeAccess) Chapters(ctx context.Context, videoID, source string) (api.ChaptersResponse, error) {
	return a.service.Chapters(ctx, videoID, source)
}
