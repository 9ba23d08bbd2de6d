package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"vidintel/internal/logging"
	"vidintel/internal/store"
)

// HeartbeatMonitor manages job heartbeats and stale job reclamation.
type HeartbeatMonitor struct {
	store             *store.Store
	logger            *slog.Logger
	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration
	now               func() time.Time
}

// NewHeartbeatMonitor creates a new monitor.
func NewHeartbeatMonitor(st *store.Store, logger *slog.Logger, interval, timeout time.Duration) *HeartbeatMonitor {
	if logger == nil {
		logger = logging.NewNop()
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &HeartbeatMonitor{
		store:             st,
		logger:            logger,
		heartbeatInterval: interval,
		heartbeatTimeout:  timeout,
		now:               time.Now,
	}
}

// ReclaimStaleJobs resets running jobs that stopped sending heartbeats and
// returns their ids.
func (h *HeartbeatMonitor) ReclaimStaleJobs(ctx context.Context) ([]string, error) {
	if h.heartbeatTimeout <= 0 {
		return nil, nil
	}
	cutoff := h.now().Add(-h.heartbeatTimeout)
	reclaimed, err := h.store.ReclaimStale(ctx, cutoff)
	if err != nil {
		return reclaimed, err
	}
	if len(reclaimed) > 0 {
		h.logger.Info("reclaimed stale jobs",
			logging.String(logging.FieldEventType, "jobs_reclaimed"),
			logging.Int("count", len(reclaimed)),
		)
	}
	return reclaimed, nil
}

// StartLoop refreshes the heartbeat of jobID until ctx is done. When the job
// is canceled in the store, cancel is called so the handler stops at its
// next checkpoint.
func (h *HeartbeatMonitor) StartLoop(ctx context.Context, wg *sync.WaitGroup, jobID string, cancel context.CancelFunc) {
	defer wg.Done()
	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	logger := logging.WithContext(ctx, logging.NewComponentLogger(h.logger, "workflow-heartbeat"))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.store.UpdateHeartbeat(ctx, jobID); err != nil {
				if errors.Is(err, context.Canceled) {
					logger.Info("daemon shutting down, heartbeat update cancelled")
				} else {
					logger.Warn("heartbeat update failed", logging.Error(err))
				}
				continue
			}
			status, err := h.store.JobStatus(ctx, jobID)
			if err != nil {
				continue
			}
			if status == store.JobCanceled && cancel != nil {
				logger.Info("job canceled externally; stopping handler",
					logging.String(logging.FieldEventType, "job_cancel_requested"),
				)
				cancel()
				return
			}
		}
	}
}
