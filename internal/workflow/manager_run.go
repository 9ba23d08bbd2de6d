package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"

	"vidintel/internal/logging"
	"vidintel/internal/notifications"
	"vidintel/internal/services"
	"vidintel/internal/stageexec"
	"vidintel/internal/store"
	"vidintel/internal/transport"
)

const announceBatch = 512

// Start launches the workers and the reclaimer.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if m.store == nil || m.transport == nil {
		m.mu.Unlock()
		return errors.New("workflow store and transport are required")
	}
	if len(m.handlers) == 0 {
		m.mu.Unlock()
		return errors.New("workflow handlers not configured")
	}

	types := slices.Sorted(maps.Keys(m.handlers))
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(m.workers + 1)
	m.mu.Unlock()

	if filter, ok := m.transport.(transport.TypeFilter); ok {
		filter.Restrict(types...)
	}
	m.announceQueued(runCtx, types)
	for i := range m.workers {
		worker := fmt.Sprintf("worker-%d", i+1)
		go m.runWorker(runCtx, worker)
	}
	go m.runReclaimer(runCtx)

	m.logger.Info("workflow started",
		logging.String(logging.FieldEventType, "workflow_started"),
		logging.Int("workers", m.workers),
		logging.String("transport", m.transport.Name()),
	)
	return nil
}

// Stop terminates background processing and waits for completion. Jobs
// interrupted by shutdown stay running until the reclaimer requeues them.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

// announceQueued re-announces handled jobs persisted as queued, covering
// deliveries lost while no daemon was running.
func (m *Manager) announceQueued(ctx context.Context, types []string) {
	ids, err := m.store.ListQueuedIDs(ctx, announceBatch, types...)
	if err != nil {
		m.logger.Warn("queued job scan failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "queue_scan_failed"),
			logging.String(logging.FieldErrorHint, "check database access"),
		)
		return
	}
	for _, id := range ids {
		if err := m.transport.Enqueue(ctx, id); err != nil {
			m.logger.Warn("queued job announce failed", logging.String(logging.FieldJobID, id), logging.Error(err))
		}
	}
}

func (m *Manager) runWorker(ctx context.Context, worker string) {
	defer m.wg.Done()
	logger := m.logger.With(logging.String(logging.FieldWorker, worker))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		jobID, err := m.transport.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.handleReceiveError(ctx, logger, err)
			continue
		}
		m.processJob(ctx, worker, logger, jobID)
	}
}

func (m *Manager) handleReceiveError(ctx context.Context, logger *slog.Logger, err error) {
	m.setLastError(err)
	logger.Error("failed to receive next job",
		logging.Error(err),
		logging.String(logging.FieldEventType, "queue_fetch_failed"),
		logging.String(logging.FieldErrorHint, "check transport and database access"),
	)
	select {
	case <-ctx.Done():
	case <-time.After(m.retryInterval()):
	}
}

func (m *Manager) processJob(ctx context.Context, worker string, logger *slog.Logger, jobID string) {
	logger = logger.With(logging.String(logging.FieldJobID, jobID))

	job, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		m.setLastError(err)
		logger.Warn("job lookup failed; delivery dropped",
			logging.Error(err),
			logging.String(logging.FieldEventType, "job_lookup_failed"),
			logging.String(logging.FieldErrorHint, "the reclaimer or next start re-announces queued jobs"),
		)
		return
	}
	if job == nil {
		logger.Debug("delivery for unknown job dropped")
		return
	}

	handler := m.handler(job.Type)
	if handler == nil {
		m.skipUnhandled(logger, job)
		return
	}

	claimed, err := m.store.ClaimJob(ctx, jobID)
	if err != nil {
		m.setLastError(err)
		logger.Warn("job claim failed", logging.Error(err), logging.String(logging.FieldEventType, "job_claim_failed"))
		return
	}
	if !claimed {
		logger.Debug("job already claimed or finished; delivery acked", logging.String("status", string(job.Status)))
		return
	}
	if reloaded, err := m.store.GetJob(ctx, jobID); err == nil && reloaded != nil {
		job = reloaded
	}

	jobCtx := services.WithWorker(ctx, worker)
	jobCtx = services.WithRequestID(jobCtx, uuid.NewString())
	m.markActive(job.ID, worker)
	defer m.clearActive(job.ID)

	result, execErr := stageexec.Run(jobCtx, stageexec.Options{
		Logger:    logger.With(logging.String(logging.FieldJobType, job.Type)),
		Store:     m.store,
		Notifier:  m.notifier,
		Archiver:  m.archiver,
		Heartbeat: m.heartbeat,
		Handler:   handler,
		Job:       job,
	})
	if result.Job != nil {
		m.setLastJob(result.Job)
	}
	if execErr != nil && !errors.Is(execErr, services.ErrCanceled) && ctx.Err() == nil {
		m.setLastError(execErr)
	}
}

func (m *Manager) skipUnhandled(logger *slog.Logger, job *store.Job) {
	m.mu.Lock()
	_, seen := m.unhandled[job.ID]
	m.unhandled[job.ID] = struct{}{}
	m.mu.Unlock()
	if seen {
		return
	}
	logger.Info("no handler for job type; left queued for external workers",
		logging.String(logging.FieldEventType, "job_unhandled"),
		logging.String(logging.FieldJobType, job.Type),
	)
}

func (m *Manager) runReclaimer(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.heartbeat.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		ids, err := m.heartbeat.ReclaimStaleJobs(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.logger.Warn("reclaim stale jobs failed; stuck jobs may remain",
				logging.Error(err),
				logging.String(logging.FieldEventType, "heartbeat_reclaim_failed"),
				logging.String(logging.FieldErrorHint, "check database access"),
			)
		}
		for _, id := range ids {
			if err := m.transport.Enqueue(ctx, id); err != nil {
				m.logger.Warn("reclaimed job announce failed", logging.String(logging.FieldJobID, id), logging.Error(err))
			}
			if m.notifier != nil {
				job, _ := m.store.GetJob(ctx, id)
				if err := m.notifier.Publish(ctx, notifications.EventJobReclaimed, stageexec.Payload(job)); err != nil {
					m.logger.Debug("reclaim notification failed", logging.Error(err))
				}
			}
		}
	}
}
