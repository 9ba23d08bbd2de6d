package workflow

import (
	"context"
	"maps"

	"vidintel/internal/logging"
	"vidintel/internal/stage"
	"vidintel/internal/store"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running     bool
	Workers     int
	Transport   string
	LastError   string
	LastJob     *store.Job
	ActiveJobs  map[string]string
	JobStats    map[store.JobStatus]int
	StageHealth map[string]stage.Health
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	summary := StatusSummary{
		Running:    m.running,
		Workers:    m.workers,
		ActiveJobs: maps.Clone(m.active),
	}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	if m.lastJob != nil {
		copy := *m.lastJob
		summary.LastJob = &copy
	}
	handlers := maps.Clone(m.handlers)
	m.mu.RUnlock()

	if m.transport != nil {
		summary.Transport = m.transport.Name()
	}
	if m.store != nil {
		stats, err := m.store.Stats(ctx)
		if err != nil {
			m.logger.Warn("failed to read job stats", logging.Error(err))
		}
		summary.JobStats = stats
	}

	summary.StageHealth = make(map[string]stage.Health, len(handlers))
	for jobType, handler := range handlers {
		summary.StageHealth[jobType] = handler.HealthCheck(ctx)
	}
	return summary
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastJob(job *store.Job) {
	m.mu.Lock()
	if job != nil {
		copy := *job
		m.lastJob = &copy
	} else {
		m.lastJob = nil
	}
	m.mu.Unlock()
}

func (m *Manager) markActive(jobID, worker string) {
	m.mu.Lock()
	m.active[jobID] = worker
	m.mu.Unlock()
}

func (m *Manager) clearActive(jobID string) {
	m.mu.Lock()
	delete(m.active, jobID)
	m.mu.Unlock()
}
