package workflow

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"vidintel/internal/archive"
	"vidintel/internal/config"
	"vidintel/internal/logging"
	"vidintel/internal/notifications"
	"vidintel/internal/stage"
	"vidintel/internal/store"
	"vidintel/internal/transport"
)

const defaultWorkers = 2

// Manager coordinates job processing using registered handlers.
type Manager struct {
	cfg       *config.Config
	store     *store.Store
	transport transport.Transport
	logger    *slog.Logger
	notifier  notifications.Service
	archiver  archive.Archiver

	heartbeat *HeartbeatMonitor
	workers   int

	handlers map[string]stage.Handler
	// unhandled remembers queued jobs of types without a handler so repeated
	// deliveries are dropped quietly.
	unhandled map[string]struct{}

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
	lastJob *store.Job
	active  map[string]string
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithNotifier publishes job lifecycle events to notifier.
func WithNotifier(notifier notifications.Service) ManagerOption {
	return func(m *Manager) { m.notifier = notifier }
}

// WithArchiver archives completed jobs.
func WithArchiver(archiver archive.Archiver) ManagerOption {
	return func(m *Manager) { m.archiver = archiver }
}

// NewManager constructs a workflow manager reading deliveries from tr.
func NewManager(cfg *config.Config, st *store.Store, tr transport.Transport, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "workflow")
	m := &Manager{
		cfg:       cfg,
		store:     st,
		transport: tr,
		logger:    logger,
		workers:   defaultWorkers,
		handlers:  make(map[string]stage.Handler),
		unhandled: make(map[string]struct{}),
		active:    make(map[string]string),
	}
	var interval, timeout time.Duration
	if cfg != nil {
		if cfg.Workflow.Workers > 0 {
			m.workers = cfg.Workflow.Workers
		}
		interval = time.Duration(cfg.Workflow.HeartbeatInterval) * time.Second
		timeout = time.Duration(cfg.Workflow.HeartbeatTimeout) * time.Second
	}
	m.heartbeat = NewHeartbeatMonitor(st, logger, interval, timeout)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register installs the handler for jobType. Registering after Start has no
// effect on running workers.
func (m *Manager) Register(jobType string, handler stage.Handler) {
	jobType = strings.TrimSpace(jobType)
	if jobType == "" || handler == nil {
		return
	}
	m.mu.Lock()
	m.handlers[jobType] = handler
	m.mu.Unlock()
}

func (m *Manager) handler(jobType string) stage.Handler {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.handlers[jobType]
}

func (m *Manager) retryInterval() time.Duration {
	if m.cfg == nil || m.cfg.Workflow.ErrorRetryInterval <= 0 {
		return 10 * time.Second
	}
	return time.Duration(m.cfg.Workflow.ErrorRetryInterval) * time.Second
}
