package transport

import (
	"context"
	"fmt"
	"strings"
	"time"

	"vidintel/internal/config"
	"vidintel/internal/services"
	"vidintel/internal/store"
)

// Transport delivers job ids to workers.
type Transport interface {
	// Enqueue announces a job that is already persisted as queued.
	Enqueue(ctx context.Context, jobID string) error
	// Receive blocks until a job id is available or ctx is done.
	Receive(ctx context.Context) (string, error)
	// Name reports the backend name.
	Name() string
	Close() error
}

// QueueLister is the store surface the polling backend reads.
type QueueLister interface {
	ListQueuedIDs(ctx context.Context, limit int, types ...string) ([]string, error)
}

// TypeFilter is implemented by transports that can limit deliveries to the
// job types a worker pool handles.
type TypeFilter interface {
	Restrict(types ...string)
}

// New builds the transport selected in configuration.
func New(ctx context.Context, cfg *config.Config, st *store.Store) (Transport, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "transport", "new", "configuration unavailable", nil)
	}
	poll := time.Duration(cfg.Workflow.QueuePollInterval) * time.Second
	switch strings.ToLower(strings.TrimSpace(cfg.Transport.Backend)) {
	case "", config.TransportStore:
		if st == nil {
			return nil, services.Wrap(services.ErrConfiguration, "transport", "new", "store transport requires a store", nil)
		}
		return NewStoreTransport(st, poll), nil
	case config.TransportRedis:
		tr, err := DialRedis(ctx, cfg.Transport.RedisURL, cfg.Transport.List)
		if err != nil {
			return nil, err
		}
		return tr, nil
	default:
		return nil, services.Wrap(
			services.ErrConfiguration,
			"transport",
			"new",
			fmt.Sprintf("unsupported transport backend %q", cfg.Transport.Backend),
			nil,
		)
	}
}
