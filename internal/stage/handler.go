package stage

import (
	"context"
	"log/slog"

	"vidintel/internal/store"
)

// Handler describes the contract the workflow manager needs from each job type.
// Execute owns the job's terminal transition: on return the job is completed,
// failed, or canceled in the store.
type Handler interface {
	Execute(context.Context, *store.Job) error
	HealthCheck(context.Context) Health
}

// LoggerAware handlers accept a logger scoped to the worker running them.
type LoggerAware interface {
	SetLogger(*slog.Logger)
}

// Health is a handler's readiness as reported on the status endpoint.
// Detail explains why a handler is not ready.
type Health struct {
	Name   string
	Ready  bool
	Detail string
}

func Healthy(name string) Health { return Health{Name: name, Ready: true} }

func Unhealthy(name, detail string) Health { return Health{Name: name, Detail: detail} }
