package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"vidintel/internal/config"
)

// Event identifies a job lifecycle transition.
type Event string

const (
	EventJobQueued    Event = "job_queued"
	EventJobStarted   Event = "job_started"
	EventJobCompleted Event = "job_completed"
	EventJobFailed    Event = "job_failed"
	EventJobCanceled  Event = "job_canceled"
	EventJobReclaimed Event = "job_reclaimed"
	EventTest         Event = "test"
)

// Payload carries event fields. Common keys are job_id, job_type, video_id,
// title, error, duration and trace_id.
type Payload map[string]any

func (p Payload) str(key string) string {
	if p == nil {
		return ""
	}
	switch v := p[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case error:
		return strings.TrimSpace(v.Error())
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// Service publishes lifecycle events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
	Close() error
}

// NewService builds the configured sinks. Kafka construction does not dial;
// connection errors surface on the first Publish.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	timeout := time.Duration(cfg.Events.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	var sinks []Service
	if topic := strings.TrimSpace(cfg.Events.NtfyTopic); topic != "" {
		sinks = append(sinks, newNtfyService(topic, timeout))
	}
	if len(cfg.Events.KafkaBrokers) > 0 && strings.TrimSpace(cfg.Events.KafkaTopic) != "" {
		sinks = append(sinks, NewKafkaService(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic, timeout))
	}
	switch len(sinks) {
	case 0:
		return noopService{}
	case 1:
		return sinks[0]
	default:
		return multiService(sinks)
	}
}

type multiService []Service

func (m multiService) Publish(ctx context.Context, event Event, payload Payload) error {
	var errs []error
	for _, svc := range m {
		if err := svc.Publish(ctx, event, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m multiService) Close() error {
	var errs []error
	for _, svc := range m {
		if err := svc.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
func (noopService) Close() error                                  { return nil }
