package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// messageWriter is the subset of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Record is the JSON value written to Kafka for every event.
type Record struct {
	Event     Event     `json:"event"`
	JobID     string    `json:"job_id,omitempty"`
	JobType   string    `json:"job_type,omitempty"`
	Timestamp time.Time `json:"ts"`
	Payload   Payload   `json:"payload,omitempty"`
}

// KafkaService publishes every event, including the ones ntfy suppresses.
type KafkaService struct {
	writer  messageWriter
	timeout time.Duration
	now     func() time.Time
}

// NewKafkaService builds a publisher writing to topic on brokers.
func NewKafkaService(brokers []string, topic string, timeout time.Duration) *KafkaService {
	addrs := make([]string, 0, len(brokers))
	for _, b := range brokers {
		if b = strings.TrimSpace(b); b != "" {
			addrs = append(addrs, b)
		}
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(addrs...),
		Topic:                  strings.TrimSpace(topic),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		WriteTimeout:           timeout,
		AllowAutoTopicCreation: true,
	}
	return newKafkaService(writer, timeout)
}

func newKafkaService(writer messageWriter, timeout time.Duration) *KafkaService {
	return &KafkaService{writer: writer, timeout: timeout, now: time.Now}
}

// Publish writes one record keyed by job id so a job's events stay ordered
// within a partition.
func (k *KafkaService) Publish(ctx context.Context, event Event, payload Payload) error {
	if k == nil || k.writer == nil {
		return nil
	}
	rec := Record{
		Event:     event,
		JobID:     payload.str("job_id"),
		JobType:   payload.str("job_type"),
		Timestamp: k.now().UTC(),
		Payload:   payload,
	}
	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode kafka event: %w", err)
	}
	if k.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, k.timeout)
		defer cancel()
	}
	msg := kafka.Message{
		Key:   []byte(rec.JobID),
		Value: value,
		Time:  rec.Timestamp,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(event)},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish kafka event %s: %w", event, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (k *KafkaService) Close() error {
	if k == nil || k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
