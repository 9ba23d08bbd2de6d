package notifications

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaWriterFunc adapts a function to the writer interface in tests.
type KafkaWriterFunc func(ctx context.Context, msgs ...kafka.Message) error

func (f KafkaWriterFunc) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	return f(ctx, msgs...)
}

func (f KafkaWriterFunc) Close() error { return nil }

func NewKafkaServiceForTest(w KafkaWriterFunc, now time.Time) *KafkaService {
	svc := newKafkaService(w, time.Second)
	svc.now = func() time.Time { return now }
	return svc
}
