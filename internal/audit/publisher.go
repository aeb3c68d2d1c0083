package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"certpass/internal/platform/kafka"
)

// Sink publishes audit events to an external stream.
type Sink interface {
	Publish(ctx context.Context, event Event) error
}

// KafkaSink publishes events as JSON records keyed by event id.
type KafkaSink struct {
	producer *kafka.Producer
	topic    string
}

func NewKafkaSink(producer *kafka.Producer, topic string) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic}
}

func (s *KafkaSink) Publish(ctx context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}
	return s.producer.Produce(ctx, &kafka.Message{
		Topic: s.topic,
		Key:   []byte(event.ID.String()),
		Value: value,
	})
}

// NoopSink discards events, for deployments without kafka.
type NoopSink struct{}

func (NoopSink) Publish(context.Context, Event) error { return nil }
