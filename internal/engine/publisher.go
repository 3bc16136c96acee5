package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"hyperwatch/internal/domain"
	"hyperwatch/internal/metrics"
	"hyperwatch/internal/queue"
)

// Publisher encodes events and publishes them keyed by routing key.
type Publisher struct {
	producer queue.Producer
}

// NewPublisher creates a publisher on top of a producer.
func NewPublisher(producer queue.Producer) *Publisher {
	return &Publisher{producer: producer}
}

// Publish sends ev to topic.
func (p *Publisher) Publish(ctx context.Context, topic string, ev domain.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	start := time.Now()
	msg := &queue.Message{
		Topic: topic,
		Key:   []byte(ev.Key()),
		Value: data,
	}
	if err := p.producer.Publish(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	metrics.QueuePublishLatency.Observe(time.Since(start).Seconds())
	metrics.EventsPublishedTotal.WithLabelValues(topic).Inc()
	return nil
}

// Decode parses a message payload into an event.
func Decode(msg *queue.Message) (domain.Event, error) {
	var ev domain.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}
	if ev == nil {
		return nil, fmt.Errorf("failed to decode event: empty payload")
	}
	return ev, nil
}
