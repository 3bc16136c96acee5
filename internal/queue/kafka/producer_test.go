package kafka

import (
	"context"
	"errors"
	"testing"

	"hyperwatch/internal/config"
	"hyperwatch/internal/queue"
)

func TestProducer_RequiresTopic(t *testing.T) {
	p := NewProducer(&config.KafkaConfig{Brokers: []string{"localhost:9092"}})
	defer p.Close()

	err := p.Publish(context.Background(), &queue.Message{Key: []byte("k"), Value: []byte("{}")})
	if !errors.Is(err, ErrNoTopic) {
		t.Errorf("Publish error = %v, want ErrNoTopic", err)
	}
}

func TestGroupID(t *testing.T) {
	cfg := &config.KafkaConfig{ConsumerGroup: "hyperwatch"}
	if got := GroupID(cfg, "eventstore"); got != "hyperwatch.eventstore" {
		t.Errorf("GroupID() = %q", got)
	}
}
