// Package kafka provides Kafka-based implementations of the queue interfaces.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"hyperwatch/internal/config"
	"hyperwatch/internal/queue"
)

// ErrNoTopic is returned when a message does not name its topic.
var ErrNoTopic = errors.New("kafka message without topic")

// Producer implements queue.Producer using Kafka. One writer serves every
// pipeline topic; the topic is taken from each message.
type Producer struct {
	writer *kafka.Writer
}

// NewProducer creates a new Kafka producer.
func NewProducer(cfg *config.KafkaConfig) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{}, // routing key -> partition
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		writer: writer,
	}
}

// Publish sends a message to Kafka.
func (p *Producer) Publish(ctx context.Context, msg *queue.Message) error {
	if msg.Topic == "" {
		return ErrNoTopic
	}

	kafkaMsg := kafka.Message{
		Topic: msg.Topic,
		Key:   msg.Key,
		Value: msg.Value,
	}

	if len(msg.Headers) > 0 {
		kafkaMsg.Headers = make([]kafka.Header, 0, len(msg.Headers))
		for k, v := range msg.Headers {
			kafkaMsg.Headers = append(kafkaMsg.Headers, kafka.Header{
				Key:   k,
				Value: []byte(v),
			})
		}
	}

	if err := p.writer.WriteMessages(ctx, kafkaMsg); err != nil {
		return fmt.Errorf("failed to write message to kafka topic %s: %w", msg.Topic, err)
	}

	return nil
}

// Close closes the Kafka writer.
func (p *Producer) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}
