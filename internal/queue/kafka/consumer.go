package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"hyperwatch/internal/config"
	"hyperwatch/internal/queue"
)

// Consumer implements queue.Consumer using Kafka.
type Consumer struct {
	reader  *kafka.Reader
	logger  *slog.Logger
	retries int
	backoff time.Duration
}

// Handler failures are retried before the message is given up.
const (
	defaultRetries = 3
	defaultBackoff = 500 * time.Millisecond
)

// GroupID returns the consumer group of one engine. Each engine kind reads
// its topic in its own group; its workers share the group, so Kafka assigns
// each partition (and so each routing key) to exactly one worker.
func GroupID(cfg *config.KafkaConfig, engine string) string {
	return cfg.ConsumerGroup + "." + engine
}

// NewConsumer creates a new Kafka consumer for one topic and group.
func NewConsumer(cfg *config.KafkaConfig, topic, group string, logger *slog.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    topic,
		GroupID:  group,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})

	return &Consumer{
		reader:  reader,
		logger:  logger,
		retries: defaultRetries,
		backoff: defaultBackoff,
	}
}

// Start begins consuming messages and calls the handler for each one.
func (c *Consumer) Start(ctx context.Context, handler queue.MessageHandler) error {
	c.logger.Info("starting kafka consumer",
		"topic", c.reader.Config().Topic,
		"group", c.reader.Config().GroupID,
	)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("kafka consumer stopping due to context cancellation")
			return ctx.Err()
		default:
		}

		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("failed to fetch message", "error", err)
			continue
		}

		queueMsg := &queue.Message{
			Topic:   msg.Topic,
			Key:     msg.Key,
			Value:   msg.Value,
			Headers: make(map[string]string, len(msg.Headers)),
		}
		for _, h := range msg.Headers {
			queueMsg.Headers[h.Key] = string(h.Value)
		}

		if err := c.process(ctx, handler, queueMsg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("failed to process message, leaving offset uncommitted",
				"error", err,
				"partition", msg.Partition,
				"offset", msg.Offset,
			)
			continue
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("failed to commit message",
				"error", err,
				"partition", msg.Partition,
				"offset", msg.Offset,
			)
			return fmt.Errorf("failed to commit message: %w", err)
		}
	}
}

// process runs handler, retrying failures up to c.retries times.
func (c *Consumer) process(ctx context.Context, handler queue.MessageHandler, msg *queue.Message) error {
	var err error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			c.logger.Warn("retrying message", "attempt", attempt, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.backoff * time.Duration(attempt)):
			}
		}
		if err = handler(ctx, msg); err == nil {
			return nil
		}
	}
	return err
}

// Close closes the Kafka reader.
func (c *Consumer) Close() error {
	if c.reader != nil {
		return c.reader.Close()
	}
	return nil
}
