// Package ingest provides the event intake service.
// It validates incoming events, fills in the timestamp and routing key,
// and publishes them to the first topic of the pipeline.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"hyperwatch/internal/domain"
	"hyperwatch/internal/metrics"
)

// Publisher sends an event to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, ev domain.Event) error
}

// Service handles event intake.
type Service struct {
	publisher Publisher
	topic     string
	logger    *slog.Logger
}

// NewService creates an intake service publishing to topic.
func NewService(publisher Publisher, topic string, logger *slog.Logger) *Service {
	return &Service{
		publisher: publisher,
		topic:     topic,
		logger:    logger,
	}
}

// Errors returned by the ingest service.
var (
	ErrInvalidEvent  = errors.New("invalid event")
	ErrPublishFailed = errors.New("failed to publish event to queue")
)

// IngestEvent validates ev and publishes it. It returns the routing key.
//
// The processing flow:
// 1. Validate the required identity fields
// 2. Default the timestamp to now
// 3. Compute the routing key, which is also the partition key
// 4. Publish to the entities topic
func (s *Service) IngestEvent(ctx context.Context, ev domain.Event) (string, error) {
	ingestStart := time.Now()

	if err := ev.Validate(); err != nil {
		s.logger.Warn("rejecting invalid event", "error", err)
		return "", fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	metrics.EventsReceivedTotal.WithLabelValues(ev.String(domain.FieldEventType)).Inc()

	ev.EnsureTimestamp(ingestStart)
	rk := ev.RefreshRoutingKey()

	if err := s.publisher.Publish(ctx, s.topic, ev); err != nil {
		s.logger.Error("failed to publish event", "rk", rk, "error", err)
		return "", ErrPublishFailed
	}
	metrics.EventIngestLatency.Observe(time.Since(ingestStart).Seconds())

	s.logger.Debug("event published to queue", "rk", rk, "topic", s.topic)
	return rk, nil
}
