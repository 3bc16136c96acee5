// Package notification delivers alerts, the events published on the alerts
// topic once they are stored. The stub notifier logs them; a webhook
// notifier would implement the same interface.
package notification

import (
	"context"
	"log/slog"
	"time"

	"hyperwatch/internal/domain"
	"hyperwatch/internal/engine"
	"hyperwatch/internal/metrics"
	"hyperwatch/internal/queue"
)

// AlertPayload is the summary of an alert handed to notifiers.
type AlertPayload struct {
	ID        string `json:"id"`
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Component string `json:"component"`
	Resource  string `json:"resource,omitempty"`
	State     int64  `json:"state"`
	Status    string `json:"status"`
	Output    string `json:"output,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Notifier defines the interface for sending alert notifications.
type Notifier interface {
	Notify(ctx context.Context, alert domain.Event)
}

// StubNotifier is a no-op implementation that logs notifications.
type StubNotifier struct {
	logger *slog.Logger
}

// NewStubNotifier creates a new stub notifier.
func NewStubNotifier(logger *slog.Logger) *StubNotifier {
	return &StubNotifier{
		logger: logger,
	}
}

// Notify logs the alert.
func (n *StubNotifier) Notify(ctx context.Context, alert domain.Event) {
	payload := BuildPayload(alert)

	n.logger.Info("STUB: would send alert notification",
		"id", payload.ID,
		"event_id", payload.EventID,
		"event_type", payload.EventType,
		"status", payload.Status,
		"state", payload.State,
	)

	metrics.AlertsNotifiedTotal.WithLabelValues(payload.EventType, payload.Status).Inc()

	// Time from the event timestamp to delivery
	if payload.Timestamp > 0 {
		metrics.NotificationLatency.Observe(time.Since(time.Unix(payload.Timestamp, 0)).Seconds())
	}
}

// BuildPayload creates a notification payload from an alert.
func BuildPayload(alert domain.Event) *AlertPayload {
	status := ""
	if alert.Has(domain.FieldStatus) {
		status = alert.Status().String()
	}
	return &AlertPayload{
		ID:        alert.String(domain.FieldID),
		EventID:   alert.String(domain.FieldEventID),
		EventType: alert.String(domain.FieldEventType),
		Component: alert.String(domain.FieldComponent),
		Resource:  alert.String(domain.FieldResource),
		State:     alert.IntOr(domain.FieldState, 0),
		Status:    status,
		Output:    alert.String(domain.FieldOutput),
		Timestamp: alert.Timestamp(),
	}
}

// Sink consumes the alerts topic and hands every alert to a notifier.
type Sink struct {
	consumer queue.Consumer
	notifier Notifier
	logger   *slog.Logger
}

// NewSink creates a sink reading from consumer.
func NewSink(consumer queue.Consumer, notifier Notifier, logger *slog.Logger) *Sink {
	return &Sink{
		consumer: consumer,
		notifier: notifier,
		logger:   logger,
	}
}

// Start delivers alerts until ctx is canceled.
func (s *Sink) Start(ctx context.Context) error {
	return s.consumer.Start(ctx, func(ctx context.Context, msg *queue.Message) error {
		alert, err := engine.Decode(msg)
		if err != nil {
			s.logger.Error("dropping undecodable alert", "error", err)
			return nil
		}
		s.notifier.Notify(ctx, alert)
		return nil
	})
}
