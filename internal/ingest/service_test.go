package ingest

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"hyperwatch/internal/domain"
	"hyperwatch/internal/engine"
	"hyperwatch/internal/queue/memory"
)

func newService(t *testing.T) (*Service, *memory.Broker) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	broker := memory.NewBroker(2, 100)
	t.Cleanup(func() { _ = broker.Close() })
	return NewService(engine.NewPublisher(broker), "entities", logger), broker
}

func TestService_IngestEvent(t *testing.T) {
	service, broker := newService(t)

	ev := domain.Event{
		"connector":      "nagios",
		"connector_name": "nagios1",
		"event_type":     "check",
		"source_type":    "resource",
		"component":      "db01",
		"resource":       "disk",
		"state":          2,
	}

	rk, err := service.IngestEvent(context.Background(), ev)
	if err != nil {
		t.Fatalf("IngestEvent() error = %v", err)
	}
	if rk != "nagios.nagios1.check.resource.db01.disk" {
		t.Errorf("rk = %q", rk)
	}
	if !ev.Has("timestamp") || ev["rk"] != rk {
		t.Errorf("event not enriched: %v", ev)
	}
	if broker.Len("entities") != 1 {
		t.Errorf("Queue should have 1 message, got %d", broker.Len("entities"))
	}
}

func TestService_IngestEvent_Invalid(t *testing.T) {
	service, broker := newService(t)

	tests := []struct {
		name string
		ev   domain.Event
		want error
	}{
		{"missing connector", domain.Event{"connector_name": "c", "event_type": "log", "source_type": "component", "component": "x"}, domain.ErrMissingField},
		{"bad source type", domain.Event{"connector": "a", "connector_name": "c", "event_type": "log", "source_type": "host", "component": "x"}, domain.ErrInvalidSourceType},
		{"check without state", domain.Event{"connector": "a", "connector_name": "c", "event_type": "check", "source_type": "component", "component": "x"}, domain.ErrMissingField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.IngestEvent(context.Background(), tt.ev)
			if !errors.Is(err, ErrInvalidEvent) || !errors.Is(err, tt.want) {
				t.Errorf("IngestEvent() error = %v, want %v", err, tt.want)
			}
		})
	}

	if broker.Len("entities") != 0 {
		t.Error("invalid events must not be published")
	}
}
