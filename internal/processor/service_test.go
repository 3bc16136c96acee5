package processor

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"hyperwatch/internal/config"
	"hyperwatch/internal/domain"
	"hyperwatch/internal/engine"
	"hyperwatch/internal/queue"
	"hyperwatch/internal/queue/memory"
	"hyperwatch/internal/store"
	storemem "hyperwatch/internal/store/memory"
)

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []domain.Event
}

func (n *recordingNotifier) Notify(_ context.Context, alert domain.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, alert)
}

func (n *recordingNotifier) find(resource string) (domain.Event, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, a := range n.alerts {
		if a.String("resource") == resource {
			return a, true
		}
	}
	return nil, false
}

func testSetup(t *testing.T, workers int) (*Service, *storemem.RecordStore, *memory.Broker, *recordingNotifier) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Default()
	cfg.Pipeline.Workers = workers

	s := storemem.NewRecordStore()
	broker := memory.NewBroker(workers, 100)
	notifier := &recordingNotifier{}

	svc, err := NewService(Deps{
		Config:   cfg,
		Store:    s,
		Producer: broker,
		Consumers: func(topic, _ string, worker int) (queue.Consumer, error) {
			return broker.Consumer(topic, worker)
		},
		Notifier: notifier,
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("NewService error: %v", err)
	}
	return svc, s, broker, notifier
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestService_EventFlowsThroughPipeline(t *testing.T) {
	svc, s, broker, notifier := testSetup(t, 2)
	cfg := config.Default()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Start(ctx) }()

	ev := domain.Event{
		"connector":      "nagios",
		"connector_name": "nagios1",
		"event_type":     "check",
		"source_type":    "resource",
		"component":      "db01",
		"resource":       "disk",
		"state":          2,
		"state_type":     1,
		"timestamp":      time.Now().Unix(),
	}
	rk := ev.RefreshRoutingKey()
	if err := engine.NewPublisher(broker).Publish(ctx, cfg.Pipeline.Topics.Entities, ev); err != nil {
		t.Fatal(err)
	}

	eventually(t, func() bool {
		_, err := s.Get(ctx, store.CollectionAlarms, rk)
		return err == nil
	})
	eventually(t, func() bool {
		_, ok := notifier.find("disk")
		return ok
	})
	alert, _ := notifier.find("disk")
	if alert.Status() != domain.StatusOngoing || alert.String("event_id") != rk {
		t.Errorf("alert = %v", alert)
	}

	entities, _ := s.Find(ctx, store.CollectionEntities, store.Document{"type": "resource"}, "")
	if len(entities) != 1 {
		t.Errorf("resource entities = %d, want 1", len(entities))
	}

	// Filter statistics are published on the initial beat of each worker.
	eventually(t, func() bool {
		_, ok := notifier.find("event_filter_data")
		return ok
	})

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("service did not stop")
	}
	if err := svc.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}

	logs, err := svc.History().Logs(context.Background(), rk)
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 1 {
		t.Errorf("history entries = %d, want 1", len(logs))
	}
}
