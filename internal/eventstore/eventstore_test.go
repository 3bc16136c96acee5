package eventstore

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"hyperwatch/internal/config"
	"hyperwatch/internal/domain"
	"hyperwatch/internal/store"
	"hyperwatch/internal/store/memory"
)

const now = int64(1_700_000_000)

type fakePublisher struct {
	mu     sync.Mutex
	topics []string
	events []domain.Event
}

func (p *fakePublisher) Publish(_ context.Context, topic string, ev domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.events = append(p.events, ev.Clone())
	return nil
}

func newEngine(t *testing.T) (*Engine, *fakePublisher, *memory.RecordStore) {
	t.Helper()
	cfg := config.Default()
	s := memory.NewRecordStore()
	pub := &fakePublisher{}
	e := New(s, pub, &cfg.EventStore, "alerts", slog.New(slog.NewTextHandler(io.Discard, nil)))
	var tick int64
	e.now = func() time.Time {
		tick++
		return time.Unix(now, tick*int64(time.Microsecond))
	}
	return e, pub, s
}

func event(eventType string, state int64) domain.Event {
	ev := domain.Event{
		"connector":      "nagios",
		"connector_name": "nagios1",
		"event_type":     eventType,
		"source_type":    "resource",
		"component":      "db01",
		"resource":       "disk",
		"state":          state,
		"state_type":     int64(1),
		"timestamp":      now,
		"exchange":       "amq.direct",
	}
	ev.RefreshRoutingKey()
	return ev
}

func TestWork_CheckPublishesOnChange(t *testing.T) {
	ctx := context.Background()
	e, pub, s := newEngine(t)

	res, err := e.Work(ctx, event("check", 2))
	if err != nil {
		t.Fatalf("Work error: %v", err)
	}
	if res.Dropped() || res.Event.Has("exchange") {
		t.Errorf("result = %+v", res)
	}
	if len(pub.events) != 1 || pub.topics[0] != "alerts" {
		t.Fatalf("published %d alerts", len(pub.events))
	}
	alert := pub.events[0]
	rk := alert.String("rk")
	if alert.String("event_id") != rk || alert.String("_id") == rk || alert.Status() != domain.StatusOngoing {
		t.Errorf("alert = %v", alert)
	}
	if _, err := s.Get(ctx, store.CollectionAlarms, rk); err != nil {
		t.Errorf("alarm record not stored: %v", err)
	}

	// Same state again: no status change, no alert.
	if _, err := e.Work(ctx, event("check", 2)); err != nil {
		t.Fatal(err)
	}
	if len(pub.events) != 1 {
		t.Errorf("published %d alerts, want 1", len(pub.events))
	}

	if err := e.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	if s.Count(store.CollectionHistory) != 1 {
		t.Errorf("history entries = %d, want 1", s.Count(store.CollectionHistory))
	}
}

func TestWork_LogAndComment(t *testing.T) {
	ctx := context.Background()
	e, pub, s := newEngine(t)

	for _, et := range []string{"log", "comment", "log"} {
		if _, err := e.Work(ctx, event(et, 0)); err != nil {
			t.Fatalf("Work(%s) error: %v", et, err)
		}
	}
	if len(pub.events) != 3 {
		t.Fatalf("published %d alerts, want 3", len(pub.events))
	}
	for _, alert := range pub.events {
		if alert.String("_id") != alert.String("rk") || alert.String("event_id") != alert.String("rk") {
			t.Errorf("alert = %v", alert)
		}
	}
	if s.Count(store.CollectionAlarms) != 0 {
		t.Error("log events must not create alarm records")
	}

	if err := e.Beat(ctx); err != nil {
		t.Fatal(err)
	}
	if s.Count(store.CollectionHistory) != 3 {
		t.Errorf("history entries = %d, want 3", s.Count(store.CollectionHistory))
	}
}

func TestWork_UnknownTypePassesThrough(t *testing.T) {
	e, pub, s := newEngine(t)

	ev := event("mystery", 2)
	res, err := e.Work(context.Background(), ev)
	if err != nil || res.Dropped() {
		t.Fatalf("Work() = %+v, %v", res, err)
	}
	if len(pub.events) != 0 || s.Count(store.CollectionAlarms) != 0 {
		t.Error("unknown events must not be stored or published")
	}
}

func TestWork_DowntimeEnd(t *testing.T) {
	ctx := context.Background()
	e, pub, s := newEngine(t)

	downtimes := []store.Document{
		{"_id": "d1", "type": "downtime", "component": "db01", "resource": "disk", "start": now - 60, "end": now + 600},
		{"_id": "d2", "type": "downtime", "component": "db01", "resource": "disk", "start": now - 60, "end": now + 1200},
		{"_id": "d3", "type": "downtime", "component": "db01", "resource": "disk", "start": now + 60, "end": now + 9000},
	}
	if err := s.Insert(ctx, store.CollectionEntities, downtimes...); err != nil {
		t.Fatal(err)
	}
	if err := e.Beat(ctx); err != nil {
		t.Fatal(err)
	}

	ev := event("check", 2)
	ev["downtime"] = true
	if _, err := e.Work(ctx, ev); err != nil {
		t.Fatal(err)
	}
	if len(pub.events) != 1 {
		t.Fatalf("published %d alerts", len(pub.events))
	}
	if got := pub.events[0].IntOr("previous_state_change_ts", 0); got != now+1200 {
		t.Errorf("previous_state_change_ts = %d, want %d", got, now+1200)
	}
}
