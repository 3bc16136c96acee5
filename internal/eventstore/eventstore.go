// Package eventstore is the last engine of the pipeline. It dispatches events
// by type: check events go through the alarm state machine, log and comment
// events are appended to history. Stored events are published to the alerts
// topic.
package eventstore

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"hyperwatch/internal/archiver"
	"hyperwatch/internal/config"
	"hyperwatch/internal/domain"
	"hyperwatch/internal/engine"
	"hyperwatch/internal/store"
)

// Name is the engine name.
const Name = "eventstore"

// Publisher sends an event to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, ev domain.Event) error
}

// Engine is the eventstore worker.
type Engine struct {
	store       store.RecordStore
	archiver    *archiver.Archiver
	history     *archiver.LogBuffer
	publisher   Publisher
	alertsTopic string
	logger      *slog.Logger
	now         func() time.Time

	types    set
	checks   set
	logs     set
	comments set

	downtimes atomic.Pointer[downtimeIndex]
}

type set map[string]bool

func newSet(items []string) set {
	s := make(set, len(items))
	for _, item := range items {
		s[item] = true
	}
	return s
}

// New creates an eventstore engine with its own archiver and history buffer.
func New(s store.RecordStore, publisher Publisher, cfg *config.EventStoreConfig, alertsTopic string, logger *slog.Logger) *Engine {
	logger = logger.With("engine", Name)
	history := archiver.NewLogBuffer(s, cfg.LogBulkAmount, cfg.LogBulkDelay, logger)
	e := &Engine{
		store:       s,
		archiver:    archiver.New(s, history, cfg.AutologEnabled(), logger),
		history:     history,
		publisher:   publisher,
		alertsTopic: alertsTopic,
		logger:      logger,
		now:         time.Now,
		types:       newSet(cfg.Types),
		checks:      newSet(cfg.Checks),
		logs:        newSet(cfg.Logs),
		comments:    newSet(cfg.Comments),
	}
	e.downtimes.Store(&downtimeIndex{})
	return e
}

// Name returns the engine name.
func (e *Engine) Name() string { return Name }

// Archiver returns the alarm state machine of this engine.
func (e *Engine) Archiver() *archiver.Archiver { return e.archiver }

// Beat reloads the state-spec and the active downtimes, and flushes history.
func (e *Engine) Beat(ctx context.Context) error {
	if err := e.archiver.Beat(ctx); err != nil {
		return err
	}
	return e.reloadDowntimes(ctx)
}

// Stop flushes pending history entries.
func (e *Engine) Stop(ctx context.Context) error {
	return e.history.Flush(ctx)
}

// Work stores ev according to its type. The event is always forwarded.
func (e *Engine) Work(ctx context.Context, ev domain.Event) (engine.Result, error) {
	delete(ev, domain.FieldExchange)

	eventType := ev.String(domain.FieldEventType)
	switch {
	case !e.types[eventType]:
		e.logger.Warn("unknown event type", "event_type", eventType, "rk", ev.Key())
	case e.checks[eventType]:
		if err := e.storeCheck(ctx, ev); err != nil {
			return engine.Result{}, err
		}
	case e.logs[eventType], e.comments[eventType]:
		if err := e.storeLog(ctx, ev); err != nil {
			return engine.Result{}, err
		}
	}
	return engine.Forward(ev), nil
}

func (e *Engine) storeCheck(ctx context.Context, ev domain.Event) error {
	rk := ev.Key()
	id, err := e.archiver.CheckEvent(ctx, rk, ev)
	if err != nil {
		return err
	}

	if ev.Bool(domain.FieldDowntime) {
		end, ok := e.downtimes.Load().end(ev.String(domain.FieldComponent), ev.String(domain.FieldResource), e.now().Unix())
		if ok {
			ev[domain.FieldPreviousStateChangeTs] = end
		}
	}

	if id == "" {
		return nil
	}
	ev[domain.FieldID] = id
	ev[domain.FieldEventID] = rk
	return e.publishAlert(ctx, ev)
}

func (e *Engine) storeLog(ctx context.Context, ev domain.Event) error {
	rk := ev.Key()
	ev[domain.FieldID] = rk

	now := e.now()
	entry := ev.Clone()
	entry[domain.FieldID] = fmt.Sprintf("%s.%d.%06d", rk, now.Unix(), now.Nanosecond()/1000)
	entry[domain.FieldEventID] = rk
	entry.EnsureTimestamp(now)
	if err := e.history.Append(ctx, entry); err != nil {
		e.logger.Error("failed to flush history", "rk", rk, "error", err)
	}

	ev[domain.FieldEventID] = rk
	return e.publishAlert(ctx, ev)
}

func (e *Engine) publishAlert(ctx context.Context, ev domain.Event) error {
	if err := e.publisher.Publish(ctx, e.alertsTopic, ev); err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}
	return nil
}
