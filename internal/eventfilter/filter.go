// Package eventfilter implements the filter rule engine. Rules are stored in
// the object collection, reloaded on every beat and evaluated in priority
// order; only drop and pass end the evaluation of an event.
package eventfilter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/mitchellh/mapstructure"

	"hyperwatch/internal/domain"
	"hyperwatch/internal/engine"
	"hyperwatch/internal/metrics"
	"hyperwatch/internal/mfilter"
	"hyperwatch/internal/store"
)

// Name is the engine name.
const Name = "event_filter"

// Publisher sends an event to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, ev domain.Event) error
}

type rule struct {
	domain.FilterRule
	match mfilter.Node
}

// snapshot is one complete configuration; it is replaced as a whole.
type snapshot struct {
	rules         []rule
	defaultAction domain.DefaultAction
}

// Filter is the filter engine worker.
type Filter struct {
	store      store.RecordStore
	publisher  Publisher
	statsTopic string
	interval   time.Duration
	hostname   string
	logger     *slog.Logger

	config atomic.Pointer[snapshot]
	passed atomic.Int64
	drops  atomic.Int64
}

// New creates a filter engine that passes everything until the first beat.
// Its statistics event is published to statsTopic on every beat.
func New(s store.RecordStore, publisher Publisher, statsTopic string, interval time.Duration, logger *slog.Logger) *Filter {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}
	f := &Filter{
		store:      s,
		publisher:  publisher,
		statsTopic: statsTopic,
		interval:   interval,
		hostname:   hostname,
		logger:     logger.With("engine", Name),
	}
	f.config.Store(&snapshot{defaultAction: domain.DefaultPass})
	return f
}

// Name returns the engine name.
func (f *Filter) Name() string { return Name }

// Counters returns the pass and drop counts since the last beat.
func (f *Filter) Counters() (passed, dropped int64) {
	return f.passed.Load(), f.drops.Load()
}

// Rules returns the names of the active rules in evaluation order.
func (f *Filter) Rules() []string {
	cfg := f.config.Load()
	names := make([]string, len(cfg.rules))
	for i, r := range cfg.rules {
		names[i] = r.Name
	}
	return names
}

// DefaultAction returns the active default action.
func (f *Filter) DefaultAction() domain.DefaultAction {
	return f.config.Load().defaultAction
}

// Beat reloads the configuration, then publishes the statistics event and
// resets the counters. A failed reload keeps the previous configuration.
func (f *Filter) Beat(ctx context.Context) error {
	err := f.reload(ctx)
	if serr := f.sendStats(ctx); serr != nil {
		f.logger.Error("failed to publish stat event", "error", serr)
	}
	return err
}

func (f *Filter) reload(ctx context.Context) error {
	def, err := f.loadDefaultAction(ctx)
	if err != nil {
		return err
	}

	docs, err := f.store.Find(ctx, store.CollectionObjects, store.Document{
		domain.FieldRecordType: domain.RecordTypeEventFilter,
	}, "priority")
	if err != nil {
		return fmt.Errorf("failed to load filter rules: %w", err)
	}

	rules := make([]rule, 0, len(docs))
	for _, doc := range docs {
		r, err := decodeRule(doc)
		if err != nil {
			f.logger.Error("skipping invalid filter rule", "id", doc[domain.FieldID], "error", err)
			continue
		}
		rules = append(rules, r)
	}

	f.config.Store(&snapshot{rules: rules, defaultAction: def})
	metrics.FilterRulesLoaded.Set(float64(len(rules)))
	f.logger.Info("filter configuration loaded", "rules", len(rules), "default_action", def)
	return nil
}

func (f *Filter) loadDefaultAction(ctx context.Context) (domain.DefaultAction, error) {
	docs, err := f.store.Find(ctx, store.CollectionObjects, store.Document{
		domain.FieldRecordType: domain.RecordTypeDefaultRule,
	}, "")
	if err != nil {
		return "", fmt.Errorf("failed to load default action: %w", err)
	}
	if len(docs) == 0 {
		f.logger.Debug("no default action found, assuming pass")
		return domain.DefaultPass, nil
	}

	action, _ := docs[0]["action"].(string)
	def := domain.DefaultAction(action)
	if !def.IsValid() {
		f.logger.Warn("invalid default action, assuming pass", "action", action)
		return domain.DefaultPass, nil
	}
	return def, nil
}

// decodeRule converts a stored rule document and parses its predicate.
func decodeRule(doc store.Document) (rule, error) {
	if m, ok := doc["mfilter"].(map[string]any); ok {
		raw, err := json.Marshal(m)
		if err != nil {
			return rule{}, fmt.Errorf("%w: %v", domain.ErrInvalidFilter, err)
		}
		doc = store.Merge(store.Merge(nil, doc), store.Document{"mfilter": string(raw)})
	}

	var fr domain.FilterRule
	if err := mapstructure.Decode(doc, &fr); err != nil {
		return rule{}, fmt.Errorf("failed to decode rule: %w", err)
	}
	if fr.Name == "" {
		fr.Name = "no_name"
	}

	node, err := mfilter.Parse(fr.Filter)
	if err != nil {
		return rule{}, err
	}
	return rule{FilterRule: fr, match: node}, nil
}

// Work evaluates the rules against ev.
func (f *Filter) Work(ctx context.Context, ev domain.Event) (engine.Result, error) {
	cfg := f.config.Load()
	rk := ev.Key()
	route := ""

	for _, r := range cfg.rules {
		if !r.match.Match(ev) {
			continue
		}
		f.logger.Debug("filter rule matches", "rk", rk, "rule", r.Name)

		for _, a := range r.Actions {
			switch a.Type {
			case domain.ActionOverride:
				if err := a.Validate(); err != nil {
					f.logger.Error("malformed action", "rule", r.Name, "error", err)
					continue
				}
				ev[a.Field] = a.Value
				f.logger.Debug("override", "rk", rk, "field", a.Field)

			case domain.ActionRemove:
				if err := remove(ev, a); err != nil {
					f.logger.Error("malformed action", "rule", r.Name, "error", err)
				}

			case domain.ActionDrop:
				f.drops.Add(1)
				metrics.FilterDecisionsTotal.WithLabelValues("drop", "rule").Inc()
				f.logger.Debug("event dropped by rule", "rk", rk, "rule", r.Name)
				return engine.Drop(), nil

			case domain.ActionPass:
				f.passed.Add(1)
				metrics.FilterDecisionsTotal.WithLabelValues("pass", "rule").Inc()
				ev.RefreshRoutingKey()
				f.logger.Debug("event passed by rule", "rk", rk, "rule", r.Name)
				return result(ev, route), nil

			case domain.ActionRoute:
				if err := a.Validate(); err != nil {
					f.logger.Error("malformed action", "rule", r.Name, "error", err)
					continue
				}
				route = a.Route
				f.logger.Debug("event rerouted by rule", "rk", rk, "rule", r.Name, "route", route)

			default:
				f.logger.Warn("unknown action", "rule", r.Name, "type", a.Type)
			}
		}
	}

	if cfg.defaultAction == domain.DefaultDrop {
		f.drops.Add(1)
		metrics.FilterDecisionsTotal.WithLabelValues("drop", "default").Inc()
		f.logger.Debug("event dropped by default action", "rk", rk)
		return engine.Drop(), nil
	}

	f.passed.Add(1)
	metrics.FilterDecisionsTotal.WithLabelValues("pass", "default").Inc()
	ev.RefreshRoutingKey()
	return result(ev, route), nil
}

func result(ev domain.Event, route string) engine.Result {
	if route != "" {
		return engine.Route(ev, route)
	}
	return engine.Forward(ev)
}

// sendStats publishes the pass/drop counters and resets them.
func (f *Filter) sendStats(ctx context.Context) error {
	passed := f.passed.Swap(0)
	dropped := f.drops.Swap(0)

	ev := domain.Event{
		domain.FieldConnector:     "Engine",
		domain.FieldConnectorName: "engine",
		domain.FieldEventType:     domain.EventTypeCheck,
		domain.FieldSourceType:    domain.SourceResource,
		domain.FieldComponent:     f.hostname,
		domain.FieldResource:      Name + "_data",
		domain.FieldState:         domain.StateOK,
		domain.FieldStateType:     domain.StateTypeHard,
		domain.FieldTimestamp:     time.Now().Unix(),
		domain.FieldOutput:        fmt.Sprintf("%d event dropped since %d", dropped, int64(f.interval.Seconds())),
		domain.FieldPerfData: []any{
			map[string]any{"metric": "pass_event", "value": passed, "type": "GAUGE"},
			map[string]any{"metric": "drop_event", "value": dropped, "type": "GAUGE"},
		},
	}
	ev.RefreshRoutingKey()

	f.logger.Debug("filter statistics", "passed", passed, "dropped", dropped)
	return f.publisher.Publish(ctx, f.statsTopic, ev)
}
