// Package topology implements the identity resolver engine. For every event
// it upserts the topology entities the event refers to: connector, component
// or resource, host and service groups, downtimes, acks and metrics.
package topology

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/mitchellh/mapstructure"

	"hyperwatch/internal/domain"
	"hyperwatch/internal/engine"
	"hyperwatch/internal/metrics"
	"hyperwatch/internal/store"
)

// Name is the engine name.
const Name = "entities"

// Entity types.
const (
	TypeConnector    = "connector"
	TypeComponent    = "component"
	TypeResource     = "resource"
	TypeHostgroup    = "hostgroup"
	TypeServicegroup = "servicegroup"
	TypeDowntime     = "downtime"
	TypeAck          = "ack"
	TypeMetric       = "metric"
)

// Upsert is one set-if-absent-else-merge write keyed by Match.
type Upsert struct {
	Type  string
	Match store.Document
	Set   store.Document
}

// Resolve computes the entity upserts for ev. It does no I/O, so resolving
// the same event twice yields the same upserts.
func Resolve(ev domain.Event, macro domain.SLAMacro) []Upsert {
	macro = macro.WithDefaults()

	connector := ev.String(domain.FieldConnector)
	connectorName := ev.String(domain.FieldConnectorName)
	component := ev.String(domain.FieldComponent)
	resource := ev[domain.FieldResource]
	hostgroups := ev.Strings(domain.FieldHostgroups)
	servicegroups := ev.Strings(domain.FieldServicegroups)

	var out []Upsert

	connMatch := store.Document{"type": TypeConnector, "connector": connector, "name": connectorName}
	out = append(out, Upsert{Type: TypeConnector, Match: connMatch, Set: copyDoc(connMatch)})

	switch ev.String(domain.FieldSourceType) {
	case domain.SourceComponent:
		set := statusEntity(ev, macro, connector, connectorName, hostgroups)
		set["type"] = TypeComponent
		set["name"] = component
		out = append(out, Upsert{
			Type:  TypeComponent,
			Match: store.Document{"type": TypeComponent, "name": component},
			Set:   set,
		})
	case domain.SourceResource:
		name := ev.String(domain.FieldResource)
		set := statusEntity(ev, macro, connector, connectorName, hostgroups)
		set["type"] = TypeResource
		set["name"] = name
		set["component"] = component
		set["servicegroups"] = toAny(servicegroups)
		out = append(out, Upsert{
			Type:  TypeResource,
			Match: store.Document{"type": TypeResource, "name": name, "component": component},
			Set:   set,
		})
	}

	for _, hg := range hostgroups {
		m := store.Document{"type": TypeHostgroup, "name": hg}
		out = append(out, Upsert{Type: TypeHostgroup, Match: m, Set: copyDoc(m)})
	}
	for _, sg := range servicegroups {
		m := store.Document{"type": TypeServicegroup, "name": sg}
		out = append(out, Upsert{Type: TypeServicegroup, Match: m, Set: copyDoc(m)})
	}

	switch ev.String(domain.FieldEventType) {
	case domain.EventTypeDowntime:
		match := store.Document{
			"type":      TypeDowntime,
			"component": component,
			"resource":  resource,
			"id":        ev["downtime_id"],
		}
		set := copyDoc(match)
		set["connector"] = connector
		set["connector_name"] = connectorName
		set["author"] = ev["author"]
		set["comment"] = ev[domain.FieldOutput]
		for _, f := range []string{"start", "end", "duration", "fixed", "entry"} {
			set[f] = ev[f]
		}
		out = append(out, Upsert{Type: TypeDowntime, Match: match, Set: set})
	case domain.EventTypeAck:
		match := store.Document{
			"type":           TypeAck,
			"timestamp":      ev[domain.FieldTimestamp],
			"connector":      connector,
			"connector_name": connectorName,
			"component":      component,
			"resource":       resource,
		}
		set := copyDoc(match)
		set["author"] = ev["author"]
		set["comment"] = ev[domain.FieldOutput]
		out = append(out, Upsert{Type: TypeAck, Match: match, Set: set})
	}

	for _, perf := range ev.PerfData() {
		metric, _ := perf["metric"].(string)
		if metric == "" {
			continue
		}
		nodeID := MetricID(component, ev.String(domain.FieldResource), metric)
		perftype, _ := perf["type"].(string)
		if perftype == "" {
			perftype = "GAUGE"
		}
		out = append(out, Upsert{
			Type:  TypeMetric,
			Match: store.Document{"type": TypeMetric, "nodeid": nodeID},
			Set: store.Document{
				"type":           TypeMetric,
				"connector":      connector,
				"connector_name": connectorName,
				"component":      component,
				"resource":       resource,
				"name":           metric,
				"nodeid":         nodeID,
				"internal":       strings.HasPrefix(metric, "cps"),
				"last":           []any{ev[domain.FieldTimestamp], perf["value"]},
				"min":            perf["min"],
				"max":            perf["max"],
				"warn":           perf["warn"],
				"crit":           perf["crit"],
				"unit":           perf["unit"],
				"perftype":       perftype,
			},
		})
	}

	return out
}

// MetricID is the stable identity of a metric: a digest of its component,
// optional resource and name.
func MetricID(component, resource, metric string) string {
	h := md5.New()
	h.Write([]byte(component))
	h.Write([]byte(resource))
	h.Write([]byte(metric))
	return hex.EncodeToString(h.Sum(nil))
}

func statusEntity(ev domain.Event, macro domain.SLAMacro, connector, connectorName string, hostgroups []string) store.Document {
	return store.Document{
		"connector":      connector,
		"connector_name": connectorName,
		"hostgroups":     toAny(hostgroups),
		"mCrit":          ev[macro.Crit],
		"mWarn":          ev[macro.Warn],
	}
}

func copyDoc(d store.Document) store.Document {
	return store.Merge(nil, d)
}

func toAny(names []string) []any {
	out := make([]any, len(names))
	for i, n := range names {
		out[i] = n
	}
	return out
}

// Resolver is the entities engine worker.
type Resolver struct {
	store  store.RecordStore
	macro  atomic.Pointer[domain.SLAMacro]
	logger *slog.Logger
}

// New creates a resolver using the default SLA macro until the first beat.
func New(s store.RecordStore, logger *slog.Logger) *Resolver {
	r := &Resolver{store: s, logger: logger.With("engine", Name)}
	def := domain.DefaultSLAMacro()
	r.macro.Store(&def)
	return r
}

// Name returns the engine name.
func (r *Resolver) Name() string { return Name }

// Macro returns the SLA macro in effect.
func (r *Resolver) Macro() domain.SLAMacro { return *r.macro.Load() }

// Beat reloads the SLA macro record. A missing record restores the defaults;
// a read failure keeps the macro in effect.
func (r *Resolver) Beat(ctx context.Context) error {
	docs, err := r.store.Find(ctx, store.CollectionObjects, store.Document{
		domain.FieldRecordType: domain.SLAMacroName,
		"objclass":             "macro",
	}, "")
	if err != nil {
		return fmt.Errorf("failed to load sla macro: %w", err)
	}

	macro := domain.DefaultSLAMacro()
	if len(docs) > 0 {
		var m domain.SLAMacro
		if err := mapstructure.Decode(docs[0], &m); err != nil {
			r.logger.Warn("malformed sla macro, using defaults", "error", err)
		} else {
			macro = m.WithDefaults()
		}
	}
	r.macro.Store(&macro)
	return nil
}

// Work upserts the entities of ev and always forwards it. Upsert failures
// are logged and never hold the event back.
func (r *Resolver) Work(ctx context.Context, ev domain.Event) (engine.Result, error) {
	st := ev.String(domain.FieldSourceType)
	if st != domain.SourceComponent && st != domain.SourceResource {
		r.logger.Warn("unknown source_type, no status entity", "rk", ev.Key(), "source_type", st)
	}

	for _, u := range Resolve(ev, r.Macro()) {
		if _, err := r.store.Upsert(ctx, store.CollectionEntities, u.Match, u.Set); err != nil {
			metrics.EntityUpsertsTotal.WithLabelValues(u.Type, "failure").Inc()
			r.logger.Error("failed to upsert entity", "rk", ev.Key(), "type", u.Type, "error", err)
			continue
		}
		metrics.EntityUpsertsTotal.WithLabelValues(u.Type, "success").Inc()
	}
	return engine.Forward(ev), nil
}
