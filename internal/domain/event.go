// Package domain contains the core entities and value objects of hyperwatch.
// These models represent the language of the event processing pipeline:
// events, routing keys, alarm statuses, filter rules and runtime settings.
package domain

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mohae/deepcopy"
)

// Well-known event fields.
const (
	FieldID            = "_id"
	FieldRoutingKey    = "rk"
	FieldConnector     = "connector"
	FieldConnectorName = "connector_name"
	FieldEventType     = "event_type"
	FieldSourceType    = "source_type"
	FieldComponent     = "component"
	FieldResource      = "resource"
	FieldState         = "state"
	FieldStateType     = "state_type"
	FieldTimestamp     = "timestamp"
	FieldOutput        = "output"
	FieldHostgroups    = "hostgroups"
	FieldServicegroups = "servicegroups"
	FieldPerfData      = "perf_data_array"
	FieldEventID       = "event_id"
	FieldExchange      = "exchange"
	FieldDowntime      = "downtime"
)

// Source types.
const (
	SourceComponent = "component"
	SourceResource  = "resource"
)

// Event types handled specially by the pipeline.
const (
	EventTypeCheck    = "check"
	EventTypeAck      = "ack"
	EventTypeDowntime = "downtime"
)

// StateOK is the check state meaning "no problem".
const StateOK = 0

// State types.
const (
	StateTypeSoft = 0
	StateTypeHard = 1
)

// Validation errors for Event.
var (
	ErrMissingField      = errors.New("missing required field")
	ErrInvalidSourceType = errors.New("source_type must be 'component' or 'resource'")
)

// Event is an open, semi-structured monitoring record. Values are the JSON
// value kinds: string, number, bool, []any and map[string]any. Unknown fields
// are carried through every engine untouched.
type Event map[string]any

// Clone returns a deep copy of the event.
func (e Event) Clone() Event {
	if e == nil {
		return nil
	}
	return deepcopy.Copy(e).(Event)
}

// Has reports whether the field is present.
func (e Event) Has(field string) bool {
	_, ok := e[field]
	return ok
}

// String returns the field as a string, or "" when absent or not a string.
func (e Event) String(field string) string {
	s, _ := e[field].(string)
	return s
}

// Int returns the field as an integer. Numbers decoded from JSON arrive as
// float64; json.Number and numeric strings are accepted too.
func (e Event) Int(field string) (int64, bool) {
	return ToInt(e[field])
}

// IntOr returns the integer value of field or def when absent.
func (e Event) IntOr(field string, def int64) int64 {
	if v, ok := e.Int(field); ok {
		return v
	}
	return def
}

// Bool returns the truthiness of a field, following the loose rules used for
// stored flags: false, 0, "", nil, empty collections are false.
func (e Event) Bool(field string) bool {
	return Truthy(e[field])
}

// Strings returns a field holding a sequence of names.
func (e Event) Strings(field string) []string {
	switch v := e[field].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Map returns a nested map field.
func (e Event) Map(field string) (map[string]any, bool) {
	switch v := e[field].(type) {
	case map[string]any:
		return v, true
	case Event:
		return v, true
	default:
		return nil, false
	}
}

// PerfData returns the perf_data_array entries that are maps.
func (e Event) PerfData() []map[string]any {
	raw, ok := e[FieldPerfData].([]any)
	if !ok {
		if typed, ok := e[FieldPerfData].([]map[string]any); ok {
			return typed
		}
		return nil
	}
	out := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// Timestamp returns the event timestamp in epoch seconds.
func (e Event) Timestamp() int64 {
	return e.IntOr(FieldTimestamp, 0)
}

// EnsureTimestamp sets the timestamp to now when it is absent and returns it.
func (e Event) EnsureTimestamp(now time.Time) int64 {
	if ts, ok := e.Int(FieldTimestamp); ok {
		return ts
	}
	ts := now.Unix()
	e[FieldTimestamp] = ts
	return ts
}

// Validate checks the fields every pipeline stage relies on.
func (e Event) Validate() error {
	for _, field := range []string{FieldConnector, FieldConnectorName, FieldComponent, FieldEventType, FieldSourceType} {
		if e.String(field) == "" {
			return fmt.Errorf("%w: %s", ErrMissingField, field)
		}
	}
	switch e.String(FieldSourceType) {
	case SourceComponent:
	case SourceResource:
		if e.String(FieldResource) == "" {
			return fmt.Errorf("%w: %s", ErrMissingField, FieldResource)
		}
	default:
		return ErrInvalidSourceType
	}
	if e.String(FieldEventType) == EventTypeCheck {
		if _, ok := e.Int(FieldState); !ok {
			return fmt.Errorf("%w: %s", ErrMissingField, FieldState)
		}
	}
	return nil
}

// RoutingKey derives the identity string used for both message routing and
// storage keying: connector.connector_name.event_type.source_type.component[.resource].
func (e Event) RoutingKey() string {
	parts := []string{
		e.String(FieldConnector),
		e.String(FieldConnectorName),
		e.String(FieldEventType),
		e.String(FieldSourceType),
		e.String(FieldComponent),
	}
	if e.String(FieldSourceType) == SourceResource {
		parts = append(parts, e.String(FieldResource))
	}
	return strings.Join(parts, ".")
}

// RefreshRoutingKey recomputes the routing key and stores it in rk and _id.
func (e Event) RefreshRoutingKey() string {
	rk := e.RoutingKey()
	e[FieldRoutingKey] = rk
	e[FieldID] = rk
	return rk
}

// Key returns the carried routing key, computing it when absent.
func (e Event) Key() string {
	if rk := e.String(FieldRoutingKey); rk != "" {
		return rk
	}
	return e.RoutingKey()
}

// ToInt converts a JSON-ish number to int64.
func ToInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case float32:
		return int64(n), true
	case float64:
		return int64(n), true
	case interface{ Int64() (int64, error) }:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

// ToFloat converts any numeric value to float64.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint8:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case interface{ Float64() (float64, error) }:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// Truthy applies loose truthiness to a stored value.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	}
	if f, ok := ToFloat(v); ok {
		return f != 0 && !math.IsNaN(f)
	}
	return true
}

// ValuesEqual compares two event values, treating numbers of different Go
// types as equal when they hold the same value. Values read back from a store
// come as float64 while freshly computed ones are int64.
func ValuesEqual(a, b any) bool {
	if fa, ok := ToFloat(a); ok {
		if fb, ok := ToFloat(b); ok {
			return fa == fb
		}
		return false
	}
	switch ta := a.(type) {
	case []any:
		tb, ok := b.([]any)
		if !ok || len(ta) != len(tb) {
			return false
		}
		for i := range ta {
			if !ValuesEqual(ta[i], tb[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		tb, ok := asMap(b)
		if !ok || len(ta) != len(tb) {
			return false
		}
		for k, va := range ta {
			vb, ok := tb[k]
			if !ok || !ValuesEqual(va, vb) {
				return false
			}
		}
		return true
	case Event:
		return ValuesEqual(map[string]any(ta), b)
	}
	return reflect.DeepEqual(a, b)
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Event:
		return m, true
	}
	return nil, false
}
