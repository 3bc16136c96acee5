package domain

import (
	"errors"
	"fmt"
)

// Record types stored in the object collection.
const (
	RecordTypeEventFilter = "event_filter"
	RecordTypeDefaultRule = "defaultrule"
	RecordTypeStateSpec   = "state-spec"
	FieldRecordType       = "crecord_type"
	FieldRecordName       = "crecord_name"
	SLAMacroName          = "sla"
)

// ActionType names a rule action.
type ActionType string

const (
	ActionOverride ActionType = "override"
	ActionRemove   ActionType = "remove"
	ActionDrop     ActionType = "drop"
	ActionPass     ActionType = "pass"
	ActionRoute    ActionType = "route"
)

// Validation errors for FilterRule.
var (
	ErrMalformedAction     = errors.New("malformed action")
	ErrInvalidFilter       = errors.New("invalid filter")
	ErrInvalidDefault      = errors.New("default action must be 'pass' or 'drop'")
	ErrEmptyFilterRuleName = errors.New("name is required")
	ErrNoActions           = errors.New("at least one action is required")
)

// Action is one step of a filter rule. Only the fields relevant to Type are
// set; the rest stay at their zero value.
type Action struct {
	Type ActionType `json:"type" mapstructure:"type"`

	// override
	Field string `json:"field,omitempty" mapstructure:"field"`
	Value any    `json:"value,omitempty" mapstructure:"value"`

	// remove
	Key     string `json:"key,omitempty" mapstructure:"key"`
	Element any    `json:"element,omitempty" mapstructure:"element"`
	Met     any    `json:"met,omitempty" mapstructure:"met"`

	// route
	Route string `json:"route,omitempty" mapstructure:"route"`
}

// Validate checks that the action carries the fields its type needs.
func (a *Action) Validate() error {
	switch a.Type {
	case ActionOverride:
		if a.Field == "" || a.Value == nil {
			return fmt.Errorf("%w: override needs field and value", ErrMalformedAction)
		}
	case ActionRemove:
		if a.Key == "" {
			return fmt.Errorf("%w: remove needs key", ErrMalformedAction)
		}
	case ActionRoute:
		if a.Route == "" {
			return fmt.Errorf("%w: route needs route", ErrMalformedAction)
		}
	}
	return nil
}

// FilterRule is an ordered entry of the filter rule engine.
type FilterRule struct {
	ID       string `json:"id" mapstructure:"_id"`
	Name     string `json:"name" mapstructure:"name"`
	Priority int    `json:"priority" mapstructure:"priority"`

	// Filter is the stored predicate text, a JSON document.
	Filter string `json:"mfilter" mapstructure:"mfilter"`

	Actions []Action `json:"actions" mapstructure:"actions"`
}

// Validate checks the rule before it is stored through the API.
func (r *FilterRule) Validate() error {
	if r.Name == "" {
		return ErrEmptyFilterRuleName
	}
	if r.Filter == "" {
		return fmt.Errorf("%w: mfilter is required", ErrInvalidFilter)
	}
	if len(r.Actions) == 0 {
		return ErrNoActions
	}
	return nil
}

// Document returns the rule as a record of the object collection.
func (r *FilterRule) Document() map[string]any {
	actions := make([]any, 0, len(r.Actions))
	for _, a := range r.Actions {
		doc := map[string]any{"type": string(a.Type)}
		if a.Field != "" {
			doc["field"] = a.Field
		}
		if a.Value != nil {
			doc["value"] = a.Value
		}
		if a.Key != "" {
			doc["key"] = a.Key
		}
		if a.Element != nil {
			doc["element"] = a.Element
		}
		if a.Met != nil {
			doc["met"] = a.Met
		}
		if a.Route != "" {
			doc["route"] = a.Route
		}
		actions = append(actions, doc)
	}
	return map[string]any{
		FieldID:         r.ID,
		FieldRecordType: RecordTypeEventFilter,
		"name":          r.Name,
		"priority":      r.Priority,
		"mfilter":       r.Filter,
		"actions":       actions,
	}
}

// DefaultAction applies when no rule ends evaluation.
type DefaultAction string

const (
	DefaultPass DefaultAction = "pass"
	DefaultDrop DefaultAction = "drop"
)

// IsValid returns true for pass and drop.
func (d DefaultAction) IsValid() bool {
	return d == DefaultPass || d == DefaultDrop
}
