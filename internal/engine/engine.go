// Package engine runs pipeline workers. A worker handles one event at a time
// from its inbound topic and decides whether the event goes on to the next
// topics, to a rerouted topic, or nowhere. A periodic beat lets the worker
// reload its configuration without pausing event handling.
package engine

import (
	"context"

	"hyperwatch/internal/domain"
)

// Worker is one instance of a pipeline engine.
// Work and Beat may run concurrently; a worker swaps its configuration
// atomically so Work always sees a complete snapshot.
type Worker interface {
	// Name identifies the engine kind, e.g. "event_filter".
	Name() string

	// Work processes one event.
	Work(ctx context.Context, ev domain.Event) (Result, error)

	// Beat reloads configuration and runs periodic tasks.
	Beat(ctx context.Context) error
}

// Stopper is implemented by workers holding buffered state to flush on shutdown.
type Stopper interface {
	Stop(ctx context.Context) error
}

// Result is the outcome of Work.
type Result struct {
	// Event is the event to forward. Nil means the event is dropped.
	Event domain.Event

	// Route replaces the runner's next topics for this event when set.
	Route string
}

// Forward passes ev to the next topics.
func Forward(ev domain.Event) Result {
	return Result{Event: ev}
}

// Drop stops the event here.
func Drop() Result {
	return Result{}
}

// Route sends ev to topic instead of the next topics.
func Route(ev domain.Event, topic string) Result {
	return Result{Event: ev, Route: topic}
}

// Dropped reports whether the result forwards nothing.
func (r Result) Dropped() bool {
	return r.Event == nil
}

func (r Result) label() string {
	switch {
	case r.Dropped():
		return "drop"
	case r.Route != "":
		return "route"
	default:
		return "forward"
	}
}
