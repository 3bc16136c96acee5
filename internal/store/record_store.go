// Package store defines the durable record store used by the pipeline engines.
// Implementations (Redis, PostgreSQL, in-memory) are interchangeable per
// collection without changing engine logic.
package store

import (
	"context"
)

// Collections used by the pipeline.
const (
	// CollectionObjects holds configuration records: filter rules, the default
	// filter action, the state-spec and the SLA macro.
	CollectionObjects = "object"
	// CollectionEntities holds the topology graph.
	CollectionEntities = "entities"
	// CollectionAlarms holds one alarm record per routing key.
	CollectionAlarms = "events"
	// CollectionHistory holds immutable history entries.
	CollectionHistory = "events_log"
)

// Document is a stored record. Field values are JSON value kinds.
type Document = map[string]any

// RecordStore defines durable document operations keyed by collection and id.
// All methods must be safe for concurrent use.
type RecordStore interface {
	// Find returns the documents whose fields equal every field of filter,
	// ordered ascending by the sort field when it is not empty.
	Find(ctx context.Context, collection string, filter Document, sort string) ([]Document, error)

	// Get returns one document. Returns domain.ErrNotFound when it does not exist.
	Get(ctx context.Context, collection, id string) (Document, error)

	// Upsert inserts match+set when no document is identified by match, else
	// merges set into the existing document. The id is match["_id"] when
	// present, else a digest of match. Returns the document id.
	Upsert(ctx context.Context, collection string, match, set Document) (string, error)

	// Update merges set into an existing document.
	// Returns domain.ErrNotFound when it does not exist.
	Update(ctx context.Context, collection, id string, set Document) error

	// Insert stores whole documents keyed by their _id, replacing any
	// document with the same id.
	Insert(ctx context.Context, collection string, docs ...Document) error

	// Delete removes a document. Returns domain.ErrNotFound when it does not exist.
	Delete(ctx context.Context, collection, id string) error

	// Close releases any resources held by the store.
	Close() error
}
