package store

import (
	"context"
	"errors"
)

// Routed sends each collection to its own backend, falling back to a
// default. It lets hot alarm records live in Redis while configuration,
// topology and history live in PostgreSQL.
type Routed struct {
	fallback RecordStore
	routes   map[string]RecordStore
}

// NewRouted creates a store that uses fallback for unrouted collections.
func NewRouted(fallback RecordStore, routes map[string]RecordStore) *Routed {
	if routes == nil {
		routes = make(map[string]RecordStore)
	}
	return &Routed{fallback: fallback, routes: routes}
}

func (r *Routed) pick(collection string) RecordStore {
	if s, ok := r.routes[collection]; ok {
		return s
	}
	return r.fallback
}

func (r *Routed) Find(ctx context.Context, collection string, filter Document, sort string) ([]Document, error) {
	return r.pick(collection).Find(ctx, collection, filter, sort)
}

func (r *Routed) Get(ctx context.Context, collection, id string) (Document, error) {
	return r.pick(collection).Get(ctx, collection, id)
}

func (r *Routed) Upsert(ctx context.Context, collection string, match, set Document) (string, error) {
	return r.pick(collection).Upsert(ctx, collection, match, set)
}

func (r *Routed) Update(ctx context.Context, collection, id string, set Document) error {
	return r.pick(collection).Update(ctx, collection, id, set)
}

func (r *Routed) Insert(ctx context.Context, collection string, docs ...Document) error {
	return r.pick(collection).Insert(ctx, collection, docs...)
}

func (r *Routed) Delete(ctx context.Context, collection, id string) error {
	return r.pick(collection).Delete(ctx, collection, id)
}

// Close closes every distinct backend once.
func (r *Routed) Close() error {
	seen := map[RecordStore]bool{}
	var errs []error
	for _, s := range append([]RecordStore{r.fallback}, values(r.routes)...) {
		if s == nil || seen[s] {
			continue
		}
		seen[s] = true
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func values(m map[string]RecordStore) []RecordStore {
	out := make([]RecordStore, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}
