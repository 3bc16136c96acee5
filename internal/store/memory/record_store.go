// Package memory provides in-memory implementations of store interfaces.
// These are useful for testing and development without external dependencies.
package memory

import (
	"context"
	"sync"

	"github.com/mohae/deepcopy"

	"hyperwatch/internal/domain"
	"hyperwatch/internal/store"
)

// RecordStore is an in-memory implementation of the store.RecordStore interface.
// Documents are deep-copied on the way in and out so callers never share
// nested maps with the store.
type RecordStore struct {
	mu sync.RWMutex

	// collections maps collection -> id -> document
	collections map[string]map[string]store.Document
}

// NewRecordStore creates a new in-memory record store.
func NewRecordStore() *RecordStore {
	return &RecordStore{
		collections: make(map[string]map[string]store.Document),
	}
}

func clone(doc store.Document) store.Document {
	if doc == nil {
		return nil
	}
	return deepcopy.Copy(doc).(store.Document)
}

// collection returns the named collection, creating it. Caller holds the write lock.
func (s *RecordStore) collection(name string) map[string]store.Document {
	c, ok := s.collections[name]
	if !ok {
		c = make(map[string]store.Document)
		s.collections[name] = c
	}
	return c
}

// Find returns matching documents, ordered by sort when set.
func (s *RecordStore) Find(ctx context.Context, collection string, filter store.Document, sort string) ([]store.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []store.Document
	for _, doc := range s.collections[collection] {
		if store.Matches(doc, filter) {
			out = append(out, clone(doc))
		}
	}
	// Ties on sort keep id order, matching the SQL store.
	store.SortBy(out, domain.FieldID)
	store.SortBy(out, sort)
	return out, nil
}

// Get retrieves a document by id.
func (s *RecordStore) Get(ctx context.Context, collection, id string) (store.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return clone(doc), nil
}

// Upsert inserts or merges the document identified by match.
func (s *RecordStore) Upsert(ctx context.Context, collection string, match, set store.Document) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := store.DocumentID(match)
	c := s.collection(collection)
	doc, ok := c[id]
	if !ok {
		doc = store.Merge(clone(match), nil)
		doc[domain.FieldID] = id
	}
	c[id] = store.Merge(doc, clone(set))
	return id, nil
}

// Update merges set into an existing document.
func (s *RecordStore) Update(ctx context.Context, collection, id string, set store.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return domain.ErrNotFound
	}
	store.Merge(doc, clone(set))
	return nil
}

// Insert stores whole documents, replacing existing ones with the same _id.
func (s *RecordStore) Insert(ctx context.Context, collection string, docs ...store.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.collection(collection)
	for _, doc := range docs {
		id, err := store.IDOf(doc)
		if err != nil {
			return err
		}
		c[id] = clone(doc)
	}
	return nil
}

// Delete removes a document.
func (s *RecordStore) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[collection][id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.collections[collection], id)
	return nil
}

// Count returns the number of documents in a collection.
func (s *RecordStore) Count(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection])
}

// Close is a no-op for the in-memory store.
func (s *RecordStore) Close() error {
	return nil
}
