package store

import (
	"context"
	"errors"
	"time"

	"hyperwatch/internal/domain"
	"hyperwatch/internal/metrics"
)

// Instrumented records latency and outcome of every operation of a store.
type Instrumented struct {
	next RecordStore
}

// NewInstrumented wraps next.
func NewInstrumented(next RecordStore) *Instrumented {
	return &Instrumented{next: next}
}

func observe(collection, operation string, start time.Time, err error) {
	metrics.StorageOperationLatency.WithLabelValues(collection, operation).Observe(time.Since(start).Seconds())
	status := "success"
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		status = "failure"
	}
	metrics.StorageOperationsTotal.WithLabelValues(collection, operation, status).Inc()
}

func (s *Instrumented) Find(ctx context.Context, collection string, filter Document, sort string) ([]Document, error) {
	start := time.Now()
	docs, err := s.next.Find(ctx, collection, filter, sort)
	observe(collection, "find", start, err)
	return docs, err
}

func (s *Instrumented) Get(ctx context.Context, collection, id string) (Document, error) {
	start := time.Now()
	doc, err := s.next.Get(ctx, collection, id)
	observe(collection, "get", start, err)
	return doc, err
}

func (s *Instrumented) Upsert(ctx context.Context, collection string, match, set Document) (string, error) {
	start := time.Now()
	id, err := s.next.Upsert(ctx, collection, match, set)
	observe(collection, "upsert", start, err)
	return id, err
}

func (s *Instrumented) Update(ctx context.Context, collection, id string, set Document) error {
	start := time.Now()
	err := s.next.Update(ctx, collection, id, set)
	observe(collection, "update", start, err)
	return err
}

func (s *Instrumented) Insert(ctx context.Context, collection string, docs ...Document) error {
	start := time.Now()
	err := s.next.Insert(ctx, collection, docs...)
	observe(collection, "insert", start, err)
	return err
}

func (s *Instrumented) Delete(ctx context.Context, collection, id string) error {
	start := time.Now()
	err := s.next.Delete(ctx, collection, id)
	observe(collection, "delete", start, err)
	return err
}

func (s *Instrumented) Close() error {
	return s.next.Close()
}
