package archiver

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"hyperwatch/internal/metrics"
	"hyperwatch/internal/store"
)

// LogBuffer batches history entries before writing them to the history
// collection. Entries are written in the order they were appended.
type LogBuffer struct {
	store  store.RecordStore
	amount int
	delay  time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	entries   []store.Document
	lastFlush time.Time
}

// NewLogBuffer creates a buffer flushed once it holds amount entries or its
// oldest flush is older than delay.
func NewLogBuffer(s store.RecordStore, amount int, delay time.Duration, logger *slog.Logger) *LogBuffer {
	if amount < 1 {
		amount = 1
	}
	return &LogBuffer{
		store:     s,
		amount:    amount,
		delay:     delay,
		logger:    logger,
		now:       time.Now,
		lastFlush: time.Now(),
	}
}

// Append queues an entry and flushes when a bound is reached.
func (b *LogBuffer) Append(ctx context.Context, entry store.Document) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries = append(b.entries, entry)
	if len(b.entries) >= b.amount || b.now().Sub(b.lastFlush) > b.delay {
		return b.flushLocked(ctx)
	}
	return nil
}

// Flush writes every queued entry.
func (b *LogBuffer) Flush(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushLocked(ctx)
}

// Len returns the number of queued entries.
func (b *LogBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// flushLocked keeps the entries queued when the write fails so the next
// flush retries them in order.
func (b *LogBuffer) flushLocked(ctx context.Context) error {
	b.lastFlush = b.now()
	if len(b.entries) == 0 {
		return nil
	}
	if err := b.store.Insert(ctx, store.CollectionHistory, b.entries...); err != nil {
		return fmt.Errorf("failed to flush %d history entries: %w", len(b.entries), err)
	}
	metrics.HistoryFlushSize.Observe(float64(len(b.entries)))
	b.logger.Debug("history flushed", "entries", len(b.entries))
	b.entries = nil
	return nil
}
