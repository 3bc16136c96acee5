package memory

import (
	"context"
	"sync"

	"hyperwatch/internal/queue"
)

// Broker routes published messages to per-topic partitions. The partition of
// a message is chosen from its key, so one consumer sees every message of a
// given key in order.
type Broker struct {
	partitions int
	bufferSize int

	mu       sync.Mutex
	topics   map[string][]*Queue
	consumed map[string]bool
	closed   bool
}

// NewBroker creates a broker with the given number of partitions per topic.
func NewBroker(partitions, bufferSize int) *Broker {
	if partitions < 1 {
		partitions = 1
	}
	return &Broker{
		partitions: partitions,
		bufferSize: bufferSize,
		topics:     make(map[string][]*Queue),
		consumed:   make(map[string]bool),
	}
}

// Partitions returns the number of partitions per topic.
func (b *Broker) Partitions() int {
	return b.partitions
}

func (b *Broker) topic(name string, consume bool) ([]*Queue, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, false, ErrQueueClosed
	}
	if consume {
		b.consumed[name] = true
	}
	parts, ok := b.topics[name]
	if !ok {
		parts = make([]*Queue, b.partitions)
		for i := range parts {
			parts[i] = NewQueue(b.bufferSize)
		}
		b.topics[name] = parts
	}
	return parts, b.consumed[name], nil
}

// Publish sends the message to the partition of its key. It waits for buffer
// space only on topics that have a consumer; on other topics it fails with
// ErrQueueFull instead of blocking the publisher forever.
func (b *Broker) Publish(ctx context.Context, msg *queue.Message) error {
	parts, consumed, err := b.topic(msg.Topic, false)
	if err != nil {
		return err
	}
	q := parts[queue.Partition(msg.Key, len(parts))]
	if !consumed {
		return q.TryPublish(msg)
	}
	return q.Publish(ctx, msg)
}

// Consumer returns the queue of one partition of a topic.
func (b *Broker) Consumer(topic string, partition int) (*Queue, error) {
	parts, _, err := b.topic(topic, true)
	if err != nil {
		return nil, err
	}
	return parts[partition%len(parts)], nil
}

// Close closes every partition of every topic.
func (b *Broker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	var all []*Queue
	for _, parts := range b.topics {
		all = append(all, parts...)
	}
	b.mu.Unlock()

	for _, q := range all {
		_ = q.Close()
	}
	return nil
}

// Len returns the number of messages waiting on a topic.
func (b *Broker) Len(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, q := range b.topics[topic] {
		n += q.Len()
	}
	return n
}
