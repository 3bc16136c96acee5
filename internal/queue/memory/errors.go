package memory

import "errors"

// ErrQueueClosed is returned when attempting to publish to a closed queue.
var ErrQueueClosed = errors.New("queue is closed")

// ErrQueueFull is returned when a topic without consumers has no buffer left.
var ErrQueueFull = errors.New("queue is full")
