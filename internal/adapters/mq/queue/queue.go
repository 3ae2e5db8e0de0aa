// Package queue defines the contract for enqueuing and consuming frame events.
//
// Frames are routed to a partition by hashing their session id, so all
// frames of one session are consumed by a single reader in arrival order.
package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/okian/posemon/internal/domain/model"
	"github.com/okian/posemon/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 10_000
	defaultPartitions    = 1
)

// Event represents the payload type flowing through the queue.
type Event = model.FrameEvent

// Queue provides non-blocking enqueue and per-partition channel dequeue.
type Queue interface {
	// Enqueue adds an event to its session's partition.
	// Returns ErrFull when the partition is full and ErrClosed after Close.
	Enqueue(ctx context.Context, e Event) error

	// Dequeue returns a channel that receives the events of one partition.
	// The channel is closed when the queue is closed and drained, or ctx ends.
	Dequeue(ctx context.Context, partition int) <-chan Event

	// Partitions returns the number of partitions.
	Partitions() int

	// Len returns the current number of queued events across partitions.
	Len(ctx context.Context) int

	// Close stops accepting events. Queued events are still delivered.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue with one buffered channel per partition.
type InMemoryQueue struct {
	parts      []chan Event
	capacity   int
	partitions int
	size       atomic.Int64

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity:   defaultQueueCapacity,
		partitions: defaultPartitions,
	}
	for _, opt := range opts {
		opt(q)
	}

	per := (q.capacity + q.partitions - 1) / q.partitions
	q.parts = make([]chan Event, q.partitions)
	for i := range q.parts {
		q.parts[i] = make(chan Event, per)
	}

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	metrics.UpdateQueueUtilization(0.0)

	return q
}

// PartitionFor returns the partition a session is routed to.
func (q *InMemoryQueue) PartitionFor(sessionID string) int {
	return int(xxhash.Sum64String(sessionID) % uint64(q.partitions))
}

// Partitions returns the number of partitions.
func (q *InMemoryQueue) Partitions() int { return q.partitions }

// Enqueue adds an event to its session's partition without blocking.
func (q *InMemoryQueue) Enqueue(ctx context.Context, e Event) error { //nolint:gocritic // hugeParam: Event must be passed by value for channel semantics
	start := time.Now()
	defer func() {
		metrics.RecordQueueProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "closed")
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return err
	}

	select {
	case q.parts[q.PartitionFor(e.SessionID)] <- e:
		metrics.RecordQueueEnqueue()
		q.updateSize(q.size.Add(1))
		return nil
	default:
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "queue_full")
		return ErrFull
	}
}

// Dequeue returns a channel that will receive the events of one partition.
// An out of range partition yields a closed channel.
func (q *InMemoryQueue) Dequeue(ctx context.Context, partition int) <-chan Event {
	out := make(chan Event)
	if partition < 0 || partition >= len(q.parts) {
		close(out)
		return out
	}
	src := q.parts[partition]
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-src:
				if !ok {
					return
				}
				q.updateSize(q.size.Add(-1))
				select {
				case out <- event:
					metrics.RecordQueueDequeue()
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// Len returns the current number of queued events.
func (q *InMemoryQueue) Len(_ context.Context) int {
	n := 0
	for _, p := range q.parts {
		n += len(p)
	}
	q.updateSize(int64(n))
	return n
}

// Close gracefully shuts down the queue.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	for _, p := range q.parts {
		close(p)
	}
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

func (q *InMemoryQueue) updateSize(size int64) {
	if size < 0 {
		size = 0
	}
	metrics.UpdateQueueSize(int(size))
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
}
