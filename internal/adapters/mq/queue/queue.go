// Package queue holds watch requests until a worker is free to poll them.
package queue

import (
	"context"
	"sync"

	"github.com/okian/bowlsense/internal/domain/model"
	"github.com/okian/bowlsense/pkg/metrics"
)

const defaultCapacity = 64

// Request is the payload type flowing through the queue.
type Request = model.WatchRequest

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a request. It returns false when the queue is full,
	// closed or ctx is done.
	Enqueue(ctx context.Context, r Request) bool

	// Next blocks for the next request. It returns false once the queue is
	// closed and drained or ctx is done.
	Next(ctx context.Context) (Request, bool)

	// Len returns the number of waiting requests.
	Len() int

	// Close stops accepting requests. Waiting requests are still delivered.
	Close() error

	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	requests chan Request
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.requests = make(chan Request, q.capacity)
	metrics.UpdateQueueSize(0)
	return q
}

// Enqueue adds a request to the queue without blocking.
func (q *InMemoryQueue) Enqueue(ctx context.Context, r Request) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed || ctx.Err() != nil {
		metrics.RecordQueueRejected()
		return false
	}

	select {
	case q.requests <- r:
		metrics.UpdateQueueSize(len(q.requests))
		return true
	default:
		metrics.RecordQueueRejected()
		return false
	}
}

// Next receives straight from the shared buffer, so a request is only
// taken by a consumer that is ready to handle it.
func (q *InMemoryQueue) Next(ctx context.Context) (Request, bool) {
	select {
	case <-ctx.Done():
		return Request{}, false
	case r, ok := <-q.requests:
		if !ok {
			return Request{}, false
		}
		metrics.UpdateQueueSize(len(q.requests))
		return r, true
	}
}

// Len returns the current number of queued requests.
func (q *InMemoryQueue) Len() int {
	return len(q.requests)
}

// Close gracefully shuts down the queue.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.requests)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
