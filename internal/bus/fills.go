package bus

import (
	"context"
	"sync"

	"main/internal/schema"
)

// FillQueue is a bounded queue of fill notifications drained by a single
// consumer, which serializes fill application per order. Unlike tick lanes
// fills are not droppable: Publish blocks until there is room or the
// context is done.
type FillQueue struct {
	// mu orders Publish against Close the same way the tick lanes do.
	mu     sync.RWMutex
	ch     chan schema.Fill
	closed bool
}

// NewFillQueue allocates a fill queue with the given capacity.
func NewFillQueue(capacity int) *FillQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &FillQueue{ch: make(chan schema.Fill, capacity)}
}

// Publish enqueues a fill, blocking while the queue is full. Safe to call
// concurrently with Close; Close waits out in-flight publishes.
func (q *FillQueue) Publish(ctx context.Context, fill schema.Fill) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case q.ch <- fill:
		return nil
	}
}

// Close stops the queue from accepting new fills.
func (q *FillQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}

// Len returns the number of buffered fills.
func (q *FillQueue) Len() int {
	return len(q.ch)
}

// Run consumes fills until the context is done or the queue is closed.
func (q *FillQueue) Run(ctx context.Context, handler func(schema.Fill)) {
	for {
		select {
		case <-ctx.Done():
			return
		case fill, ok := <-q.ch:
			if !ok {
				return
			}
			handler(fill)
		}
	}
}
