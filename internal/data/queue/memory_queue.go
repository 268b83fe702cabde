package queue

import (
	"context"
	"io"
	"sync"
	"time"

	"snapgraph/internal/core/ports"
)

var _ ports.ApplyQueue = (*MemoryQueue)(nil)

// MemoryQueue is a bounded FIFO of apply requests. Enqueue never blocks: a
// path that is already waiting is coalesced, and a full or closed queue drops
// the request.
type MemoryQueue struct {
	ch chan ports.ApplyRequest

	mu      sync.Mutex
	pending map[string]struct{}
	closed  bool
}

func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &MemoryQueue{
		ch:      make(chan ports.ApplyRequest, capacity),
		pending: make(map[string]struct{}),
	}
}

func (q *MemoryQueue) Enqueue(req ports.ApplyRequest) ports.EnqueueResult {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ports.EnqueueDropped
	}
	if _, ok := q.pending[req.Path]; ok {
		return ports.EnqueueCoalesced
	}
	if req.QueuedAt.IsZero() {
		req.QueuedAt = time.Now()
	}
	select {
	case q.ch <- req:
		q.pending[req.Path] = struct{}{}
		return ports.EnqueueAccepted
	default:
		return ports.EnqueueDropped
	}
}

// DequeueBatch waits up to wait for a first request, then takes whatever else
// is immediately available up to maxItems. A zero wait never blocks.
func (q *MemoryQueue) DequeueBatch(ctx context.Context, maxItems int, wait time.Duration) ([]ports.ApplyRequest, error) {
	if maxItems <= 0 {
		maxItems = 1
	}
	batch := make([]ports.ApplyRequest, 0, maxItems)

	first, err := q.first(ctx, wait)
	if err != nil || first == nil {
		return nil, err
	}
	batch = append(batch, *first)

	for len(batch) < maxItems {
		select {
		case req, ok := <-q.ch:
			if !ok {
				q.release(batch)
				return batch, io.EOF
			}
			batch = append(batch, req)
		default:
			q.release(batch)
			return batch, nil
		}
	}
	q.release(batch)
	return batch, nil
}

func (q *MemoryQueue) first(ctx context.Context, wait time.Duration) (*ports.ApplyRequest, error) {
	select {
	case req, ok := <-q.ch:
		if !ok {
			return nil, io.EOF
		}
		return &req, nil
	default:
	}
	if wait <= 0 {
		return nil, nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case req, ok := <-q.ch:
		if !ok {
			return nil, io.EOF
		}
		return &req, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, nil
	}
}

// release makes dequeued paths eligible for enqueueing again.
func (q *MemoryQueue) release(batch []ports.ApplyRequest) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, req := range batch {
		delete(q.pending, req.Path)
	}
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	close(q.ch)
	return nil
}

func (q *MemoryQueue) Len() int {
	if q == nil {
		return 0
	}
	return len(q.ch)
}
