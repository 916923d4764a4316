package queue

import (
	"sync"
	"sync/atomic"

	internal_errors "github.com/bricks-cloud/bricksmeter/internal/errors"
)

// Queue is a thread-safe bounded FIFO buffer. When full, Enqueue drops the
// incoming item instead of blocking or growing.
type Queue[T any] struct {
	mu       sync.Mutex
	data     []T
	capacity int
	dropped  atomic.Uint64
}

func New[T any](capacity int) (*Queue[T], error) {
	if capacity <= 0 {
		return nil, internal_errors.NewConfigurationError("must be greater than zero", "max queue size")
	}

	return &Queue[T]{
		data:     make([]T, 0, min(capacity, 1024)),
		capacity: capacity,
	}, nil
}

// Enqueue appends item to the tail and returns the resulting length.
// A full queue rejects the item with a QueueOverflowError.
func (q *Queue[T]) Enqueue(item T) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.data) >= q.capacity {
		q.dropped.Add(1)
		return len(q.data), internal_errors.NewQueueOverflowError(q.capacity)
	}

	q.data = append(q.data, item)
	return len(q.data), nil
}

// Drain removes and returns up to maxCount items from the head in insertion order.
// A non-positive maxCount drains everything. Concurrent drains never share items.
func (q *Queue[T]) Drain(maxCount int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.data) == 0 {
		return nil
	}

	n := len(q.data)
	if maxCount > 0 && maxCount < n {
		n = maxCount
	}

	drained := make([]T, n)
	copy(drained, q.data[:n])

	var zero T
	for i := 0; i < n; i++ {
		q.data[i] = zero
	}
	q.data = q.data[n:]

	if len(q.data) == 0 {
		q.data = q.data[:0:0]
	}

	return drained
}

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.data)
}

func (q *Queue[T]) Cap() int {
	return q.capacity
}

// Dropped reports how many items were rejected because the queue was full.
func (q *Queue[T]) Dropped() uint64 {
	return q.dropped.Load()
}
