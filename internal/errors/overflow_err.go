package errors

import "fmt"

type QueueOverflowError struct {
	capacity int
}

func NewQueueOverflowError(capacity int) *QueueOverflowError {
	return &QueueOverflowError{
		capacity: capacity,
	}
}

func (qoe *QueueOverflowError) Error() string {
	return fmt.Sprintf("event queue is full (capacity %d), event dropped", qoe.capacity)
}

func (qoe *QueueOverflowError) Capacity() int {
	return qoe.capacity
}

func (qoe *QueueOverflowError) Overflow() {}
