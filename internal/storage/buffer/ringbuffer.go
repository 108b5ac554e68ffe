// Package buffer provides a bounded FIFO used to keep the most recent
// samples of a running capture.
package buffer

import (
	"sync"
	"sync/atomic"
)

// RingBuffer is a thread-safe circular buffer.
type RingBuffer[T any] struct {
	mu       sync.RWMutex
	data     []T
	head     int64 // Next write position
	tail     int64 // Oldest data position
	count    int64
	capacity int64

	pushCount atomic.Int64
	dropCount atomic.Int64
}

// DefaultCapacity is used when New is given a non-positive capacity.
const DefaultCapacity = 1024

// New creates a RingBuffer holding up to capacity items.
func New[T any](capacity int) *RingBuffer[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &RingBuffer[T]{
		data:     make([]T, capacity),
		capacity: int64(capacity),
	}
}

// Push adds v. It returns false, and drops v, when the buffer is full.
func (rb *RingBuffer[T]) Push(v T) bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.count >= rb.capacity {
		rb.dropCount.Add(1)
		return false
	}
	rb.put(v)
	return true
}

// PushOverwrite adds v, evicting the oldest item when the buffer is full.
// It reports whether an item was evicted.
func (rb *RingBuffer[T]) PushOverwrite(v T) bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	evicted := false
	if rb.count >= rb.capacity {
		var zero T
		rb.data[rb.tail%rb.capacity] = zero
		rb.tail++
		rb.count--
		rb.dropCount.Add(1)
		evicted = true
	}
	rb.put(v)
	return evicted
}

func (rb *RingBuffer[T]) put(v T) {
	rb.data[rb.head%rb.capacity] = v
	rb.head++
	rb.count++
	rb.pushCount.Add(1)
}

// Pop removes and returns the oldest item.
func (rb *RingBuffer[T]) Pop() (T, bool) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	var zero T
	if rb.count == 0 {
		return zero, false
	}
	idx := rb.tail % rb.capacity
	v := rb.data[idx]
	rb.data[idx] = zero
	rb.tail++
	rb.count--
	return v, true
}

// Snapshot returns the buffered items from oldest to newest without
// removing them.
func (rb *RingBuffer[T]) Snapshot() []T {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	out := make([]T, rb.count)
	for i := int64(0); i < rb.count; i++ {
		out[i] = rb.data[(rb.tail+i)%rb.capacity]
	}
	return out
}

// PeekNewest returns the newest item without removing it.
func (rb *RingBuffer[T]) PeekNewest() (T, bool) {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if rb.count == 0 {
		var zero T
		return zero, false
	}
	return rb.data[(rb.head-1)%rb.capacity], true
}

// Len returns the number of buffered items.
func (rb *RingBuffer[T]) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return int(rb.count)
}

// Cap returns the capacity.
func (rb *RingBuffer[T]) Cap() int {
	return int(rb.capacity)
}

// IsFull reports whether the next Push would fail.
func (rb *RingBuffer[T]) IsFull() bool {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.count >= rb.capacity
}

// Clear removes every item.
func (rb *RingBuffer[T]) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	var zero T
	for i := range rb.data {
		rb.data[i] = zero
	}
	rb.head, rb.tail, rb.count = 0, 0, 0
}

// Stats returns buffer statistics.
func (rb *RingBuffer[T]) Stats() Stats {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	return Stats{
		Capacity:   int(rb.capacity),
		Count:      int(rb.count),
		UsageRatio: float64(rb.count) / float64(rb.capacity),
		PushCount:  rb.pushCount.Load(),
		DropCount:  rb.dropCount.Load(),
	}
}

// Stats holds buffer statistics. DropCount counts both rejected pushes
// and evictions.
type Stats struct {
	Capacity   int
	Count      int
	UsageRatio float64
	PushCount  int64
	DropCount  int64
}
