package queue

import (
	"sync"
)

// Deque is a thread-safe ring buffer that doubles its capacity when it
// reaches 70% full. Items can be added at either end and are removed from
// the head.
type Deque[T any] struct {
	mu       sync.Mutex
	cond     *sync.Cond
	buf      []T
	head     int // read position
	tail     int // write position
	count    int
	capacity int
	closed   bool

	// Stats
	totalPushed   int64
	totalPopped   int64
	totalPromoted int64
	resizeCount   int
}

// New creates a new deque with the given initial capacity.
func New[T any](initialCapacity int) *Deque[T] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	d := &Deque[T]{
		buf:      make([]T, initialCapacity),
		capacity: initialCapacity,
	}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// PushBack appends an item at the tail.
// Returns false if the deque is closed.
func (d *Deque[T]) PushBack(item T) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return false
	}
	d.growIfNeeded()

	d.buf[d.tail] = item
	d.tail = (d.tail + 1) % d.capacity
	d.count++
	d.totalPushed++

	d.cond.Signal()
	return true
}

// PushFront inserts an item at the head, ahead of everything already queued.
// Returns false if the deque is closed.
func (d *Deque[T]) PushFront(item T) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return false
	}
	d.growIfNeeded()

	d.head = (d.head - 1 + d.capacity) % d.capacity
	d.buf[d.head] = item
	d.count++
	d.totalPushed++
	d.totalPromoted++

	d.cond.Signal()
	return true
}

// Receive removes and returns the head item.
// Blocks until an item is available or the deque is closed.
// Returns the item and true, or zero value and false if closed and empty.
func (d *Deque[T]) Receive() (T, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for d.count == 0 && !d.closed {
		d.cond.Wait()
	}

	if d.count == 0 {
		var zero T
		return zero, false
	}
	return d.popLocked(), true
}

// PopFront removes the head item without blocking.
// Returns the item and true if available, or zero value and false otherwise.
func (d *Deque[T]) PopFront() (T, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.count == 0 {
		var zero T
		return zero, false
	}
	return d.popLocked(), true
}

// TryReceive is PopFront under the name the batch writers use.
func (d *Deque[T]) TryReceive() (T, bool) {
	return d.PopFront()
}

// Close closes the deque. After closing, pushes return false.
// Receivers get the remaining items, then the closed signal.
func (d *Deque[T]) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = true
	d.cond.Broadcast()
}

// Len returns the current number of items.
func (d *Deque[T]) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.count
}

// Cap returns the current capacity.
func (d *Deque[T]) Cap() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.capacity
}

// Stats returns deque statistics.
func (d *Deque[T]) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Stats{
		Count:         d.count,
		Capacity:      d.capacity,
		TotalPushed:   d.totalPushed,
		TotalPopped:   d.totalPopped,
		TotalPromoted: d.totalPromoted,
		ResizeCount:   d.resizeCount,
	}
}

// Stats contains deque statistics.
type Stats struct {
	Count         int
	Capacity      int
	TotalPushed   int64
	TotalPopped   int64
	TotalPromoted int64 // items inserted with PushFront
	ResizeCount   int
}

// DrainTo removes up to max items from the head (all of them if max <= 0).
func (d *Deque[T]) DrainTo(max int) []T {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.count == 0 {
		return nil
	}

	n := d.count
	if max > 0 && max < n {
		n = max
	}

	result := make([]T, n)
	for i := 0; i < n; i++ {
		result[i] = d.popLocked()
	}
	return result
}

// popLocked removes the head item. Must be called with lock held and count > 0.
func (d *Deque[T]) popLocked() T {
	item := d.buf[d.head]
	var zero T
	d.buf[d.head] = zero // Clear reference for GC
	d.head = (d.head + 1) % d.capacity
	d.count--
	d.totalPopped++
	return item
}

// growIfNeeded doubles the capacity when adding one more item would reach 70%.
// Must be called with lock held.
func (d *Deque[T]) growIfNeeded() {
	threshold := (d.capacity * 70) / 100
	if threshold < 1 {
		threshold = 1
	}
	if d.count+1 < threshold && d.count < d.capacity {
		return
	}

	newCapacity := d.capacity * 2
	newBuf := make([]T, newCapacity)

	// Copy in logical order so head lands at index 0.
	for i := 0; i < d.count; i++ {
		newBuf[i] = d.buf[(d.head+i)%d.capacity]
	}

	d.buf = newBuf
	d.head = 0
	d.tail = d.count
	d.capacity = newCapacity
	d.resizeCount++
}
