// Package datawindow provides a fixed-capacity ring buffer that keeps the
// most recent values in insertion order.
package datawindow

import "sync"

// Window holds at most Cap values; pushing onto a full window evicts the oldest.
type Window[T any] struct {
	mu    sync.RWMutex
	data  []T
	head  int // index of the oldest value once full
	limit int
}

// New creates a window with the given capacity. Capacities below 1 become 1.
func New[T any](capacity int) *Window[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Window[T]{data: make([]T, 0, capacity), limit: capacity}
}

// FromSlice creates a window and pushes every value in order.
func FromSlice[T any](capacity int, values []T) *Window[T] {
	w := New[T](capacity)
	for _, v := range values {
		w.Push(v)
	}
	return w
}

// Push appends v, evicting the oldest value when full.
func (w *Window[T]) Push(v T) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.data) < w.limit {
		w.data = append(w.data, v)
		return
	}
	w.data[w.head] = v
	w.head = (w.head + 1) % w.limit
}

// Get returns the i-th oldest value. It panics when i is out of range.
func (w *Window[T]) Get(i int) T {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if i < 0 || i >= len(w.data) {
		panic("datawindow: index out of range")
	}
	return w.data[(w.head+i)%len(w.data)]
}

// Len returns the number of values held.
func (w *Window[T]) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.data)
}

// Cap returns the window capacity.
func (w *Window[T]) Cap() int {
	return w.limit
}

// Data returns the values oldest first.
func (w *Window[T]) Data() []T {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]T, len(w.data))
	for i := range w.data {
		out[i] = w.data[(w.head+i)%len(w.data)]
	}
	return out
}

// Reset drops every value.
func (w *Window[T]) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.data = w.data[:0]
	w.head = 0
}
