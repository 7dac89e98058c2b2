package serial

import (
	"sync"

	"go.uber.org/atomic"
)

// RingBuffer is a fixed-capacity circular byte queue. It is safe for
// concurrent use; every operation holds the buffer's mutex for its own
// duration only, so a Len result is advisory by the time the caller acts on it.
type RingBuffer struct {
	mu      sync.Mutex
	storage []byte
	front   int
	count   int

	stopRequested atomic.Bool
}

// NewRingBuffer returns an empty buffer holding at most capacity bytes.
// It panics if capacity is not positive.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		panic("serial: ring buffer capacity must be positive")
	}
	return &RingBuffer{storage: make([]byte, capacity)}
}

// Push appends b, or returns ErrOverflow if the buffer is full
func (rb *RingBuffer) Push(b byte) error {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.count == len(rb.storage) {
		return ErrOverflow
	}
	rb.storage[(rb.front+rb.count)%len(rb.storage)] = b
	rb.count++
	return nil
}

// Pop removes and returns the oldest byte, or returns ErrUnderflow if the
// buffer is empty
func (rb *RingBuffer) Pop() (byte, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.count == 0 {
		return 0, ErrUnderflow
	}
	b := rb.storage[rb.front]
	rb.front = (rb.front + 1) % len(rb.storage)
	rb.count--
	return b, nil
}

// PopInto moves up to len(p) bytes into p under a single lock acquisition and
// returns how many were moved. It never fails; an empty buffer yields 0.
func (rb *RingBuffer) PopInto(p []byte) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	n := 0
	for n < len(p) && rb.count > 0 {
		p[n] = rb.storage[rb.front]
		rb.front = (rb.front + 1) % len(rb.storage)
		rb.count--
		n++
	}
	return n
}

// Len returns the number of buffered bytes
func (rb *RingBuffer) Len() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.count
}

// Cap returns the fixed capacity
func (rb *RingBuffer) Cap() int {
	return len(rb.storage)
}

// Free returns how many bytes can be pushed before overflow
func (rb *RingBuffer) Free() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return len(rb.storage) - rb.count
}

// Clear discards all buffered bytes
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.count = 0
	rb.front = 0
}

// RequestStop marks the buffer as shutting down. Background loops observe it
// on their next iteration.
func (rb *RingBuffer) RequestStop() {
	rb.stopRequested.Store(true)
}

// StopRequested reports whether RequestStop has been called
func (rb *RingBuffer) StopRequested() bool {
	return rb.stopRequested.Load()
}

// withLock runs fn while holding the buffer's mutex. fn must not call back
// into rb.
func (rb *RingBuffer) withLock(fn func()) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	fn()
}
