package gostream

import (
	"io"
	"sync"
)

// Default high-water marks, in occupancy units.
const (
	// DefaultByteCapacity is the default capacity when a size function
	// measures chunks, typically in bytes.
	DefaultByteCapacity = 64 * 1024
	// DefaultObjectCapacity is the default capacity when every chunk
	// counts as one.
	DefaultObjectCapacity = 100
)

// BufferConfig configures a Buffer.
type BufferConfig[T any] struct {
	// Capacity is the high-water mark at which backpressure engages.
	// Zero selects DefaultByteCapacity when Size is set, otherwise
	// DefaultObjectCapacity. Negative capacity panics.
	Capacity int

	// Size measures the occupancy cost of a chunk. Nil means every
	// chunk costs one unit (object mode). ByteLen is the usual choice
	// for []byte chunks.
	Size func(T) int
}

func (c BufferConfig[T]) applyDefaults() BufferConfig[T] {
	if c.Capacity == 0 {
		if c.Size == nil {
			c.Capacity = DefaultObjectCapacity
		} else {
			c.Capacity = DefaultByteCapacity
		}
	}
	return c
}

// ByteLen measures a []byte chunk by its length, for use as
// BufferConfig.Size in byte mode.
func ByteLen(p []byte) int { return len(p) }

// Buffer is a bounded FIFO queue connecting one producer to one consumer.
// It carries chunks plus a terminal end-of-stream or error marker, and it
// owns the backpressure signal between the two stages.
//
// TryPush reports whether occupancy stayed below capacity so the producer
// can pause itself; AwaitDrain blocks that producer until a pop drops
// occupancy below capacity again. Pop blocks the consumer while the buffer
// is empty and not terminated. Chunks queued before a terminal marker
// remain drainable; the marker is only surfaced once the queue is empty.
//
// The zero value is not usable; create buffers with NewBuffer.
type Buffer[T any] struct {
	mu       sync.Mutex
	notEmpty sync.Cond // a chunk or terminal marker arrived
	belowCap sync.Cond // occupancy dropped below capacity, or terminal

	queue    []T
	capacity int
	size     func(T) int
	occupied int
	peak     int

	ended bool
	err   error
}

// NewBuffer creates a Buffer from cfg. It panics if cfg.Capacity is
// negative.
func NewBuffer[T any](cfg BufferConfig[T]) *Buffer[T] {
	cfg = cfg.applyDefaults()
	if cfg.Capacity < 0 {
		panic("gostream: buffer capacity must not be negative")
	}
	b := &Buffer[T]{
		capacity: cfg.Capacity,
		size:     cfg.Size,
	}
	b.notEmpty.L = &b.mu
	b.belowCap.L = &b.mu
	return b
}

func (b *Buffer[T]) chunkSize(chunk T) int {
	if b.size == nil {
		return 1
	}
	if n := b.size(chunk); n > 0 {
		return n
	}
	return 0
}

// TryPush appends chunk and reports whether occupancy is still below
// capacity after the push. A false report is the producer's cue to pause
// and wait for AwaitDrain. TryPush never blocks: the one chunk that trips
// the buffer over capacity is still admitted.
//
// It returns ErrBufferClosed if a terminal marker was already recorded.
func (b *Buffer[T]) TryPush(chunk T) (below bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ended || b.err != nil {
		return false, ErrBufferClosed
	}

	b.queue = append(b.queue, chunk)
	b.occupied += b.chunkSize(chunk)
	if b.occupied > b.peak {
		b.peak = b.occupied
	}
	b.notEmpty.Signal()

	return b.occupied < b.capacity, nil
}

// Pop removes and returns the oldest chunk, blocking while the buffer is
// empty and not terminated. Once the queue is drained it returns io.EOF
// after MarkEnd, or the recorded error after MarkError.
//
// A pop that drops occupancy from at-or-over capacity to below capacity
// emits the drain signal that wakes AwaitDrain.
func (b *Buffer[T]) Pop() (T, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var zero T
	for len(b.queue) == 0 {
		if b.err != nil {
			return zero, b.err
		}
		if b.ended {
			return zero, io.EOF
		}
		b.notEmpty.Wait()
	}

	chunk := b.queue[0]
	b.queue[0] = zero
	b.queue = b.queue[1:]

	wasAtCapacity := b.occupied >= b.capacity
	b.occupied -= b.chunkSize(chunk)
	if wasAtCapacity && b.occupied < b.capacity {
		b.belowCap.Signal()
	}

	return chunk, nil
}

// AwaitDrain blocks until occupancy is below capacity. It returns nil when
// the producer may push again, the recorded error after MarkError, or
// ErrBufferClosed after MarkEnd. Spurious wakeups re-check the occupancy
// predicate, so a stale signal cannot admit a push over capacity.
func (b *Buffer[T]) AwaitDrain() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for b.occupied >= b.capacity {
		if b.err != nil {
			return b.err
		}
		if b.ended {
			return ErrBufferClosed
		}
		b.belowCap.Wait()
	}
	if b.err != nil {
		return b.err
	}
	if b.ended {
		return ErrBufferClosed
	}
	return nil
}

// MarkEnd records end-of-stream. It is idempotent and loses to an earlier
// terminal marker. Queued chunks remain drainable before Pop surfaces
// io.EOF.
func (b *Buffer[T]) MarkEnd() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ended || b.err != nil {
		return
	}
	b.ended = true
	b.notEmpty.Broadcast()
	b.belowCap.Broadcast()
}

// MarkError records err as the buffer's terminal error. It is idempotent
// and loses to an earlier terminal marker. A nil err is equivalent to
// MarkEnd. Queued chunks remain drainable before Pop surfaces err.
func (b *Buffer[T]) MarkError(err error) {
	if err == nil {
		b.MarkEnd()
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ended || b.err != nil {
		return
	}
	b.err = err
	b.notEmpty.Broadcast()
	b.belowCap.Broadcast()
}

// Len returns the number of queued chunks.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Occupancy returns the current occupancy in size units.
func (b *Buffer[T]) Occupancy() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.occupied
}

// PeakOccupancy returns the highest occupancy observed since creation.
// Bounded-memory expectation: never more than Capacity plus the size of
// the single chunk that tripped the buffer over.
func (b *Buffer[T]) PeakOccupancy() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.peak
}

// Capacity returns the configured high-water mark.
func (b *Buffer[T]) Capacity() int {
	return b.capacity
}

// Terminated reports whether a terminal marker has been recorded. Queued
// chunks may still be drainable.
func (b *Buffer[T]) Terminated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ended || b.err != nil
}

// Err returns the recorded terminal error, or nil after MarkEnd or while
// the buffer is open.
func (b *Buffer[T]) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}
