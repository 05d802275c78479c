package gostream

import (
	"context"
	"sync"
)

// Destination receives chunks from a sink stage. A non-nil error from
// Deliver fails the pipeline as a delivery failure; the core does not
// retry.
//
// Deliver is called from a single goroutine. Implementations should honour
// ctx cancellation when a call can block.
type Destination[T any] interface {
	Deliver(ctx context.Context, chunk T) error
}

// DestinationFunc adapts a function to the Destination interface.
type DestinationFunc[T any] func(ctx context.Context, chunk T) error

func (f DestinationFunc[T]) Deliver(ctx context.Context, chunk T) error {
	return f(ctx, chunk)
}

// Discard returns a destination that accepts and drops every chunk.
func Discard[T any]() Destination[T] {
	return DestinationFunc[T](func(context.Context, T) error {
		return nil
	})
}

// Collector is a destination that accumulates delivered chunks in memory.
// It is safe for concurrent use and handy in tests and small jobs.
type Collector[T any] struct {
	mu     sync.Mutex
	values []T
}

// NewCollector creates an empty Collector.
func NewCollector[T any]() *Collector[T] {
	return &Collector[T]{}
}

func (c *Collector[T]) Deliver(_ context.Context, chunk T) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values = append(c.values, chunk)
	return nil
}

// Values returns a copy of the chunks delivered so far, in delivery order.
func (c *Collector[T]) Values() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]T, len(c.values))
	copy(out, c.values)
	return out
}

// Len returns the number of chunks delivered so far.
func (c *Collector[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.values)
}
