package gostream

import "context"

// Batcher is a stateful transformer that groups consecutive chunks into
// slices of a fixed size. The trailing partial batch is carried as
// residue and emitted on Flush when the input ends. Chunk order is
// preserved within and across batches.
type Batcher[T any] struct {
	size  int
	batch []T
}

// NewBatcher creates a Batcher emitting batches of the given size. It
// panics if size is not positive.
func NewBatcher[T any](size int) *Batcher[T] {
	if size <= 0 {
		panic("gostream: batch size must be positive")
	}
	return &Batcher[T]{
		size:  size,
		batch: make([]T, 0, size),
	}
}

// Transform appends chunk to the current batch and emits the batch once
// it reaches the configured size.
func (b *Batcher[T]) Transform(_ context.Context, chunk T) ([][]T, error) {
	b.batch = append(b.batch, chunk)
	if len(b.batch) < b.size {
		return nil, nil
	}
	full := b.batch
	b.batch = make([]T, 0, b.size)
	return [][]T{full}, nil
}

// Flush emits the partial batch, if any. The batch is cleared so the
// batcher can be reused.
func (b *Batcher[T]) Flush(context.Context) ([][]T, error) {
	if len(b.batch) == 0 {
		return nil, nil
	}
	partial := b.batch
	b.batch = make([]T, 0, b.size)
	return [][]T{partial}, nil
}

// Unbatch returns a transformer that unpacks slices, emitting each
// element individually in order.
func Unbatch[T any]() Transformer[[]T, T] {
	return TransformFunc[[]T, T](func(_ context.Context, batch []T) ([]T, error) {
		return batch, nil
	})
}
