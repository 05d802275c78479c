package gostream

import "context"

// Origin supplies chunks to a source stage. Next returns the next chunk
// and true, or false once the origin is exhausted. A non-nil error stops
// the stream and fails the pipeline as an origin failure.
//
// Next is called from a single goroutine. Implementations should honour
// ctx cancellation when a call can block.
type Origin[T any] interface {
	Next(ctx context.Context) (T, bool, error)
}

// OriginFunc adapts a function to the Origin interface.
type OriginFunc[T any] func(ctx context.Context) (T, bool, error)

func (f OriginFunc[T]) Next(ctx context.Context) (T, bool, error) {
	return f(ctx)
}

// FromSlice returns an origin that yields each element of values in order,
// then reports end of stream.
func FromSlice[T any](values []T) Origin[T] {
	i := 0
	return OriginFunc[T](func(context.Context) (T, bool, error) {
		if i >= len(values) {
			var zero T
			return zero, false, nil
		}
		v := values[i]
		i++
		return v, true, nil
	})
}

// FromValues returns an origin that yields each value in order, then
// reports end of stream.
func FromValues[T any](values ...T) Origin[T] {
	return FromSlice(values)
}
