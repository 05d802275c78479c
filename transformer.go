package gostream

import "context"

// Transformer turns one input chunk into zero or more output chunks.
// Returning an empty slice filters the chunk out; returning several
// splits it. A non-nil error fails the pipeline as a transform failure.
//
// Transform is called from a single goroutine. A transformer must not
// retain chunks across calls unless it is deliberately stateful; stateful
// transformers implement Flusher so carried state is emitted when the
// input ends.
type Transformer[In, Out any] interface {
	Transform(ctx context.Context, in In) ([]Out, error)
}

// TransformFunc adapts a function to the Transformer interface.
type TransformFunc[In, Out any] func(ctx context.Context, in In) ([]Out, error)

func (f TransformFunc[In, Out]) Transform(ctx context.Context, in In) ([]Out, error) {
	return f(ctx, in)
}

// Flusher is implemented by stateful transformers that carry residue
// between Transform calls, such as a line splitter holding a partial
// line. Flush is called exactly once, after the upstream end of stream,
// and its outputs are pushed downstream before the stage signals its own
// end.
type Flusher[Out any] interface {
	Flush(ctx context.Context) ([]Out, error)
}

// Map returns a transformer that applies handle to each chunk, producing
// exactly one output per input.
func Map[In, Out any](handle func(In) Out) Transformer[In, Out] {
	return TransformFunc[In, Out](func(_ context.Context, in In) ([]Out, error) {
		return []Out{handle(in)}, nil
	})
}

// Filter returns a transformer that passes through chunks for which
// handle returns true and drops the rest.
func Filter[T any](handle func(T) bool) Transformer[T, T] {
	return TransformFunc[T, T](func(_ context.Context, in T) ([]T, error) {
		if !handle(in) {
			return nil, nil
		}
		return []T{in}, nil
	})
}
