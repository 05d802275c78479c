package gostream

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

// gatedOrigin produces values sent on its feed channel and ends when the
// channel is closed, blocking on ctx in between. Tests use it to observe
// exactly when the stage asks for the next chunk.
type gatedOrigin[T any] struct {
	feed  chan T
	pulls chan struct{}
}

func newGatedOrigin[T any]() *gatedOrigin[T] {
	return &gatedOrigin[T]{feed: make(chan T), pulls: make(chan struct{}, 64)}
}

func (g *gatedOrigin[T]) Next(ctx context.Context) (T, bool, error) {
	g.pulls <- struct{}{}
	select {
	case v, ok := <-g.feed:
		return v, ok, nil
	case <-ctx.Done():
		var zero T
		return zero, false, ctx.Err()
	}
}

func drainPop[T any](t *testing.T, b *Buffer[T]) ([]T, error) {
	t.Helper()
	var got []T
	for {
		v, err := b.Pop()
		if errors.Is(err, io.EOF) {
			return got, nil
		}
		if err != nil {
			return got, err
		}
		got = append(got, v)
	}
}

func TestSource_ProducesAllThenEnds(t *testing.T) {
	src := NewSource(FromValues(1, 2, 3), SourceConfig[int]{Capacity: 10})

	done := make(chan error, 1)
	go func() { done <- src.Run(context.Background()) }()

	got, err := drainPop(t, src.Out())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("expected [1 2 3], got %v", got)
	}

	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if state := src.State(); state != StateEnded {
		t.Errorf("expected StateEnded, got %v", state)
	}
	if stats := src.Stats(); stats.Produced != 3 {
		t.Errorf("expected 3 produced, got %d", stats.Produced)
	}
}

func TestSource_PausesAtCapacity(t *testing.T) {
	origin := newGatedOrigin[string]()
	src := NewSource[string](origin, SourceConfig[string]{Capacity: 1})

	done := make(chan error, 1)
	go func() { done <- src.Run(context.Background()) }()

	<-origin.pulls
	origin.feed <- "a" // fills the buffer, source must pause

	select {
	case <-origin.pulls:
		t.Fatal("source pulled again while its buffer was at capacity")
	case <-time.After(100 * time.Millisecond):
	}
	if state := src.State(); state != StatePaused {
		t.Errorf("expected StatePaused, got %v", state)
	}

	if v, err := src.Out().Pop(); err != nil || v != "a" {
		t.Fatalf("Pop: %v, %v", v, err)
	}

	// The drain signal resumes the source; it pulls again.
	select {
	case <-origin.pulls:
	case <-time.After(time.Second):
		t.Fatal("source did not resume after drain")
	}

	close(origin.feed)
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	stats := src.Stats()
	if stats.Pauses != 1 || stats.Resumes != 1 {
		t.Errorf("expected 1 pause and 1 resume, got %d/%d", stats.Pauses, stats.Resumes)
	}
}

func TestSource_OriginErrorFailsStream(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	origin := OriginFunc[int](func(context.Context) (int, bool, error) {
		calls++
		if calls < 3 {
			return calls, true, nil
		}
		return 0, false, boom
	})

	src := NewSource[int](origin, SourceConfig[int]{Capacity: 10})

	done := make(chan error, 1)
	go func() { done <- src.Run(context.Background()) }()

	got, err := drainPop(t, src.Out())
	if len(got) != 2 {
		t.Fatalf("expected chunks before the failure to drain, got %v", got)
	}
	if !errors.Is(err, ErrOrigin) || !errors.Is(err, boom) {
		t.Fatalf("expected origin error wrapping boom, got %v", err)
	}

	runErr := <-done
	if !errors.Is(runErr, ErrOrigin) || !errors.Is(runErr, boom) {
		t.Fatalf("Run: expected origin error wrapping boom, got %v", runErr)
	}
	var perr *PipelineError
	if !errors.As(runErr, &perr) || perr.Stage != StageSource {
		t.Fatalf("expected source-attributed PipelineError, got %v", runErr)
	}
	if state := src.State(); state != StateFailed {
		t.Errorf("expected StateFailed, got %v", state)
	}
}

func TestSource_CancelWhilePulling(t *testing.T) {
	origin := newGatedOrigin[int]()
	src := NewSource[int](origin, SourceConfig[int]{Capacity: 1})

	done := make(chan error, 1)
	go func() { done <- src.Run(context.Background()) }()

	<-origin.pulls // source is blocked in Next
	src.Cancel()

	select {
	case err := <-done:
		if !errors.Is(err, ErrCancelled) {
			t.Fatalf("expected ErrCancelled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Cancel")
	}

	// Downstream observes the cancellation through the buffer.
	if _, err := src.Out().Pop(); !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled from buffer, got %v", err)
	}
}

func TestSource_CancelWhilePaused(t *testing.T) {
	origin := newGatedOrigin[int]()
	src := NewSource[int](origin, SourceConfig[int]{Capacity: 1})

	done := make(chan error, 1)
	go func() { done <- src.Run(context.Background()) }()

	<-origin.pulls
	origin.feed <- 1 // at capacity, source pauses

	time.Sleep(20 * time.Millisecond)
	src.Cancel()

	select {
	case err := <-done:
		if !errors.Is(err, ErrCancelled) {
			t.Fatalf("expected ErrCancelled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Cancel while paused")
	}
}

func TestSource_CancelBeforeRun(t *testing.T) {
	src := NewSource(FromValues(1), SourceConfig[int]{})
	src.Cancel()

	if err := src.Run(context.Background()); !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if _, err := src.Out().Pop(); !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected terminated buffer, got %v", err)
	}
}

func TestSource_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	origin := newGatedOrigin[int]()
	src := NewSource[int](origin, SourceConfig[int]{})

	done := make(chan error, 1)
	go func() { done <- src.Run(ctx) }()

	<-origin.pulls
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, ErrCancelled) || !errors.Is(err, context.Canceled) {
			t.Fatalf("expected cancellation error, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestSource_RunTwice(t *testing.T) {
	src := NewSource(FromValues(1), SourceConfig[int]{})

	done := make(chan error, 1)
	go func() { done <- src.Run(context.Background()) }()

	if _, err := drainPop(t, src.Out()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	<-done

	if err := src.Run(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestSource_PanicInOrigin(t *testing.T) {
	origin := OriginFunc[int](func(context.Context) (int, bool, error) {
		panic("origin exploded")
	})
	src := NewSource[int](origin, SourceConfig[int]{})

	err := src.Run(context.Background())
	if !errors.Is(err, ErrOrigin) {
		t.Fatalf("expected origin failure, got %v", err)
	}
	var rerr *RecoveryError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected RecoveryError in chain, got %v", err)
	}
	if rerr.PanicValue != "origin exploded" {
		t.Errorf("unexpected panic value %v", rerr.PanicValue)
	}
}
