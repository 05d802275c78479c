package gostream

import (
	"errors"
	"io"
	"testing"
	"time"
)

func TestBuffer_PushPopOrder(t *testing.T) {
	b := NewBuffer(BufferConfig[int]{Capacity: 10})

	for i := 1; i <= 5; i++ {
		if _, err := b.TryPush(i); err != nil {
			t.Fatalf("TryPush(%d): %v", i, err)
		}
	}
	b.MarkEnd()

	var got []int
	for {
		v, err := b.Pop()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Pop: %v", err)
		}
		got = append(got, v)
	}

	if len(got) != 5 {
		t.Fatalf("expected 5 chunks, got %v", got)
	}
	for i, v := range got {
		if v != i+1 {
			t.Errorf("expected %d at position %d, got %d", i+1, i, v)
		}
	}
}

func TestBuffer_TryPushReportsCapacity(t *testing.T) {
	t.Run("object mode", func(t *testing.T) {
		b := NewBuffer(BufferConfig[string]{Capacity: 2})

		below, err := b.TryPush("a")
		if err != nil || !below {
			t.Fatalf("first push: below=%v err=%v, want below=true", below, err)
		}
		below, err = b.TryPush("b")
		if err != nil || below {
			t.Fatalf("second push: below=%v err=%v, want below=false", below, err)
		}
	})

	t.Run("byte mode", func(t *testing.T) {
		b := NewBuffer(BufferConfig[[]byte]{Capacity: 8, Size: ByteLen})

		below, err := b.TryPush([]byte("abcd"))
		if err != nil || !below {
			t.Fatalf("4 bytes of 8: below=%v err=%v, want below=true", below, err)
		}
		// The push that trips the buffer over capacity is still admitted.
		below, err = b.TryPush([]byte("efghij"))
		if err != nil || below {
			t.Fatalf("10 bytes of 8: below=%v err=%v, want below=false", below, err)
		}
		if occ := b.Occupancy(); occ != 10 {
			t.Errorf("expected occupancy 10, got %d", occ)
		}
	})
}

func TestBuffer_TryPushAfterTerminal(t *testing.T) {
	t.Run("after end", func(t *testing.T) {
		b := NewBuffer(BufferConfig[int]{})
		b.MarkEnd()
		if _, err := b.TryPush(1); !errors.Is(err, ErrBufferClosed) {
			t.Fatalf("expected ErrBufferClosed, got %v", err)
		}
	})

	t.Run("after error", func(t *testing.T) {
		b := NewBuffer(BufferConfig[int]{})
		b.MarkError(errors.New("boom"))
		if _, err := b.TryPush(1); !errors.Is(err, ErrBufferClosed) {
			t.Fatalf("expected ErrBufferClosed, got %v", err)
		}
	})
}

func TestBuffer_PopDrainsBeforeTerminal(t *testing.T) {
	t.Run("end of stream", func(t *testing.T) {
		b := NewBuffer(BufferConfig[int]{})
		b.TryPush(1)
		b.TryPush(2)
		b.MarkEnd()

		if v, err := b.Pop(); err != nil || v != 1 {
			t.Fatalf("Pop: %v, %v", v, err)
		}
		if v, err := b.Pop(); err != nil || v != 2 {
			t.Fatalf("Pop: %v, %v", v, err)
		}
		if _, err := b.Pop(); !errors.Is(err, io.EOF) {
			t.Fatalf("expected io.EOF, got %v", err)
		}
	})

	t.Run("error", func(t *testing.T) {
		boom := errors.New("boom")
		b := NewBuffer(BufferConfig[int]{})
		b.TryPush(1)
		b.MarkError(boom)

		if v, err := b.Pop(); err != nil || v != 1 {
			t.Fatalf("queued chunk must drain first: %v, %v", v, err)
		}
		if _, err := b.Pop(); !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
	})
}

func TestBuffer_FirstTerminalWins(t *testing.T) {
	boom := errors.New("boom")

	t.Run("end then error", func(t *testing.T) {
		b := NewBuffer(BufferConfig[int]{})
		b.MarkEnd()
		b.MarkError(boom)
		if _, err := b.Pop(); !errors.Is(err, io.EOF) {
			t.Fatalf("expected io.EOF, got %v", err)
		}
	})

	t.Run("error then end", func(t *testing.T) {
		b := NewBuffer(BufferConfig[int]{})
		b.MarkError(boom)
		b.MarkEnd()
		if _, err := b.Pop(); !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
	})

	t.Run("error then error", func(t *testing.T) {
		b := NewBuffer(BufferConfig[int]{})
		b.MarkError(boom)
		b.MarkError(errors.New("later"))
		if _, err := b.Pop(); !errors.Is(err, boom) {
			t.Fatalf("expected first error to win, got %v", err)
		}
	})
}

func TestBuffer_MarkErrorNilMeansEnd(t *testing.T) {
	b := NewBuffer(BufferConfig[int]{})
	b.MarkError(nil)
	if _, err := b.Pop(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestBuffer_PopBlocksUntilPush(t *testing.T) {
	b := NewBuffer(BufferConfig[int]{})

	got := make(chan int, 1)
	go func() {
		v, err := b.Pop()
		if err != nil {
			return
		}
		got <- v
	}()

	select {
	case v := <-got:
		t.Fatalf("Pop returned %d before any push", v)
	case <-time.After(50 * time.Millisecond):
	}

	b.TryPush(42)

	select {
	case v := <-got:
		if v != 42 {
			t.Fatalf("expected 42, got %d", v)
		}
	case <-time.After(time.Second):
		t.Fatal("Pop did not observe the push")
	}
}

func TestBuffer_AwaitDrainBlocksUntilPop(t *testing.T) {
	b := NewBuffer(BufferConfig[int]{Capacity: 1})
	b.TryPush(1)

	drained := make(chan error, 1)
	go func() {
		drained <- b.AwaitDrain()
	}()

	select {
	case err := <-drained:
		t.Fatalf("AwaitDrain returned (%v) while at capacity", err)
	case <-time.After(50 * time.Millisecond):
	}

	if _, err := b.Pop(); err != nil {
		t.Fatalf("Pop: %v", err)
	}

	select {
	case err := <-drained:
		if err != nil {
			t.Fatalf("AwaitDrain: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("AwaitDrain did not observe the drain signal")
	}
}

func TestBuffer_AwaitDrainObservesTerminal(t *testing.T) {
	boom := errors.New("boom")
	b := NewBuffer(BufferConfig[int]{Capacity: 1})
	b.TryPush(1)

	drained := make(chan error, 1)
	go func() {
		drained <- b.AwaitDrain()
	}()

	time.Sleep(20 * time.Millisecond)
	b.MarkError(boom)

	select {
	case err := <-drained:
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("AwaitDrain did not observe the terminal marker")
	}
}

func TestBuffer_AwaitDrainWhenBelowCapacity(t *testing.T) {
	b := NewBuffer(BufferConfig[int]{Capacity: 2})
	b.TryPush(1)
	if err := b.AwaitDrain(); err != nil {
		t.Fatalf("AwaitDrain below capacity: %v", err)
	}
}

func TestBuffer_PeakOccupancy(t *testing.T) {
	b := NewBuffer(BufferConfig[int]{Capacity: 3})
	for i := 0; i < 3; i++ {
		b.TryPush(i)
	}
	b.Pop()
	b.Pop()

	if peak := b.PeakOccupancy(); peak != 3 {
		t.Errorf("expected peak 3, got %d", peak)
	}
	if occ := b.Occupancy(); occ != 1 {
		t.Errorf("expected occupancy 1, got %d", occ)
	}
}

func TestBuffer_Defaults(t *testing.T) {
	obj := NewBuffer(BufferConfig[int]{})
	if obj.Capacity() != DefaultObjectCapacity {
		t.Errorf("object mode default: expected %d, got %d", DefaultObjectCapacity, obj.Capacity())
	}

	byt := NewBuffer(BufferConfig[[]byte]{Size: ByteLen})
	if byt.Capacity() != DefaultByteCapacity {
		t.Errorf("byte mode default: expected %d, got %d", DefaultByteCapacity, byt.Capacity())
	}
}

func TestNewBuffer_PanicOnNegativeCapacity(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected panic for negative capacity")
		}
	}()
	_ = NewBuffer(BufferConfig[int]{Capacity: -1})
}
