package gostream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
)

// TransformConfig configures a transform stage.
type TransformConfig[Out any] struct {
	// Name identifies the stage in logs and stats. Default "transform".
	Name string

	// Capacity is the output buffer's high-water mark. Zero selects the
	// mode default, see BufferConfig.
	Capacity int

	// Size measures chunk occupancy in the output buffer. Nil means
	// object mode, every chunk counting one unit.
	Size func(Out) int

	// Logger for stage lifecycle logging. If nil, uses slog.Default().
	Logger *slog.Logger
}

func (c TransformConfig[Out]) applyDefaults() TransformConfig[Out] {
	if c.Name == "" {
		c.Name = "transform"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Transform sits between two buffers. It acts as a sink toward its input
// buffer and as a source toward its output buffer, so backpressure
// propagates transitively: the stage pauses pulling input whenever its
// output buffer reports at capacity.
type Transform[In, Out any] struct {
	cfg   TransformConfig[Out]
	tr    Transformer[In, Out]
	in    *Buffer[In]
	out   *Buffer[Out]
	index int

	state stateVar
	stats stageStats

	mu        sync.Mutex
	started   bool
	cancelled bool
	reason    error
	stop      context.CancelFunc
}

// NewTransform creates a transform stage applying tr to chunks popped
// from in. The stage owns its output buffer, sized by cfg.
func NewTransform[In, Out any](tr Transformer[In, Out], in *Buffer[In], cfg TransformConfig[Out]) *Transform[In, Out] {
	cfg = cfg.applyDefaults()
	return &Transform[In, Out]{
		cfg: cfg,
		tr:  tr,
		in:  in,
		out: NewBuffer(BufferConfig[Out]{Capacity: cfg.Capacity, Size: cfg.Size}),
	}
}

// Out returns the stage's output buffer, for wiring a downstream consumer.
func (t *Transform[In, Out]) Out() *Buffer[Out] { return t.out }

// State returns the stage's current state.
func (t *Transform[In, Out]) State() StreamState { return t.state.get() }

// Stats returns a snapshot of the stage's counters.
func (t *Transform[In, Out]) Stats() StageStats {
	snap := t.stats.snapshot(t.cfg.Name, StageTransform, t.state.get())
	snap.PeakOccupancy = t.out.PeakOccupancy()
	snap.BufferCapacity = t.out.Capacity()
	return snap
}

// Run processes input chunks until end of stream, a failure, or
// cancellation. On upstream end it drains: a stateful transformer's
// residue is flushed downstream before the stage marks its own end. On a
// transformer error the OUTPUT buffer is marked and no further input is
// processed. Upstream errors are forwarded downstream unchanged. Run may
// be called once.
func (t *Transform[In, Out]) Run(ctx context.Context) error {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return ErrAlreadyStarted
	}
	t.started = true
	if t.cancelled {
		reason := t.reason
		t.mu.Unlock()
		t.state.set(StateFailed)
		return reason
	}
	ctx, t.stop = context.WithCancel(ctx)
	t.mu.Unlock()
	defer t.stop()

	t.state.set(StateActive)
	t.cfg.Logger.Debug("transform started", "stage", t.cfg.Name, "index", t.index)

	for {
		if err := t.interrupted(ctx); err != nil {
			return err
		}

		if t.in.Len() == 0 && !t.in.Terminated() {
			t.state.set(StateStalled)
			t.stats.stalls.Add(1)
		}
		chunk, err := t.in.Pop()
		if errors.Is(err, io.EOF) {
			return t.drain(ctx)
		}
		if err != nil {
			t.out.MarkError(err)
			t.state.set(StateFailed)
			return err
		}
		t.state.set(StateActive)
		t.stats.consumed.Add(1)

		outs, terr := t.step(ctx, chunk)
		if terr != nil {
			// A Transform unblocked by cancellation reports the
			// cancellation, not a transformer failure.
			if ierr := t.interrupted(ctx); ierr != nil {
				return ierr
			}
			perr := newTransformError(t.index, terr)
			t.out.MarkError(perr)
			t.state.set(StateFailed)
			t.cfg.Logger.Debug("transform failed",
				"stage", t.cfg.Name, "index", t.index, "error", terr)
			return perr
		}
		if err := t.push(outs, StateActive); err != nil {
			return err
		}
	}
}

// drain handles upstream end of stream: flush carried residue, push it,
// then propagate the end marker.
func (t *Transform[In, Out]) drain(ctx context.Context) error {
	t.state.set(StateDraining)

	if f, ok := t.tr.(Flusher[Out]); ok {
		outs, err := t.flush(ctx, f)
		if err != nil {
			if ierr := t.interrupted(ctx); ierr != nil {
				return ierr
			}
			perr := newTransformError(t.index, err)
			t.out.MarkError(perr)
			t.state.set(StateFailed)
			t.cfg.Logger.Debug("transform flush failed",
				"stage", t.cfg.Name, "index", t.index, "error", err)
			return perr
		}
		if err := t.push(outs, StateDraining); err != nil {
			return err
		}
	}

	t.out.MarkEnd()
	t.state.set(StateEnded)
	t.cfg.Logger.Debug("transform ended",
		"stage", t.cfg.Name, "index", t.index,
		"consumed", t.stats.consumed.Load(), "produced", t.stats.produced.Load())
	return nil
}

// push delivers outputs downstream with the producer discipline: push,
// then pause on a full report until the drain signal.
func (t *Transform[In, Out]) push(outs []Out, resume StreamState) error {
	for _, chunk := range outs {
		below, err := t.out.TryPush(chunk)
		if err != nil {
			return t.aborted()
		}
		t.stats.produced.Add(1)

		if !below {
			t.state.set(StatePaused)
			t.stats.pauses.Add(1)
			if err := t.out.AwaitDrain(); err != nil {
				t.state.set(StateFailed)
				return err
			}
			t.state.set(resume)
			t.stats.resumes.Add(1)
		}
	}
	return nil
}

// Cancel stops the transform from any state, including before Run. Both
// adjacent buffers are marked so the neighbouring stages observe
// termination promptly, and an in-flight Transform call is cancelled
// through its context. Cancel after natural completion leaves the outcome
// unchanged.
func (t *Transform[In, Out]) Cancel() {
	perr := newCancelError(nil)
	t.cancel(perr, true)
}

// halt stops the transform on behalf of the pipeline, which has already
// terminated every buffer with the attributed failure.
func (t *Transform[In, Out]) halt(reason error) {
	t.cancel(reason, false)
}

func (t *Transform[In, Out]) cancel(reason error, mark bool) {
	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		return
	}
	t.cancelled = true
	t.reason = reason
	stop := t.stop
	t.mu.Unlock()

	if mark {
		t.in.MarkError(reason)
		t.out.MarkError(reason)
	}
	if stop != nil {
		stop()
	}
}

func (t *Transform[In, Out]) interrupted(ctx context.Context) error {
	t.mu.Lock()
	cancelled, reason := t.cancelled, t.reason
	t.mu.Unlock()
	if cancelled {
		t.state.set(StateFailed)
		return reason
	}
	if ctx.Err() != nil {
		perr := newCancelError(context.Cause(ctx))
		t.cancel(perr, true)
		t.state.set(StateFailed)
		return perr
	}
	return nil
}

// aborted handles TryPush on a terminated output buffer, surfacing the
// attributed error recorded during failure propagation.
func (t *Transform[In, Out]) aborted() error {
	t.state.set(StateFailed)
	if err := t.out.Err(); err != nil {
		return err
	}
	return ErrBufferClosed
}

func (t *Transform[In, Out]) step(ctx context.Context, chunk In) (outs []Out, err error) {
	defer recoverTo(&err)
	return t.tr.Transform(ctx, chunk)
}

func (t *Transform[In, Out]) flush(ctx context.Context, f Flusher[Out]) (outs []Out, err error) {
	defer recoverTo(&err)
	return f.Flush(ctx)
}
