package gostream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
)

// SinkConfig configures a sink stage.
type SinkConfig struct {
	// Name identifies the stage in logs and stats. Default "sink".
	Name string

	// Logger for stage lifecycle logging. If nil, uses slog.Default().
	Logger *slog.Logger
}

func (c SinkConfig) applyDefaults() SinkConfig {
	if c.Name == "" {
		c.Name = "sink"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Sink drains chunks from its input buffer and delivers them to a
// Destination. A sink never deliberately pauses: it stalls only while the
// buffer is empty, and every pop it performs is what emits the drain
// signals that resume a paused producer.
type Sink[T any] struct {
	cfg  SinkConfig
	dest Destination[T]
	in   *Buffer[T]

	state stateVar
	stats stageStats

	mu        sync.Mutex
	started   bool
	cancelled bool
	reason    error
	stop      context.CancelFunc
}

// NewSink creates a sink stage draining in and delivering to dest.
func NewSink[T any](dest Destination[T], in *Buffer[T], cfg SinkConfig) *Sink[T] {
	return &Sink[T]{
		cfg:  cfg.applyDefaults(),
		dest: dest,
		in:   in,
	}
}

// State returns the stage's current state.
func (s *Sink[T]) State() StreamState { return s.state.get() }

// Stats returns a snapshot of the stage's counters.
func (s *Sink[T]) Stats() StageStats {
	return s.stats.snapshot(s.cfg.Name, StageSink, s.state.get())
}

// Run drains the input buffer until end of stream, an upstream error, a
// delivery failure, or cancellation. It blocks and returns nil once the
// buffer's end-of-stream marker is consumed. An upstream error is
// returned as popped, without delivering further chunks; a delivery
// failure is returned attributed to the sink. Run may be called once.
func (s *Sink[T]) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	if s.cancelled {
		reason := s.reason
		s.mu.Unlock()
		s.state.set(StateFailed)
		return reason
	}
	ctx, s.stop = context.WithCancel(ctx)
	s.mu.Unlock()
	defer s.stop()

	s.state.set(StateActive)
	s.cfg.Logger.Debug("sink started", "stage", s.cfg.Name)

	for {
		if err := s.interrupted(ctx); err != nil {
			return err
		}

		if s.in.Len() == 0 && !s.in.Terminated() {
			s.state.set(StateStalled)
			s.stats.stalls.Add(1)
		}
		chunk, err := s.in.Pop()
		if errors.Is(err, io.EOF) {
			s.state.set(StateEnded)
			s.cfg.Logger.Debug("sink ended",
				"stage", s.cfg.Name, "delivered", s.stats.consumed.Load())
			return nil
		}
		if err != nil {
			s.state.set(StateFailed)
			return err
		}
		s.state.set(StateActive)

		if err := s.deliver(ctx, chunk); err != nil {
			// A Deliver unblocked by cancellation reports the
			// cancellation, not a delivery failure.
			if ierr := s.interrupted(ctx); ierr != nil {
				return ierr
			}
			perr := newDeliveryError(err)
			s.in.MarkError(perr)
			s.state.set(StateFailed)
			s.cfg.Logger.Debug("sink failed", "stage", s.cfg.Name, "error", err)
			return perr
		}
		s.stats.consumed.Add(1)
	}
}

// Cancel stops the sink from any state, including before Run. The input
// buffer is marked so a paused upstream producer observes termination,
// and an in-flight Deliver call is cancelled through its context. Cancel
// after natural completion leaves the outcome unchanged.
func (s *Sink[T]) Cancel() {
	s.cancel(newCancelError(nil), true)
}

// halt stops the sink on behalf of the pipeline, which has already
// terminated every buffer with the attributed failure.
func (s *Sink[T]) halt(reason error) {
	s.cancel(reason, false)
}

func (s *Sink[T]) cancel(reason error, mark bool) {
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return
	}
	s.cancelled = true
	s.reason = reason
	stop := s.stop
	s.mu.Unlock()

	if mark {
		s.in.MarkError(reason)
	}
	if stop != nil {
		stop()
	}
}

func (s *Sink[T]) interrupted(ctx context.Context) error {
	s.mu.Lock()
	cancelled, reason := s.cancelled, s.reason
	s.mu.Unlock()
	if cancelled {
		s.state.set(StateFailed)
		return reason
	}
	if ctx.Err() != nil {
		perr := newCancelError(context.Cause(ctx))
		s.cancel(perr, true)
		s.state.set(StateFailed)
		return perr
	}
	return nil
}

func (s *Sink[T]) deliver(ctx context.Context, chunk T) (err error) {
	defer recoverTo(&err)
	return s.dest.Deliver(ctx, chunk)
}
