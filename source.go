package gostream

import (
	"context"
	"log/slog"
	"sync"
)

// SourceConfig configures a source stage.
type SourceConfig[T any] struct {
	// Name identifies the stage in logs and stats. Default "source".
	Name string

	// Capacity is the output buffer's high-water mark. Zero selects the
	// mode default, see BufferConfig.
	Capacity int

	// Size measures chunk occupancy in the output buffer. Nil means
	// object mode, every chunk counting one unit.
	Size func(T) int

	// Logger for stage lifecycle logging. If nil, uses slog.Default().
	Logger *slog.Logger
}

func (c SourceConfig[T]) applyDefaults() SourceConfig[T] {
	if c.Name == "" {
		c.Name = "source"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Source pulls chunks from an Origin and pushes them into its output
// buffer, pausing itself whenever a push reports the buffer at capacity
// and resuming on the buffer's drain signal (push first, then react to
// the capacity report).
type Source[T any] struct {
	cfg    SourceConfig[T]
	origin Origin[T]
	out    *Buffer[T]
	state  stateVar
	stats  stageStats

	mu        sync.Mutex
	started   bool
	cancelled bool
	reason    error
	stop      context.CancelFunc
}

// NewSource creates a source stage reading from origin. The stage owns
// its output buffer, sized by cfg.
func NewSource[T any](origin Origin[T], cfg SourceConfig[T]) *Source[T] {
	cfg = cfg.applyDefaults()
	return &Source[T]{
		cfg:    cfg,
		origin: origin,
		out:    NewBuffer(BufferConfig[T]{Capacity: cfg.Capacity, Size: cfg.Size}),
	}
}

// Out returns the stage's output buffer, for wiring a downstream consumer.
func (s *Source[T]) Out() *Buffer[T] { return s.out }

// State returns the stage's current state.
func (s *Source[T]) State() StreamState { return s.state.get() }

// Stats returns a snapshot of the stage's counters.
func (s *Source[T]) Stats() StageStats {
	snap := s.stats.snapshot(s.cfg.Name, StageSource, s.state.get())
	snap.PeakOccupancy = s.out.PeakOccupancy()
	snap.BufferCapacity = s.out.Capacity()
	return snap
}

// Run produces chunks until the origin is exhausted, the origin fails, or
// the stage is cancelled. It blocks and returns nil after marking end of
// stream, or the stage-attributed error otherwise. Run may be called once.
func (s *Source[T]) Run(ctx context.Context) error {
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
	s.cfg.Logger.Debug("source started", "stage", s.cfg.Name)

	for {
		if err := s.interrupted(ctx); err != nil {
			return err
		}

		chunk, ok, err := s.pull(ctx)
		if err != nil {
			// A Next unblocked by cancellation reports the cancellation,
			// not an origin failure.
			if ierr := s.interrupted(ctx); ierr != nil {
				return ierr
			}
			perr := newOriginError(err)
			s.out.MarkError(perr)
			s.state.set(StateFailed)
			s.cfg.Logger.Debug("source failed", "stage", s.cfg.Name, "error", err)
			return perr
		}
		if !ok {
			if ierr := s.interrupted(ctx); ierr != nil {
				return ierr
			}
			s.out.MarkEnd()
			s.state.set(StateEnded)
			s.cfg.Logger.Debug("source ended",
				"stage", s.cfg.Name, "produced", s.stats.produced.Load())
			return nil
		}

		below, err := s.out.TryPush(chunk)
		if err != nil {
			return s.aborted()
		}
		s.stats.produced.Add(1)

		if !below {
			s.state.set(StatePaused)
			s.stats.pauses.Add(1)
			if err := s.out.AwaitDrain(); err != nil {
				s.state.set(StateFailed)
				return err
			}
			s.state.set(StateActive)
			s.stats.resumes.Add(1)
		}
	}
}

// Cancel stops the source from any state, including before Run. The
// output buffer is marked so downstream observes termination promptly,
// and an in-flight Next call is cancelled through its context. Cancel
// after natural completion leaves the outcome unchanged.
func (s *Source[T]) Cancel() {
	s.cancel(newCancelError(nil), true)
}

// halt stops the source on behalf of the pipeline, which has already
// terminated every buffer with the attributed failure.
func (s *Source[T]) halt(reason error) {
	s.cancel(reason, false)
}

func (s *Source[T]) cancel(reason error, mark bool) {
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
		s.out.MarkError(reason)
	}
	if stop != nil {
		stop()
	}
}

func (s *Source[T]) interrupted(ctx context.Context) error {
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

// aborted handles TryPush on a terminated buffer. During pipeline failure
// propagation the buffer carries the attributed error, which is surfaced
// unchanged; a terminated buffer without one is a producer contract
// violation.
func (s *Source[T]) aborted() error {
	s.state.set(StateFailed)
	if err := s.out.Err(); err != nil {
		return err
	}
	return ErrBufferClosed
}

func (s *Source[T]) pull(ctx context.Context) (chunk T, ok bool, err error) {
	defer recoverTo(&err)
	return s.origin.Next(ctx)
}
