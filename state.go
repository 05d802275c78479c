package gostream

import "sync/atomic"

// StreamState describes the lifecycle of a pipeline stage.
//
// A source moves Idle → Active ⇄ Paused → Ended|Failed. A sink moves
// Idle → Active ⇄ Stalled → Ended|Failed. A transform stage acts as both
// consumer and producer and may additionally report Draining while it
// flushes carried state after its input ended.
type StreamState int32

const (
	// StateIdle means the stage has not started.
	StateIdle StreamState = iota
	// StateActive means the stage is producing or consuming chunks.
	StateActive
	// StatePaused means a producer is suspended waiting for a drain signal.
	StatePaused
	// StateStalled means a consumer is suspended on an empty buffer.
	StateStalled
	// StateDraining means the stage is flushing carried state after
	// its input ended.
	StateDraining
	// StateEnded means the stage completed normally.
	StateEnded
	// StateFailed means the stage stopped on an error or cancellation.
	StateFailed
)

func (s StreamState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StatePaused:
		return "paused"
	case StateStalled:
		return "stalled"
	case StateDraining:
		return "draining"
	case StateEnded:
		return "ended"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Terminal reports whether the state is Ended or Failed.
func (s StreamState) Terminal() bool {
	return s == StateEnded || s == StateFailed
}

// stateVar holds a stage's state. Terminal states are sticky: once a
// stage reports Ended or Failed, later transitions are ignored, which
// keeps repeated cancellation from rewriting the outcome.
type stateVar struct {
	v atomic.Int32
}

func (s *stateVar) set(next StreamState) {
	for {
		cur := s.v.Load()
		if StreamState(cur).Terminal() {
			return
		}
		if s.v.CompareAndSwap(cur, int32(next)) {
			return
		}
	}
}

func (s *stateVar) get() StreamState {
	return StreamState(s.v.Load())
}
