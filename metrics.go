package gostream

import "sync/atomic"

// StageStats is a snapshot of one stage's counters. Fields that do not
// apply to a stage kind stay zero: a sink never pauses, a source never
// stalls, and only producing stages have an output buffer to peak.
type StageStats struct {
	// Name is the configured stage name.
	Name string
	// Kind is the stage position in the pipeline.
	Kind StageKind
	// State is the stage state at snapshot time.
	State StreamState

	// Produced counts chunks pushed into the stage's output buffer.
	Produced uint64
	// Consumed counts chunks popped from the stage's input buffer.
	Consumed uint64
	// Pauses counts producer suspensions on a full output buffer.
	Pauses uint64
	// Resumes counts wakeups from the output buffer's drain signal.
	Resumes uint64
	// Stalls counts consumer suspensions on an empty input buffer.
	Stalls uint64

	// PeakOccupancy is the output buffer's highest observed occupancy.
	PeakOccupancy int
	// BufferCapacity is the output buffer's high-water mark.
	BufferCapacity int
}

// StatsCollector receives the final per-stage snapshots when a pipeline
// run finishes, in stage order. Register one with WithStatsCollector.
type StatsCollector func(stats []StageStats)

// stageStats holds a stage's live counters.
type stageStats struct {
	produced atomic.Uint64
	consumed atomic.Uint64
	pauses   atomic.Uint64
	resumes  atomic.Uint64
	stalls   atomic.Uint64
}

func (s *stageStats) snapshot(name string, kind StageKind, state StreamState) StageStats {
	return StageStats{
		Name:     name,
		Kind:     kind,
		State:    state,
		Produced: s.produced.Load(),
		Consumed: s.consumed.Load(),
		Pauses:   s.pauses.Load(),
		Resumes:  s.resumes.Load(),
		Stalls:   s.stalls.Load(),
	}
}
