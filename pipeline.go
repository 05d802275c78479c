package gostream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// stage is the pipeline's view of a running component.
type stage interface {
	Run(ctx context.Context) error
	halt(reason error)
	State() StreamState
	Stats() StageStats
}

// terminator is the pipeline's type-erased handle on a connecting buffer.
type terminator interface {
	MarkError(err error)
}

// PipelineOption configures a pipeline at composition time.
type PipelineOption func(*Pipeline)

// WithName sets the pipeline name used in log records.
func WithName(name string) PipelineOption {
	return func(p *Pipeline) {
		if name != "" {
			p.name = name
		}
	}
}

// WithLogger sets the logger for pipeline lifecycle logging.
func WithLogger(logger *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithStatsCollector registers a collector that receives the final
// per-stage stats when Run finishes. Can be used multiple times to add
// multiple collectors.
func WithStatsCollector(collect StatsCollector) PipelineOption {
	return func(p *Pipeline) {
		if collect != nil {
			p.collectors = append(p.collectors, collect)
		}
	}
}

// Flow is a partially composed pipeline whose newest stage emits chunks
// of type T. Continue it with Via or complete it with To. A Flow may be
// connected exactly once.
type Flow[T any] struct {
	p    *Pipeline
	out  *Buffer[T]
	used bool
}

func (f *Flow[T]) claim() {
	if f.used {
		panic("gostream: flow already connected")
	}
	f.used = true
}

// From opens a pipeline description with a source stage reading origin.
func From[T any](origin Origin[T], cfg SourceConfig[T], opts ...PipelineOption) *Flow[T] {
	p := &Pipeline{
		id:     uuid.NewString(),
		name:   "pipeline",
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}

	src := NewSource(origin, cfg)
	p.stages = append(p.stages, src)
	p.buffers = append(p.buffers, src.Out())
	return &Flow[T]{p: p, out: src.Out()}
}

// Via appends a transform stage applying tr, wiring a fresh buffer
// between it and the downstream stage.
func Via[In, Out any](f *Flow[In], tr Transformer[In, Out], cfg TransformConfig[Out]) *Flow[Out] {
	f.claim()
	if cfg.Name == "" {
		cfg.Name = fmt.Sprintf("transform-%d", f.p.transforms)
	}

	t := NewTransform(tr, f.out, cfg)
	t.index = f.p.transforms
	f.p.transforms++
	f.p.stages = append(f.p.stages, t)
	f.p.buffers = append(f.p.buffers, t.Out())
	return &Flow[Out]{p: f.p, out: t.Out()}
}

// To completes the pipeline with a sink stage delivering to dest.
func To[T any](f *Flow[T], dest Destination[T], cfg SinkConfig) *Pipeline {
	f.claim()
	sk := NewSink(dest, f.out, cfg)
	f.p.stages = append(f.p.stages, sk)
	return f.p
}

// Pipeline is a composed chain of source, transforms and sink sharing one
// failure domain. Every stage runs on its own goroutine; adjacent stages
// share nothing but their connecting buffer.
type Pipeline struct {
	id         string
	name       string
	logger     *slog.Logger
	collectors []StatsCollector

	stages     []stage
	buffers    []terminator
	transforms int

	mu      sync.Mutex
	started bool
	result  error

	finishOnce sync.Once
}

// ID returns the unique identifier of this pipeline instance.
func (p *Pipeline) ID() string { return p.id }

// Run starts every stage and blocks until the sink ends or any stage
// fails. It returns nil when the sink consumed the end-of-stream marker
// with no failures, and the first stage-attributed error otherwise; a
// run never reports success if any stage failed, even when the sink
// received valid chunks first. Cancelling ctx fails the pipeline as
// cancelled. Run may be called once.
func (p *Pipeline) Run(ctx context.Context) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return ErrAlreadyStarted
	}
	p.started = true
	p.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.logger.Debug("pipeline started",
		"pipeline", p.name, "id", p.id, "stages", len(p.stages))

	// External cancellation fails the pipeline. After a natural finish
	// the deferred cancel lands here too, where finish is a no-op.
	go func() {
		<-runCtx.Done()
		p.finish(newCancelError(context.Cause(runCtx)))
	}()

	var wg sync.WaitGroup
	for i, st := range p.stages {
		last := i == len(p.stages)-1
		wg.Add(1)
		go func(st stage, last bool) {
			defer wg.Done()
			if err := st.Run(runCtx); err != nil {
				p.finish(err)
			} else if last {
				p.finish(nil)
			}
		}(st, last)
	}
	wg.Wait()

	err := p.Err()
	if err != nil {
		p.logger.Debug("pipeline failed",
			"pipeline", p.name, "id", p.id, "error", err)
	} else {
		p.logger.Debug("pipeline completed", "pipeline", p.name, "id", p.id)
	}

	for _, collect := range p.collectors {
		collect(p.Stats())
	}
	return err
}

// Cancel fails the pipeline as cancelled. It may be called from any
// goroutine, repeatedly, before Run or after completion; once the
// pipeline has finished, Cancel leaves the reported result unchanged.
func (p *Pipeline) Cancel() {
	p.finish(newCancelError(nil))
}

// finish records the first outcome and, on failure, propagates it
// pipeline-wide within one step. Order matters: every buffer carries the
// attributed failure before the stages are stopped and wake to observe
// it.
func (p *Pipeline) finish(err error) {
	p.finishOnce.Do(func() {
		p.mu.Lock()
		p.result = err
		p.mu.Unlock()

		if err == nil {
			return
		}
		for _, b := range p.buffers {
			b.MarkError(err)
		}
		for _, st := range p.stages {
			st.halt(err)
		}
	})
}

// Err returns the recorded result: nil while running or after a clean
// completion, the first stage-attributed error otherwise.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.result
}

// Stats returns per-stage snapshots in stage order, source first.
func (p *Pipeline) Stats() []StageStats {
	stats := make([]StageStats, len(p.stages))
	for i, st := range p.stages {
		stats[i] = st.Stats()
	}
	return stats
}
