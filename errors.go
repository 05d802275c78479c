package gostream

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrOrigin indicates that a source's origin failed.
	ErrOrigin = errors.New("gostream: origin failed")
	// ErrTransform indicates that a transform stage failed.
	ErrTransform = errors.New("gostream: transform failed")
	// ErrDelivery indicates that a sink's destination failed.
	ErrDelivery = errors.New("gostream: delivery failed")
	// ErrCancelled indicates that the pipeline was cancelled.
	ErrCancelled = errors.New("gostream: cancelled")
	// ErrBufferClosed indicates a push after a terminal marker was recorded.
	// Pushing on a closed buffer is a contract violation by the producer,
	// unless the pipeline terminated the buffer during failure propagation.
	ErrBufferClosed = errors.New("gostream: buffer closed")
	// ErrAlreadyStarted indicates a second Run on a pipeline or stage.
	ErrAlreadyStarted = errors.New("gostream: already started")
)

// StageKind identifies the pipeline stage an error originated from.
type StageKind int

const (
	StageSource StageKind = iota
	StageTransform
	StageSink
	// StagePipeline marks errors raised outside any single stage,
	// such as external cancellation.
	StagePipeline
)

func (k StageKind) String() string {
	switch k {
	case StageSource:
		return "source"
	case StageTransform:
		return "transform"
	case StageSink:
		return "sink"
	case StagePipeline:
		return "pipeline"
	}
	return "unknown"
}

func (k StageKind) sentinel() error {
	switch k {
	case StageSource:
		return ErrOrigin
	case StageTransform:
		return ErrTransform
	case StageSink:
		return ErrDelivery
	}
	return ErrCancelled
}

// PipelineError attributes a failure to the stage that raised it.
// Index is the zero-based position among the pipeline's transform stages
// and is -1 for source, sink and pipeline errors.
//
// errors.Is matches both the stage-kind sentinel and the original cause:
//
//	errors.Is(err, ErrTransform) // true for transform failures
//	errors.Is(err, cause)        // true for the wrapped cause
type PipelineError struct {
	Stage StageKind
	Index int
	Cause error
}

func (e *PipelineError) Error() string {
	if e.Stage == StageTransform {
		return fmt.Sprintf("gostream: transform %d failed: %v", e.Index, e.Cause)
	}
	return fmt.Sprintf("gostream: %s failed: %v", e.Stage, e.Cause)
}

func (e *PipelineError) Unwrap() error {
	return fmt.Errorf("%w: %w", e.Stage.sentinel(), e.Cause)
}

func newOriginError(cause error) *PipelineError {
	return &PipelineError{Stage: StageSource, Index: -1, Cause: cause}
}

func newTransformError(index int, cause error) *PipelineError {
	return &PipelineError{Stage: StageTransform, Index: index, Cause: cause}
}

func newDeliveryError(cause error) *PipelineError {
	return &PipelineError{Stage: StageSink, Index: -1, Cause: cause}
}

func newCancelError(cause error) *PipelineError {
	if cause == nil {
		cause = context.Canceled
	}
	return &PipelineError{Stage: StagePipeline, Index: -1, Cause: cause}
}
