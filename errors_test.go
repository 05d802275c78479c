package gostream

import (
	"context"
	"errors"
	"testing"
)

func TestPipelineError_Matching(t *testing.T) {
	cause := errors.New("root cause")

	cases := []struct {
		name     string
		err      *PipelineError
		sentinel error
	}{
		{"source", newOriginError(cause), ErrOrigin},
		{"transform", newTransformError(1, cause), ErrTransform},
		{"sink", newDeliveryError(cause), ErrDelivery},
		{"cancel", newCancelError(cause), ErrCancelled},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if !errors.Is(tc.err, tc.sentinel) {
				t.Errorf("expected match on %v", tc.sentinel)
			}
			if !errors.Is(tc.err, cause) {
				t.Error("expected match on the wrapped cause")
			}

			var perr *PipelineError
			if !errors.As(tc.err, &perr) {
				t.Fatal("expected errors.As to extract *PipelineError")
			}
			if perr.Cause != cause {
				t.Errorf("expected cause preserved, got %v", perr.Cause)
			}
		})
	}
}

func TestPipelineError_Message(t *testing.T) {
	cause := errors.New("boom")

	if got := newTransformError(2, cause).Error(); got != "gostream: transform 2 failed: boom" {
		t.Errorf("unexpected transform message %q", got)
	}
	if got := newOriginError(cause).Error(); got != "gostream: source failed: boom" {
		t.Errorf("unexpected source message %q", got)
	}
	if got := newDeliveryError(cause).Error(); got != "gostream: sink failed: boom" {
		t.Errorf("unexpected sink message %q", got)
	}
}

func TestPipelineError_Index(t *testing.T) {
	if idx := newOriginError(errors.New("x")).Index; idx != -1 {
		t.Errorf("source errors carry index -1, got %d", idx)
	}
	if idx := newTransformError(3, errors.New("x")).Index; idx != 3 {
		t.Errorf("expected index 3, got %d", idx)
	}
}

func TestNewCancelError_DefaultCause(t *testing.T) {
	err := newCancelError(nil)
	if !errors.Is(err, ErrCancelled) {
		t.Error("expected ErrCancelled match")
	}
	if !errors.Is(err, context.Canceled) {
		t.Error("expected context.Canceled as the default cause")
	}
}

func TestStageKind_String(t *testing.T) {
	kinds := map[StageKind]string{
		StageSource:    "source",
		StageTransform: "transform",
		StageSink:      "sink",
		StagePipeline:  "pipeline",
	}
	for kind, want := range kinds {
		if got := kind.String(); got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	}
}
