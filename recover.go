package gostream

import (
	"fmt"
	"runtime/debug"
)

// RecoveryError wraps a panic raised by an origin, transformer or
// destination so the pipeline can fail with a regular error instead of
// crashing the stage goroutine.
type RecoveryError struct {
	// PanicValue is the original value passed to panic().
	PanicValue any
	// StackTrace is the stack captured at the point of recovery.
	StackTrace string
}

func (e *RecoveryError) Error() string {
	return fmt.Sprintf("panic recovered: %v", e.PanicValue)
}

// recoverTo captures a panic into *errp as a RecoveryError. Stages defer
// it around every collaborator call.
func recoverTo(errp *error) {
	if r := recover(); r != nil {
		*errp = &RecoveryError{
			PanicValue: r,
			StackTrace: string(debug.Stack()),
		}
	}
}
