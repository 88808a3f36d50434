package service

import (
	"errors"
	"fmt"
)

var (
	// ErrInput marks requests that are rejected before any reasoning call.
	ErrInput       = errors.New("invalid input")
	ErrFinalized   = errors.New("session already finalized")
	ErrEmptyOutput = errors.New("reasoning returned empty output")
)

type Stage int

const (
	StageInstruction Stage = iota + 1
	StageSubtasks
)

func (s Stage) String() string {
	switch s {
	case StageInstruction:
		return "final_instruction"
	case StageSubtasks:
		return "subtasks"
	default:
		return "unknown"
	}
}

// FinalizationError reports which pipeline stage failed. Nothing of a failed
// finalization is stored, whatever the stage.
type FinalizationError struct {
	Stage Stage
	Err   error
}

func (e *FinalizationError) Error() string {
	return fmt.Sprintf("finalization failed at %s stage: %v", e.Stage, e.Err)
}

func (e *FinalizationError) Unwrap() error {
	return e.Err
}

// Partial reports whether the final instruction was produced before the
// failure.
func (e *FinalizationError) Partial() bool {
	return e.Stage == StageSubtasks
}
