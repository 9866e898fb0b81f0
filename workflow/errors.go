package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyCommitted is returned when a sealed builder is modified.
	ErrAlreadyCommitted = errors.New("workflow: definition already committed")

	// ErrInvalidStage indicates a nil step, nil map function or empty branch.
	ErrInvalidStage = errors.New("workflow: invalid stage")

	// ErrDuplicateStage indicates two stages share an id within one workflow.
	ErrDuplicateStage = errors.New("workflow: duplicate stage id")

	// ErrStepNotFound indicates a snapshot does not point at a step of this workflow.
	ErrStepNotFound = errors.New("workflow: step not found")

	// ErrWorkflowMismatch indicates a snapshot taken from another workflow.
	ErrWorkflowMismatch = errors.New("workflow: snapshot belongs to another workflow")

	// ErrStepTimeout indicates a step exceeded its timeout.
	ErrStepTimeout = errors.New("workflow: step timeout exceeded")

	// ErrTypeMismatch is matched by every TypeError.
	ErrTypeMismatch = errors.New("workflow: stage input type mismatch")
)

// StepError wraps a failure raised by a stage.
type StepError struct {
	StepID string
	Err    error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("workflow: step %q failed: %v", e.StepID, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// TypeError reports a stage input whose dynamic type does not match the
// type the stage was built for.
type TypeError struct {
	StepID string
	Want   string
	Got    string
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("workflow: step %q expects %s, got %s", e.StepID, e.Want, e.Got)
}

func (e *TypeError) Is(target error) bool { return target == ErrTypeMismatch }

// PanicError carries a recovered panic.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("workflow: panic: %v", e.Value)
}
