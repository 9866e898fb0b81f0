package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
)

// RunContext is handed to every stage of a run.
type RunContext[In, S any] struct {
	// RunID identifies the run across suspensions.
	RunID string
	// WorkflowID is the id of the root workflow.
	WorkflowID string
	// StepID is the qualified id of the executing stage.
	StepID string
	// Init is the immutable input the run was started with.
	Init In
	// State is the mutable run state. Steps may read and write it.
	State *S
	// History lists the stages completed before this one, oldest first.
	History []StepRecord
	// Logger is scoped to the run.
	Logger *slog.Logger

	resumeData any
	resumed    bool
}

// ResumeData returns the data supplied to Resume when the executing step is
// the one being re-entered. The boolean is false on a first execution.
func (rc *RunContext[In, S]) ResumeData() (any, bool) {
	return rc.resumeData, rc.resumed
}

// ResumeDataAs returns the resume data asserted to T.
func ResumeDataAs[T, In, S any](rc *RunContext[In, S]) (T, bool) {
	var zero T
	data, ok := rc.ResumeData()
	if !ok {
		return zero, false
	}
	v, ok := data.(T)
	if !ok {
		return zero, false
	}
	return v, true
}

// Step is a named unit of work.
type Step[In, S any] interface {
	ID() string
	Execute(ctx context.Context, input any, rc *RunContext[In, S]) Outcome[any]
}

// StepFunc is the typed body of a step.
type StepFunc[In, S, I, O any] func(ctx context.Context, input I, rc *RunContext[In, S]) Outcome[O]

type funcStep[In, S, I, O any] struct {
	id string
	fn StepFunc[In, S, I, O]
}

// NewStep adapts a typed function into a Step. A nil input becomes the zero
// value of I; any other mismatching input fails with a TypeError.
func NewStep[In, S, I, O any](id string, fn StepFunc[In, S, I, O]) Step[In, S] {
	return &funcStep[In, S, I, O]{id: id, fn: fn}
}

func (s *funcStep[In, S, I, O]) ID() string { return s.id }

func (s *funcStep[In, S, I, O]) Execute(ctx context.Context, input any, rc *RunContext[In, S]) Outcome[any] {
	in, err := assertInput[I](s.id, input)
	if err != nil {
		return Fail[any](err)
	}
	if s.fn == nil {
		return Fail[any](fmt.Errorf("%w: step %q has no function", ErrInvalidStage, s.id))
	}
	return s.fn(ctx, in, rc).erase()
}

// MapFunc is a pure transform between stages.
type MapFunc[In, S any] func(ctx context.Context, input any, rc *RunContext[In, S]) (any, error)

// Transform adapts a typed transform into a MapFunc.
func Transform[In, S, A, B any](fn func(ctx context.Context, in A, rc *RunContext[In, S]) (B, error)) MapFunc[In, S] {
	return func(ctx context.Context, input any, rc *RunContext[In, S]) (any, error) {
		a, err := assertInput[A](rc.StepID, input)
		if err != nil {
			return nil, err
		}
		return fn(ctx, a, rc)
	}
}

func assertInput[T any](id string, input any) (T, error) {
	var zero T
	if input == nil {
		return zero, nil
	}
	v, ok := input.(T)
	if !ok {
		return zero, &TypeError{StepID: id, Want: reflect.TypeFor[T]().String(), Got: fmt.Sprintf("%T", input)}
	}
	return v, nil
}
