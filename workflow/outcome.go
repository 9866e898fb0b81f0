package workflow

import "errors"

// Kind discriminates the variants of an Outcome.
type Kind uint8

const (
	KindContinue Kind = iota
	KindSuspend
	KindFail
)

func (k Kind) String() string {
	switch k {
	case KindContinue:
		return "continue"
	case KindSuspend:
		return "suspend"
	case KindFail:
		return "fail"
	default:
		return "unknown"
	}
}

// errNoCause replaces a nil error passed to Fail.
var errNoCause = errors.New("workflow: step failed without an error")

// Outcome is the result of a stage: exactly one of Continue(value),
// Suspend(payload) or Fail(err).
type Outcome[T any] struct {
	kind    Kind
	value   T
	payload any
	err     error
}

// Continue proceeds to the next stage with v as its input.
func Continue[T any](v T) Outcome[T] {
	return Outcome[T]{kind: KindContinue, value: v}
}

// Suspend halts the run. The payload is returned to the caller and kept in
// the run's snapshot.
func Suspend[T any](payload any) Outcome[T] {
	return Outcome[T]{kind: KindSuspend, payload: payload}
}

// Fail ends the run with err.
func Fail[T any](err error) Outcome[T] {
	if err == nil {
		err = errNoCause
	}
	return Outcome[T]{kind: KindFail, err: err}
}

// Kind reports which variant o holds.
func (o Outcome[T]) Kind() Kind { return o.kind }

// Value returns the continue value, or the zero value for other variants.
func (o Outcome[T]) Value() T { return o.value }

// Payload returns the suspend payload.
func (o Outcome[T]) Payload() any { return o.payload }

// Err returns the failure.
func (o Outcome[T]) Err() error { return o.err }

func (o Outcome[T]) erase() Outcome[any] {
	return Outcome[any]{kind: o.kind, value: any(o.value), payload: o.payload, err: o.err}
}
