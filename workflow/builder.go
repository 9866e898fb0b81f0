package workflow

import (
	"fmt"
	"sync"
)

type stageKind uint8

const (
	stageMap stageKind = iota
	stageStep
	stageBranch
)

type stage[In, S any] struct {
	kind stageKind
	id   string
	fn   MapFunc[In, S]
	step Step[In, S]
	arms []Arm[In, S]
}

// Arm is one option of a Branch stage.
type Arm[In, S any] struct {
	Name string
	// When selects the arm. A nil predicate always matches.
	When func(In) bool
	Flow *Workflow[In, S]
}

// When builds an arm that runs flow if pred accepts the initial input.
func When[In, S any](name string, pred func(In) bool, flow *Workflow[In, S]) Arm[In, S] {
	return Arm[In, S]{Name: name, When: pred, Flow: flow}
}

// Otherwise builds an arm that always matches.
func Otherwise[In, S any](name string, flow *Workflow[In, S]) Arm[In, S] {
	return Arm[In, S]{Name: name, Flow: flow}
}

// Builder assembles a workflow definition. Errors are collected and
// reported by Commit.
type Builder[In, S any] struct {
	mu        sync.Mutex
	id        string
	stages    []stage[In, S]
	seen      map[string]bool
	errs      []error
	committed bool
}

// New starts a workflow definition.
func New[In, S any](id string) *Builder[In, S] {
	return &Builder[In, S]{id: id, seen: make(map[string]bool)}
}

// Map appends a transform stage.
func (b *Builder[In, S]) Map(id string, fn MapFunc[In, S]) *Builder[In, S] {
	if fn == nil {
		return b.fail(fmt.Errorf("%w: map %q has no function", ErrInvalidStage, id))
	}
	return b.add(stage[In, S]{kind: stageMap, id: id, fn: fn})
}

// Then appends a step stage.
func (b *Builder[In, S]) Then(step Step[In, S]) *Builder[In, S] {
	if step == nil {
		return b.fail(fmt.Errorf("%w: nil step", ErrInvalidStage))
	}
	return b.add(stage[In, S]{kind: stageStep, id: step.ID(), step: step})
}

// Branch appends a stage that runs the first arm whose predicate matches.
func (b *Builder[In, S]) Branch(id string, arms ...Arm[In, S]) *Builder[In, S] {
	if len(arms) == 0 {
		return b.fail(fmt.Errorf("%w: branch %q has no arms", ErrInvalidStage, id))
	}
	for _, a := range arms {
		if a.Flow == nil {
			return b.fail(fmt.Errorf("%w: branch %q arm %q has no flow", ErrInvalidStage, id, a.Name))
		}
	}
	return b.add(stage[In, S]{kind: stageBranch, id: id, arms: append([]Arm[In, S](nil), arms...)})
}

// Commit seals the definition. The builder cannot be modified afterwards.
func (b *Builder[In, S]) Commit() (*Workflow[In, S], error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.committed {
		return nil, ErrAlreadyCommitted
	}
	b.committed = true
	if len(b.errs) > 0 {
		return nil, fmt.Errorf("workflow %q: %w", b.id, b.errs[0])
	}
	return &Workflow[In, S]{id: b.id, stages: append([]stage[In, S](nil), b.stages...)}, nil
}

// MustCommit is like Commit but panics on error. Use it for package-level
// definitions.
func (b *Builder[In, S]) MustCommit() *Workflow[In, S] {
	wf, err := b.Commit()
	if err != nil {
		panic(err)
	}
	return wf
}

func (b *Builder[In, S]) add(st stage[In, S]) *Builder[In, S] {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.committed {
		b.errs = append(b.errs, ErrAlreadyCommitted)
		return b
	}
	if st.id == "" {
		b.errs = append(b.errs, fmt.Errorf("%w: empty stage id", ErrInvalidStage))
		return b
	}
	if b.seen[st.id] {
		b.errs = append(b.errs, fmt.Errorf("%w: %q", ErrDuplicateStage, st.id))
		return b
	}
	b.seen[st.id] = true
	b.stages = append(b.stages, st)
	return b
}

func (b *Builder[In, S]) fail(err error) *Builder[In, S] {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errs = append(b.errs, err)
	return b
}
