package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSuspended Status = "suspended"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// StepRecord describes one executed map or step stage.
type StepRecord struct {
	StepID   string
	Outcome  Kind
	Started  time.Time
	Duration time.Duration
	Err      error
}

// Suspension is the pause point of a suspended run.
type Suspension struct {
	StepID  string
	Payload any
}

// Snapshot is everything needed to resume a suspended run.
type Snapshot[In, S any] struct {
	RunID      string
	WorkflowID string
	// StepID is the qualified id of the suspended step, for example
	// "transaction/direct/validate".
	StepID    string
	Payload   any
	Init      In
	State     *S
	Input     any
	Path      []int
	History   []StepRecord
	CreatedAt time.Time
}

// Result is returned by Run and Resume.
type Result[In, S any] struct {
	RunID      string
	WorkflowID string
	Status     Status
	Output     any
	State      *S
	Err        error
	Suspension *Suspension
	History    []StepRecord

	snapshot *Snapshot[In, S]
}

// Snapshot returns the resume point of a suspended run, or nil.
func (r *Result[In, S]) Snapshot() *Snapshot[In, S] {
	return r.snapshot
}

// Workflow is a committed, immutable definition.
type Workflow[In, S any] struct {
	id     string
	stages []stage[In, S]
}

// ID returns the workflow id.
func (w *Workflow[In, S]) ID() string { return w.id }

// Run executes the workflow from its first stage. A nil state is replaced
// by a new zero S.
func (w *Workflow[In, S]) Run(ctx context.Context, init In, state *S, opts ...Option) *Result[In, S] {
	cfg := defaultRunConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.runID == "" {
		cfg.runID = uuid.NewString()
	}
	if state == nil {
		state = new(S)
	}

	r := newRunner(w, cfg, cfg.runID, init, state, nil)
	return r.finish(r.start(ctx, nil))
}

// Resume re-enters a suspended run at the step recorded in snap. The step
// receives its original input again and reads data through
// RunContext.ResumeData.
func (w *Workflow[In, S]) Resume(ctx context.Context, snap *Snapshot[In, S], data any, opts ...Option) *Result[In, S] {
	cfg := defaultRunConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if snap == nil {
		return w.invalidResume("", fmt.Errorf("%w: nil snapshot", ErrStepNotFound))
	}
	if snap.WorkflowID != w.id {
		return w.invalidResume(snap.RunID, fmt.Errorf("%w: %q", ErrWorkflowMismatch, snap.WorkflowID))
	}
	if qid, ok := w.resolve(w.id, snap.Path); !ok || qid != snap.StepID {
		return w.invalidResume(snap.RunID, fmt.Errorf("%w: %q", ErrStepNotFound, snap.StepID))
	}

	state := snap.State
	if state == nil {
		state = new(S)
	}
	r := newRunner(w, cfg, snap.RunID, snap.Init, state, slices.Clone(snap.History))
	r.resumeData = data
	r.resumeInput = snap.Input
	return r.finish(r.start(ctx, snap.Path))
}

func (w *Workflow[In, S]) invalidResume(runID string, err error) *Result[In, S] {
	return &Result[In, S]{RunID: runID, WorkflowID: w.id, Status: StatusFailed, Err: err}
}

// resolve maps a resume path to the qualified id of the step it names.
func (w *Workflow[In, S]) resolve(prefix string, path []int) (string, bool) {
	if len(path) == 0 || path[0] < 0 || path[0] >= len(w.stages) {
		return "", false
	}
	st := w.stages[path[0]]
	switch st.kind {
	case stageStep:
		if len(path) != 1 {
			return "", false
		}
		return prefix + "/" + st.id, true
	case stageBranch:
		if len(path) < 3 || path[1] < 0 || path[1] >= len(st.arms) {
			return "", false
		}
		flow := st.arms[path[1]].Flow
		return flow.resolve(prefix+"/"+flow.id, path[2:])
	default:
		return "", false
	}
}

// outcome is the engine-internal result of executing a workflow level.
type outcome struct {
	kind    Kind
	value   any
	payload any
	err     error
	stepID  string
	input   any
	path    []int
}

type runner[In, S any] struct {
	root    *Workflow[In, S]
	cfg     runConfig
	runID   string
	init    In
	state   *S
	history []StepRecord
	logger  *slog.Logger

	resumeData  any
	resumeInput any
}

func newRunner[In, S any](w *Workflow[In, S], cfg runConfig, runID string, init In, state *S, history []StepRecord) *runner[In, S] {
	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}
	return &runner[In, S]{
		root:    w,
		cfg:     cfg,
		runID:   runID,
		init:    init,
		state:   state,
		history: history,
		logger:  logger.With("workflow", w.id, "run_id", runID),
	}
}

func (r *runner[In, S]) start(ctx context.Context, resume []int) outcome {
	if r.cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.timeout)
		defer cancel()
	}
	return r.exec(ctx, r.root, r.root.id, nil, resume)
}

// exec runs w from its first stage, or from the stage named by resume.
func (r *runner[In, S]) exec(ctx context.Context, w *Workflow[In, S], prefix string, input any, resume []int) outcome {
	start := 0
	if len(resume) > 0 {
		start = resume[0]
	}

	current := input
	for i := start; i < len(w.stages); i++ {
		st := w.stages[i]
		qid := prefix + "/" + st.id
		resuming := i == start && len(resume) > 0

		if err := ctx.Err(); err != nil {
			return outcome{kind: KindFail, err: &StepError{StepID: qid, Err: err}, stepID: qid}
		}

		var out outcome
		switch st.kind {
		case stageMap:
			out = r.runMap(ctx, st, qid, current)
		case stageStep:
			in := current
			if resuming {
				in = r.resumeInput
			}
			out = r.runStep(ctx, st.step, qid, in, resuming)
		case stageBranch:
			out = r.runBranch(ctx, st, prefix, current, resume, resuming)
		}

		switch out.kind {
		case KindSuspend:
			out.path = append([]int{i}, out.path...)
			return out
		case KindFail:
			return out
		}
		current = out.value
	}
	return outcome{kind: KindContinue, value: current}
}

func (r *runner[In, S]) runBranch(ctx context.Context, st stage[In, S], prefix string, input any, resume []int, resuming bool) outcome {
	if resuming {
		arm := st.arms[resume[1]]
		out := r.exec(ctx, arm.Flow, prefix+"/"+arm.Flow.id, input, resume[2:])
		return branchOutcome(resume[1], out)
	}
	for idx, arm := range st.arms {
		if arm.When != nil && !arm.When(r.init) {
			continue
		}
		r.logger.Debug("branch selected", "branch", st.id, "arm", arm.Name)
		out := r.exec(ctx, arm.Flow, prefix+"/"+arm.Flow.id, input, nil)
		return branchOutcome(idx, out)
	}
	r.logger.Debug("branch matched no arm", "branch", st.id)
	return outcome{kind: KindContinue}
}

func branchOutcome(arm int, out outcome) outcome {
	if out.kind == KindSuspend {
		out.path = append([]int{arm}, out.path...)
	}
	return out
}

func (r *runner[In, S]) runMap(ctx context.Context, st stage[In, S], qid string, input any) (out outcome) {
	started := time.Now()
	defer func() {
		if p := recover(); p != nil {
			out = outcome{kind: KindFail, err: &StepError{StepID: qid, Err: &PanicError{Value: p, Stack: debug.Stack()}}, stepID: qid}
		}
		r.record(qid, started, out)
	}()

	v, err := st.fn(ctx, input, r.context(qid, false))
	if err != nil {
		return outcome{kind: KindFail, err: &StepError{StepID: qid, Err: err}, stepID: qid}
	}
	return outcome{kind: KindContinue, value: v}
}

// runStep executes a step on its own goroutine so a hung step cannot hold
// the run past its timeout. An abandoned step keeps its own RunContext but
// shares State, so steps must stop writing once ctx is done.
func (r *runner[In, S]) runStep(ctx context.Context, step Step[In, S], qid string, input any, resuming bool) outcome {
	started := time.Now()
	stepCtx, cancel := ctx, context.CancelFunc(func() {})
	if r.cfg.stepTimeout > 0 {
		stepCtx, cancel = context.WithTimeout(ctx, r.cfg.stepTimeout)
	}
	defer cancel()

	rc := r.context(qid, resuming)
	done := make(chan Outcome[any], 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- Fail[any](&PanicError{Value: p, Stack: debug.Stack()})
			}
		}()
		done <- step.Execute(stepCtx, input, rc)
	}()

	var res Outcome[any]
	select {
	case res = <-done:
	case <-stepCtx.Done():
		err := stepCtx.Err()
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("%w after %s", ErrStepTimeout, r.cfg.stepTimeout)
		}
		res = Fail[any](err)
	}

	var out outcome
	switch res.Kind() {
	case KindContinue:
		out = outcome{kind: KindContinue, value: res.Value()}
	case KindSuspend:
		out = outcome{kind: KindSuspend, payload: res.Payload(), stepID: qid, input: input}
	default:
		out = outcome{kind: KindFail, err: &StepError{StepID: qid, Err: res.Err()}, stepID: qid}
	}
	r.record(qid, started, out)
	return out
}

func (r *runner[In, S]) context(qid string, resuming bool) *RunContext[In, S] {
	rc := &RunContext[In, S]{
		RunID:      r.runID,
		WorkflowID: r.root.id,
		StepID:     qid,
		Init:       r.init,
		State:      r.state,
		History:    slices.Clone(r.history),
		Logger:     r.logger.With("step", qid),
	}
	if resuming {
		rc.resumeData = r.resumeData
		rc.resumed = true
	}
	return rc
}

func (r *runner[In, S]) record(qid string, started time.Time, out outcome) {
	rec := StepRecord{
		StepID:   qid,
		Outcome:  out.kind,
		Started:  started,
		Duration: time.Since(started),
		Err:      out.err,
	}
	r.history = append(r.history, rec)
	if r.cfg.hook != nil {
		r.cfg.hook(rec)
	}
}

func (r *runner[In, S]) finish(out outcome) *Result[In, S] {
	res := &Result[In, S]{
		RunID:      r.runID,
		WorkflowID: r.root.id,
		State:      r.state,
		History:    r.history,
	}

	switch out.kind {
	case KindContinue:
		res.Status = StatusCompleted
		res.Output = out.value
	case KindSuspend:
		res.Status = StatusSuspended
		res.Suspension = &Suspension{StepID: out.stepID, Payload: out.payload}
		res.snapshot = &Snapshot[In, S]{
			RunID:      r.runID,
			WorkflowID: r.root.id,
			StepID:     out.stepID,
			Payload:    out.payload,
			Init:       r.init,
			State:      r.state,
			Input:      out.input,
			Path:       out.path,
			History:    slices.Clone(r.history),
			CreatedAt:  time.Now(),
		}
		r.logger.Debug("run suspended", "step", out.stepID)
	default:
		res.Status = StatusFailed
		res.Err = out.err
		r.logger.Debug("run failed", "step", out.stepID, "error", out.err)
	}
	return res
}
