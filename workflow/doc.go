// Package workflow runs typed, suspendable step pipelines.
//
// A workflow is an ordered list of stages assembled with a [Builder] and
// sealed with [Builder.Commit]. Three stage kinds exist:
//
//   - Map: a pure transform from the previous stage's output to the next
//     stage's input. Maps never call collaborators and never suspend.
//   - Then: runs a [Step]. Its output feeds the next stage.
//   - Branch: picks the first [Arm] whose predicate accepts the run's initial
//     input and runs that arm's committed sub-workflow.
//
// Every workflow is generic over two types: In, the immutable input the run
// was started with, and S, the mutable run state shared by all steps of one
// run. Data passed between stages is untyped; [NewStep] and [Transform]
// adapt typed functions and report a [TypeError] when shapes do not line up.
//
// # Outcomes
//
// Steps return an [Outcome]: [Continue] with a value, [Suspend] with an opaque
// payload, or [Fail] with an error. The engine checks the outcome after every
// stage. A failing step ends the run with [StatusFailed]; a panic or an
// exceeded step timeout is converted into a failure as well, so a run never
// crashes its caller.
//
// # Suspend and resume
//
// When a step suspends, [Workflow.Run] returns [StatusSuspended] and a
// [Snapshot] recording the run id, the qualified id of the suspended step,
// the payload, the step's input and the run state. The caller keeps the
// snapshot and later calls [Workflow.Resume] with new data. Execution
// re-enters at exactly the suspended step, even inside a branch arm, and the
// step reads the new data through [RunContext.ResumeData].
//
//	type order struct{ Item string }
//	type cart struct{ Qty int }
//
//	ask := workflow.NewStep("ask", func(ctx context.Context, in string, rc *workflow.RunContext[order, cart]) workflow.Outcome[int] {
//	    if data, ok := workflow.ResumeDataAs[int](rc); ok {
//	        rc.State.Qty = data
//	        return workflow.Continue(data)
//	    }
//	    return workflow.Suspend[int]("how many?")
//	})
//
//	wf := workflow.New[order, cart]("checkout").Then(ask).MustCommit()
//
//	res := wf.Run(ctx, order{Item: "tea"}, &cart{})
//	// res.Status == workflow.StatusSuspended
//	res = wf.Resume(ctx, res.Snapshot(), 3)
//	// res.Status == workflow.StatusCompleted, res.Output == 3
//
// A committed workflow is immutable and safe for concurrent runs. A single
// run is sequential: each stage finishes before the next starts.
package workflow
