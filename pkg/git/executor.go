package git

import (
	"context"
	"strings"

	"github.com/big-comm/bigbuild/pkg/execute"
	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// StepStatus is the outcome of one executed step.
type StepStatus int

const (
	StepSuccess StepStatus = iota
	StepFailure
	StepSkippedStatus
)

func (s StepStatus) String() string {
	switch s {
	case StepSuccess:
		return "success"
	case StepFailure:
		return "failure"
	}
	return "skipped"
}

// StepOutcome records what happened to one step.
type StepOutcome struct {
	Step   Step
	Status StepStatus
	Output string
	Stderr string
}

// OperationResult reports per-step outcomes plus where and why execution
// stopped. Completed steps are never rolled back; commits and pushes already
// made stay made.
type OperationResult struct {
	Outcomes []StepOutcome
	// StoppedAt is the index of the step execution stopped at, -1 when the
	// whole plan ran.
	StoppedAt  int
	StopReason string
	// Conflicts holds the pending records when a merge/pull step conflicted.
	Conflicts   []*ConflictRecord
	FinalStatus *WorkingTreeStatus
}

// Completed reports whether every step ran successfully.
func (r *OperationResult) Completed() bool {
	return r.StoppedAt < 0
}

// DispatchReceipt is what the CI collaborator returns for a build trigger.
type DispatchReceipt struct {
	Accepted bool
	// RunURL points at the actions page monitoring the build, when known.
	RunURL string
}

// Dispatcher triggers a remote CI build. Called only after the push step of
// the same plan succeeded.
type Dispatcher interface {
	TriggerBuild(ctx context.Context, req DispatchRequest) (*DispatchReceipt, error)
}

// Executor runs a plan's steps strictly in order against one working tree.
// One plan at a time per repository; concurrent execution against the same
// tree must be serialized by the caller.
type Executor struct {
	runner     Runner
	inspector  *Inspector
	dispatcher Dispatcher
	repoDir    string
}

// NewExecutor builds an Executor. dispatcher may be nil when the plan
// contains no dispatch step.
func NewExecutor(runner Runner, inspector *Inspector, dispatcher Dispatcher) *Executor {
	return &Executor{
		runner:     runner,
		inspector:  inspector,
		dispatcher: dispatcher,
		repoDir:    inspector.RepoDir(),
	}
}

// Execute runs the plan from the first step. On a conflicting merge/pull
// step it classifies the tree and returns an UnresolvedConflictsError with
// the partial result; the caller resolves and calls Resume.
func (e *Executor) Execute(ctx context.Context, plan *OperationPlan) (*OperationResult, error) {
	return e.run(ctx, plan, 0, nil)
}

// Resume continues a paused plan after conflict resolution. Every record
// must be resolved; any skipped record aborts the merge instead, since
// partially committing a conflicted merge would publish an inconsistent
// tree.
func (e *Executor) Resume(ctx context.Context, plan *OperationPlan, prior *OperationResult, records []*ConflictRecord) (*OperationResult, error) {
	logger := otelzap.Ctx(ctx)

	if prior == nil || prior.StoppedAt < 0 {
		return nil, cerr.New("nothing to resume")
	}

	if AnySkipped(records) {
		logger.Warn("Resolution skipped; aborting merge")
		if err := e.AbortMerge(ctx); err != nil {
			return nil, err
		}
		return nil, cerr.New("merge aborted: conflict resolution was skipped")
	}
	if !ReadyToCommit(records) {
		return nil, &UnresolvedConflictsError{Records: unresolvedOf(records)}
	}

	// The paused pull/merge left staged resolutions behind; conclude it
	// before moving on.
	if e.inspector.MergeInProgress(ctx) {
		res, err := e.git(ctx, "commit", "--no-edit")
		if err != nil {
			return nil, err
		}
		if res.ExitCode != 0 {
			return nil, cerr.Newf("failed to conclude merge: %s", strings.TrimSpace(res.Stderr))
		}
	}

	prior.Outcomes[prior.StoppedAt].Status = StepSuccess
	return e.run(ctx, plan, prior.StoppedAt+1, prior.Outcomes)
}

// AbortMerge abandons an in-progress merge, restoring the pre-merge tree.
func (e *Executor) AbortMerge(ctx context.Context) error {
	res, err := e.git(ctx, "merge", "--abort")
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return cerr.Newf("git merge --abort: %s", strings.TrimSpace(res.Stderr))
	}
	return nil
}

func (e *Executor) git(ctx context.Context, args ...string) (*execute.Result, error) {
	return e.runner.Run(ctx, execute.Options{Command: "git", Args: args, Dir: e.repoDir})
}

func (e *Executor) run(ctx context.Context, plan *OperationPlan, from int, outcomes []StepOutcome) (*OperationResult, error) {
	logger := otelzap.Ctx(ctx)

	result := &OperationResult{Outcomes: outcomes, StoppedAt: -1}

	for i := from; i < len(plan.Steps); i++ {
		step := plan.Steps[i]

		// Cooperative cancellation: a running subprocess is allowed to
		// finish, but no further step starts.
		if ctx.Err() != nil {
			result.Outcomes = append(result.Outcomes, StepOutcome{Step: step, Status: StepSkippedStatus})
			result.StoppedAt = i
			result.StopReason = "cancelled"
			e.finishStatus(ctx, result)
			return result, ctx.Err()
		}

		logger.Info("Executing step",
			zap.Int("step", i+1),
			zap.Int("total", len(plan.Steps)),
			zap.String("description", step.Description))

		if step.Kind == StepDispatch {
			if err := e.dispatch(ctx, step, result, i); err != nil {
				return result, err
			}
			continue
		}

		res, err := e.runner.Run(ctx, execute.Options{
			Command: step.Command[0],
			Args:    step.Command[1:],
			Dir:     e.repoDir,
		})
		if err != nil {
			result.Outcomes = append(result.Outcomes, StepOutcome{Step: step, Status: StepFailure})
			result.StoppedAt = i
			result.StopReason = err.Error()
			e.finishStatus(ctx, result)
			return result, err
		}

		if res.ExitCode != 0 {
			if isMergeStep(step.Kind) && e.indicatesConflict(ctx, res) {
				return e.pauseOnConflict(ctx, result, step, i, res)
			}

			result.Outcomes = append(result.Outcomes, StepOutcome{
				Step:   step,
				Status: StepFailure,
				Output: res.Stdout,
				Stderr: res.Stderr,
			})
			result.StoppedAt = i
			result.StopReason = "step failed"
			e.finishStatus(ctx, result)
			return result, &StepFailedError{Index: i, Step: step, Stderr: res.Stderr}
		}

		result.Outcomes = append(result.Outcomes, StepOutcome{
			Step:   step,
			Status: StepSuccess,
			Output: res.Stdout,
		})
	}

	e.finishStatus(ctx, result)
	return result, nil
}

func (e *Executor) dispatch(ctx context.Context, step Step, result *OperationResult, index int) error {
	logger := otelzap.Ctx(ctx)

	if e.dispatcher == nil {
		result.Outcomes = append(result.Outcomes, StepOutcome{Step: step, Status: StepFailure})
		result.StoppedAt = index
		result.StopReason = "no dispatcher configured"
		return &StepFailedError{Index: index, Step: step, Stderr: "no dispatcher configured"}
	}

	receipt, err := e.dispatcher.TriggerBuild(ctx, *step.Dispatch)
	if err != nil {
		result.Outcomes = append(result.Outcomes, StepOutcome{Step: step, Status: StepFailure, Stderr: err.Error()})
		result.StoppedAt = index
		result.StopReason = "dispatch failed"
		return &StepFailedError{Index: index, Step: step, Stderr: err.Error()}
	}
	if !receipt.Accepted {
		result.Outcomes = append(result.Outcomes, StepOutcome{Step: step, Status: StepFailure})
		result.StoppedAt = index
		result.StopReason = "dispatch rejected"
		return &StepFailedError{Index: index, Step: step, Stderr: "workflow dispatch rejected"}
	}

	logger.Info("Build workflow triggered", zap.String("run_url", receipt.RunURL))
	result.Outcomes = append(result.Outcomes, StepOutcome{Step: step, Status: StepSuccess, Output: receipt.RunURL})
	return nil
}

// pauseOnConflict classifies the conflicted tree and hands control back to
// the caller with the pending records.
func (e *Executor) pauseOnConflict(ctx context.Context, result *OperationResult, step Step, index int, res *execute.Result) (*OperationResult, error) {
	logger := otelzap.Ctx(ctx)

	status, err := e.inspector.Status(ctx)
	if err != nil {
		return result, err
	}
	records, err := Classify(ctx, status, e.repoDir)
	if err != nil {
		return result, err
	}

	logger.Warn("Merge conflict detected; plan paused",
		zap.Int("step", index+1),
		zap.Int("conflicts", len(records)))

	result.Outcomes = append(result.Outcomes, StepOutcome{
		Step:   step,
		Status: StepFailure,
		Output: res.Stdout,
		Stderr: res.Stderr,
	})
	result.StoppedAt = index
	result.StopReason = "merge conflicts"
	result.Conflicts = records
	result.FinalStatus = status

	return result, &UnresolvedConflictsError{Records: records}
}

func (e *Executor) finishStatus(ctx context.Context, result *OperationResult) {
	if status, err := e.inspector.Status(ctx); err == nil {
		result.FinalStatus = status
	}
}

// indicatesConflict matches the conflict signals in merge/pull output plus
// the authoritative MERGE_HEAD marker.
func (e *Executor) indicatesConflict(ctx context.Context, res *execute.Result) bool {
	combined := strings.ToLower(res.Output())
	if strings.Contains(combined, "conflict") || strings.Contains(combined, "automatic merge failed") {
		return true
	}
	return e.inspector.MergeInProgress(ctx)
}

func isMergeStep(kind StepKind) bool {
	return kind == StepPull || kind == StepMerge
}

func unresolvedOf(records []*ConflictRecord) []*ConflictRecord {
	var out []*ConflictRecord
	for _, rec := range records {
		if rec.State == Unresolved {
			out = append(out, rec)
		}
	}
	return out
}
