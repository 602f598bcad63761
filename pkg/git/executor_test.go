package git

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDispatcher struct {
	requests []DispatchRequest
	receipt  *DispatchReceipt
	err      error
}

func (d *stubDispatcher) TriggerBuild(_ context.Context, req DispatchRequest) (*DispatchReceipt, error) {
	d.requests = append(d.requests, req)
	if d.err != nil {
		return nil, d.err
	}
	if d.receipt != nil {
		return d.receipt, nil
	}
	return &DispatchReceipt{Accepted: true, RunURL: "https://github.com/big-comm/build-package/actions"}, nil
}

// statusResponses scripts the calls Inspector.Status makes on a clean tree.
func statusResponses(r *fakeRunner, branch string) *fakeRunner {
	return r.
		on("git rev-parse --abbrev-ref HEAD", ok(branch+"\n")).
		on("git status --porcelain", ok(""))
}

func commitPlan(t *testing.T) *OperationPlan {
	t.Helper()
	status := dirtyStatus()
	plan, err := testPlanner().Plan(status, ActionCommit, PlanParams{Message: "bump"})
	require.NoError(t, err)
	return plan
}

func TestExecuteRunsAllSteps(t *testing.T) {
	dir := t.TempDir()
	runner := statusResponses(newFakeRunner(), "dev").
		on("git add --all", ok("")).
		on("git commit -m bump", ok("[dev 1a2b3c4] bump\n")).
		on("git push origin dev", ok(""))
	exec := NewExecutor(runner, NewInspector(runner, dir), nil)

	result, err := exec.Execute(context.Background(), commitPlan(t))
	require.NoError(t, err)

	assert.True(t, result.Completed())
	require.Len(t, result.Outcomes, 3)
	for _, outcome := range result.Outcomes {
		assert.Equal(t, StepSuccess, outcome.Status)
	}
	require.NotNil(t, result.FinalStatus)
	assert.Equal(t, "dev", result.FinalStatus.Branch)
}

func TestExecuteStopsOnFailure(t *testing.T) {
	dir := t.TempDir()
	runner := statusResponses(newFakeRunner(), "dev").
		on("git add --all", ok("")).
		on("git commit -m bump", failed("pre-commit hook failed"))
	exec := NewExecutor(runner, NewInspector(runner, dir), nil)

	result, err := exec.Execute(context.Background(), commitPlan(t))
	require.Error(t, err)

	var stepErr *StepFailedError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, 1, stepErr.Index)
	assert.Contains(t, stepErr.Stderr, "pre-commit hook failed")

	assert.Equal(t, 1, result.StoppedAt)
	require.Len(t, result.Outcomes, 2)
	assert.Equal(t, StepSuccess, result.Outcomes[0].Status)
	assert.Equal(t, StepFailure, result.Outcomes[1].Status)
	// The push never ran.
	assert.False(t, runner.called("git push origin dev"))
}

func TestExecutePausesOnConflict(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "PKGBUILD"), []byte(conflictedPkgbuild), 0o644))

	runner := newFakeRunner().
		on("git fetch --all --prune", ok("")).
		on("git pull origin dev --no-edit", failed("CONFLICT (content): Merge conflict in PKGBUILD\nAutomatic merge failed; fix conflicts and then commit the result.")).
		on("git rev-parse --abbrev-ref HEAD", ok("dev\n")).
		on("git status --porcelain", ok("UU PKGBUILD\n"))

	status := dirtyStatus()
	plan, err := testPlanner().Plan(status, ActionSync, PlanParams{})
	require.NoError(t, err)

	exec := NewExecutor(runner, NewInspector(runner, dir), nil)
	result, err := exec.Execute(context.Background(), plan)
	require.Error(t, err)

	var conflictErr *UnresolvedConflictsError
	require.ErrorAs(t, err, &conflictErr)
	require.Len(t, conflictErr.Records, 1)
	assert.Equal(t, "PKGBUILD", conflictErr.Records[0].Path)
	assert.Equal(t, ConflictContent, conflictErr.Records[0].Kind)

	assert.Equal(t, 1, result.StoppedAt)
	assert.Equal(t, "merge conflicts", result.StopReason)
	require.Len(t, result.Conflicts, 1)
	assert.Same(t, conflictErr.Records[0], result.Conflicts[0])
}

func TestResumeAfterResolution(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "PKGBUILD"), []byte(conflictedPkgbuild), 0o644))

	runner := newFakeRunner().
		on("git fetch --all --prune", ok("")).
		on("git pull origin dev --no-edit", failed("CONFLICT (content): Merge conflict in PKGBUILD")).
		on("git rev-parse --abbrev-ref HEAD", ok("dev\n")).
		on("git status --porcelain", ok("UU PKGBUILD\n")).
		on("git add -- PKGBUILD", ok(""))

	plan, err := testPlanner().Plan(dirtyStatus(), ActionSync, PlanParams{})
	require.NoError(t, err)

	exec := NewExecutor(runner, NewInspector(runner, dir), nil)
	result, err := exec.Execute(context.Background(), plan)
	require.Error(t, err)
	require.Len(t, result.Conflicts, 1)

	// Resolve with auto-ours, then resume past the conflicted pull.
	resolver := NewResolver(runner, dir, StrategyOurs, nil)
	require.NoError(t, resolver.ResolveAll(context.Background(), result.Conflicts))
	require.True(t, ReadyToCommit(result.Conflicts))

	runner.responses["git status --porcelain"] = ok("")
	final, err := exec.Resume(context.Background(), plan, result, result.Conflicts)
	require.NoError(t, err)

	assert.True(t, final.Completed())
	require.Len(t, final.Outcomes, 2)
	assert.Equal(t, StepSuccess, final.Outcomes[1].Status)
}

func TestResumeAbortsWhenSkipped(t *testing.T) {
	dir := t.TempDir()
	runner := newFakeRunner().
		on("git merge --abort", ok(""))

	plan, err := testPlanner().Plan(dirtyStatus(), ActionSync, PlanParams{})
	require.NoError(t, err)

	prior := &OperationResult{
		Outcomes:  []StepOutcome{{Step: plan.Steps[0], Status: StepSuccess}, {Step: plan.Steps[1], Status: StepFailure}},
		StoppedAt: 1,
	}
	records := []*ConflictRecord{{Path: "PKGBUILD", State: Skipped}}

	exec := NewExecutor(runner, NewInspector(runner, dir), nil)
	_, err = exec.Resume(context.Background(), plan, prior, records)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "aborted")
	assert.True(t, runner.called("git merge --abort"))
}

func TestResumeRequiresFullResolution(t *testing.T) {
	dir := t.TempDir()
	plan, err := testPlanner().Plan(dirtyStatus(), ActionSync, PlanParams{})
	require.NoError(t, err)

	prior := &OperationResult{
		Outcomes:  []StepOutcome{{Step: plan.Steps[0], Status: StepSuccess}, {Step: plan.Steps[1], Status: StepFailure}},
		StoppedAt: 1,
	}
	records := []*ConflictRecord{
		{Path: "PKGBUILD", State: Resolved},
		{Path: "install.sh", State: Unresolved},
	}

	runner := newFakeRunner()
	exec := NewExecutor(runner, NewInspector(runner, dir), nil)
	_, err = exec.Resume(context.Background(), plan, prior, records)
	require.Error(t, err)

	var conflictErr *UnresolvedConflictsError
	require.ErrorAs(t, err, &conflictErr)
	require.Len(t, conflictErr.Records, 1)
	assert.Equal(t, "install.sh", conflictErr.Records[0].Path)
}

func TestExecuteDispatchStep(t *testing.T) {
	dir := t.TempDir()
	runner := statusResponses(newFakeRunner(), "testing-vcastro").
		on("git checkout -b testing-vcastro", ok("")).
		on("git push -u origin testing-vcastro", ok(""))

	status := &WorkingTreeStatus{Branch: "stable", HasUpstream: true}
	plan, err := testPlanner().Plan(status, ActionGeneratePackage, PlanParams{
		Channel: "testing",
		Branch:  "testing-vcastro",
		Package: "big-store",
	})
	require.NoError(t, err)

	dispatcher := &stubDispatcher{}
	exec := NewExecutor(runner, NewInspector(runner, dir), dispatcher)

	result, err := exec.Execute(context.Background(), plan)
	require.NoError(t, err)
	assert.True(t, result.Completed())

	require.Len(t, dispatcher.requests, 1)
	req := dispatcher.requests[0]
	assert.Equal(t, "big-comm", req.Organization)
	assert.Equal(t, "testing", req.Channel)
	assert.Equal(t, "testing-vcastro", req.Ref)
	assert.Equal(t, "big-store", req.Package)
}

func TestDispatchNotCalledWhenPushFails(t *testing.T) {
	dir := t.TempDir()
	runner := statusResponses(newFakeRunner(), "testing-vcastro").
		on("git checkout -b testing-vcastro", ok(""))
	runner.responses["git push -u origin testing-vcastro"] = failed("remote: permission denied")

	status := &WorkingTreeStatus{Branch: "stable", HasUpstream: true}
	plan, err := testPlanner().Plan(status, ActionGeneratePackage, PlanParams{
		Channel: "testing",
		Branch:  "testing-vcastro",
		Package: "big-store",
	})
	require.NoError(t, err)

	dispatcher := &stubDispatcher{}
	exec := NewExecutor(runner, NewInspector(runner, dir), dispatcher)

	_, err = exec.Execute(context.Background(), plan)
	require.Error(t, err)
	assert.Empty(t, dispatcher.requests)
}

func TestExecuteCancellation(t *testing.T) {
	dir := t.TempDir()
	runner := statusResponses(newFakeRunner(), "dev")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exec := NewExecutor(runner, NewInspector(runner, dir), nil)
	result, err := exec.Execute(ctx, commitPlan(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, 0, result.StoppedAt)
	assert.Equal(t, "cancelled", result.StopReason)
	require.Len(t, result.Outcomes, 1)
	assert.Equal(t, StepSkippedStatus, result.Outcomes[0].Status)
	assert.False(t, runner.called("git add --all"))
}
