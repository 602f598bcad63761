package cmd

import (
	"context"
	"time"

	"github.com/big-comm/bigbuild/pkg/build_err"
	"github.com/big-comm/bigbuild/pkg/build_io"
	"github.com/big-comm/bigbuild/pkg/execute"
	"github.com/big-comm/bigbuild/pkg/git"
	"github.com/big-comm/bigbuild/pkg/github"
	"github.com/big-comm/bigbuild/pkg/interaction"
	cerr "github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// engine bundles the collaborators every repository command needs.
type engine struct {
	runner    git.Runner
	inspector *git.Inspector
	branches  *git.Branches
	planner   *git.Planner
	frontend  *interaction.TerminalFrontend
}

func newEngine(rc *build_io.RuntimeContext) (*engine, error) {
	if !execute.CommandExists("git") {
		return nil, build_err.NewExpectedError(cerr.New("git is not installed"))
	}

	runner := timeoutRunner(git.SystemRunner(), time.Duration(settings.NetworkTimeoutSeconds)*time.Second)
	inspector := git.NewInspector(runner, repoDir)

	if !inspector.IsGitRepo(rc.Ctx) {
		return nil, build_err.NewExpectedError(cerr.Newf("%s is not a git repository", repoDir))
	}

	return &engine{
		runner:    runner,
		inspector: inspector,
		branches:  git.NewBranches(runner, repoDir),
		planner:   git.NewPlanner(settings),
		frontend:  interaction.NewTerminalFrontend(),
	}, nil
}

// timeoutRunner applies the configured network timeout to commands that
// have no explicit one.
func timeoutRunner(inner git.Runner, timeout time.Duration) git.Runner {
	return git.RunnerFunc(func(ctx context.Context, opts execute.Options) (*execute.Result, error) {
		if opts.Timeout == 0 {
			opts.Timeout = timeout
		}
		return inner.Run(ctx, opts)
	})
}

// apiClient builds the GitHub client, loading the token lazily so commands
// without an API step never prompt for one.
func apiClient(rc *build_io.RuntimeContext) (*github.Client, error) {
	token, err := github.LoadToken(rc.Ctx, settings.TokenPath())
	if err != nil {
		return nil, err
	}
	return github.NewClient(token, settings.Organization, settings.WorkflowRepo), nil
}

// resolveChannel validates a channel flag, asking interactively when it was
// not given. Under --yes the first configured channel is assumed.
func resolveChannel(value string) (string, error) {
	if value != "" {
		return value, nil
	}
	if assumeYes {
		return settings.Channels[0], nil
	}
	idx, err := interaction.PromptSelect("Select publish channel", settings.Channels)
	if err != nil {
		return "", err
	}
	return settings.Channels[idx], nil
}

// confirmPlan previews the plan and asks before running it. Destructive
// risks always prompt, even under --yes.
func (e *engine) confirmPlan(plan *git.OperationPlan, dryRun bool) (bool, error) {
	e.frontend.ReportPlanPreview(plan)
	if dryRun {
		return false, nil
	}
	if assumeYes && len(plan.Risks) == 0 {
		return true, nil
	}
	return interaction.PromptYesNo("Proceed?", true), nil
}

// runPlan executes a plan, pausing on merge conflicts to resolve them with
// the given strategy and resuming afterwards.
func (e *engine) runPlan(rc *build_io.RuntimeContext, plan *git.OperationPlan, dispatcher git.Dispatcher, strategy git.Strategy) (*git.OperationResult, error) {
	executor := git.NewExecutor(e.runner, e.inspector, dispatcher)

	result, err := executor.Execute(rc.Ctx, plan)
	var conflictErr *git.UnresolvedConflictsError
	if !cerr.As(err, &conflictErr) {
		e.frontend.ReportResult(result)
		return result, err
	}

	rc.Log.Info("Resolving merge conflicts",
		zap.Int("conflicts", len(conflictErr.Records)),
		zap.String("strategy", string(strategy)))

	resolver := git.NewResolver(e.runner, e.inspector.RepoDir(), strategy, e.frontend)
	if err := resolver.ResolveAll(rc.Ctx, conflictErr.Records); err != nil {
		return result, err
	}
	if strategy == git.StrategyManual {
		return result, build_err.NewExpectedError(cerr.New(
			"conflicts left for manual resolution; finish with git add and git commit, then re-run"))
	}

	final, err := executor.Resume(rc.Ctx, plan, result, conflictErr.Records)
	if final != nil {
		e.frontend.ReportResult(final)
	}
	return final, err
}

func gitCommand(dir string, args ...string) execute.Options {
	return execute.Options{Command: "git", Args: args, Dir: dir}
}

func strategyFlag(value string) (git.Strategy, error) {
	s := git.Strategy(value)
	if !git.ValidStrategy(s) {
		return "", build_err.NewValidationError(
			"unknown strategy " + value + "; use interactive, auto-ours, auto-theirs, keep-both or manual")
	}
	return s, nil
}
