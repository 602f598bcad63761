package git

import (
	"fmt"
	"strings"

	"github.com/big-comm/bigbuild/pkg/config"
	cerr "github.com/cockroachdb/errors"
)

// Action is a high-level operation a caller may request.
type Action string

const (
	ActionCommit          Action = "commit"
	ActionSync            Action = "sync"
	ActionGeneratePackage Action = "generate-package"
	ActionRevert          Action = "revert"
)

// StepKind identifies a primitive plan step.
type StepKind string

const (
	StepStage        StepKind = "stage"
	StepCommit       StepKind = "commit"
	StepFetch        StepKind = "fetch"
	StepPull         StepKind = "pull"
	StepMerge        StepKind = "merge"
	StepPush         StepKind = "push"
	StepTag          StepKind = "tag"
	StepBranchCreate StepKind = "branch-create"
	StepDispatch     StepKind = "dispatch"
	StepRevert       StepKind = "revert"
	StepReset        StepKind = "reset"
)

// DispatchRequest carries what the CI dispatch step needs. It is consumed by
// the Dispatcher collaborator only after the preceding push step succeeded.
type DispatchRequest struct {
	Organization string
	Channel      string
	Ref          string
	Package      string
}

// Step is one primitive operation with its literal arguments.
type Step struct {
	Kind        StepKind
	Description string
	// Command holds the literal subprocess arguments (command name first).
	// Empty for dispatch steps.
	Command []string
	// Destructive marks steps that rewrite history or force changes.
	Destructive bool
	Dispatch    *DispatchRequest
}

// OperationPlan is an ordered, side-effect-free description of the steps to
// perform. Building one never mutates the working tree; only the Executor
// does.
type OperationPlan struct {
	Action  Action
	Steps   []Step
	Preview string
	// Risks flags outcomes the caller should confirm, e.g. "will force-push".
	Risks []string
}

// PlanParams parameterizes Plan. Anything time-dependent (generated branch
// names) is computed by the caller so planning stays deterministic.
type PlanParams struct {
	// Message is the commit message; required when the tree has changes.
	Message string
	// Files restricts staging; empty means stage all.
	Files []string
	// Channel is the publish target for generate-package.
	Channel string
	// Branch is the branch to create and push for commit/generate-package.
	// Empty means push the current branch.
	Branch string
	// Package is the package name dispatched to the remote build.
	Package string
	// Target is the commit reference a revert or reset acts on.
	Target string
	// Reset rewinds history to Target instead of adding a revert commit.
	Reset bool
	Force bool
}

// Planner turns requested actions into plans. It holds only read-only
// configuration; channel validity and organization come from there, never
// from process-wide state.
type Planner struct {
	settings config.Settings
}

// NewPlanner returns a Planner using the given configuration.
func NewPlanner(settings config.Settings) *Planner {
	return &Planner{settings: settings}
}

// Plan builds an OperationPlan for the requested action. Pure function of
// the status snapshot plus parameters: identical inputs produce identical
// step sequences.
func (p *Planner) Plan(status *WorkingTreeStatus, action Action, params PlanParams) (*OperationPlan, error) {
	// A dirty merge blocks everything except resolution itself, which is not
	// a planned action.
	if status.MergeInProgress && status.HasConflicts {
		return nil, cerr.WithHint(ErrDirtyMergeInProgress,
			"resolve or abort the merge before requesting another operation")
	}

	var plan *OperationPlan
	var err error
	switch action {
	case ActionCommit:
		plan, err = p.planCommit(status, params)
	case ActionSync:
		plan, err = p.planSync(status, params)
	case ActionGeneratePackage:
		plan, err = p.planGeneratePackage(status, params)
	case ActionRevert:
		plan, err = p.planRevert(status, params)
	default:
		return nil, cerr.Newf("unknown action %q", action)
	}
	if err != nil {
		return nil, err
	}

	plan.Preview = renderPreview(plan)
	return plan, nil
}

func (p *Planner) planCommit(status *WorkingTreeStatus, params PlanParams) (*OperationPlan, error) {
	if !status.HasChanges() {
		return nil, cerr.New("nothing to commit: working tree is clean")
	}
	if params.Message == "" {
		return nil, cerr.New("commit message cannot be empty")
	}

	plan := &OperationPlan{Action: ActionCommit}
	plan.Steps = append(plan.Steps, stageStep(params.Files))
	plan.Steps = append(plan.Steps, Step{
		Kind:        StepCommit,
		Description: fmt.Sprintf("Commit changes: %s", params.Message),
		Command:     []string{"git", "commit", "-m", params.Message},
	})

	if params.Branch != "" && params.Branch != status.Branch {
		plan.Steps = append(plan.Steps, Step{
			Kind:        StepBranchCreate,
			Description: fmt.Sprintf("Create branch %s", params.Branch),
			Command:     []string{"git", "checkout", "-b", params.Branch},
		})
	}

	plan.Steps = append(plan.Steps, p.pushStep(status, params, &plan.Risks))
	return plan, nil
}

func (p *Planner) planSync(status *WorkingTreeStatus, params PlanParams) (*OperationPlan, error) {
	plan := &OperationPlan{Action: ActionSync}

	plan.Steps = append(plan.Steps, Step{
		Kind:        StepFetch,
		Description: "Fetch remote branches",
		Command:     []string{"git", "fetch", "--all", "--prune"},
	})

	source := params.Branch
	if source == "" {
		source = status.Branch
	}
	plan.Steps = append(plan.Steps, Step{
		Kind:        StepPull,
		Description: fmt.Sprintf("Pull latest changes from origin/%s", source),
		Command:     []string{"git", "pull", "origin", source, "--no-edit"},
	})

	if status.HasChanges() {
		plan.Risks = append(plan.Risks, "local changes present: the merge may conflict with them")
	}
	return plan, nil
}

func (p *Planner) planGeneratePackage(status *WorkingTreeStatus, params PlanParams) (*OperationPlan, error) {
	if !p.settings.ValidChannel(params.Channel) {
		return nil, cerr.Wrapf(ErrInvalidBranchTarget,
			"channel %q is not one of %s", params.Channel, strings.Join(p.settings.Channels, "/"))
	}
	if status.HasChanges() && params.Message == "" {
		return nil, cerr.New("working tree has changes: a commit message is required")
	}

	plan := &OperationPlan{Action: ActionGeneratePackage}

	if status.HasChanges() {
		plan.Steps = append(plan.Steps, stageStep(params.Files))
		plan.Steps = append(plan.Steps, Step{
			Kind:        StepCommit,
			Description: fmt.Sprintf("Commit changes: %s", params.Message),
			Command:     []string{"git", "commit", "-m", params.Message},
		})
	}

	if params.Branch != "" && params.Branch != status.Branch {
		plan.Steps = append(plan.Steps, Step{
			Kind:        StepBranchCreate,
			Description: fmt.Sprintf("Create branch %s", params.Branch),
			Command:     []string{"git", "checkout", "-b", params.Branch},
		})
	}

	plan.Steps = append(plan.Steps, p.pushStep(status, params, &plan.Risks))

	ref := params.Branch
	if ref == "" {
		ref = status.Branch
	}
	plan.Steps = append(plan.Steps, Step{
		Kind:        StepDispatch,
		Description: fmt.Sprintf("Trigger remote %s build for %s", params.Channel, params.Package),
		Dispatch: &DispatchRequest{
			Organization: p.settings.Organization,
			Channel:      params.Channel,
			Ref:          ref,
			Package:      params.Package,
		},
	})
	return plan, nil
}

func (p *Planner) planRevert(status *WorkingTreeStatus, params PlanParams) (*OperationPlan, error) {
	if params.Target == "" {
		return nil, cerr.New("a commit reference is required")
	}
	if status.HasChanges() {
		return nil, cerr.New("working tree has changes: commit or stash them before rewriting history")
	}

	plan := &OperationPlan{Action: ActionRevert}
	if params.Reset {
		plan.Steps = append(plan.Steps, Step{
			Kind:        StepReset,
			Description: fmt.Sprintf("Reset %s to %s", status.Branch, params.Target),
			Command:     []string{"git", "reset", "--hard", params.Target},
			Destructive: true,
		})
		plan.Risks = append(plan.Risks, fmt.Sprintf("will discard every commit after %s", params.Target))
		forced := params
		forced.Force = true
		plan.Steps = append(plan.Steps, p.pushStep(status, forced, &plan.Risks))
	} else {
		plan.Steps = append(plan.Steps, Step{
			Kind:        StepRevert,
			Description: fmt.Sprintf("Revert commit %s", params.Target),
			Command:     []string{"git", "revert", "--no-edit", params.Target},
		})
		plan.Steps = append(plan.Steps, p.pushStep(status, params, &plan.Risks))
	}
	return plan, nil
}

func stageStep(files []string) Step {
	if len(files) == 0 {
		return Step{
			Kind:        StepStage,
			Description: "Stage all changes",
			Command:     []string{"git", "add", "--all"},
		}
	}
	cmd := append([]string{"git", "add", "--"}, files...)
	return Step{
		Kind:        StepStage,
		Description: fmt.Sprintf("Stage %d file(s)", len(files)),
		Command:     cmd,
	}
}

func (p *Planner) pushStep(status *WorkingTreeStatus, params PlanParams, risks *[]string) Step {
	branch := params.Branch
	if branch == "" {
		branch = status.Branch
	}

	args := []string{"git", "push"}
	if params.Force {
		args = append(args, "--force-with-lease")
		*risks = append(*risks, "will force-push: remote history is overwritten")
	}
	// A branch the plan creates, or one without an upstream, needs -u.
	if params.Branch != "" && params.Branch != status.Branch || !status.HasUpstream {
		args = append(args, "-u")
	}
	args = append(args, "origin", branch)

	return Step{
		Kind:        StepPush,
		Description: fmt.Sprintf("Push to origin/%s", branch),
		Command:     args,
		Destructive: params.Force,
	}
}

// renderPreview formats the numbered human-readable preview shown before
// confirmation.
func renderPreview(plan *OperationPlan) string {
	var sb strings.Builder
	bar := strings.Repeat("=", 70)

	sb.WriteString(bar + "\n")
	sb.WriteString("OPERATION PLAN\n")
	sb.WriteString(bar + "\n")

	destructive := 0
	for i, step := range plan.Steps {
		icon := "> "
		if step.Destructive {
			icon = "! "
			destructive++
		}
		fmt.Fprintf(&sb, "%s%d. %s\n", icon, i+1, step.Description)
		if len(step.Command) > 0 {
			fmt.Fprintf(&sb, "   $ %s\n", strings.Join(step.Command, " "))
		}
	}

	sb.WriteString(bar + "\n")
	if destructive > 0 {
		fmt.Fprintf(&sb, "%d destructive operation(s) out of %d total\n", destructive, len(plan.Steps))
	} else {
		fmt.Fprintf(&sb, "%d safe operation(s)\n", len(plan.Steps))
	}
	for _, risk := range plan.Risks {
		fmt.Fprintf(&sb, "warning: %s\n", risk)
	}

	return sb.String()
}
