package cmd

import (
	"time"

	"github.com/big-comm/bigbuild/pkg/build_cli"
	"github.com/big-comm/bigbuild/pkg/build_io"
	"github.com/big-comm/bigbuild/pkg/git"
	"github.com/big-comm/bigbuild/pkg/pkgbuild"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	commitMessage  string
	commitDryRun   bool
	commitStrategy string
	commitForce    bool
	commitBump     bool
)

var commitCmd = &cobra.Command{
	Use:   "commit [files...]",
	Short: "Commit and push changes on a development branch",
	Long: `Stages the given files (or everything), commits, and pushes to a fresh
timestamped development branch. When the current branch is not a development
branch, the most recent dev branch is checked out first, creating one if none
exists. The remote is pulled before committing so the new branch starts from
its tip.`,
	RunE: build_cli.Wrap(func(rc *build_io.RuntimeContext, cmd *cobra.Command, args []string) error {
		eng, err := newEngine(rc)
		if err != nil {
			return err
		}
		strategy, err := strategyFlag(commitStrategy)
		if err != nil {
			return err
		}

		branch, err := eng.branches.EnsureDevBranch(rc.Ctx, eng.inspector, time.Now())
		if err != nil {
			return err
		}
		rc.Log.Info("Committing on development branch", zap.String("branch", branch))

		if commitBump {
			info, err := pkgbuild.Find(repoDir)
			if err != nil {
				return err
			}
			version, err := pkgbuild.BumpFile(info.Path, commitMessage)
			if err != nil {
				return err
			}
			rc.Log.Info("Version bumped",
				zap.String("package", info.Name), zap.String("pkgver", version))
		}

		status, err := eng.inspector.Status(rc.Ctx)
		if err != nil {
			return err
		}

		// Bring the branch up to date first, so the fresh dev branch starts
		// from the remote tip.
		if !commitDryRun && status.HasUpstream {
			pull, err := eng.planner.Plan(status, git.ActionSync, git.PlanParams{Branch: branch})
			if err != nil {
				return err
			}
			if _, err := eng.runPlan(rc, pull, nil, strategy); err != nil {
				return err
			}
			if status, err = eng.inspector.Status(rc.Ctx); err != nil {
				return err
			}
		}

		plan, err := eng.planner.Plan(status, git.ActionCommit, git.PlanParams{
			Message: commitMessage,
			Files:   args,
			Branch:  git.DevBranchName(time.Now()),
			Force:   commitForce,
		})
		if err != nil {
			return err
		}

		proceed, err := eng.confirmPlan(plan, commitDryRun)
		if err != nil || !proceed {
			return err
		}

		_, err = eng.runPlan(rc, plan, nil, strategy)
		return err
	}),
}

func init() {
	commitCmd.Flags().StringVarP(&commitMessage, "message", "m", "", "commit message (required)")
	commitCmd.Flags().BoolVarP(&commitDryRun, "dry-run", "n", false, "show the plan without executing it")
	commitCmd.Flags().StringVarP(&commitStrategy, "strategy", "s", "interactive", "conflict resolution strategy")
	commitCmd.Flags().BoolVar(&commitForce, "force", false, "force-push with lease")
	commitCmd.Flags().BoolVar(&commitBump, "bump", false, "bump pkgver from the commit message before committing")
	_ = commitCmd.MarkFlagRequired("message")
	rootCmd.AddCommand(commitCmd)
}
