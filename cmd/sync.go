package cmd

import (
	"github.com/big-comm/bigbuild/pkg/build_cli"
	"github.com/big-comm/bigbuild/pkg/build_io"
	"github.com/big-comm/bigbuild/pkg/git"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	syncDryRun   bool
	syncStrategy string
	syncBranch   string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch and merge the latest remote changes",
	Long: `Fetches all remotes and pulls the most recent development branch into
the working tree, pausing for conflict resolution when the merge stops.`,
	RunE: build_cli.Wrap(func(rc *build_io.RuntimeContext, cmd *cobra.Command, args []string) error {
		eng, err := newEngine(rc)
		if err != nil {
			return err
		}
		strategy, err := strategyFlag(syncStrategy)
		if err != nil {
			return err
		}

		status, err := eng.inspector.Status(rc.Ctx)
		if err != nil {
			return err
		}

		source := syncBranch
		if source == "" {
			source, err = eng.branches.MostRecentDevBranch(rc.Ctx)
			if err != nil {
				return err
			}
			if source == "" {
				source = status.Branch
			}
		}
		rc.Log.Info("Syncing from remote", zap.String("branch", source))

		plan, err := eng.planner.Plan(status, git.ActionSync, git.PlanParams{Branch: source})
		if err != nil {
			return err
		}

		proceed, err := eng.confirmPlan(plan, syncDryRun)
		if err != nil || !proceed {
			return err
		}

		_, err = eng.runPlan(rc, plan, nil, strategy)
		return err
	}),
}

func init() {
	syncCmd.Flags().BoolVarP(&syncDryRun, "dry-run", "n", false, "show the plan without executing it")
	syncCmd.Flags().StringVarP(&syncStrategy, "strategy", "s", "interactive", "conflict resolution strategy")
	syncCmd.Flags().StringVarP(&syncBranch, "branch", "b", "", "branch to pull (default: most recent dev branch)")
	rootCmd.AddCommand(syncCmd)
}
