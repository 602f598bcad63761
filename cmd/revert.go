package cmd

import (
	"github.com/big-comm/bigbuild/pkg/build_cli"
	"github.com/big-comm/bigbuild/pkg/build_io"
	"github.com/big-comm/bigbuild/pkg/git"
	"github.com/spf13/cobra"
)

var (
	revertReset  bool
	revertDryRun bool
)

var revertCmd = &cobra.Command{
	Use:   "revert <commit>",
	Short: "Revert a commit and push, or reset the branch to it",
	Long: `Adds a revert commit for the given reference and pushes it. With --reset
the branch is instead rewound to the reference and force-pushed, discarding
every later commit on the remote as well.`,
	Args: cobra.ExactArgs(1),
	RunE: build_cli.Wrap(func(rc *build_io.RuntimeContext, cmd *cobra.Command, args []string) error {
		eng, err := newEngine(rc)
		if err != nil {
			return err
		}

		status, err := eng.inspector.Status(rc.Ctx)
		if err != nil {
			return err
		}

		plan, err := eng.planner.Plan(status, git.ActionRevert, git.PlanParams{
			Target: args[0],
			Reset:  revertReset,
		})
		if err != nil {
			return err
		}

		proceed, err := eng.confirmPlan(plan, revertDryRun)
		if err != nil || !proceed {
			return err
		}

		_, err = eng.runPlan(rc, plan, nil, git.StrategyManual)
		return err
	}),
}

func init() {
	revertCmd.Flags().BoolVar(&revertReset, "reset", false, "rewind to the commit and force-push instead of reverting")
	revertCmd.Flags().BoolVarP(&revertDryRun, "dry-run", "n", false, "show the plan without executing it")
	rootCmd.AddCommand(revertCmd)
}
