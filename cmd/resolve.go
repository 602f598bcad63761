package cmd

import (
	"fmt"

	"github.com/big-comm/bigbuild/pkg/build_cli"
	"github.com/big-comm/bigbuild/pkg/build_err"
	"github.com/big-comm/bigbuild/pkg/build_io"
	"github.com/big-comm/bigbuild/pkg/execute"
	"github.com/big-comm/bigbuild/pkg/git"
	"github.com/big-comm/bigbuild/pkg/interaction"
	cerr "github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	resolveStrategy string
	resolveAbort    bool
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve the conflicts of an in-progress merge",
	Long: `Classifies the conflicted files of a paused merge, applies the chosen
resolution strategy, and concludes the merge. With --abort the merge is
abandoned instead and the pre-merge tree restored.`,
	RunE: build_cli.Wrap(func(rc *build_io.RuntimeContext, cmd *cobra.Command, args []string) error {
		eng, err := newEngine(rc)
		if err != nil {
			return err
		}

		executor := git.NewExecutor(eng.runner, eng.inspector, nil)
		if resolveAbort {
			if err := executor.AbortMerge(rc.Ctx); err != nil {
				return err
			}
			fmt.Println("Merge aborted")
			return nil
		}

		strategy, err := strategyFlag(resolveStrategy)
		if err != nil {
			return err
		}

		status, err := eng.inspector.Status(rc.Ctx)
		if err != nil {
			return err
		}
		if !status.MergeInProgress {
			return build_err.NewExpectedError(cerr.New("no merge in progress"))
		}
		records, err := git.Classify(rc.Ctx, status, eng.inspector.RepoDir())
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return build_err.NewExpectedError(cerr.New(
				"no conflicted files; conclude the merge with git commit"))
		}

		rc.Log.Info("Resolving conflicts",
			zap.Int("conflicts", len(records)),
			zap.String("strategy", string(strategy)))

		resolver := git.NewResolver(eng.runner, eng.inspector.RepoDir(), strategy, eng.frontend)
		if err := resolver.ResolveAll(rc.Ctx, records); err != nil {
			return err
		}

		// Skipped files can be retried before giving up on the merge.
		for git.AnySkipped(records) {
			if assumeYes || !interaction.PromptYesNo("Some files were skipped. Retry them?", false) {
				if err := executor.AbortMerge(rc.Ctx); err != nil {
					return err
				}
				fmt.Println("Resolution skipped; merge aborted")
				return nil
			}
			for _, rec := range records {
				if rec.State == git.Skipped {
					rec.Reopen()
				}
			}
			if err := resolver.ResolveAll(rc.Ctx, records); err != nil {
				return err
			}
		}
		if !git.ReadyToCommit(records) {
			return &git.UnresolvedConflictsError{Records: records}
		}

		if _, err := execute.RunChecked(rc.Ctx, gitCommand(eng.inspector.RepoDir(), "commit", "--no-edit")); err != nil {
			return build_err.NewGitError("concluding merge failed", err,
				"inspect the tree with git status, then commit manually")
		}

		fmt.Printf("Resolved %d file(s); merge committed\n", len(records))
		return nil
	}),
}

func init() {
	resolveCmd.Flags().StringVarP(&resolveStrategy, "strategy", "s", "interactive", "conflict resolution strategy")
	resolveCmd.Flags().BoolVar(&resolveAbort, "abort", false, "abort the merge instead of resolving")
	rootCmd.AddCommand(resolveCmd)
}
