package cmd

import (
	"fmt"

	"github.com/big-comm/bigbuild/pkg/build_cli"
	"github.com/big-comm/bigbuild/pkg/build_err"
	"github.com/big-comm/bigbuild/pkg/build_io"
	cerr "github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var mergeBase string

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Open a pull request merging the development branch",
	Long: `Opens a pull request from the most recent development branch into the
base branch. Merging happens on GitHub so the repository's checks run first.`,
	RunE: build_cli.Wrap(func(rc *build_io.RuntimeContext, cmd *cobra.Command, args []string) error {
		eng, err := newEngine(rc)
		if err != nil {
			return err
		}

		head, err := eng.branches.MostRecentDevBranch(rc.Ctx)
		if err != nil {
			return err
		}
		if head == "" {
			return build_err.NewExpectedError(cerr.New("no development branch to merge"))
		}

		repo, err := eng.branches.OriginRepo(rc.Ctx)
		if err != nil {
			return err
		}

		client, err := apiClient(rc)
		if err != nil {
			return err
		}

		rc.Log.Info("Opening pull request",
			zap.String("repo", repo),
			zap.String("head", head),
			zap.String("base", mergeBase))

		title := fmt.Sprintf("Merge %s into %s", head, mergeBase)
		pr, err := client.CreatePullRequest(rc.Ctx, repo, head, mergeBase, title, "")
		if err != nil {
			return err
		}

		fmt.Printf("Pull request #%d created: %s\n", pr.Number, pr.HTMLURL)
		return nil
	}),
}

func init() {
	mergeCmd.Flags().StringVar(&mergeBase, "base", "main", "branch the pull request targets")
	rootCmd.AddCommand(mergeCmd)
}
