package cmd

import (
	"fmt"

	"github.com/big-comm/bigbuild/pkg/build_cli"
	"github.com/big-comm/bigbuild/pkg/build_err"
	"github.com/big-comm/bigbuild/pkg/build_io"
	"github.com/big-comm/bigbuild/pkg/git"
	"github.com/big-comm/bigbuild/pkg/pkgbuild"
	cerr "github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	buildChannel  string
	buildMessage  string
	buildPackage  string
	buildDryRun   bool
	buildStrategy string
	buildRemote   bool
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Publish the package to a channel and trigger a remote build",
	Long: `Commits pending changes, pushes a channel branch named
<channel>-<username>, and dispatches the build-package workflow for it.
The package name is read from the repository's PKGBUILD unless given.

With --remote no local checkout is touched: the channel branch is created
through the API from the repository's newest dev branch (or main) and the
workflow dispatched against it.`,
	RunE: build_cli.Wrap(func(rc *build_io.RuntimeContext, cmd *cobra.Command, args []string) error {
		channel, err := resolveChannel(buildChannel)
		if err != nil {
			return err
		}

		if buildRemote {
			return runRemoteBuild(rc, channel)
		}

		eng, err := newEngine(rc)
		if err != nil {
			return err
		}
		strategy, err := strategyFlag(buildStrategy)
		if err != nil {
			return err
		}

		pkg := buildPackage
		if pkg == "" {
			info, err := pkgbuild.Find(repoDir)
			if err != nil {
				return err
			}
			pkg = info.Name
			rc.Log.Info("Package detected from PKGBUILD",
				zap.String("package", pkg), zap.String("version", info.Version))
		}

		username, err := eng.branches.Username(rc.Ctx)
		if err != nil {
			return err
		}
		branch := git.ChannelBranchName(channel, username)

		status, err := eng.inspector.Status(rc.Ctx)
		if err != nil {
			return err
		}

		plan, err := eng.planner.Plan(status, git.ActionGeneratePackage, git.PlanParams{
			Message: buildMessage,
			Channel: channel,
			Branch:  branch,
			Package: pkg,
		})
		if err != nil {
			return err
		}

		proceed, err := eng.confirmPlan(plan, buildDryRun)
		if err != nil || !proceed {
			return err
		}

		dispatcher, err := apiClient(rc)
		if err != nil {
			return err
		}

		_, err = eng.runPlan(rc, plan, dispatcher, strategy)
		return err
	}),
}

// runRemoteBuild dispatches a build for a package that is not checked out
// locally. The channel branch is created remotely from the newest dev branch
// so the workflow builds the latest development state.
func runRemoteBuild(rc *build_io.RuntimeContext, channel string) error {
	if buildPackage == "" {
		return build_err.NewValidationError("--package is required with --remote")
	}

	client, err := apiClient(rc)
	if err != nil {
		return err
	}

	base, err := client.LatestDevBranch(rc.Ctx, buildPackage)
	if err != nil {
		return err
	}
	if base == "" {
		base = "main"
	}
	sha, err := client.BranchSHA(rc.Ctx, buildPackage, base)
	if err != nil {
		return err
	}

	username, err := git.NewBranches(git.SystemRunner(), repoDir).Username(rc.Ctx)
	if err != nil {
		return err
	}
	branch := git.ChannelBranchName(channel, username)

	rc.Log.Info("Creating remote channel branch",
		zap.String("package", buildPackage),
		zap.String("branch", branch),
		zap.String("base", base))
	if err := client.CreateBranch(rc.Ctx, buildPackage, branch, sha); err != nil {
		return err
	}

	receipt, err := client.TriggerBuild(rc.Ctx, git.DispatchRequest{
		Organization: settings.Organization,
		Channel:      channel,
		Ref:          branch,
		Package:      buildPackage,
	})
	if err != nil {
		return err
	}
	if !receipt.Accepted {
		return cerr.Newf("workflow dispatch for %s was rejected", buildPackage)
	}

	fmt.Printf("Build triggered for %s on %s\nFollow it at %s\n", buildPackage, branch, receipt.RunURL)
	return nil
}

func init() {
	buildCmd.Flags().StringVarP(&buildChannel, "channel", "b", "", "publish channel (testing, stable, extra; asked when omitted)")
	buildCmd.Flags().StringVarP(&buildMessage, "commit", "c", "", "commit message for pending changes")
	buildCmd.Flags().StringVarP(&buildPackage, "package", "p", "", "package name (default: from PKGBUILD)")
	buildCmd.Flags().BoolVarP(&buildDryRun, "dry-run", "n", false, "show the plan without executing it")
	buildCmd.Flags().StringVarP(&buildStrategy, "strategy", "s", "interactive", "conflict resolution strategy")
	buildCmd.Flags().BoolVar(&buildRemote, "remote", false, "build without a local checkout, branching through the API")
	rootCmd.AddCommand(buildCmd)
}
