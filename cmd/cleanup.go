package cmd

import (
	"fmt"
	"strings"

	"github.com/big-comm/bigbuild/pkg/build_cli"
	"github.com/big-comm/bigbuild/pkg/build_io"
	"github.com/big-comm/bigbuild/pkg/interaction"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cleanupAll    bool
	cleanupRemote bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete stale local development branches",
	Long: `Removes local dev-* branches, keeping the most recent one. With --all,
channel branches (testing-*, stable-*, extra-*) are removed as well. With
--remote, each deleted branch is also removed from origin through the API.`,
	RunE: build_cli.Wrap(func(rc *build_io.RuntimeContext, cmd *cobra.Command, args []string) error {
		eng, err := newEngine(rc)
		if err != nil {
			return err
		}

		names, err := eng.branches.LocalBranches(rc.Ctx)
		if err != nil {
			return err
		}
		keep, err := eng.branches.MostRecentDevBranch(rc.Ctx)
		if err != nil {
			return err
		}

		var stale []string
		for _, name := range names {
			if name == keep {
				continue
			}
			if strings.HasPrefix(name, "dev-") {
				stale = append(stale, name)
				continue
			}
			if cleanupAll && channelBranch(name) {
				stale = append(stale, name)
			}
		}
		if len(stale) == 0 {
			fmt.Println("No stale branches to remove")
			return nil
		}

		fmt.Printf("Will delete: %s\n", strings.Join(stale, ", "))
		if !assumeYes && !interaction.PromptYesNo("Proceed?", false) {
			return nil
		}

		removed, err := eng.branches.CleanupBranches(rc.Ctx, eng.inspector, stale)
		if err != nil {
			return err
		}
		rc.Log.Info("Branches removed", zap.Strings("branches", removed))

		if cleanupRemote && len(removed) > 0 {
			repo, err := eng.branches.OriginRepo(rc.Ctx)
			if err != nil {
				return err
			}
			client, err := apiClient(rc)
			if err != nil {
				return err
			}
			for _, name := range removed {
				if err := client.DeleteBranch(rc.Ctx, repo, name); err != nil {
					return err
				}
			}
			rc.Log.Info("Remote branches removed",
				zap.String("repo", repo), zap.Strings("branches", removed))
		}

		fmt.Printf("Removed %d branch(es)\n", len(removed))
		return nil
	}),
}

func channelBranch(name string) bool {
	for _, ch := range settings.Channels {
		if strings.HasPrefix(name, ch+"-") {
			return true
		}
	}
	return false
}

func init() {
	cleanupCmd.Flags().BoolVar(&cleanupAll, "all", false, "also remove channel branches")
	cleanupCmd.Flags().BoolVar(&cleanupRemote, "remote", false, "also delete the branches from origin")
	rootCmd.AddCommand(cleanupCmd)
}
