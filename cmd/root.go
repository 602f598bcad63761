// Package cmd defines the bigbuild command tree. Each command wires the
// engine packages together; the engine itself never imports cobra.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/big-comm/bigbuild/pkg/build_err"
	"github.com/big-comm/bigbuild/pkg/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	// Version is stamped by the build.
	Version = "dev"

	repoDir   string
	assumeYes bool

	settings config.Settings
)

var rootCmd = &cobra.Command{
	Use:   "bigbuild",
	Short: "BigCommunity package build helper",
	Long: `bigbuild drives the BigCommunity packaging workflow: committing and
syncing package repositories, resolving merge conflicts, and triggering
remote package builds through GitHub Actions.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		settings, err = config.Load()
		return err
	},
}

// Execute runs the command tree and exits with a classified code.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(build_err.GetExitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&repoDir, "repo", "r", ".", "package repository directory")
	rootCmd.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false, "skip confirmation prompts")

	// Accept underscore spellings of multi-word flags.
	rootCmd.PersistentFlags().SetNormalizeFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
}
