package cmd

import (
	"fmt"

	"github.com/big-comm/bigbuild/pkg/build_cli"
	"github.com/big-comm/bigbuild/pkg/build_io"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the working tree state",
	RunE: build_cli.Wrap(func(rc *build_io.RuntimeContext, cmd *cobra.Command, args []string) error {
		eng, err := newEngine(rc)
		if err != nil {
			return err
		}

		status, err := eng.inspector.Status(rc.Ctx)
		if err != nil {
			return err
		}

		if status.Detached {
			fmt.Printf("HEAD detached at %s\n", status.Branch)
		} else {
			fmt.Printf("On branch %s\n", status.Branch)
		}
		if status.HasUpstream {
			fmt.Printf("Upstream %s: %d ahead, %d behind\n", status.Upstream, status.Ahead, status.Behind)
		} else {
			fmt.Println("No upstream configured")
		}
		if status.MergeInProgress {
			fmt.Println("Merge in progress")
		}

		if status.IsClean() {
			fmt.Println("Working tree clean")
			return nil
		}
		for _, f := range status.Files {
			marker := " "
			if f.Staged {
				marker = "*"
			}
			fmt.Printf("  %s %-10s %s\n", marker, f.Kind, f.Path)
		}
		if status.HasConflicts {
			fmt.Printf("%d conflicted file(s)\n", len(status.ConflictedFiles()))
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
