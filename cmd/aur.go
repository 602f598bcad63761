package cmd

import (
	"fmt"

	"github.com/big-comm/bigbuild/pkg/build_cli"
	"github.com/big-comm/bigbuild/pkg/build_io"
	cerr "github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

var aurTmate bool

var aurCmd = &cobra.Command{
	Use:   "aur <package>",
	Short: "Trigger a remote build of an AUR package",
	Args:  cobra.ExactArgs(1),
	RunE: build_cli.Wrap(func(rc *build_io.RuntimeContext, cmd *cobra.Command, args []string) error {
		client, err := apiClient(rc)
		if err != nil {
			return err
		}

		receipt, err := client.TriggerAURBuild(rc.Ctx, settings.Organization, args[0], aurTmate)
		if err != nil {
			return err
		}
		if !receipt.Accepted {
			return cerr.Newf("workflow dispatch for %s was rejected", args[0])
		}

		fmt.Printf("Build triggered for %s\nFollow it at %s\n", args[0], receipt.RunURL)
		return nil
	}),
}

func init() {
	aurCmd.Flags().BoolVar(&aurTmate, "tmate", false, "open a tmate debug session in the build")
	rootCmd.AddCommand(aurCmd)
}
