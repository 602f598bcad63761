// Package build_cli wraps cobra RunE functions with runtime context setup,
// panic recovery, and exit-code classification.
package build_cli

import (
	"context"
	"fmt"
	"os"

	"github.com/big-comm/bigbuild/pkg/build_err"
	"github.com/big-comm/bigbuild/pkg/build_io"
	"github.com/big-comm/bigbuild/pkg/logger"
	cerr "github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Wrap ensures panic recovery, telemetry, and logging for a command.
func Wrap(fn func(rc *build_io.RuntimeContext, cmd *cobra.Command, args []string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		logger.InitFallback()

		rc := build_io.NewContext(context.Background(), cmd.Name())
		defer rc.End(&err)

		defer func() {
			if r := recover(); r != nil {
				err = cerr.AssertionFailedf("panic: %v", r)
				rc.Log.Error("Panic recovered", zap.Any("panic", r))
			}
		}()

		err = fn(rc, cmd, args)

		// Expected user errors render plainly and do not fail the process.
		if err != nil && build_err.IsExpectedUserError(err) {
			fmt.Fprintln(os.Stderr, err.Error())
			err = nil
		}

		return err
	}
}
