// Package execute provides subprocess execution with structured logging.
// A non-zero exit status is a normal outcome that callers interpret
// semantically; only spawn failures and timeouts are errors.
package execute

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"

	"github.com/big-comm/bigbuild/pkg/build_err"
	cerr "github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// ErrTimeout is returned when the external command does not complete within
// the configured timeout.
var ErrTimeout = errors.New("process timed out")

// DefaultTimeout bounds network-facing subprocess calls.
const DefaultTimeout = 30 * time.Second

// DefaultLogger is used when Options.Logger is nil.
var DefaultLogger *zap.Logger

// Options configures a single subprocess invocation.
type Options struct {
	Command string
	Args    []string
	Dir     string
	// Timeout bounds the call. Zero means DefaultTimeout; a negative value
	// disables the bound (local build steps, which the caller must bound
	// explicitly if desired).
	Timeout time.Duration
	Logger  *zap.Logger
}

// Result captures the outcome of one subprocess invocation.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Output returns stdout and stderr as one string, stdout first.
func (r *Result) Output() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// Run executes a command and captures stdout, stderr, and the exit code.
// One external process is spawned per call; retries, if any, are the
// caller's policy.
func Run(ctx context.Context, opts Options) (*Result, error) {
	cmdStr := buildCommandString(opts.Command, opts.Args...)

	log := opts.Logger
	if log == nil {
		log = DefaultLogger
	}
	if log == nil {
		log = zap.NewNop()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if opts.Timeout >= 0 {
		runCtx, cancel = context.WithTimeout(ctx, defaultTimeout(opts.Timeout))
		defer cancel()
	}

	log.Debug("Starting execution", zap.String("command", cmdStr), zap.String("dir", opts.Dir))

	cmd := exec.CommandContext(runCtx, opts.Command, opts.Args...)
	if opts.Dir != "" {
		cmd.Dir = opts.Dir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := &Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			summary := build_err.ExtractSummary(result.Output(), 2)
			log.Error("Execution timed out",
				zap.String("command", cmdStr),
				zap.Duration("timeout", defaultTimeout(opts.Timeout)),
				zap.String("summary", summary))
			return result, cerr.Wrapf(ErrTimeout, "%s did not complete within %s",
				cmdStr, defaultTimeout(opts.Timeout))
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// Expected outcome: the command ran and reported failure.
			result.ExitCode = exitErr.ExitCode()
			log.Debug("Execution exited non-zero",
				zap.String("command", cmdStr),
				zap.Int("exit_code", result.ExitCode),
				zap.String("summary", build_err.ExtractSummary(result.Output(), 2)))
			return result, nil
		}

		log.Error("Execution failed to start", zap.String("command", cmdStr), zap.Error(err))
		return result, cerr.Wrapf(err, "failed to run %s", cmdStr)
	}

	log.Debug("Execution succeeded", zap.String("command", cmdStr))
	return result, nil
}

// RunChecked runs a command and converts a non-zero exit into an error
// carrying the stderr summary. For callers that have no semantic
// interpretation for failure.
func RunChecked(ctx context.Context, opts Options) (*Result, error) {
	res, err := Run(ctx, opts)
	if err != nil {
		return res, err
	}
	if res.ExitCode != 0 {
		return res, cerr.Newf("%s exited %d: %s",
			buildCommandString(opts.Command, opts.Args...),
			res.ExitCode,
			build_err.ExtractSummary(res.Output(), 2))
	}
	return res, nil
}

// IsTimeout reports whether err originates from a subprocess timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

func defaultTimeout(t time.Duration) time.Duration {
	if t > 0 {
		return t
	}
	return DefaultTimeout
}

func buildCommandString(command string, args ...string) string {
	return command + " " + strings.Join(args, " ")
}

// CommandExists reports whether a command is available on PATH.
func CommandExists(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
