package execute

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_CapturesOutput(t *testing.T) {
	res, err := Run(context.Background(), Options{
		Command: "sh",
		Args:    []string{"-c", "echo out; echo err >&2"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "out\n", res.Stdout)
	assert.Equal(t, "err\n", res.Stderr)
}

func TestRun_NonZeroExitIsNotAnError(t *testing.T) {
	res, err := Run(context.Background(), Options{
		Command: "sh",
		Args:    []string{"-c", "echo nothing to commit; exit 1"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExitCode)
	assert.Contains(t, res.Stdout, "nothing to commit")
}

func TestRun_Timeout(t *testing.T) {
	start := time.Now()
	_, err := Run(context.Background(), Options{
		Command: "sleep",
		Args:    []string{"5"},
		Timeout: 100 * time.Millisecond,
	})
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestRun_UnboundedTimeoutCompletes(t *testing.T) {
	res, err := Run(context.Background(), Options{
		Command: "true",
		Timeout: -1,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
}

func TestRun_MissingCommand(t *testing.T) {
	_, err := Run(context.Background(), Options{
		Command: "definitely-not-a-command-on-path",
	})
	require.Error(t, err)
	assert.False(t, IsTimeout(err))
}

func TestRun_WorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	res, err := Run(context.Background(), Options{
		Command: "pwd",
		Dir:     dir,
	})
	require.NoError(t, err)
	assert.Contains(t, res.Stdout, dir)
}

func TestRunChecked_FailureCarriesSummary(t *testing.T) {
	_, err := RunChecked(context.Background(), Options{
		Command: "sh",
		Args:    []string{"-c", "echo 'fatal: not a git repository' >&2; exit 128"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a git repository")
}

func TestResult_Output(t *testing.T) {
	tests := []struct {
		name   string
		result Result
		want   string
	}{
		{"stdout only", Result{Stdout: "a"}, "a"},
		{"stderr only", Result{Stderr: "b"}, "b"},
		{"both", Result{Stdout: "a", Stderr: "b"}, "a\nb"},
		{"empty", Result{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.result.Output())
		})
	}
}
