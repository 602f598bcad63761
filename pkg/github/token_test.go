package github

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadToken(t *testing.T) {
	ctx := context.Background()

	t.Run("environment variable wins", func(t *testing.T) {
		t.Setenv("BIGBUILD_GITHUB_TOKEN", "env-token")

		tok, err := LoadToken(ctx, filepath.Join(t.TempDir(), "missing"))
		require.NoError(t, err)
		assert.Equal(t, "env-token", tok)
	})

	t.Run("first non-comment line of the token file", func(t *testing.T) {
		t.Setenv("BIGBUILD_GITHUB_TOKEN", "")
		path := filepath.Join(t.TempDir(), "token")
		require.NoError(t, os.WriteFile(path, []byte("# personal access token\n\nghp_abc123\nignored\n"), 0o600))

		tok, err := LoadToken(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, "ghp_abc123", tok)
	})
}

func TestReadTokenFile(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := readTokenFile(filepath.Join(t.TempDir(), "nope"))
		require.Error(t, err)
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("only comments yields empty", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "token")
		require.NoError(t, os.WriteFile(path, []byte("# nothing here\n"), 0o600))

		tok, err := readTokenFile(path)
		require.NoError(t, err)
		assert.Empty(t, tok)
	})
}
