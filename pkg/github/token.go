package github

import (
	"bufio"
	"context"
	"os"
	"strings"

	"github.com/big-comm/bigbuild/pkg/interaction"
	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// LoadToken reads the API token: the BIGBUILD_GITHUB_TOKEN environment
// variable wins, then the token file, then an interactive hidden prompt.
// The file format is one token on the first non-comment line.
func LoadToken(ctx context.Context, tokenFile string) (string, error) {
	logger := otelzap.Ctx(ctx)

	if tok := strings.TrimSpace(os.Getenv("BIGBUILD_GITHUB_TOKEN")); tok != "" {
		return tok, nil
	}

	tok, err := readTokenFile(tokenFile)
	if err == nil && tok != "" {
		return tok, nil
	}
	if err != nil && !os.IsNotExist(err) {
		return "", cerr.Wrapf(err, "reading token file %s", tokenFile)
	}

	logger.Info("No GitHub token found; prompting", zap.String("token_file", tokenFile))
	tok, err = interaction.PromptSecret(ctx, "GitHub token: ")
	if err != nil {
		return "", cerr.Wrap(err, "reading token from terminal")
	}
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return "", cerr.New("empty GitHub token")
	}
	return tok, nil
}

func readTokenFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		return line, nil
	}
	return "", scanner.Err()
}
