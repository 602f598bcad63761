// Package config loads bigbuild settings. The result is an explicit value
// handed to constructors; nothing in the engine reads configuration globally.
package config

import (
	"os"
	"path/filepath"

	cerr "github.com/cockroachdb/errors"
	"github.com/spf13/viper"
)

// Settings is the read-only configuration consulted by the planner and the
// dispatch client.
type Settings struct {
	// Organization owning the workflow repository, e.g. "big-comm".
	Organization string `mapstructure:"organization"`
	// WorkflowRepo is the repository containing the build workflows.
	WorkflowRepo string `mapstructure:"workflow_repo"`
	// Channels are the branch targets a package may be published against.
	Channels []string `mapstructure:"channels"`
	// DevBranch is the integration branch commits land on.
	DevBranch string `mapstructure:"dev_branch"`
	// TokenFile holds the GitHub token, one line, comments allowed.
	TokenFile string `mapstructure:"token_file"`
	// NetworkTimeoutSeconds bounds network-facing git subprocess calls.
	NetworkTimeoutSeconds int `mapstructure:"network_timeout_seconds"`
}

// Defaults mirrors the stock big-comm setup.
func Defaults() Settings {
	return Settings{
		Organization:          "big-comm",
		WorkflowRepo:          "build-package",
		Channels:              []string{"testing", "stable", "extra"},
		DevBranch:             "dev",
		TokenFile:             "~/.GITHUB_TOKEN",
		NetworkTimeoutSeconds: 30,
	}
}

// Load reads ~/.config/bigbuild/config.yaml plus BIGBUILD_* environment
// overrides on top of the defaults. A missing config file is not an error.
func Load() (Settings, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if dir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(dir, "bigbuild"))
	}
	v.AddConfigPath(".")
	v.SetEnvPrefix("BIGBUILD")
	v.AutomaticEnv()

	def := Defaults()
	v.SetDefault("organization", def.Organization)
	v.SetDefault("workflow_repo", def.WorkflowRepo)
	v.SetDefault("channels", def.Channels)
	v.SetDefault("dev_branch", def.DevBranch)
	v.SetDefault("token_file", def.TokenFile)
	v.SetDefault("network_timeout_seconds", def.NetworkTimeoutSeconds)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !cerr.As(err, &notFound) {
			return Settings{}, cerr.Wrap(err, "reading config file")
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, cerr.Wrap(err, "unmarshalling config")
	}
	return s, nil
}

// ValidChannel reports whether ch is a recognized publish channel.
func (s Settings) ValidChannel(ch string) bool {
	for _, c := range s.Channels {
		if c == ch {
			return true
		}
	}
	return false
}

// TokenPath expands the ~ prefix of TokenFile.
func (s Settings) TokenPath() string {
	if len(s.TokenFile) >= 2 && s.TokenFile[:2] == "~/" {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, s.TokenFile[2:])
		}
	}
	return s.TokenFile
}
