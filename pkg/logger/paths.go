package logger

import (
	"os"
	"path/filepath"
	"runtime"
)

// PlatformLogPaths returns candidate log file locations in priority order.
func PlatformLogPaths() []string {
	switch runtime.GOOS {
	case "linux":
		return []string{
			"/var/log/bigbuild/bigbuild.log",
			xdgStatePath("bigbuild.log"),
			"/tmp/bigbuild/bigbuild.log",
		}
	case "darwin":
		return []string{
			xdgStatePath("bigbuild.log"),
			"/tmp/bigbuild/bigbuild.log",
		}
	default:
		return []string{"./bigbuild.log"}
	}
}

// FindWritableLogPath returns the first candidate whose directory can be
// created and written to.
func FindWritableLogPath() (string, error) {
	var lastErr error
	for _, p := range PlatformLogPaths() {
		if err := os.MkdirAll(dirOf(p), 0o700); err != nil {
			lastErr = err
			continue
		}
		f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			lastErr = err
			continue
		}
		f.Close()
		return p, nil
	}
	return "", lastErr
}

func xdgStatePath(name string) string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "bigbuild", name)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("/tmp/bigbuild", name)
	}
	return filepath.Join(home, ".local", "state", "bigbuild", name)
}

func dirOf(path string) string {
	return filepath.Dir(path)
}
