package git

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/big-comm/bigbuild/pkg/execute"
	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Branches wraps branch listing, creation and cleanup for one repository.
type Branches struct {
	runner  Runner
	repoDir string
}

func NewBranches(runner Runner, repoDir string) *Branches {
	return &Branches{runner: runner, repoDir: repoDir}
}

// DevBranchName formats a timestamped development branch name,
// e.g. dev-25.08.29-1432.
func DevBranchName(now time.Time) string {
	return fmt.Sprintf("dev-%s", now.Format("06.01.02-1504"))
}

// ChannelBranchName formats the per-user branch pushed for channel builds,
// e.g. testing-vcastro.
func ChannelBranchName(channel, username string) string {
	user := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(username), " ", "-"))
	return fmt.Sprintf("%s-%s", channel, user)
}

// Username returns git's configured user.name for the repository.
func (b *Branches) Username(ctx context.Context) (string, error) {
	res, err := b.git(ctx, "config", "user.name")
	if err != nil {
		return "", err
	}
	name := strings.TrimSpace(res.Stdout)
	if res.ExitCode != 0 || name == "" {
		return "", cerr.New("git user.name is not configured")
	}
	return name, nil
}

// OriginRepo returns the repository name parsed from the origin remote URL.
func (b *Branches) OriginRepo(ctx context.Context) (string, error) {
	res, err := b.git(ctx, "remote", "get-url", "origin")
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", cerr.Newf("no origin remote: %s", strings.TrimSpace(res.Stderr))
	}
	url := strings.TrimSpace(res.Stdout)
	name := repoFromURL(url)
	if name == "" {
		return "", cerr.Newf("cannot parse repository name from %q", url)
	}
	return name, nil
}

// repoFromURL extracts the repository name from an https or ssh remote URL.
func repoFromURL(url string) string {
	url = strings.TrimSuffix(strings.TrimSuffix(url, "/"), ".git")
	if idx := strings.LastIndexAny(url, "/:"); idx >= 0 {
		url = url[idx+1:]
	}
	return url
}

// MostRecentDevBranch returns the most recently committed local branch
// named dev or dev-*, or empty when none exists. Ordering comes from git
// itself so clock skew between checkouts cannot reorder the candidates.
func (b *Branches) MostRecentDevBranch(ctx context.Context) (string, error) {
	res, err := b.git(ctx, "for-each-ref",
		"--sort=-committerdate",
		"--format=%(refname:short)",
		"refs/heads/dev", "refs/heads/dev-*")
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", cerr.Newf("git for-each-ref: %s", strings.TrimSpace(res.Stderr))
	}
	for _, line := range strings.Split(res.Stdout, "\n") {
		if name := strings.TrimSpace(line); name != "" {
			return name, nil
		}
	}
	return "", nil
}

// LocalBranches lists all local branch names.
func (b *Branches) LocalBranches(ctx context.Context) ([]string, error) {
	res, err := b.git(ctx, "for-each-ref", "--format=%(refname:short)", "refs/heads/")
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, cerr.Newf("git for-each-ref: %s", strings.TrimSpace(res.Stderr))
	}
	var names []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		if name := strings.TrimSpace(line); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// Exists reports whether a local branch with the given name exists.
func (b *Branches) Exists(ctx context.Context, name string) (bool, error) {
	res, err := b.git(ctx, "show-ref", "--verify", "--quiet", "refs/heads/"+name)
	if err != nil {
		return false, err
	}
	return res.ExitCode == 0, nil
}

// EnsureDevBranch makes sure a dev branch is checked out, creating a fresh
// timestamped one from the current HEAD when none exists. Uncommitted work
// is stashed across the checkout and restored afterwards.
func (b *Branches) EnsureDevBranch(ctx context.Context, inspector *Inspector, now time.Time) (string, error) {
	logger := otelzap.Ctx(ctx)

	current, err := inspector.CurrentBranch(ctx)
	if err != nil {
		return "", err
	}
	if current == "dev" || strings.HasPrefix(current, "dev-") {
		return current, nil
	}

	target, err := b.MostRecentDevBranch(ctx)
	if err != nil {
		return "", err
	}

	status, err := inspector.Status(ctx)
	if err != nil {
		return "", err
	}
	stashed := false
	if status.HasChanges() {
		if err := b.stash(ctx); err != nil {
			return "", err
		}
		stashed = true
	}

	if target == "" {
		target = DevBranchName(now)
		logger.Info("Creating development branch", zap.String("branch", target))
		if err := b.checkedGit(ctx, "checkout", "-b", target); err != nil {
			return "", err
		}
	} else {
		logger.Info("Switching to development branch", zap.String("branch", target))
		if err := b.checkedGit(ctx, "checkout", target); err != nil {
			return "", err
		}
	}

	if stashed {
		if err := b.checkedGit(ctx, "stash", "pop"); err != nil {
			return "", cerr.Wrap(err, "restoring stashed changes")
		}
	}
	return target, nil
}

// CleanupBranches deletes the given local branches, skipping the one
// currently checked out. Returns the branches actually removed.
func (b *Branches) CleanupBranches(ctx context.Context, inspector *Inspector, names []string) ([]string, error) {
	logger := otelzap.Ctx(ctx)

	current, err := inspector.CurrentBranch(ctx)
	if err != nil && !cerr.Is(err, ErrDetachedHead) {
		return nil, err
	}

	var removed []string
	for _, name := range names {
		if name == current {
			logger.Warn("Refusing to delete the checked-out branch", zap.String("branch", name))
			continue
		}
		res, err := b.git(ctx, "branch", "-D", name)
		if err != nil {
			return removed, err
		}
		if res.ExitCode != 0 {
			return removed, cerr.Newf("deleting branch %s: %s", name, strings.TrimSpace(res.Stderr))
		}
		removed = append(removed, name)
	}
	return removed, nil
}

func (b *Branches) stash(ctx context.Context) error {
	return b.checkedGit(ctx, "stash", "push", "--include-untracked", "-m", "bigbuild: auto-stash")
}

func (b *Branches) checkedGit(ctx context.Context, args ...string) error {
	res, err := b.git(ctx, args...)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return cerr.Newf("git %s: %s", strings.Join(args, " "), strings.TrimSpace(res.Stderr))
	}
	return nil
}

func (b *Branches) git(ctx context.Context, args ...string) (*execute.Result, error) {
	return b.runner.Run(ctx, execute.Options{Command: "git", Args: args, Dir: b.repoDir})
}
