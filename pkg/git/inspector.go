package git

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/big-comm/bigbuild/pkg/execute"
	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Inspector queries working-tree state. Every call re-reads the tree from
// disk; no state is cached between calls.
type Inspector struct {
	runner  Runner
	repoDir string
}

// NewInspector returns an Inspector for the repository at repoDir.
func NewInspector(runner Runner, repoDir string) *Inspector {
	return &Inspector{runner: runner, repoDir: repoDir}
}

// RepoDir returns the repository directory the inspector was created for.
func (i *Inspector) RepoDir() string {
	return i.repoDir
}

func (i *Inspector) git(ctx context.Context, args ...string) (*execute.Result, error) {
	return i.runner.Run(ctx, execute.Options{
		Command: "git",
		Args:    args,
		Dir:     i.repoDir,
	})
}

// IsGitRepo reports whether repoDir is inside a git working tree.
func (i *Inspector) IsGitRepo(ctx context.Context) bool {
	res, err := i.git(ctx, "rev-parse", "--is-inside-work-tree")
	return err == nil && res.ExitCode == 0
}

// RepoRoot returns the top-level directory of the working tree.
func (i *Inspector) RepoRoot(ctx context.Context) (string, error) {
	res, err := i.git(ctx, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", cerr.Newf("not a git repository: %s", i.repoDir)
	}
	return strings.TrimSpace(res.Stdout), nil
}

// CurrentBranch returns the symbolic branch name, or ErrDetachedHead when
// HEAD does not point at a branch.
func (i *Inspector) CurrentBranch(ctx context.Context) (string, error) {
	res, err := i.git(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", cerr.Newf("failed to resolve HEAD: %s", strings.TrimSpace(res.Stderr))
	}
	branch := strings.TrimSpace(res.Stdout)
	if branch == "HEAD" {
		return "", cerr.WithHint(ErrDetachedHead, "check out a branch before running repository operations")
	}
	return branch, nil
}

// AheadBehind returns the commit counts relative to the configured upstream,
// or ErrNoUpstream when none is set.
func (i *Inspector) AheadBehind(ctx context.Context) (ahead, behind int, err error) {
	res, err := i.git(ctx, "rev-list", "--left-right", "--count", "HEAD...@{upstream}")
	if err != nil {
		return 0, 0, err
	}
	if res.ExitCode != 0 {
		if strings.Contains(res.Stderr, "no upstream") || strings.Contains(res.Stderr, "upstream") {
			return 0, 0, cerr.WithHint(ErrNoUpstream, "set one with: git push -u origin <branch>")
		}
		return 0, 0, cerr.Newf("rev-list failed: %s", strings.TrimSpace(res.Stderr))
	}
	fields := strings.Fields(res.Stdout)
	if len(fields) != 2 {
		return 0, 0, cerr.Newf("unexpected rev-list output: %q", res.Stdout)
	}
	ahead, _ = strconv.Atoi(fields[0])
	behind, _ = strconv.Atoi(fields[1])
	return ahead, behind, nil
}

// Upstream returns the upstream ref name of the current branch, or
// ErrNoUpstream.
func (i *Inspector) Upstream(ctx context.Context) (string, error) {
	res, err := i.git(ctx, "rev-parse", "--abbrev-ref", "--symbolic-full-name", "@{upstream}")
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", ErrNoUpstream
	}
	return strings.TrimSpace(res.Stdout), nil
}

// MergeInProgress reports whether .git/MERGE_HEAD exists. The marker file is
// the authoritative signal for a conflicted merge, not content inspection.
func (i *Inspector) MergeInProgress(ctx context.Context) bool {
	res, err := i.git(ctx, "rev-parse", "--git-dir")
	if err != nil || res.ExitCode != 0 {
		return false
	}
	gitDir := strings.TrimSpace(res.Stdout)
	if !filepath.IsAbs(gitDir) {
		gitDir = filepath.Join(i.repoDir, gitDir)
	}
	_, statErr := os.Stat(filepath.Join(gitDir, "MERGE_HEAD"))
	return statErr == nil
}

// Status builds a fresh snapshot of the working tree.
func (i *Inspector) Status(ctx context.Context) (*WorkingTreeStatus, error) {
	logger := otelzap.Ctx(ctx)

	status := &WorkingTreeStatus{}

	branchRes, err := i.git(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return nil, err
	}
	branch := strings.TrimSpace(branchRes.Stdout)
	if branchRes.ExitCode != 0 {
		// Freshly initialized repository with no commits.
		branch = ""
	}
	if branch == "HEAD" {
		status.Detached = true
		headRes, err := i.git(ctx, "rev-parse", "--short", "HEAD")
		if err == nil && headRes.ExitCode == 0 {
			branch = strings.TrimSpace(headRes.Stdout)
		}
	}
	status.Branch = branch

	porcelainRes, err := i.git(ctx, "status", "--porcelain")
	if err != nil {
		return nil, err
	}
	if porcelainRes.ExitCode != 0 {
		return nil, cerr.Newf("git status failed: %s", strings.TrimSpace(porcelainRes.Stderr))
	}
	status.Files = parsePorcelain(porcelainRes.Stdout)
	for _, f := range status.Files {
		if f.Kind == ChangeConflicted {
			status.HasConflicts = true
			break
		}
	}

	status.MergeInProgress = i.MergeInProgress(ctx)
	if status.MergeInProgress {
		status.HasConflicts = status.HasConflicts || len(status.ConflictedFiles()) > 0
	}

	if upstream, err := i.Upstream(ctx); err == nil {
		status.Upstream = upstream
		status.HasUpstream = true
		if ahead, behind, err := i.AheadBehind(ctx); err == nil {
			status.Ahead = ahead
			status.Behind = behind
		}
	}

	logger.Debug("Working tree inspected",
		zap.String("branch", status.Branch),
		zap.Bool("detached", status.Detached),
		zap.Int("changed_files", len(status.Files)),
		zap.Bool("has_conflicts", status.HasConflicts),
		zap.Bool("merge_in_progress", status.MergeInProgress))

	return status, nil
}

// parsePorcelain converts `git status --porcelain` output into ChangedFile
// records, preserving file order.
func parsePorcelain(out string) []ChangedFile {
	var files []ChangedFile
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) < 4 {
			continue
		}
		code := line[:2]
		path := line[3:]
		// Renames are reported as "orig -> new"; the new path is the one the
		// caller acts on.
		if idx := strings.Index(path, " -> "); idx >= 0 {
			path = path[idx+4:]
		}
		path = strings.Trim(path, `"`)

		files = append(files, ChangedFile{
			Path:   path,
			Kind:   kindForCode(code),
			Staged: code[0] != ' ' && code[0] != '?' && !isUnmergedCode(code),
			Code:   code,
		})
	}
	return files
}

func kindForCode(code string) ChangeKind {
	if isUnmergedCode(code) {
		return ChangeConflicted
	}
	if code == "??" {
		return ChangeUntracked
	}
	// The index side wins for classification; fall back to the tree side.
	c := code[0]
	if c == ' ' {
		c = code[1]
	}
	switch c {
	case 'A':
		return ChangeAdded
	case 'D':
		return ChangeDeleted
	case 'R':
		return ChangeRenamed
	case 'C':
		return ChangeCopied
	default:
		return ChangeModified
	}
}

// isUnmergedCode reports the porcelain XY combinations git documents as
// unmerged: DD, AU, UD, UA, DU, AA, UU.
func isUnmergedCode(code string) bool {
	switch code {
	case "DD", "AU", "UD", "UA", "DU", "AA", "UU":
		return true
	}
	return false
}
