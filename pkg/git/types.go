// Package git implements the synchronization engine: working-tree
// inspection, conflict classification and resolution, and planned execution
// of multi-step repository operations. All mutation goes through an external
// git subprocess; the engine interprets its exit codes and output text.
package git

import (
	"context"

	"github.com/big-comm/bigbuild/pkg/execute"
)

// Runner abstracts subprocess execution so tests can inject canned results.
type Runner interface {
	Run(ctx context.Context, opts execute.Options) (*execute.Result, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, opts execute.Options) (*execute.Result, error)

func (f RunnerFunc) Run(ctx context.Context, opts execute.Options) (*execute.Result, error) {
	return f(ctx, opts)
}

// SystemRunner executes commands through pkg/execute.
func SystemRunner() Runner {
	return RunnerFunc(execute.Run)
}

// ChangeKind describes what happened to a file in the working tree.
type ChangeKind int

const (
	ChangeModified ChangeKind = iota
	ChangeAdded
	ChangeDeleted
	ChangeRenamed
	ChangeCopied
	ChangeUntracked
	ChangeConflicted
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeModified:
		return "modified"
	case ChangeAdded:
		return "added"
	case ChangeDeleted:
		return "deleted"
	case ChangeRenamed:
		return "renamed"
	case ChangeCopied:
		return "copied"
	case ChangeUntracked:
		return "untracked"
	case ChangeConflicted:
		return "conflicted"
	}
	return "unknown"
}

// ChangedFile is one entry of a status snapshot.
type ChangedFile struct {
	// Path is relative to the repository root.
	Path string
	Kind ChangeKind
	// Staged reports whether the index side of the entry has changes.
	Staged bool
	// Code is the two-letter porcelain XY code, kept verbatim because the
	// conflict classifier needs the exact unmerged combination (UU, AA, DU...).
	Code string
}

// WorkingTreeStatus is an immutable snapshot of the tree, created fresh on
// every inspection call and never persisted.
type WorkingTreeStatus struct {
	Branch   string
	Detached bool
	Upstream string
	// HasUpstream reports whether an upstream is configured; Ahead/Behind are
	// only meaningful when it is.
	HasUpstream bool
	Ahead       int
	Behind      int
	Files       []ChangedFile
	// HasConflicts is true when unmerged entries exist.
	HasConflicts bool
	// MergeInProgress is the authoritative .git/MERGE_HEAD signal; a merge can
	// be in progress even after every conflicted file was staged.
	MergeInProgress bool
}

// IsClean reports whether the tree has no changes at all.
func (s *WorkingTreeStatus) IsClean() bool {
	return len(s.Files) == 0
}

// HasChanges reports whether anything could be staged or committed.
func (s *WorkingTreeStatus) HasChanges() bool {
	return len(s.Files) > 0
}

// ConflictedFiles returns the unmerged entries in file order.
func (s *WorkingTreeStatus) ConflictedFiles() []ChangedFile {
	var out []ChangedFile
	for _, f := range s.Files {
		if f.Kind == ChangeConflicted {
			out = append(out, f)
		}
	}
	return out
}
