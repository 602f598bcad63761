package git

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel error kinds surfaced by the engine. Callers test these with
// errors.Is; the wrapped message carries the actionable detail.
var (
	// ErrDetachedHead means no symbolic branch reference exists.
	ErrDetachedHead = errors.New("detached HEAD")
	// ErrNoUpstream means the current branch has no configured upstream.
	ErrNoUpstream = errors.New("no upstream configured")
	// ErrInvalidBranchTarget means the requested channel is not recognized.
	ErrInvalidBranchTarget = errors.New("invalid branch target")
	// ErrDirtyMergeInProgress means a prior merge is still unresolved and the
	// requested action is not itself a conflict-resolution action.
	ErrDirtyMergeInProgress = errors.New("merge with unresolved conflicts in progress")
	// ErrStillConflicted means a file submitted as resolved still contains
	// conflict marker triples.
	ErrStillConflicted = errors.New("file still contains conflict markers")
)

// StepFailedError reports a non-conflict step failure. Steps already
// completed are preserved in the OperationResult; nothing is rolled back.
type StepFailedError struct {
	Index  int
	Step   Step
	Stderr string
}

func (e *StepFailedError) Error() string {
	msg := fmt.Sprintf("step %d (%s) failed", e.Index+1, e.Step.Description)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

// UnresolvedConflictsError is a control-flow outcome, not a fatal error: the
// plan is paused until every record is resolved or skipped.
type UnresolvedConflictsError struct {
	Records []*ConflictRecord
}

func (e *UnresolvedConflictsError) Error() string {
	paths := make([]string, len(e.Records))
	for i, r := range e.Records {
		paths[i] = r.Path
	}
	return fmt.Sprintf("%d unresolved conflict(s): %s", len(e.Records), strings.Join(paths, ", "))
}
