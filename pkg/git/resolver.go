package git

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/big-comm/bigbuild/pkg/execute"
	cerr "github.com/cockroachdb/errors"
	"github.com/hashicorp/go-multierror"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Strategy selects how conflicts are resolved, chosen once per operation.
type Strategy string

const (
	StrategyInteractive Strategy = "interactive"
	StrategyOurs        Strategy = "auto-ours"
	StrategyTheirs      Strategy = "auto-theirs"
	StrategyManual      Strategy = "manual"
	StrategyKeepBoth    Strategy = "keep-both"
)

// ValidStrategy reports whether s names a known strategy.
func ValidStrategy(s Strategy) bool {
	switch s {
	case StrategyInteractive, StrategyOurs, StrategyTheirs, StrategyManual, StrategyKeepBoth:
		return true
	}
	return false
}

// Choice is one per-hunk answer under the interactive strategy.
type Choice int

const (
	ChooseOurs Choice = iota
	ChooseTheirs
	ChooseBoth
	ChooseEdit
	ChooseSkip
)

// Resolution is the answer for one hunk; Replacement is only read for
// ChooseEdit.
type Resolution struct {
	Choice      Choice
	Replacement []string
}

// Frontend is the boundary to the excluded user interface. RequestResolution
// blocks awaiting a per-hunk choice and is only called under the interactive
// strategy.
type Frontend interface {
	RequestResolution(record *ConflictRecord, hunkIndex int) (Resolution, error)
	ReportPlanPreview(plan *OperationPlan)
	ReportResult(result *OperationResult)
}

// TheirsSuffix is appended to the renamed incoming file under keep-both for
// add/add conflicts. The exact suffix is policy, not a compatibility
// requirement.
const TheirsSuffix = ".theirs"

// Resolver applies a resolution strategy to classified conflicts.
// Records move from unresolved to resolved or skipped; both are terminal until the
// caller explicitly reopens.
type Resolver struct {
	runner   Runner
	repoDir  string
	strategy Strategy
	frontend Frontend
}

// NewResolver builds a resolver. frontend may be nil for the non-interactive
// strategies.
func NewResolver(runner Runner, repoDir string, strategy Strategy, frontend Frontend) *Resolver {
	return &Resolver{runner: runner, repoDir: repoDir, strategy: strategy, frontend: frontend}
}

func (r *Resolver) git(ctx context.Context, args ...string) (*execute.Result, error) {
	return r.runner.Run(ctx, execute.Options{Command: "git", Args: args, Dir: r.repoDir})
}

// ResolveAll applies the configured strategy to every unresolved record.
// Under manual it takes no action; the caller edits files and calls
// MarkResolved per file. Resolved files are staged as they complete.
func (r *Resolver) ResolveAll(ctx context.Context, records []*ConflictRecord) error {
	logger := otelzap.Ctx(ctx)

	if r.strategy == StrategyManual {
		logger.Info("Manual strategy selected; edit conflicted files and mark them resolved",
			zap.Int("conflicts", len(records)))
		return nil
	}

	var errs *multierror.Error
	for _, rec := range records {
		if rec.State != Unresolved {
			continue
		}
		if err := r.resolveRecord(ctx, rec); err != nil {
			errs = multierror.Append(errs, cerr.Wrapf(err, "resolving %s", rec.Path))
		}
	}
	return errs.ErrorOrNil()
}

func (r *Resolver) resolveRecord(ctx context.Context, rec *ConflictRecord) error {
	logger := otelzap.Ctx(ctx)

	switch r.strategy {
	case StrategyOurs:
		return r.resolveUniform(ctx, rec, ChooseOurs)
	case StrategyTheirs:
		return r.resolveUniform(ctx, rec, ChooseTheirs)
	case StrategyKeepBoth:
		return r.resolveKeepBoth(ctx, rec)
	case StrategyInteractive:
		if r.frontend == nil {
			return cerr.New("interactive strategy requires a frontend")
		}
		return r.resolveInteractive(ctx, rec)
	}

	logger.Warn("No resolution applied", zap.String("strategy", string(r.strategy)))
	return nil
}

// resolveUniform answers every hunk with the same side.
func (r *Resolver) resolveUniform(ctx context.Context, rec *ConflictRecord, side Choice) error {
	if rec.Kind == ConflictDeleteModify {
		return r.resolveDeleteModify(ctx, rec, side)
	}
	if err := r.rewriteHunks(rec, func(int) Resolution { return Resolution{Choice: side} }); err != nil {
		return err
	}
	return r.finishRecord(ctx, rec)
}

// resolveKeepBoth concatenates ours then theirs per hunk; add/add conflicts
// instead keep both files, the incoming one renamed with TheirsSuffix.
func (r *Resolver) resolveKeepBoth(ctx context.Context, rec *ConflictRecord) error {
	if rec.Kind == ConflictAddAdd {
		return r.keepBothFiles(ctx, rec)
	}
	if rec.Kind == ConflictDeleteModify {
		// Nothing to concatenate; keeping both means keeping the surviving
		// modified version.
		side := ChooseOurs
		if rec.OursDeleted {
			side = ChooseTheirs
		}
		return r.resolveDeleteModify(ctx, rec, side)
	}
	if err := r.rewriteHunks(rec, func(int) Resolution { return Resolution{Choice: ChooseBoth} }); err != nil {
		return err
	}
	return r.finishRecord(ctx, rec)
}

func (r *Resolver) resolveInteractive(ctx context.Context, rec *ConflictRecord) error {
	if rec.Kind == ConflictDeleteModify || len(rec.Hunks) == 0 {
		res, err := r.frontend.RequestResolution(rec, 0)
		if err != nil {
			return err
		}
		if res.Choice == ChooseSkip {
			rec.State = Skipped
			return nil
		}
		return r.resolveDeleteModify(ctx, rec, res.Choice)
	}

	answers := make([]Resolution, len(rec.Hunks))
	for i := range rec.Hunks {
		res, err := r.frontend.RequestResolution(rec, i)
		if err != nil {
			return err
		}
		if res.Choice == ChooseSkip {
			// Any hunk left unanswered leaves the record unresolved; an
			// explicit skip marks the whole record.
			rec.State = Skipped
			return nil
		}
		answers[i] = res
	}

	if err := r.rewriteHunks(rec, func(i int) Resolution { return answers[i] }); err != nil {
		return err
	}
	return r.finishRecord(ctx, rec)
}

// resolveDeleteModify picks keep-or-delete for a conflict without hunks.
// Choosing the side that deleted removes the file; choosing the side that
// modified keeps its version.
func (r *Resolver) resolveDeleteModify(ctx context.Context, rec *ConflictRecord, side Choice) error {
	deleteWins := (side == ChooseOurs && rec.OursDeleted) || (side == ChooseTheirs && !rec.OursDeleted)

	if deleteWins {
		res, err := r.git(ctx, "rm", "--", rec.Path)
		if err != nil {
			return err
		}
		if res.ExitCode != 0 {
			return cerr.Newf("git rm %s: %s", rec.Path, strings.TrimSpace(res.Stderr))
		}
	} else {
		stage := "--ours"
		if side == ChooseTheirs {
			stage = "--theirs"
		}
		res, err := r.git(ctx, "checkout", stage, "--", rec.Path)
		if err != nil {
			return err
		}
		if res.ExitCode != 0 {
			return cerr.Newf("git checkout %s %s: %s", stage, rec.Path, strings.TrimSpace(res.Stderr))
		}
		if err := r.stage(ctx, rec.Path); err != nil {
			return err
		}
	}

	rec.State = Resolved
	return nil
}

// keepBothFiles resolves an add/add conflict by keeping our version at the
// original path and the incoming version under TheirsSuffix.
func (r *Resolver) keepBothFiles(ctx context.Context, rec *ConflictRecord) error {
	theirs, err := r.git(ctx, "show", ":3:"+rec.Path)
	if err != nil {
		return err
	}
	if theirs.ExitCode != 0 {
		return cerr.Newf("git show :3:%s: %s", rec.Path, strings.TrimSpace(theirs.Stderr))
	}

	ours, err := r.git(ctx, "checkout", "--ours", "--", rec.Path)
	if err != nil {
		return err
	}
	if ours.ExitCode != 0 {
		return cerr.Newf("git checkout --ours %s: %s", rec.Path, strings.TrimSpace(ours.Stderr))
	}

	theirsPath := rec.Path + TheirsSuffix
	if err := os.WriteFile(filepath.Join(r.repoDir, theirsPath), []byte(theirs.Stdout), 0o644); err != nil {
		return err
	}

	if err := r.stage(ctx, rec.Path); err != nil {
		return err
	}
	if err := r.stage(ctx, theirsPath); err != nil {
		return err
	}

	rec.State = Resolved
	return nil
}

// rewriteHunks rewrites the conflicted file, replacing each marked region
// with the chosen text, top to bottom.
func (r *Resolver) rewriteHunks(rec *ConflictRecord, choose func(i int) Resolution) error {
	full := filepath.Join(r.repoDir, rec.Path)
	content, err := os.ReadFile(full)
	if err != nil {
		return err
	}

	resolved := applyResolutions(string(content), rec.Hunks, choose)
	return os.WriteFile(full, []byte(resolved), 0o644)
}

// applyResolutions merges hunk answers into content. Hunks must be in file
// order with valid line spans for the given content.
func applyResolutions(content string, hunks []ConflictHunk, choose func(i int) Resolution) string {
	lines := splitLines(content)
	var out []string

	next := 0
	for i, h := range hunks {
		// Lines before the hunk's start marker are shared context.
		for next < h.StartLine-1 && next < len(lines) {
			out = append(out, lines[next])
			next++
		}

		res := choose(i)
		switch res.Choice {
		case ChooseOurs:
			out = append(out, h.Ours...)
		case ChooseTheirs:
			out = append(out, h.Theirs...)
		case ChooseBoth:
			out = append(out, h.Ours...)
			out = append(out, "")
			out = append(out, h.Theirs...)
		case ChooseEdit:
			out = append(out, res.Replacement...)
		}

		// Skip past the end marker line.
		if h.EndLine > next {
			next = h.EndLine
		}
	}
	for next < len(lines) {
		out = append(out, lines[next])
		next++
	}

	if len(out) == 0 {
		return ""
	}
	return strings.Join(out, "\n") + "\n"
}

// finishRecord verifies no markers remain, stages the file, and marks the
// record resolved.
func (r *Resolver) finishRecord(ctx context.Context, rec *ConflictRecord) error {
	if err := r.verifyNoMarkers(rec.Path); err != nil {
		return err
	}
	if err := r.stage(ctx, rec.Path); err != nil {
		return err
	}
	rec.State = Resolved
	return nil
}

// MarkResolved accepts a manually edited file: it must no longer contain
// marker triples, otherwise ErrStillConflicted.
func (r *Resolver) MarkResolved(ctx context.Context, rec *ConflictRecord) error {
	if rec.Kind != ConflictDeleteModify {
		if err := r.verifyNoMarkers(rec.Path); err != nil {
			return err
		}
	}
	if err := r.stage(ctx, rec.Path); err != nil {
		return err
	}
	rec.State = Resolved
	return nil
}

func (r *Resolver) verifyNoMarkers(path string) error {
	content, err := os.ReadFile(filepath.Join(r.repoDir, path))
	if err != nil {
		return err
	}
	if markerLineCount(string(content)) > 0 {
		return cerr.Wrapf(ErrStillConflicted, "%s", path)
	}
	return nil
}

func (r *Resolver) stage(ctx context.Context, path string) error {
	res, err := r.git(ctx, "add", "--", path)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return cerr.Newf("git add %s: %s", path, strings.TrimSpace(res.Stderr))
	}
	return nil
}

// ReadyToCommit reports whether every record reached resolved. A skipped
// record means the surrounding operation must abort the merge rather than
// publish a partial tree.
func ReadyToCommit(records []*ConflictRecord) bool {
	for _, rec := range records {
		if rec.State != Resolved {
			return false
		}
	}
	return true
}

// AnySkipped reports whether resolution was abandoned for any record.
func AnySkipped(records []*ConflictRecord) bool {
	for _, rec := range records {
		if rec.State == Skipped {
			return true
		}
	}
	return false
}
