package git

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubFrontend answers RequestResolution from a scripted queue.
type stubFrontend struct {
	answers []Resolution
	next    int
}

func (s *stubFrontend) RequestResolution(_ *ConflictRecord, _ int) (Resolution, error) {
	if s.next >= len(s.answers) {
		return Resolution{Choice: ChooseSkip}, nil
	}
	res := s.answers[s.next]
	s.next++
	return res, nil
}

func (s *stubFrontend) ReportPlanPreview(*OperationPlan) {}
func (s *stubFrontend) ReportResult(*OperationResult)    {}

// stagingRunner accepts any git add and fails everything else, so tests
// catch unexpected subprocess calls.
func stagingRunner() *fakeRunner {
	r := newFakeRunner()
	r.defaultResult = nil
	return r
}

func classifyFile(t *testing.T, dir, path string) *ConflictRecord {
	t.Helper()
	status := &WorkingTreeStatus{
		HasConflicts: true,
		Files:        []ChangedFile{{Path: path, Kind: ChangeConflicted, Code: "UU"}},
	}
	records, err := Classify(context.Background(), status, dir)
	require.NoError(t, err)
	require.Len(t, records, 1)
	return records[0]
}

func TestResolveAutoOurs(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "PKGBUILD")
	require.NoError(t, os.WriteFile(path, []byte(conflictedPkgbuild), 0o644))

	rec := classifyFile(t, dir, "PKGBUILD")

	runner := stagingRunner().on("git add -- PKGBUILD", ok(""))
	resolver := NewResolver(runner, dir, StrategyOurs, nil)
	require.NoError(t, resolver.ResolveAll(ctx, []*ConflictRecord{rec}))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "pkgname=bigtool\npkgver=1.2.0\npkgrel=1\n", string(content))
	assert.Empty(t, parseConflictHunks(string(content)))
	assert.Equal(t, Resolved, rec.State)
	assert.True(t, runner.called("git add -- PKGBUILD"))
}

func TestResolveAutoTheirs(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "PKGBUILD")
	require.NoError(t, os.WriteFile(path, []byte(conflictedPkgbuild), 0o644))

	rec := classifyFile(t, dir, "PKGBUILD")

	runner := stagingRunner().on("git add -- PKGBUILD", ok(""))
	resolver := NewResolver(runner, dir, StrategyTheirs, nil)
	require.NoError(t, resolver.ResolveAll(ctx, []*ConflictRecord{rec}))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "pkgname=bigtool\npkgver=1.3.0\npkgrel=1\n", string(content))
	assert.Equal(t, Resolved, rec.State)
}

func TestResolveKeepBothConcatenates(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "PKGBUILD")
	require.NoError(t, os.WriteFile(path, []byte(conflictedPkgbuild), 0o644))

	rec := classifyFile(t, dir, "PKGBUILD")

	runner := stagingRunner().on("git add -- PKGBUILD", ok(""))
	resolver := NewResolver(runner, dir, StrategyKeepBoth, nil)
	require.NoError(t, resolver.ResolveAll(ctx, []*ConflictRecord{rec}))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "pkgname=bigtool\npkgver=1.2.0\n\npkgver=1.3.0\npkgrel=1\n", string(content))
	assert.Empty(t, parseConflictHunks(string(content)))
	assert.Equal(t, Resolved, rec.State)
}

func TestResolveKeepBothAddAdd(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.sh"), []byte("ours version\n"), 0o644))

	rec := &ConflictRecord{Path: "new.sh", Kind: ConflictAddAdd, State: Unresolved}

	runner := stagingRunner().
		on("git show :3:new.sh", ok("theirs version\n")).
		on("git checkout --ours -- new.sh", ok("")).
		on("git add -- new.sh", ok("")).
		on("git add -- new.sh.theirs", ok(""))
	resolver := NewResolver(runner, dir, StrategyKeepBoth, nil)
	require.NoError(t, resolver.ResolveAll(ctx, []*ConflictRecord{rec}))

	theirs, err := os.ReadFile(filepath.Join(dir, "new.sh"+TheirsSuffix))
	require.NoError(t, err)
	assert.Equal(t, "theirs version\n", string(theirs))
	assert.Equal(t, Resolved, rec.State)
	assert.True(t, runner.called("git add -- new.sh.theirs"))
}

func TestResolveDeleteModify(t *testing.T) {
	ctx := context.Background()

	t.Run("choosing the deleting side removes the file", func(t *testing.T) {
		rec := &ConflictRecord{Path: "gone.sh", Kind: ConflictDeleteModify, OursDeleted: true}

		runner := stagingRunner().on("git rm -- gone.sh", ok(""))
		resolver := NewResolver(runner, t.TempDir(), StrategyOurs, nil)
		require.NoError(t, resolver.ResolveAll(ctx, []*ConflictRecord{rec}))

		assert.True(t, runner.called("git rm -- gone.sh"))
		assert.Equal(t, Resolved, rec.State)
	})

	t.Run("choosing the modifying side keeps its version", func(t *testing.T) {
		rec := &ConflictRecord{Path: "kept.sh", Kind: ConflictDeleteModify, OursDeleted: true}

		runner := stagingRunner().
			on("git checkout --theirs -- kept.sh", ok("")).
			on("git add -- kept.sh", ok(""))
		resolver := NewResolver(runner, t.TempDir(), StrategyTheirs, nil)
		require.NoError(t, resolver.ResolveAll(ctx, []*ConflictRecord{rec}))

		assert.True(t, runner.called("git checkout --theirs -- kept.sh"))
		assert.Equal(t, Resolved, rec.State)
	})
}

func TestResolveInteractive(t *testing.T) {
	ctx := context.Background()

	t.Run("mixed per-hunk answers", func(t *testing.T) {
		dir := t.TempDir()
		content := "a\n<<<<<<< HEAD\n1\n=======\n2\n>>>>>>> dev\nb\n<<<<<<< HEAD\n3\n=======\n4\n>>>>>>> dev\nc\n"
		path := filepath.Join(dir, "file.txt")
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		rec := classifyFile(t, dir, "file.txt")
		require.Len(t, rec.Hunks, 2)

		frontend := &stubFrontend{answers: []Resolution{
			{Choice: ChooseOurs},
			{Choice: ChooseEdit, Replacement: []string{"edited"}},
		}}
		runner := stagingRunner().on("git add -- file.txt", ok(""))
		resolver := NewResolver(runner, dir, StrategyInteractive, frontend)
		require.NoError(t, resolver.ResolveAll(ctx, []*ConflictRecord{rec}))

		got, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "a\n1\nb\nedited\nc\n", string(got))
		assert.Equal(t, Resolved, rec.State)
	})

	t.Run("skip leaves the record skipped and the file untouched", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "file.txt")
		require.NoError(t, os.WriteFile(path, []byte(conflictedPkgbuild), 0o644))

		rec := classifyFile(t, dir, "file.txt")

		frontend := &stubFrontend{answers: []Resolution{{Choice: ChooseSkip}}}
		resolver := NewResolver(stagingRunner(), dir, StrategyInteractive, frontend)
		require.NoError(t, resolver.ResolveAll(ctx, []*ConflictRecord{rec}))

		assert.Equal(t, Skipped, rec.State)
		got, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, conflictedPkgbuild, string(got))
	})
}

func TestMarkResolved(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects files still carrying markers", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "file.txt"), []byte(conflictedPkgbuild), 0o644))

		rec := &ConflictRecord{Path: "file.txt", Kind: ConflictContent}
		resolver := NewResolver(stagingRunner(), dir, StrategyManual, nil)

		err := resolver.MarkResolved(ctx, rec)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrStillConflicted)
		assert.Equal(t, Unresolved, rec.State)
	})

	t.Run("rejects an unterminated marker region", func(t *testing.T) {
		dir := t.TempDir()
		content := "pkgname=bigtool\n<<<<<<< HEAD\npkgver=1.2.0\n"
		require.NoError(t, os.WriteFile(filepath.Join(dir, "file.txt"), []byte(content), 0o644))

		rec := &ConflictRecord{Path: "file.txt", Kind: ConflictContent}
		resolver := NewResolver(stagingRunner(), dir, StrategyManual, nil)

		err := resolver.MarkResolved(ctx, rec)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrStillConflicted)
		assert.Equal(t, Unresolved, rec.State)
	})

	t.Run("accepts a cleaned file", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "file.txt"), []byte("merged by hand\n"), 0o644))

		rec := &ConflictRecord{Path: "file.txt", Kind: ConflictContent}
		runner := stagingRunner().on("git add -- file.txt", ok(""))
		resolver := NewResolver(runner, dir, StrategyManual, nil)

		require.NoError(t, resolver.MarkResolved(ctx, rec))
		assert.Equal(t, Resolved, rec.State)
	})
}

func TestManualStrategyTakesNoAction(t *testing.T) {
	rec := &ConflictRecord{Path: "file.txt", Kind: ConflictContent}
	resolver := NewResolver(stagingRunner(), t.TempDir(), StrategyManual, nil)

	require.NoError(t, resolver.ResolveAll(context.Background(), []*ConflictRecord{rec}))
	assert.Equal(t, Unresolved, rec.State)
}

func TestReadyToCommitAndAnySkipped(t *testing.T) {
	resolved := &ConflictRecord{State: Resolved}
	skipped := &ConflictRecord{State: Skipped}
	open := &ConflictRecord{State: Unresolved}

	assert.True(t, ReadyToCommit([]*ConflictRecord{resolved, resolved}))
	assert.False(t, ReadyToCommit([]*ConflictRecord{resolved, open}))
	assert.False(t, ReadyToCommit([]*ConflictRecord{resolved, skipped}))

	assert.True(t, AnySkipped([]*ConflictRecord{resolved, skipped}))
	assert.False(t, AnySkipped([]*ConflictRecord{resolved, open}))

	skipped.Reopen()
	assert.Equal(t, Unresolved, skipped.State)
}

func TestValidStrategy(t *testing.T) {
	for _, s := range []Strategy{StrategyInteractive, StrategyOurs, StrategyTheirs, StrategyManual, StrategyKeepBoth} {
		assert.True(t, ValidStrategy(s))
	}
	assert.False(t, ValidStrategy("rebase"))
}
