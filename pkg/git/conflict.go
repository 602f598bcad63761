package git

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Conflict marker literals. These must match git's output byte-for-byte;
// the trailing space distinguishes a marker from a line that merely starts
// with the same characters (git always appends a label or nothing).
const (
	markerOurs   = "<<<<<<<"
	markerBase   = "|||||||"
	markerSep    = "======="
	markerTheirs = ">>>>>>>"
)

// ConflictKind classifies what kind of conflict a file carries.
type ConflictKind int

const (
	// ConflictContent - both sides edited overlapping regions.
	ConflictContent ConflictKind = iota
	// ConflictAddAdd - both sides added the same path.
	ConflictAddAdd
	// ConflictDeleteModify - one side deleted, the other modified.
	ConflictDeleteModify
	// ConflictRenameRename - both sides renamed; surfaces from git as a pair
	// of add/add entries and is resolved by the add/add policy.
	ConflictRenameRename
)

func (k ConflictKind) String() string {
	switch k {
	case ConflictContent:
		return "content"
	case ConflictAddAdd:
		return "add/add"
	case ConflictDeleteModify:
		return "delete/modify"
	case ConflictRenameRename:
		return "rename/rename"
	}
	return "unknown"
}

// ResolutionState tracks a record through the resolver.
type ResolutionState int

const (
	Unresolved ResolutionState = iota
	Resolved
	Skipped
)

func (s ResolutionState) String() string {
	switch s {
	case Resolved:
		return "resolved"
	case Skipped:
		return "skipped"
	}
	return "unresolved"
}

// ConflictHunk is one marked region bounded by start/separator/end markers.
// Line numbers are 1-based positions in the conflicted file.
type ConflictHunk struct {
	StartLine   int
	EndLine     int
	OursLabel   string
	TheirsLabel string
	Ours        []string
	// Base is only present with merge.conflictStyle=diff3.
	Base   []string
	Theirs []string
}

// ConflictRecord describes one conflicted file. It is created by Classify,
// mutated in place by the Resolver, and discarded when the surrounding
// operation commits or aborts.
type ConflictRecord struct {
	Path  string
	Kind  ConflictKind
	Hunks []ConflictHunk
	State ResolutionState
	// OursDeleted marks which side deleted a delete/modify conflict.
	OursDeleted bool
}

// Reopen returns a resolved or skipped record to unresolved. Only valid
// before the surrounding plan is re-executed.
func (r *ConflictRecord) Reopen() {
	r.State = Unresolved
}

// Classify parses each conflicted file of a status snapshot into a
// ConflictRecord, preserving file order and hunk order exactly as they
// appear. A status without conflicts yields an empty sequence.
func Classify(ctx context.Context, status *WorkingTreeStatus, repoDir string) ([]*ConflictRecord, error) {
	logger := otelzap.Ctx(ctx)

	if !status.HasConflicts {
		return nil, nil
	}

	var records []*ConflictRecord
	for _, f := range status.ConflictedFiles() {
		rec := &ConflictRecord{
			Path:  f.Path,
			State: Unresolved,
		}

		switch f.Code {
		case "DD", "DU", "UD":
			rec.Kind = ConflictDeleteModify
			rec.OursDeleted = f.Code[0] == 'D'
		case "AA", "AU", "UA":
			rec.Kind = ConflictAddAdd
		default:
			rec.Kind = ConflictContent
		}

		if rec.Kind != ConflictDeleteModify {
			content, err := os.ReadFile(filepath.Join(repoDir, f.Path))
			if err != nil {
				if os.IsNotExist(err) {
					// File gone from the tree: treat as delete/modify so the
					// resolution chooses keep-or-delete rather than hunk-merge.
					rec.Kind = ConflictDeleteModify
					rec.OursDeleted = true
					records = append(records, rec)
					continue
				}
				return nil, err
			}
			rec.Hunks = parseConflictHunks(string(content))
			if len(rec.Hunks) == 0 && rec.Kind == ConflictContent {
				// Flagged conflicted but no marker triples in the content:
				// the resolution must choose keep-or-delete.
				rec.Kind = ConflictDeleteModify
			}
		}

		records = append(records, rec)
	}

	logger.Debug("Conflicts classified", zap.Int("records", len(records)))
	return records, nil
}

// parseConflictHunks scans content line by line for marker triples. Ordering
// is load-bearing: resolution is applied top-to-bottom so later hunks' line
// offsets remain valid after earlier regions are rewritten.
func parseConflictHunks(content string) []ConflictHunk {
	lines := splitLines(content)

	var hunks []ConflictHunk
	var cur *ConflictHunk
	section := 0 // 0 outside, 1 ours, 2 base, 3 theirs

	for idx, line := range lines {
		lineNo := idx + 1
		switch {
		case section == 0 && isMarker(line, markerOurs):
			cur = &ConflictHunk{
				StartLine: lineNo,
				OursLabel: markerLabel(line, markerOurs),
			}
			section = 1
		case section == 1 && isMarker(line, markerBase):
			section = 2
		case (section == 1 || section == 2) && isMarker(line, markerSep):
			section = 3
		case section == 3 && isMarker(line, markerTheirs):
			cur.EndLine = lineNo
			cur.TheirsLabel = markerLabel(line, markerTheirs)
			hunks = append(hunks, *cur)
			cur = nil
			section = 0
		case section == 1:
			cur.Ours = append(cur.Ours, line)
		case section == 2:
			cur.Base = append(cur.Base, line)
		case section == 3:
			cur.Theirs = append(cur.Theirs, line)
		}
	}

	return hunks
}

// markerLineCount counts surviving marker lines of any of the four kinds. An
// unterminated marker region parses to zero complete hunks, so acceptance
// checks count raw marker lines instead of parsed triples.
func markerLineCount(content string) int {
	count := 0
	for _, line := range splitLines(content) {
		if isMarker(line, markerOurs) || isMarker(line, markerBase) ||
			isMarker(line, markerSep) || isMarker(line, markerTheirs) {
			count++
		}
	}
	return count
}

// isMarker matches a conflict marker line: the literal, alone or followed by
// a space and label. The separator is always bare.
func isMarker(line, marker string) bool {
	if marker == markerSep {
		return line == markerSep
	}
	return line == marker || strings.HasPrefix(line, marker+" ")
}

func markerLabel(line, marker string) string {
	if len(line) > len(marker)+1 {
		return line[len(marker)+1:]
	}
	return ""
}

// splitLines splits without swallowing a trailing newline distinction: a
// final empty element is dropped so joining with "\n" plus a trailing
// newline round-trips typical text files.
func splitLines(content string) []string {
	lines := strings.Split(content, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
