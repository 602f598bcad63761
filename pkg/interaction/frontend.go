package interaction

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/big-comm/bigbuild/pkg/git"
	cerr "github.com/cockroachdb/errors"
)

// TerminalFrontend answers the resolver's per-hunk questions on the
// terminal and prints plan previews and results.
type TerminalFrontend struct {
	in  *bufio.Reader
	out io.Writer
}

// NewTerminalFrontend reads from stdin and writes to stdout.
func NewTerminalFrontend() *TerminalFrontend {
	return &TerminalFrontend{in: bufio.NewReader(os.Stdin), out: os.Stdout}
}

// NewFrontendWithIO is used by tests to script the dialogue.
func NewFrontendWithIO(in io.Reader, out io.Writer) *TerminalFrontend {
	return &TerminalFrontend{in: bufio.NewReader(in), out: out}
}

// RequestResolution shows one conflict and reads the choice for it.
func (f *TerminalFrontend) RequestResolution(record *git.ConflictRecord, hunkIndex int) (git.Resolution, error) {
	if record.Kind == git.ConflictDeleteModify || len(record.Hunks) == 0 {
		return f.requestFileChoice(record)
	}

	hunk := record.Hunks[hunkIndex]
	fmt.Fprintf(f.out, "\n%s: conflict %d of %d (lines %d-%d)\n",
		record.Path, hunkIndex+1, len(record.Hunks), hunk.StartLine, hunk.EndLine)

	fmt.Fprintf(f.out, "<<< ours (%s)\n", labelOr(hunk.OursLabel, "local"))
	for _, line := range hunk.Ours {
		fmt.Fprintf(f.out, "  %s\n", line)
	}
	fmt.Fprintf(f.out, ">>> theirs (%s)\n", labelOr(hunk.TheirsLabel, "incoming"))
	for _, line := range hunk.Theirs {
		fmt.Fprintf(f.out, "  %s\n", line)
	}

	for {
		fmt.Fprint(f.out, "[o]urs / [t]heirs / [b]oth / [e]dit / [s]kip file: ")
		answer, err := f.readLine()
		if err != nil {
			return git.Resolution{}, err
		}
		switch answer {
		case "o", "ours":
			return git.Resolution{Choice: git.ChooseOurs}, nil
		case "t", "theirs":
			return git.Resolution{Choice: git.ChooseTheirs}, nil
		case "b", "both":
			return git.Resolution{Choice: git.ChooseBoth}, nil
		case "e", "edit":
			return f.readReplacement()
		case "s", "skip":
			return git.Resolution{Choice: git.ChooseSkip}, nil
		}
		fmt.Fprintln(f.out, "Invalid choice, try again.")
	}
}

// requestFileChoice handles conflicts resolved per file rather than per
// hunk: delete/modify and files without marker triples.
func (f *TerminalFrontend) requestFileChoice(record *git.ConflictRecord) (git.Resolution, error) {
	deletedBy := "them"
	if record.OursDeleted {
		deletedBy = "us"
	}
	fmt.Fprintf(f.out, "\n%s: %s conflict (deleted by %s)\n", record.Path, record.Kind, deletedBy)

	for {
		fmt.Fprint(f.out, "[o]urs / [t]heirs / [s]kip file: ")
		answer, err := f.readLine()
		if err != nil {
			return git.Resolution{}, err
		}
		switch answer {
		case "o", "ours":
			return git.Resolution{Choice: git.ChooseOurs}, nil
		case "t", "theirs":
			return git.Resolution{Choice: git.ChooseTheirs}, nil
		case "s", "skip":
			return git.Resolution{Choice: git.ChooseSkip}, nil
		}
		fmt.Fprintln(f.out, "Invalid choice, try again.")
	}
}

// readReplacement collects replacement lines terminated by a single "." on
// its own line.
func (f *TerminalFrontend) readReplacement() (git.Resolution, error) {
	fmt.Fprintln(f.out, "Enter replacement lines, end with a single '.' line:")
	var lines []string
	for {
		line, err := f.in.ReadString('\n')
		if err != nil {
			return git.Resolution{}, cerr.Wrap(err, "reading replacement")
		}
		line = strings.TrimRight(line, "\n")
		if line == "." {
			break
		}
		lines = append(lines, line)
	}
	return git.Resolution{Choice: git.ChooseEdit, Replacement: lines}, nil
}

// ReportPlanPreview prints the rendered plan.
func (f *TerminalFrontend) ReportPlanPreview(plan *git.OperationPlan) {
	fmt.Fprint(f.out, plan.Preview)
}

// ReportResult summarizes per-step outcomes after execution.
func (f *TerminalFrontend) ReportResult(result *git.OperationResult) {
	for i, outcome := range result.Outcomes {
		fmt.Fprintf(f.out, "%d. %-8s %s\n", i+1, outcome.Status, outcome.Step.Description)
	}
	if !result.Completed() {
		fmt.Fprintf(f.out, "stopped at step %d: %s\n", result.StoppedAt+1, result.StopReason)
	}
}

func (f *TerminalFrontend) readLine() (string, error) {
	line, err := f.in.ReadString('\n')
	if err != nil && line == "" {
		return "", cerr.Wrap(err, "reading choice")
	}
	return strings.ToLower(strings.TrimSpace(line)), nil
}

func labelOr(label, fallback string) string {
	if label == "" {
		return fallback
	}
	return label
}
