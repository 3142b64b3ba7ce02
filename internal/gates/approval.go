package gates

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"

	"github.com/voicetrack/voicetrack/internal/types"
)

// ApprovalLiteral is the only value that opens the approval gate
const ApprovalLiteral = "yes"

// CheckApproval passes only for the exact approval literal. Nothing else
// (other casing, "y", a flag combination) substitutes for it.
func CheckApproval(value string) error {
	if value != ApprovalLiteral {
		return fmt.Errorf("%w: pass --approve %s to create issues", types.ErrApprovalRequired, ApprovalLiteral)
	}
	return nil
}

// LineReader reads one line of operator input
type LineReader interface {
	Readline() (string, error)
	Close() error
}

// NewReadlinePrompt opens an interactive prompt on the terminal
func NewReadlinePrompt() (LineReader, error) {
	yellow := color.New(color.FgYellow).SprintFunc()
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          yellow(fmt.Sprintf("Type %q to create these issues: ", ApprovalLiteral)),
		InterruptPrompt: "^C",
		EOFPrompt:       "",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return rl, nil
}

// PromptApproval shows what would be created and reads one answer. The
// answer is returned verbatim apart from surrounding whitespace, so it still
// has to pass CheckApproval. Interrupt and EOF count as a refusal.
func PromptApproval(w io.Writer, rl LineReader, run *types.Run, indices []int) (string, error) {
	fmt.Fprintln(w, BuildApprovalSummary(run, indices))

	line, err := rl.Readline()
	if err != nil {
		if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read approval: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// BuildApprovalSummary lists the selected candidates for review
func BuildApprovalSummary(run *types.Run, indices []int) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("=== Run %s ===\n", run.RunID))
	if run.Title != "" {
		sb.WriteString(fmt.Sprintf("Title: %s\n", run.Title))
	}
	sb.WriteString(fmt.Sprintf("Status: %s\n\n", run.Status))

	sb.WriteString(fmt.Sprintf("Issues to create (%d):\n", len(indices)))
	for _, i := range indices {
		c, err := run.Candidate(i)
		if err != nil {
			sb.WriteString(fmt.Sprintf("  [%d] (missing)\n", i))
			continue
		}
		line := fmt.Sprintf("  [%d] %s: %s", i, c.IssueType, c.Summary)
		if c.Priority != "" {
			line += fmt.Sprintf(" (%s)", c.Priority)
		}
		sb.WriteString(line + "\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
