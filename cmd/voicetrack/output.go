package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/voicetrack/voicetrack/internal/types"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func newTable(w io.Writer) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	return tw
}

func statusColor(s types.RunStatus) string {
	switch s {
	case types.StatusCompleted:
		return green(s)
	case types.StatusPartialOrFailed:
		return red(s)
	case types.StatusPendingApproval, types.StatusDryRunApplied:
		return yellow(s)
	default:
		return gray(s)
	}
}

func printCandidates(w io.Writer, cands []types.Candidate) {
	if len(cands) == 0 {
		fmt.Fprintf(w, "  %s\n", gray("No candidates yet"))
		return
	}
	tw := newTable(w)
	tw.AppendHeader(table.Row{"#", "Type", "Priority", "Summary", "Labels"})
	for i, c := range cands {
		tw.AppendRow(table.Row{i + 1, c.IssueType, c.Priority, types.Truncate(c.Summary, 60), strings.Join(c.Labels, ",")})
	}
	tw.Render()
}

func printResults(w io.Writer, results []types.Result) {
	if len(results) == 0 {
		return
	}
	tw := newTable(w)
	tw.AppendHeader(table.Row{"#", "Outcome", "Issue", "Detail"})
	for _, r := range results {
		var outcome, detail string
		switch {
		case !r.OK:
			outcome = red("failed")
			detail = r.Error
			if r.Status != 0 {
				detail = fmt.Sprintf("HTTP %d: %s", r.Status, r.Error)
			}
		case r.Deduped:
			outcome = cyan("exists")
			detail = r.IssueURL
		case r.DryRun:
			outcome = yellow("dry-run")
			detail = r.RequestFingerprint
		default:
			outcome = green("created")
			detail = r.IssueURL
		}
		if r.Warning != "" {
			detail = r.Warning
		}
		tw.AppendRow(table.Row{r.Index, outcome, r.IssueKey, types.Truncate(detail, 80)})
	}
	tw.Render()
}
