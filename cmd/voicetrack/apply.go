package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/voicetrack/voicetrack/internal/gates"
	"github.com/voicetrack/voicetrack/internal/gateway"
	"github.com/voicetrack/voicetrack/internal/tracker"
)

var (
	applyIndices     string
	applyApprove     string
	applyDryRun      bool
	applyInteractive bool
)

var applyCmd = &cobra.Command{
	Use:   "apply [run-id]",
	Short: "Create approved candidates as Jira issues",
	Long: `Create the selected candidates of a run in Jira.

Nothing is created without --approve yes (or typing "yes" with --interactive).
Indices are 1-based. Each candidate is created at most once: a rerun reports
issues that already exist instead of creating duplicates. With --dry-run the
request shape is recorded but nothing is sent.

Requires JIRA_SITE, JIRA_EMAIL, JIRA_API_TOKEN and JIRA_PROJECT_KEY (or the
matching keys in config.yaml), including for dry runs.

Exit codes: 0 all ok, 2 refused before any create, 3 some indices failed.

Example:
  voicetrack apply 20261015T120000Z-1a2b3c4d --indices 1,3 --approve yes --dry-run
  voicetrack apply 20261015T120000Z-1a2b3c4d --indices 1,3 --approve yes
  voicetrack apply 20261015T120000Z-1a2b3c4d --indices 2 --interactive`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		out := cmd.OutOrStdout()

		svc, err := runService()
		if err != nil {
			return withStep(stepApply, err)
		}
		run, err := loadRunArg(ctx, svc, args)
		if err != nil {
			return err
		}

		// Without a prompt the approval is known up front and is the first
		// precondition reported
		approve := applyApprove
		interactive := applyInteractive && approve == ""
		if !interactive {
			if err := gates.CheckApproval(approve); err != nil {
				return withStep(stepApply, err)
			}
		}

		indices, err := gates.ParseIndices(applyIndices, len(run.Candidates))
		if err != nil {
			return withStep(stepApply, err)
		}

		if interactive {
			rl, err := gates.NewReadlinePrompt()
			if err != nil {
				return withStep(stepApply, fmt.Errorf("failed to start prompt: %w", err))
			}
			approve, err = gates.PromptApproval(out, rl, run, indices)
			_ = rl.Close()
			if err != nil {
				return withStep(stepApply, err)
			}
			if err := gates.CheckApproval(approve); err != nil {
				return withStep(stepApply, err)
			}
		}
		if err := cfg.RequireApply(); err != nil {
			return withStep(stepApply, err)
		}

		client, err := tracker.NewClient(tracker.Config{
			Site:              cfg.Jira.Site,
			Email:             cfg.Jira.Email,
			APIToken:          cfg.Jira.APIToken,
			RequestsPerSecond: cfg.Jira.RequestsPerSecond,
		})
		if err != nil {
			return withStep(stepApply, err)
		}
		gw, err := gateway.New(&gateway.Config{
			Ledger:  store,
			Tracker: client,
			Site:    client.Site(),
			Logger:  slog.Default(),
		})
		if err != nil {
			return withStep(stepApply, err)
		}
		applier, err := gates.NewApplier(&gates.Config{
			Runs:     svc,
			Creator:  gw,
			Apply:    cfg.ApplyConfig(),
			LockRoot: cfg.Home,
			Logger:   slog.Default(),
		})
		if err != nil {
			return withStep(stepApply, err)
		}

		summary, err := applier.Apply(ctx, run, gates.ApplyRequest{
			Indices: indices,
			Approve: approve,
			DryRun:  applyDryRun,
		})
		if err != nil {
			return withStep(stepApply, err)
		}

		if jsonOutput {
			if err := printJSON(out, summary); err != nil {
				return err
			}
		} else {
			printApplySummary(out, summary)
		}
		if summary.Partial() {
			return withStep(stepApply, fmt.Errorf("%w: %d of %d failed", errPartialFailure, summary.Failed, len(summary.Results)))
		}
		return nil
	},
}

func printApplySummary(w io.Writer, s *gates.Summary) {
	header := "Applied"
	if s.DryRun {
		header = "Dry run for"
	}
	fmt.Fprintf(w, "\n%s run %s → %s\n\n", header, cyan(s.RunID), statusColor(s.Status))
	printResults(w, s.Results)
	fmt.Fprintf(w, "\n  created %d, existing %d, failed %d", s.Created, s.Deduped, s.Failed)
	if s.Warnings > 0 {
		fmt.Fprintf(w, ", warnings %d", s.Warnings)
	}
	fmt.Fprintln(w)
}

func init() {
	rootCmd.AddCommand(applyCmd)
	applyCmd.Flags().StringVar(&runFileFlag, "run-file", "", "Load the run document from this path")
	applyCmd.Flags().StringVar(&applyIndices, "indices", "", "Comma-separated 1-based candidate indices (required)")
	applyCmd.Flags().StringVar(&applyApprove, "approve", "", `Approval; must be exactly "yes"`)
	applyCmd.Flags().BoolVar(&applyDryRun, "dry-run", false, "Record request shapes without creating issues")
	applyCmd.Flags().BoolVar(&applyInteractive, "interactive", false, "Review the batch and type the approval")
}
