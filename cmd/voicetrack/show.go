package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show [run-id]",
	Short: "Show a run with its candidates and results",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		out := cmd.OutOrStdout()

		svc, err := runService()
		if err != nil {
			return withStep(stepLoad, err)
		}
		run, err := loadRunArg(ctx, svc, args)
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(out, run)
		}

		fmt.Fprintf(out, "\n=== Run %s ===\n", cyan(run.RunID))
		if run.Title != "" {
			fmt.Fprintf(out, "Title:      %s\n", run.Title)
		}
		fmt.Fprintf(out, "Status:     %s\n", statusColor(run.Status))
		fmt.Fprintf(out, "Source:     %s\n", run.Source)
		if run.Transcribe != nil {
			fmt.Fprintf(out, "Transcribe: %s (%s, %dms)\n", run.Transcribe.Model, run.Transcribe.Language, run.Transcribe.ElapsedMS)
		}
		if run.Generator != "" {
			fmt.Fprintf(out, "Generator:  %s\n", run.Generator)
		}
		fmt.Fprintf(out, "Created:    %s\n", run.CreatedAt.Local().Format(time.DateTime))
		if run.AppliedAt != nil {
			fmt.Fprintf(out, "Applied:    %s\n", run.AppliedAt.Local().Format(time.DateTime))
		}
		fmt.Fprintf(out, "Preview:    %s\n\n", gray(run.TranscriptPreview))

		for _, b := range run.SummaryBullets {
			fmt.Fprintf(out, "  • %s\n", b)
		}
		if len(run.SummaryBullets) > 0 {
			fmt.Fprintln(out)
		}
		printCandidates(out, run.Candidates)
		if len(run.Results) > 0 {
			fmt.Fprintf(out, "\n%s\n", yellow("Results:"))
			printResults(out, run.Results)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().StringVar(&runFileFlag, "run-file", "", "Load the run document from this path")
}
