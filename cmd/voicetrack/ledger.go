package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/voicetrack/voicetrack/internal/types"
)

var ledgerKey string

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Show the idempotency ledger of created issues",
	Long: `Show every issue voicetrack has created, in the order they were recorded.

With --key only the record for that idempotency key is shown; a missing key
exits with status 2.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		out := cmd.OutOrStdout()

		var records []*types.IdempotencyRecord
		if ledgerKey != "" {
			rec, err := store.Lookup(ctx, ledgerKey)
			if err != nil {
				return withStep(stepLoad, err)
			}
			if rec == nil {
				return withStep(stepLoad, fmt.Errorf("%w: no ledger record for %s", types.ErrNotFound, ledgerKey))
			}
			records = append(records, rec)
		} else {
			all, err := store.List(ctx)
			if err != nil {
				return withStep(stepLoad, err)
			}
			records = all
		}

		if jsonOutput {
			if records == nil {
				records = []*types.IdempotencyRecord{}
			}
			return printJSON(out, records)
		}
		if len(records) == 0 {
			fmt.Fprintln(out, "No issues created yet")
			return nil
		}

		tw := newTable(out)
		tw.AppendHeader(table.Row{"Issue", "Type", "Run", "#", "Created", "Key"})
		for _, r := range records {
			tw.AppendRow(table.Row{r.IssueKey, r.IssueType, r.RunID, r.CandidateIndex, r.CreatedAt.Local().Format(time.DateTime), types.Truncate(r.IdempotencyKey, 19)})
		}
		tw.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ledgerCmd)
	ledgerCmd.Flags().StringVar(&ledgerKey, "key", "", "Look up one idempotency key")
}
