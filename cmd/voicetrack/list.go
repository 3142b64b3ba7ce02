package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/voicetrack/voicetrack/internal/types"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List runs, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		if store == nil {
			if jsonOutput {
				return printJSON(out, []*types.Run{})
			}
			fmt.Fprintf(out, "No workspace at %s yet. Start with: voicetrack init\n", cfg.Home)
			return nil
		}

		svc, err := runService()
		if err != nil {
			return withStep(stepLoad, err)
		}
		all, err := svc.ListRuns(context.Background())
		if err != nil {
			return withStep(stepLoad, err)
		}

		if jsonOutput {
			if all == nil {
				all = []*types.Run{}
			}
			return printJSON(out, all)
		}
		if len(all) == 0 {
			fmt.Fprintf(out, "No runs in %s\n", store.Location())
			return nil
		}

		tw := newTable(out)
		tw.AppendHeader(table.Row{"Run", "Status", "Candidates", "Created", "Title"})
		for _, r := range all {
			tw.AppendRow(table.Row{r.RunID, statusColor(r.Status), len(r.Candidates), r.CreatedAt.Local().Format(time.DateTime), types.Truncate(r.Title, 40)})
		}
		tw.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
