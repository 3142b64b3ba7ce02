package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/voicetrack/voicetrack/internal/ai"
	"github.com/voicetrack/voicetrack/internal/candidates"
	"github.com/voicetrack/voicetrack/internal/mask"
	"github.com/voicetrack/voicetrack/internal/runs"
	"github.com/voicetrack/voicetrack/internal/types"
)

var (
	runFileFlag string

	generateMode        string
	generateMax         int
	generateAllowRemote bool
	generateFromFile    string
)

var generateCmd = &cobra.Command{
	Use:   "generate [run-id]",
	Short: "Propose issue candidates for a run",
	Long: `Fill a run with validated issue candidates and move it to pending_approval.

Modes:
  heuristic  one candidate per bullet line (or per line without bullets)
  remote     ask Anthropic; requires --allow-remote every time, because the
             transcript leaves this machine

--from-file injects reviewed candidates from a JSON file instead. Every
candidate is validated, labeled "voice" and masked before it is stored.

Example:
  voicetrack generate 20261015T120000Z-1a2b3c4d --max 3
  voicetrack generate 20261015T120000Z-1a2b3c4d --mode remote --allow-remote
  voicetrack generate 20261015T120000Z-1a2b3c4d --from-file reviewed.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		out := cmd.OutOrStdout()

		svc, err := runService()
		if err != nil {
			return withStep(stepGenerate, err)
		}
		run, err := loadRunArg(ctx, svc, args)
		if err != nil {
			return err
		}

		mode := candidates.Mode(generateMode)
		if mode == "" {
			mode = cfg.Generate.Mode
		}
		maxCands := generateMax
		if maxCands == 0 {
			maxCands = cfg.Generate.MaxCandidates
		}

		genCfg := &candidates.Config{Runs: svc, Masker: mask.New(), Project: cfg.Jira.Project}
		// The proposer is only built once consent is given, so a missing
		// consent is reported before a missing API key
		if mode == candidates.ModeRemote && generateAllowRemote {
			proposer, err := newProposer()
			if err != nil {
				return withStep(stepGenerate, err)
			}
			genCfg.Proposer = proposer
		}
		gen, err := candidates.NewGenerator(genCfg)
		if err != nil {
			return withStep(stepGenerate, err)
		}

		var result *candidates.Output
		if generateFromFile != "" {
			proposal, err := candidates.LoadProposalFile(generateFromFile)
			if err != nil {
				return withStep(stepGenerate, err)
			}
			result, err = gen.GenerateFrom(ctx, run, proposal)
			if err != nil {
				return withStep(stepGenerate, err)
			}
		} else {
			result, err = gen.Generate(ctx, run, candidates.Options{Mode: mode, Max: maxCands, AllowRemote: generateAllowRemote})
			if err != nil {
				return withStep(stepGenerate, err)
			}
		}

		if jsonOutput {
			return printJSON(out, run)
		}

		fmt.Fprintf(out, "\n%s %d candidate(s) for run %s (%s)\n\n", green("✓"), len(result.Candidates), cyan(run.RunID), result.Mode)
		if len(result.SummaryBullets) > 0 {
			fmt.Fprintf(out, "%s\n", yellow("Summary:"))
			for _, b := range result.SummaryBullets {
				fmt.Fprintf(out, "  • %s\n", b)
			}
			fmt.Fprintln(out)
		}
		printCandidates(out, result.Candidates)
		fmt.Fprintf(out, "\n%s Next: %s\n", gray("→"),
			gray(fmt.Sprintf("voicetrack apply %s --indices %s --approve yes --dry-run", run.RunID, allIndices(len(result.Candidates)))))
		return nil
	},
}

func newProposer() (*ai.Proposer, error) {
	retry := ai.DefaultRetryConfig()
	retry.MaxRetries = cfg.Anthropic.MaxRetries
	retry.Timeout = cfg.Anthropic.Timeout
	return ai.NewProposer(&ai.Config{
		APIKey:  cfg.Anthropic.APIKey,
		Model:   cfg.Anthropic.Model,
		BaseURL: cfg.Anthropic.BaseURL,
		Retry:   retry,
	})
}

// loadRunArg loads the run named by the positional id or by --run-file
func loadRunArg(ctx context.Context, svc *runs.Service, args []string) (*types.Run, error) {
	switch {
	case runFileFlag != "" && len(args) > 0:
		return nil, withStep(stepLoad, fmt.Errorf("%w: give a run id or --run-file, not both", types.ErrPrecondition))
	case runFileFlag != "":
		run, err := svc.LoadRunFile(runFileFlag)
		return run, withStep(stepLoad, err)
	case len(args) == 1:
		run, err := svc.LoadRun(ctx, args[0])
		return run, withStep(stepLoad, err)
	default:
		return nil, withStep(stepLoad, fmt.Errorf("%w: a run id or --run-file is required", types.ErrPrecondition))
	}
}

func allIndices(n int) string {
	parts := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		parts = append(parts, fmt.Sprint(i))
	}
	return strings.Join(parts, ",")
}

func init() {
	rootCmd.AddCommand(generateCmd)
	generateCmd.Flags().StringVar(&runFileFlag, "run-file", "", "Load the run document from this path")
	generateCmd.Flags().StringVar(&generateMode, "mode", "", "Generation mode: heuristic or remote (default from config)")
	generateCmd.Flags().IntVar(&generateMax, "max", 0, "Maximum candidates, 1-10 (default from config)")
	generateCmd.Flags().BoolVar(&generateAllowRemote, "allow-remote", false, "Consent to send this transcript to a remote model")
	generateCmd.Flags().StringVar(&generateFromFile, "from-file", "", "Use candidates from a JSON file")
}
