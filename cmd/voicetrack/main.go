package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/voicetrack/voicetrack/internal/config"
	"github.com/voicetrack/voicetrack/internal/mask"
	"github.com/voicetrack/voicetrack/internal/runs"
	"github.com/voicetrack/voicetrack/internal/storage"
	"github.com/voicetrack/voicetrack/internal/types"
)

var (
	// Set by PersistentPreRunE; tests may replace store before running
	cfg   *config.Config
	store storage.Storage

	homeFlag   string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "voicetrack",
	Short: "Turn meeting notes into tracker issues, with approval",
	Long: `voicetrack turns a meeting transcript (or audio) into proposed issues,
waits for explicit approval, then creates them in Jira exactly once.

Typical flow:
  voicetrack init --file notes.txt
  voicetrack generate <run-id> --max 5
  voicetrack apply <run-id> --indices 1,3 --approve yes`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}

		root, err := storage.DiscoverRoot(homeFlag)
		if err != nil {
			return withStep(stepLoad, err)
		}
		cfg, err = config.Load(root)
		if err != nil {
			return withStep(stepLoad, fmt.Errorf("%w: %w", types.ErrPrecondition, err))
		}
		setupLogging(cmd.ErrOrStderr(), cfg.LogLevel)

		if store != nil {
			return nil
		}
		// Only init creates a workspace; list reports that there is none yet
		if !storage.IsInitialized(cfg.Home) {
			switch cmd.Name() {
			case "init":
			case "list":
				return nil
			default:
				return withStep(stepLoad, fmt.Errorf("%w: no workspace at %s (create a run with voicetrack init)", types.ErrNotFound, cfg.Home))
			}
		}
		store, err = storage.NewStorage(context.Background(), &storage.Config{Backend: cfg.Storage, Root: cfg.Home})
		if err != nil {
			return withStep(stepLoad, fmt.Errorf("failed to open workspace: %w", err))
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&homeFlag, "home", "", "Workspace directory (default: $VOICETRACK_HOME or ./.voicetrack)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print machine-readable JSON")
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%w: %w", types.ErrPrecondition, err)
	})
}

func setupLogging(w io.Writer, level slog.Level) {
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

// runService wraps the open store with the default masker
func runService() (*runs.Service, error) {
	return runs.NewService(store, mask.New())
}

// run executes the CLI and returns the process exit code
func run(args []string, stdout, stderr io.Writer) int {
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.Execute()

	if store != nil {
		if cerr := store.Close(); cerr != nil {
			slog.Warn("failed to close storage", "error", cerr)
		}
		store = nil
	}

	if err != nil {
		printError(stderr, err)
	}
	return exitCode(err)
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}
