package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/voicetrack/voicetrack/internal/config"
	"github.com/voicetrack/voicetrack/internal/runs"
	"github.com/voicetrack/voicetrack/internal/transcribe"
	"github.com/voicetrack/voicetrack/internal/types"
)

var (
	initText     string
	initFile     string
	initStdin    bool
	initAudio    string
	initTitle    string
	initLanguage string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a run from a transcript or an audio file",
	Long: `Create a new run from exactly one transcript source.

The raw transcript is stored in the workspace (.voicetrack/ by default) and the
run starts in pending_candidates. With --audio the file is transcribed first;
a failed transcription creates no run.

Example:
  voicetrack init --file notes.txt --title "Weekly sync"
  pbpaste | voicetrack init --stdin
  voicetrack init --audio standup.m4a --language ko`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		out := cmd.OutOrStdout()

		input := runs.CreateRunInput{Title: initTitle, Source: types.SourceTranscript}
		text, err := readTranscriptSource(ctx, cmd.InOrStdin(), &input)
		if err != nil {
			return err
		}
		input.Transcript = text

		svc, err := runService()
		if err != nil {
			return withStep(stepRunInit, err)
		}
		run, err := svc.CreateRun(ctx, input)
		if err != nil {
			return withStep(stepRunInit, err)
		}

		if _, err := config.WriteTemplate(cfg.Home); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", err)
		}

		if jsonOutput {
			return printJSON(out, run)
		}
		fmt.Fprintf(out, "\n%s Created run %s\n\n", green("✓"), cyan(run.RunID))
		fmt.Fprintf(out, "  Source:  %s\n", run.Source)
		if run.Title != "" {
			fmt.Fprintf(out, "  Title:   %s\n", run.Title)
		}
		fmt.Fprintf(out, "  Preview: %s\n\n", run.TranscriptPreview)
		fmt.Fprintf(out, "%s Next: %s\n", gray("→"), gray("voicetrack generate "+run.RunID))
		return nil
	},
}

// readTranscriptSource returns the transcript from the single source flag
// that was given, transcribing audio when needed
func readTranscriptSource(ctx context.Context, stdin io.Reader, input *runs.CreateRunInput) (string, error) {
	sources := 0
	for _, set := range []bool{initText != "", initFile != "", initStdin, initAudio != ""} {
		if set {
			sources++
		}
	}
	if sources != 1 {
		return "", withStep(stepRunInit, fmt.Errorf("%w: give exactly one of --text, --file, --stdin or --audio", types.ErrPrecondition))
	}

	switch {
	case initText != "":
		return initText, nil

	case initFile != "":
		data, err := os.ReadFile(initFile)
		if err != nil {
			return "", withStep(stepRunInit, fmt.Errorf("%w: failed to read transcript: %w", types.ErrPrecondition, err))
		}
		return string(data), nil

	case initStdin:
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", withStep(stepRunInit, fmt.Errorf("failed to read stdin: %w", err))
		}
		return string(data), nil
	}

	audio, err := os.ReadFile(initAudio)
	if err != nil {
		return "", withStep(stepTranscription, fmt.Errorf("%w: failed to read audio: %w", types.ErrPrecondition, err))
	}
	client, err := transcribe.NewClient(transcribe.Config{
		BaseURL: cfg.Transcribe.BaseURL,
		APIKey:  cfg.Transcribe.APIKey,
		Model:   cfg.Transcribe.Model,
	})
	if err != nil {
		return "", withStep(stepTranscription, err)
	}
	language := initLanguage
	if language == "" {
		language = cfg.Transcribe.Language
	}
	res, err := client.Transcribe(ctx, audio, filepath.Base(initAudio), language)
	if err != nil {
		return "", withStep(stepTranscription, err)
	}

	input.Source = types.SourceAudio
	input.Transcribe = &res.Diagnostics
	return res.Text, nil
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringVar(&initText, "text", "", "Transcript text")
	initCmd.Flags().StringVar(&initFile, "file", "", "Read the transcript from a file")
	initCmd.Flags().BoolVar(&initStdin, "stdin", false, "Read the transcript from stdin")
	initCmd.Flags().StringVar(&initAudio, "audio", "", "Transcribe an audio file")
	initCmd.Flags().StringVar(&initTitle, "title", "", "Run title")
	initCmd.Flags().StringVar(&initLanguage, "language", "", "Audio language hint (e.g. en, ko)")
}
