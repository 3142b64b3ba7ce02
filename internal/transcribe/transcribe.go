// Package transcribe turns audio into text through an OpenAI-compatible
// audio transcription endpoint.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/voicetrack/voicetrack/internal/types"
)

const (
	// DefaultBaseURL is the OpenAI API, including its version prefix
	DefaultBaseURL = "https://api.openai.com/v1"
	// DefaultModel is the speech-to-text model used when none is configured
	DefaultModel = openai.Whisper1

	defaultTimeout = 5 * time.Minute

	// MaxAudioBytes matches the upload limit of the OpenAI endpoint
	MaxAudioBytes = 25 << 20
)

// Config holds transcription client settings
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client // Optional
}

// Transcriber turns audio into text
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename, language string) (*Result, error)
}

// Client calls the transcription endpoint
type Client struct {
	api   *openai.Client
	model string
}

var _ Transcriber = (*Client)(nil)

// NewClient creates a transcription client. A missing API key is a
// precondition failure; nothing is sent.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: transcription API key is required (set VOICETRACK_TRANSCRIBE_API_KEY or OPENAI_API_KEY)", types.ErrPrecondition)
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}

	apiCfg := openai.DefaultConfig(cfg.APIKey)
	apiCfg.BaseURL = baseURL
	apiCfg.HTTPClient = httpClient

	return &Client{
		api:   openai.NewClientWithConfig(apiCfg),
		model: model,
	}, nil
}

// Result is the transcribed text plus what the run records about the call
type Result struct {
	Text        string
	Diagnostics types.TranscribeInfo
}

// Transcribe uploads audio and returns its text. An empty transcript is an
// error, since no run can be created from it.
func (c *Client) Transcribe(ctx context.Context, audio []byte, filename, language string) (*Result, error) {
	if len(audio) == 0 {
		return nil, fmt.Errorf("%w: audio is empty", types.ErrPrecondition)
	}
	if len(audio) > MaxAudioBytes {
		return nil, fmt.Errorf("%w: audio is %d bytes, limit is %d", types.ErrPrecondition, len(audio), MaxAudioBytes)
	}
	if filename == "" {
		filename = "audio.wav"
	}

	start := time.Now()
	resp, err := c.api.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.model,
		FilePath: filepath.Base(filename),
		Reader:   bytes.NewReader(audio),
		Language: language,
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	elapsed := time.Since(start)
	if err != nil {
		return nil, describeError(err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return nil, fmt.Errorf("%w: transcription returned no text", types.ErrPrecondition)
	}

	lang := resp.Language
	if lang == "" {
		lang = language
	}
	slog.Debug("audio transcribed", "model", c.model, "bytes", len(audio), "elapsed", elapsed)

	return &Result{
		Text: text,
		Diagnostics: types.TranscribeInfo{
			Model:      c.model,
			Language:   lang,
			Duration:   resp.Duration,
			AudioBytes: len(audio),
			ElapsedMS:  elapsed.Milliseconds(),
		},
	}, nil
}

// describeError names the HTTP status of a failed call when there is one
func describeError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("transcription API returned %d: %s", apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("transcription API returned %d: %s", reqErr.HTTPStatusCode,
			types.Truncate(strings.TrimSpace(string(reqErr.Body)), 500))
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return fmt.Errorf("failed to parse transcription response: %w", err)
	}
	return fmt.Errorf("transcription request failed: %w", err)
}
