// Package ai proposes issue candidates from a transcript with the Anthropic
// Messages API.
package ai

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/voicetrack/voicetrack/internal/types"
)

// ModelSonnet is the default model for candidate proposals
const ModelSonnet = "claude-sonnet-4-5-20250929"

// ModelEnv overrides the default model
const ModelEnv = "VOICETRACK_MODEL"

// defaultMaxTokens bounds the proposal response
const defaultMaxTokens = 4096

// GetDefaultModel returns the default model, checking VOICETRACK_MODEL first
func GetDefaultModel() string {
	if model := os.Getenv(ModelEnv); model != "" {
		return model
	}
	return ModelSonnet
}

// Proposer turns a transcript into a Proposal. It owns the Anthropic client
// plus the retry and circuit breaker guards around it.
type Proposer struct {
	client         *anthropic.Client
	model          string
	maxTokens      int
	retry          RetryConfig
	circuitBreaker *CircuitBreaker
}

// Config holds proposer configuration
type Config struct {
	APIKey    string      // Anthropic API key (if empty, reads from ANTHROPIC_API_KEY env var)
	Model     string      // Model to use (default: GetDefaultModel())
	BaseURL   string      // Optional API base URL, used by tests
	MaxTokens int         // Response token cap (default: 4096)
	Retry     RetryConfig // Retry configuration (uses defaults if not specified)
}

// NewProposer creates a proposer. A missing API key is a precondition error.
func NewProposer(cfg *Config) (*Proposer, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("%w: ANTHROPIC_API_KEY not set", types.ErrPrecondition)
		}
	}

	model := cfg.Model
	if model == "" {
		model = GetDefaultModel()
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	retry := cfg.Retry
	if retry.MaxRetries == 0 && retry.InitialBackoff == 0 {
		retry = DefaultRetryConfig()
	}

	// Retries happen in retryWithBackoff, not inside the SDK
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)

	var circuitBreaker *CircuitBreaker
	if retry.CircuitBreakerEnabled {
		circuitBreaker = NewCircuitBreaker(retry.FailureThreshold, retry.SuccessThreshold, retry.OpenTimeout)
	}

	return &Proposer{
		client:         &client,
		model:          model,
		maxTokens:      maxTokens,
		retry:          retry,
		circuitBreaker: circuitBreaker,
	}, nil
}

// Propose sends the transcript to the model and parses its reply under the
// strict proposal contract. Any contract violation is returned as an error.
func (p *Proposer) Propose(ctx context.Context, transcript string, maxCandidates int) (*types.Proposal, error) {
	if maxCandidates < 1 {
		return nil, fmt.Errorf("%w: maxCandidates must be positive (got %d)", types.ErrPrecondition, maxCandidates)
	}

	prompt := buildProposalPrompt(transcript, maxCandidates)

	var responseText string
	err := p.retryWithBackoff(ctx, "propose-candidates", func(attemptCtx context.Context) error {
		response, apiErr := p.client.Messages.New(attemptCtx, anthropic.MessageNewParams{
			Model:     anthropic.Model(p.model),
			MaxTokens: int64(p.maxTokens),
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
		if apiErr != nil {
			return apiErr
		}

		var sb strings.Builder
		for _, block := range response.Content {
			if block.Type == "text" {
				sb.WriteString(block.Text)
			}
		}
		responseText = sb.String()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic API call failed: %w", err)
	}

	proposal, err := ParseProposal(responseText, maxCandidates)
	if err != nil {
		slog.Debug("proposal rejected", "error", err, "response_preview", truncate(responseText, 200))
		return nil, err
	}
	return proposal, nil
}

func buildProposalPrompt(transcript string, maxCandidates int) string {
	return fmt.Sprintf(`You are turning meeting notes into issue-tracker tickets.

Read the transcript below and propose at most %d actionable issues.

Respond with ONLY a JSON object, no prose, in exactly this shape:
{
  "summaryBullets": ["short bullet summarizing the meeting", "..."],
  "candidates": [
    {
      "summary": "imperative title, at most 120 characters",
      "description": "what needs to be done and why, taken from the transcript",
      "labels": ["optional", "labels"],
      "issueType": "Task | Bug | Story",
      "priority": "Highest | High | Medium | Low | Lowest (optional)"
    }
  ]
}

Rules:
- "summaryBullets" and "candidates" are required.
- Every candidate needs a non-empty "summary" and "description".
- Do not add fields that are not listed above.
- Do not invent work that the transcript does not mention.

Transcript:
<transcript>
%s
</transcript>`, maxCandidates, transcript)
}
