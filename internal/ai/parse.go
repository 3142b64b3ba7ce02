package ai

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/voicetrack/voicetrack/internal/types"
)

// A response wrapped in one markdown code fence is unwrapped. Nothing else is
// repaired: trailing commas, comments or prose around the JSON are rejected.
var codeFenceRegex = regexp.MustCompile("(?s)^```(?:json)?[ \t]*\n?(.*?)\n?```$")

// MaxResponseSize bounds the model reply accepted by ParseProposal
const MaxResponseSize = 1024 * 1024

// proposalWire mirrors the contract with pointer fields so a missing field
// can be told apart from an empty one
type proposalWire struct {
	SummaryBullets *[]string        `json:"summaryBullets"`
	Candidates     *[]candidateWire `json:"candidates"`
}

type candidateWire struct {
	Summary        *string  `json:"summary"`
	Description    *string  `json:"description"`
	Labels         []string `json:"labels"`
	IssueType      string   `json:"issueType"`
	Priority       string   `json:"priority"`
	Assignee       string   `json:"assignee"`
	IdempotencyKey string   `json:"idempotencyKey"`
}

// ParseProposal decodes a model reply under the strict proposal contract.
// Unknown fields, missing required fields, trailing data and more than
// maxCandidates candidates are all errors wrapping types.ErrValidation.
func ParseProposal(text string, maxCandidates int) (*types.Proposal, error) {
	if len(text) > MaxResponseSize {
		return nil, fmt.Errorf("%w: response exceeds size limit (%d > %d bytes)", types.ErrValidation, len(text), MaxResponseSize)
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty response", types.ErrValidation)
	}
	if m := codeFenceRegex.FindStringSubmatch(trimmed); m != nil {
		trimmed = strings.TrimSpace(m[1])
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(trimmed)))
	dec.DisallowUnknownFields()

	var wire proposalWire
	if err := dec.Decode(&wire); err != nil {
		return nil, fmt.Errorf("%w: response is not a valid proposal object: %w", types.ErrValidation, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: unexpected data after proposal object", types.ErrValidation)
	}

	if wire.SummaryBullets == nil {
		return nil, fmt.Errorf("%w: missing field summaryBullets", types.ErrValidation)
	}
	if wire.Candidates == nil {
		return nil, fmt.Errorf("%w: missing field candidates", types.ErrValidation)
	}

	candidates := *wire.Candidates
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: proposal has no candidates", types.ErrValidation)
	}
	if len(candidates) > maxCandidates {
		return nil, fmt.Errorf("%w: proposal has %d candidates, limit is %d", types.ErrValidation, len(candidates), maxCandidates)
	}

	proposal := &types.Proposal{
		SummaryBullets: *wire.SummaryBullets,
		Candidates:     make([]types.RawCandidate, 0, len(candidates)),
	}
	for i, c := range candidates {
		if c.Summary == nil || strings.TrimSpace(*c.Summary) == "" {
			return nil, fmt.Errorf("%w: candidate %d: missing summary", types.ErrValidation, i+1)
		}
		if c.Description == nil || strings.TrimSpace(*c.Description) == "" {
			return nil, fmt.Errorf("%w: candidate %d: missing description", types.ErrValidation, i+1)
		}
		proposal.Candidates = append(proposal.Candidates, types.RawCandidate{
			Summary:        *c.Summary,
			Description:    *c.Description,
			Labels:         c.Labels,
			IssueType:      c.IssueType,
			Priority:       c.Priority,
			Assignee:       c.Assignee,
			IdempotencyKey: c.IdempotencyKey,
		})
	}
	return proposal, nil
}

// truncate truncates a string to maxLen bytes
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
