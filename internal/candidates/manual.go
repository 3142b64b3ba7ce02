package candidates

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/voicetrack/voicetrack/internal/types"
)

// LoadProposalFile reads manually written candidates. The file holds either a
// proposal object ({"summaryBullets": [...], "candidates": [...]}) or a bare
// array of candidates. Unknown fields are rejected.
func LoadProposalFile(path string) (*types.Proposal, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read candidates file: %w", err)
	}
	return ParseProposalJSON(data)
}

// ParseProposalJSON decodes a manual proposal document
func ParseProposalJSON(data []byte) (*types.Proposal, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: candidates file is empty", types.ErrValidation)
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()

	var proposal types.Proposal
	if trimmed[0] == '[' {
		if err := dec.Decode(&proposal.Candidates); err != nil {
			return nil, fmt.Errorf("%w: invalid candidates array: %w", types.ErrValidation, err)
		}
	} else if err := dec.Decode(&proposal); err != nil {
		return nil, fmt.Errorf("%w: invalid candidates document: %w", types.ErrValidation, err)
	}

	if dec.More() {
		return nil, fmt.Errorf("%w: unexpected data after candidates", types.ErrValidation)
	}
	return &proposal, nil
}
