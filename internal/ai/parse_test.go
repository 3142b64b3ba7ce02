package ai

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicetrack/voicetrack/internal/types"
)

const validProposal = `{
  "summaryBullets": ["Login is broken", "Launch on Friday"],
  "candidates": [
    {"summary": "Fix login bug", "description": "Users cannot log in", "labels": ["auth"], "issueType": "Bug", "priority": "High"},
    {"summary": "Prepare launch", "description": "Checklist for Friday"}
  ]
}`

func TestParseProposal_Valid(t *testing.T) {
	p, err := ParseProposal(validProposal, 5)
	require.NoError(t, err)

	assert.Equal(t, []string{"Login is broken", "Launch on Friday"}, p.SummaryBullets)
	require.Len(t, p.Candidates, 2)
	assert.Equal(t, "Fix login bug", p.Candidates[0].Summary)
	assert.Equal(t, []string{"auth"}, p.Candidates[0].Labels)
	assert.Equal(t, "Bug", p.Candidates[0].IssueType)
	assert.Equal(t, "High", p.Candidates[0].Priority)
	assert.Empty(t, p.Candidates[1].IssueType)
}

func TestParseProposal_CodeFence(t *testing.T) {
	for _, fenced := range []string{
		"```json\n" + validProposal + "\n```",
		"```\n" + validProposal + "\n```",
		"  ```json\n" + validProposal + "\n```  ",
	} {
		p, err := ParseProposal(fenced, 5)
		require.NoError(t, err)
		assert.Len(t, p.Candidates, 2)
	}
}

func TestParseProposal_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		max     int
		message string
	}{
		{"empty", "   ", 5, "empty response"},
		{"not json", "Here are your issues!", 5, "not a valid proposal"},
		{"prose around json", "Sure:\n" + validProposal, 5, "not a valid proposal"},
		{"trailing data", validProposal + "\nthanks", 5, "unexpected data"},
		{"trailing comma", `{"summaryBullets": [], "candidates": [{"summary": "a", "description": "b"},]}`, 5, "not a valid proposal"},
		{"missing bullets", `{"candidates": [{"summary": "a", "description": "b"}]}`, 5, "summaryBullets"},
		{"missing candidates", `{"summaryBullets": []}`, 5, "missing field candidates"},
		{"null candidates", `{"summaryBullets": [], "candidates": null}`, 5, "missing field candidates"},
		{"no candidates", `{"summaryBullets": [], "candidates": []}`, 5, "no candidates"},
		{"unknown field", `{"summaryBullets": [], "candidates": [], "extra": 1}`, 5, "not a valid proposal"},
		{"unknown candidate field", `{"summaryBullets": [], "candidates": [{"summary": "a", "description": "b", "title": "c"}]}`, 5, "not a valid proposal"},
		{"missing summary", `{"summaryBullets": [], "candidates": [{"description": "b"}]}`, 5, "candidate 1: missing summary"},
		{"blank description", `{"summaryBullets": [], "candidates": [{"summary": "a", "description": "  "}]}`, 5, "candidate 1: missing description"},
		{"wrong type", `{"summaryBullets": "x", "candidates": []}`, 5, "not a valid proposal"},
		{"too many", validProposal, 1, "limit is 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseProposal(tt.input, tt.max)
			require.Error(t, err)
			assert.ErrorIs(t, err, types.ErrValidation)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestParseProposal_SizeLimit(t *testing.T) {
	_, err := ParseProposal(strings.Repeat(" ", MaxResponseSize+1), 5)
	assert.ErrorIs(t, err, types.ErrValidation)
}
