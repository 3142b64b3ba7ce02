package types

import (
	"fmt"
	"strings"

	"github.com/voicetrack/voicetrack/internal/fingerprint"
)

// MaxSummaryLength is the summary cap in runes, ellipsis included
const MaxSummaryLength = 120

// VoiceLabel is attached to every candidate
const VoiceLabel = "voice"

// Candidate is a proposed issue that has passed NewCandidate. Candidates are
// stored on a Run and read, never modified, by apply.
type Candidate struct {
	Summary        string    `json:"summary"`
	Description    string    `json:"description"`
	Labels         []string  `json:"labels"`
	IssueType      IssueType `json:"issue_type"`
	Priority       Priority  `json:"priority,omitempty"`
	AssigneeRef    string    `json:"assignee_ref,omitempty"`
	IdempotencyKey string    `json:"idempotency_key"`
}

// Validate checks the fields apply cannot do without. Stored candidates can
// be hand-edited, so apply re-checks instead of trusting the constructor.
func (c *Candidate) Validate() error {
	if strings.TrimSpace(c.Summary) == "" {
		return fmt.Errorf("%w: summary is required", ErrValidation)
	}
	if strings.TrimSpace(c.Description) == "" {
		return fmt.Errorf("%w: description is required", ErrValidation)
	}
	return nil
}

// RawCandidate is a candidate as it arrives from the heuristic generator, the
// remote model or a manual file. Nothing about it is trusted.
type RawCandidate struct {
	Summary        string   `json:"summary"`
	Description    string   `json:"description"`
	Labels         []string `json:"labels,omitempty"`
	IssueType      string   `json:"issueType,omitempty"`
	Priority       string   `json:"priority,omitempty"`
	Assignee       string   `json:"assignee,omitempty"`
	IdempotencyKey string   `json:"idempotencyKey,omitempty"`
}

// Masker hides sensitive content. Mask must be idempotent.
type Masker interface {
	Mask(text string) string
}

// CandidateContext carries what normalization needs beyond the raw fields
type CandidateContext struct {
	// Position is the 1-based index the candidate will occupy in the run
	Position              int
	Project               string
	TranscriptFingerprint string
	Masker                Masker
}

// NewCandidate validates and normalizes a raw candidate. Every candidate
// source goes through here before anything reaches a Run.
func NewCandidate(raw RawCandidate, cc CandidateContext) (*Candidate, error) {
	if cc.Masker == nil {
		return nil, fmt.Errorf("%w: masker is required", ErrPrecondition)
	}
	if cc.Position < 1 {
		return nil, fmt.Errorf("%w: candidate position must be 1-based (got %d)", ErrPrecondition, cc.Position)
	}

	summary := fingerprint.NormalizeSummary(cc.Masker.Mask(raw.Summary))
	if summary == "" {
		return nil, fmt.Errorf("%w: candidate %d: summary is required", ErrValidation, cc.Position)
	}
	summary = Truncate(summary, MaxSummaryLength)

	description := strings.TrimSpace(cc.Masker.Mask(raw.Description))
	if description == "" {
		return nil, fmt.Errorf("%w: candidate %d: description is required", ErrValidation, cc.Position)
	}

	issueType := ParseIssueType(raw.IssueType)
	priority, _ := ParsePriority(raw.Priority)

	key := strings.TrimSpace(raw.IdempotencyKey)
	if !fingerprint.IsKey(key) {
		key = fingerprint.CandidateKey(cc.Project, string(issueType), summary, cc.TranscriptFingerprint, cc.Position)
	}

	return &Candidate{
		Summary:        summary,
		Description:    description,
		Labels:         NormalizeLabels(raw.Labels),
		IssueType:      issueType,
		Priority:       priority,
		AssigneeRef:    strings.TrimSpace(raw.Assignee),
		IdempotencyKey: key,
	}, nil
}

// NormalizeLabels puts the voice label first, trims each label, replaces
// inner whitespace with dashes and drops empties and duplicates.
func NormalizeLabels(labels []string) []string {
	out := []string{VoiceLabel}
	seen := map[string]bool{VoiceLabel: true}
	for _, l := range labels {
		l = strings.Join(strings.Fields(l), "-")
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}

// IssueType is the tracker issue type of a candidate
type IssueType string

const (
	TypeTask  IssueType = "Task"
	TypeBug   IssueType = "Bug"
	TypeStory IssueType = "Story"
)

// IsValid checks if the issue type value is valid
func (t IssueType) IsValid() bool {
	switch t {
	case TypeTask, TypeBug, TypeStory:
		return true
	}
	return false
}

// ParseIssueType matches case-insensitively and defaults to Task
func ParseIssueType(s string) IssueType {
	for _, t := range []IssueType{TypeTask, TypeBug, TypeStory} {
		if strings.EqualFold(strings.TrimSpace(s), string(t)) {
			return t
		}
	}
	return TypeTask
}

// Priority is the optional tracker priority of a candidate
type Priority string

const (
	PriorityHighest Priority = "Highest"
	PriorityHigh    Priority = "High"
	PriorityMedium  Priority = "Medium"
	PriorityLow     Priority = "Low"
	PriorityLowest  Priority = "Lowest"
)

// ParsePriority matches case-insensitively. Unknown or empty input yields
// ("", false); priority is never guessed.
func ParsePriority(s string) (Priority, bool) {
	for _, p := range []Priority{PriorityHighest, PriorityHigh, PriorityMedium, PriorityLow, PriorityLowest} {
		if strings.EqualFold(strings.TrimSpace(s), string(p)) {
			return p, true
		}
	}
	return "", false
}
