package types

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

// Run is one transcript-to-issues workflow instance. It is persisted as a
// whole document and passed explicitly between the init, generate and apply
// steps.
type Run struct {
	RunID                 string          `json:"run_id"`
	Source                Source          `json:"source"`
	Title                 string          `json:"title,omitempty"`
	TranscriptRef         string          `json:"transcript_ref"`
	TranscriptFingerprint string          `json:"transcript_fingerprint"`
	TranscriptPreview     string          `json:"transcript_preview"`
	Transcribe            *TranscribeInfo `json:"transcribe,omitempty"`
	Status                RunStatus       `json:"status"`
	Generator             string          `json:"generator,omitempty"`
	SummaryBullets        []string        `json:"summary_bullets,omitempty"`
	Candidates            []Candidate     `json:"candidates"`
	Results               []Result        `json:"results,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
	CandidatesAt          *time.Time      `json:"candidates_generated_at,omitempty"`
	AppliedAt             *time.Time      `json:"applied_at,omitempty"`
}

// Validate checks the fields every persisted run must carry
func (r *Run) Validate() error {
	if strings.TrimSpace(r.RunID) == "" {
		return fmt.Errorf("run_id is required")
	}
	if !r.Source.IsValid() {
		return fmt.Errorf("invalid source: %q", r.Source)
	}
	if !r.Status.IsValid() {
		return fmt.Errorf("invalid status: %q", r.Status)
	}
	if r.TranscriptRef == "" {
		return fmt.Errorf("transcript_ref is required")
	}
	if r.TranscriptFingerprint == "" {
		return fmt.Errorf("transcript_fingerprint is required")
	}
	return nil
}

// Candidate returns the candidate at a 1-based position
func (r *Run) Candidate(index int) (*Candidate, error) {
	if index < 1 || index > len(r.Candidates) {
		return nil, fmt.Errorf("%w: index %d out of range [1, %d]", ErrPrecondition, index, len(r.Candidates))
	}
	return &r.Candidates[index-1], nil
}

// MergeResults replaces the results for the indices present in updates and
// leaves every other index untouched. Results stay sorted by index.
func (r *Run) MergeResults(updates []Result) {
	byIndex := make(map[int]Result, len(r.Results)+len(updates))
	for _, res := range r.Results {
		byIndex[res.Index] = res
	}
	for _, res := range updates {
		byIndex[res.Index] = res
	}

	merged := make([]Result, 0, len(byIndex))
	for _, res := range byIndex {
		merged = append(merged, res)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Index < merged[j].Index })
	r.Results = merged
}

// Source identifies where the transcript came from
type Source string

const (
	SourceAudio      Source = "audio"
	SourceTranscript Source = "transcript"
)

// IsValid checks if the source value is valid
func (s Source) IsValid() bool {
	switch s {
	case SourceAudio, SourceTranscript:
		return true
	}
	return false
}

// RunStatus is the lifecycle state of a run
type RunStatus string

const (
	StatusPendingCandidates RunStatus = "pending_candidates"
	StatusPendingApproval   RunStatus = "pending_approval"
	StatusCompleted         RunStatus = "completed"
	StatusPartialOrFailed   RunStatus = "partial_or_failed"
	StatusDryRunApplied     RunStatus = "dry_run_applied"
)

// IsValid checks if the status value is valid
func (s RunStatus) IsValid() bool {
	switch s {
	case StatusPendingCandidates, StatusPendingApproval, StatusCompleted,
		StatusPartialOrFailed, StatusDryRunApplied:
		return true
	}
	return false
}

// AcceptsCandidates reports whether candidate generation may (re)write the run.
// Once any apply has happened, regenerating would move the run backward.
func (s RunStatus) AcceptsCandidates() bool {
	return s == StatusPendingCandidates || s == StatusPendingApproval
}

// AcceptsApply reports whether the run has candidates awaiting or past approval
func (s RunStatus) AcceptsApply() bool {
	switch s {
	case StatusPendingApproval, StatusCompleted, StatusPartialOrFailed, StatusDryRunApplied:
		return true
	}
	return false
}

// TranscribeInfo records diagnostics from the speech-to-text step of audio runs
type TranscribeInfo struct {
	Model      string  `json:"model,omitempty"`
	Language   string  `json:"language,omitempty"`
	Duration   float64 `json:"duration_seconds,omitempty"`
	AudioBytes int     `json:"audio_bytes,omitempty"`
	ElapsedMS  int64   `json:"elapsed_ms,omitempty"`
}

// Result is the outcome of one apply attempt for one candidate index
type Result struct {
	Index              int             `json:"index"`
	OK                 bool            `json:"ok"`
	Deduped            bool            `json:"deduped"`
	DryRun             bool            `json:"dry_run,omitempty"`
	IssueKey           string          `json:"issue_key,omitempty"`
	IssueURL           string          `json:"issue_url,omitempty"`
	IdempotencyKey     string          `json:"idempotency_key,omitempty"`
	RequestFingerprint string          `json:"request_fingerprint,omitempty"`
	Request            json.RawMessage `json:"request,omitempty"`
	Error              string          `json:"error,omitempty"`
	Status             int             `json:"status,omitempty"`
	Warning            string          `json:"warning,omitempty"`
	AttemptedAt        time.Time       `json:"attempted_at"`
}

// IdempotencyRecord is one ledger entry for a successfully created remote issue.
// Records are append-only.
type IdempotencyRecord struct {
	IdempotencyKey     string    `json:"idempotency_key"`
	CreatedAt          time.Time `json:"created_at"`
	IssueKey           string    `json:"issue_key"`
	IssueURL           string    `json:"issue_url"`
	RequestFingerprint string    `json:"request_fingerprint"`
	Site               string    `json:"site"`
	Project            string    `json:"project"`
	IssueType          string    `json:"issue_type"`
	RunID              string    `json:"run_id,omitempty"`
	CandidateIndex     int       `json:"candidate_index,omitempty"`
}

// Validate checks that a record carries enough to answer a later lookup
func (r *IdempotencyRecord) Validate() error {
	if r.IdempotencyKey == "" {
		return fmt.Errorf("idempotency_key is required")
	}
	if r.IssueKey == "" {
		return fmt.Errorf("issue_key is required")
	}
	return nil
}

// Proposal is the untyped output of a candidate source before normalization
type Proposal struct {
	SummaryBullets []string       `json:"summaryBullets"`
	Candidates     []RawCandidate `json:"candidates"`
}

// Truncate shortens s to at most max runes. When it has to cut, the last rune
// is replaced with an ellipsis so truncation is always visible.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max-1]) + Ellipsis
}

// Ellipsis marks truncated text
const Ellipsis = "…"
