// Package gates holds the approval gate and the batch applier that turns
// approved candidates into tracker issues.
package gates

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/voicetrack/voicetrack/internal/fingerprint"
	"github.com/voicetrack/voicetrack/internal/gateway"
	"github.com/voicetrack/voicetrack/internal/storage"
	"github.com/voicetrack/voicetrack/internal/tracker"
	"github.com/voicetrack/voicetrack/internal/types"
)

// Creator is the issue creation gateway
type Creator interface {
	Create(ctx context.Context, req gateway.Request) (*gateway.Outcome, error)
}

// RunSaver persists the applied run
type RunSaver interface {
	SaveRun(ctx context.Context, run *types.Run) error
}

// ApplyConfig is the tracker identity an apply needs. All of it must be
// present before any candidate is processed, dry runs included.
type ApplyConfig struct {
	Site     string
	Email    string
	APIToken string
	Project  string
}

// Validate reports every missing setting at once
func (c *ApplyConfig) Validate() error {
	var missing []string
	if strings.TrimSpace(c.Site) == "" {
		missing = append(missing, "JIRA_SITE")
	}
	if strings.TrimSpace(c.Email) == "" {
		missing = append(missing, "JIRA_EMAIL")
	}
	if strings.TrimSpace(c.APIToken) == "" {
		missing = append(missing, "JIRA_API_TOKEN")
	}
	if strings.TrimSpace(c.Project) == "" {
		missing = append(missing, "JIRA_PROJECT_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing tracker configuration: %s", types.ErrPrecondition, strings.Join(missing, ", "))
	}
	return nil
}

// Config holds applier dependencies
type Config struct {
	Runs    RunSaver
	Creator Creator
	Apply   ApplyConfig
	// LockRoot is the workspace directory holding per-run apply locks.
	// Empty disables locking.
	LockRoot string
	Logger   *slog.Logger // Optional
}

// Applier applies approved candidates of a run
type Applier struct {
	runs     RunSaver
	creator  Creator
	project  string
	lockRoot string
	logger   *slog.Logger
	now      func() time.Time
}

// NewApplier validates the configuration and creates an applier
func NewApplier(cfg *Config) (*Applier, error) {
	if cfg == nil || cfg.Runs == nil {
		return nil, fmt.Errorf("run store is required")
	}
	if cfg.Creator == nil {
		return nil, fmt.Errorf("issue creator is required")
	}
	if err := cfg.Apply.Validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Applier{
		runs:     cfg.Runs,
		creator:  cfg.Creator,
		project:  strings.ToUpper(strings.TrimSpace(cfg.Apply.Project)),
		lockRoot: cfg.LockRoot,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// ApplyRequest selects candidates and carries the approval
type ApplyRequest struct {
	Indices []int
	Approve string
	DryRun  bool
}

// Summary is the outcome of one apply call
type Summary struct {
	RunID     string          `json:"run_id"`
	Status    types.RunStatus `json:"status"`
	DryRun    bool            `json:"dry_run"`
	Results   []types.Result  `json:"results"` // This call only, in index order
	Created   int             `json:"created"`
	Deduped   int             `json:"deduped"`
	Failed    int             `json:"failed"`
	Warnings  int             `json:"warnings"`
	AppliedAt time.Time       `json:"applied_at"`
}

// Partial reports whether any attempted index failed
func (s *Summary) Partial() bool {
	return s.Failed > 0
}

// Apply creates issues for the selected candidates.
//
// Every precondition (approval, run state, indices, lock) is checked before
// the first candidate. After that the batch always runs to the end; per-index
// failures are recorded and reflected in the run status.
func (a *Applier) Apply(ctx context.Context, run *types.Run, req ApplyRequest) (*Summary, error) {
	if err := CheckApproval(req.Approve); err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("%w: run is required", types.ErrPrecondition)
	}
	if !run.Status.AcceptsApply() {
		return nil, fmt.Errorf("%w: run %s is %s; generate candidates first",
			types.ErrPrecondition, run.RunID, run.Status)
	}
	indices, err := NormalizeIndices(req.Indices, len(run.Candidates))
	if err != nil {
		return nil, err
	}

	if a.lockRoot != "" {
		lockPath, err := storage.AcquireApplyLock(a.lockRoot, run.RunID)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := storage.ReleaseApplyLock(lockPath); err != nil {
				a.logger.Warn("failed to release apply lock", "run_id", run.RunID, "error", err)
			}
		}()
	}

	summary := &Summary{RunID: run.RunID, DryRun: req.DryRun}
	for _, index := range indices {
		result := a.applyOne(ctx, run, index, req.DryRun)
		switch {
		case !result.OK:
			summary.Failed++
		case result.Deduped:
			summary.Deduped++
		case !result.DryRun:
			summary.Created++
		}
		if result.Warning != "" {
			summary.Warnings++
		}
		summary.Results = append(summary.Results, result)
	}

	switch {
	case req.DryRun:
		summary.Status = types.StatusDryRunApplied
	case summary.Failed == 0:
		summary.Status = types.StatusCompleted
	default:
		summary.Status = types.StatusPartialOrFailed
	}

	now := a.now().UTC().Round(0)
	summary.AppliedAt = now
	run.MergeResults(summary.Results)
	run.Status = summary.Status
	run.AppliedAt = &now

	if err := a.runs.SaveRun(ctx, run); err != nil {
		return summary, fmt.Errorf("issues processed but run could not be saved: %w", err)
	}

	a.logger.Info("apply finished", "run_id", run.RunID, "status", summary.Status,
		"created", summary.Created, "deduped", summary.Deduped, "failed", summary.Failed)
	return summary, nil
}

// applyOne never aborts the batch; every problem becomes a failed result
func (a *Applier) applyOne(ctx context.Context, run *types.Run, index int, dryRun bool) types.Result {
	result := types.Result{Index: index, DryRun: dryRun, AttemptedAt: a.now().UTC().Round(0)}

	c, err := run.Candidate(index)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	if err := c.Validate(); err != nil {
		result.Error = fmt.Sprintf("candidate %d: %v", index, err)
		return result
	}

	issueType := types.ParseIssueType(string(c.IssueType))
	priority, _ := types.ParsePriority(string(c.Priority))

	key := strings.TrimSpace(c.IdempotencyKey)
	if !fingerprint.IsKey(key) {
		key = fingerprint.CandidateKey(a.project, string(issueType), c.Summary, run.TranscriptFingerprint, index)
	}
	result.IdempotencyKey = key

	out, err := a.creator.Create(ctx, gateway.Request{
		Fields: tracker.IssueFields{
			Project:     a.project,
			IssueType:   issueType,
			Summary:     c.Summary,
			Description: c.Description,
			Labels:      types.NormalizeLabels(c.Labels),
			Priority:    priority,
			AssigneeRef: c.AssigneeRef,
		},
		IdempotencyKey: key,
		DryRun:         dryRun,
		RunID:          run.RunID,
		Index:          index,
	})
	if err != nil {
		result.Error = err.Error()
		return result
	}

	result.OK = out.OK
	result.Deduped = out.Deduped
	result.DryRun = out.DryRun
	result.IssueKey = out.IssueKey
	result.IssueURL = out.IssueURL
	result.RequestFingerprint = out.RequestFingerprint
	result.Request = out.Request
	result.Status = out.Status
	result.Error = out.Error
	result.Warning = out.Warning
	return result
}
