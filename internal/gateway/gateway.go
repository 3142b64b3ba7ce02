// Package gateway creates tracker issues at most once per idempotency key.
//
// Every call either answers from the ledger, describes the request without
// sending it (dry run), or sends exactly one create call and records its
// success. Failed calls are never recorded, so they stay retryable.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/voicetrack/voicetrack/internal/fingerprint"
	"github.com/voicetrack/voicetrack/internal/tracker"
	"github.com/voicetrack/voicetrack/internal/types"
)

// Tracker is the remote issue tracker
type Tracker interface {
	CreateIssue(ctx context.Context, req tracker.CreateRequest) (*tracker.CreatedIssue, error)
}

// Ledger is the subset of the idempotency ledger the gateway needs
type Ledger interface {
	Lookup(ctx context.Context, key string) (*types.IdempotencyRecord, error)
	Record(ctx context.Context, rec *types.IdempotencyRecord) error
}

// Config holds gateway dependencies
type Config struct {
	Ledger  Ledger
	Tracker Tracker
	// Site is the normalized tracker address, recorded with each entry
	Site   string
	Logger *slog.Logger // Optional
}

// Gateway is the single path by which issues get created
type Gateway struct {
	ledger  Ledger
	tracker Tracker
	site    string
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a gateway. Missing identity is reported here, before any
// candidate is processed.
func New(cfg *Config) (*Gateway, error) {
	if cfg == nil || cfg.Ledger == nil {
		return nil, fmt.Errorf("%w: idempotency ledger is required", types.ErrPrecondition)
	}
	if cfg.Tracker == nil {
		return nil, fmt.Errorf("%w: tracker client is required", types.ErrPrecondition)
	}
	if strings.TrimSpace(cfg.Site) == "" {
		return nil, fmt.Errorf("%w: tracker site is required", types.ErrPrecondition)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		ledger:  cfg.Ledger,
		tracker: cfg.Tracker,
		site:    strings.TrimRight(cfg.Site, "/"),
		logger:  logger,
		now:     time.Now,
	}, nil
}

// Request is one prospective issue
type Request struct {
	Fields         tracker.IssueFields
	IdempotencyKey string
	DryRun         bool

	// Provenance, recorded in the ledger
	RunID string
	Index int
}

// Outcome is the result of one Create call
type Outcome struct {
	OK                 bool
	Deduped            bool
	DryRun             bool
	IssueKey           string
	IssueURL           string
	RequestFingerprint string
	Request            json.RawMessage // Dry runs only
	Status             int             // Remote status on failure
	Error              string
	// Warning is set when the issue was created but could not be recorded
	Warning string
}

// Create runs the idempotent create flow for one request.
//
// A non-nil error means nothing was attempted (bad input or an unreadable
// ledger). Remote rejections come back as an Outcome with OK=false.
func (g *Gateway) Create(ctx context.Context, req Request) (*Outcome, error) {
	if err := req.Fields.Validate(); err != nil {
		return nil, err
	}
	if !fingerprint.IsKey(req.IdempotencyKey) {
		return nil, fmt.Errorf("%w: invalid idempotency key %q", types.ErrPrecondition, req.IdempotencyKey)
	}

	prior, err := g.ledger.Lookup(ctx, req.IdempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("ledger lookup failed: %w", err)
	}
	if prior != nil {
		g.logger.Info("issue already created", "key", prior.IssueKey, "idempotency_key", req.IdempotencyKey)
		return &Outcome{
			OK:                 true,
			Deduped:            true,
			IssueKey:           prior.IssueKey,
			IssueURL:           prior.IssueURL,
			RequestFingerprint: prior.RequestFingerprint,
		}, nil
	}

	createReq := tracker.BuildCreateRequest(req.Fields)
	requestFP, err := fingerprint.Request(createReq)
	if err != nil {
		return nil, fmt.Errorf("failed to fingerprint request: %w", err)
	}

	if req.DryRun {
		shape, err := json.Marshal(createReq)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		return &Outcome{
			OK:                 true,
			DryRun:             true,
			RequestFingerprint: requestFP,
			Request:            shape,
		}, nil
	}

	created, err := g.tracker.CreateIssue(ctx, createReq)
	if err != nil {
		out := &Outcome{RequestFingerprint: requestFP, Error: err.Error()}
		var apiErr *tracker.APIError
		if errors.As(err, &apiErr) {
			out.Status = apiErr.Status
		}
		g.logger.Warn("issue creation failed", "run_id", req.RunID, "index", req.Index, "status", out.Status, "error", err)
		return out, nil
	}

	issueURL := created.URL
	if issueURL == "" {
		issueURL = tracker.IssueURL(g.site, created.Key)
	}
	out := &Outcome{
		OK:                 true,
		IssueKey:           created.Key,
		IssueURL:           issueURL,
		RequestFingerprint: requestFP,
	}

	rec := &types.IdempotencyRecord{
		IdempotencyKey:     req.IdempotencyKey,
		CreatedAt:          g.now().UTC(),
		IssueKey:           created.Key,
		IssueURL:           issueURL,
		RequestFingerprint: requestFP,
		Site:               g.site,
		Project:            createReq.Fields.Project.Key,
		IssueType:          string(req.Fields.IssueType),
		RunID:              req.RunID,
		CandidateIndex:     req.Index,
	}
	if err := g.ledger.Record(ctx, rec); err != nil {
		// The issue exists remotely, so the outcome stays OK
		out.Warning = fmt.Sprintf("issue %s created but not recorded in ledger: %v", created.Key, err)
		g.logger.Error("ledger append failed", "key", created.Key, "idempotency_key", req.IdempotencyKey, "error", err)
		return out, nil
	}

	g.logger.Info("issue created", "key", created.Key, "run_id", req.RunID, "index", req.Index)
	return out, nil
}
