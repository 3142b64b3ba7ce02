// Package candidates fills a Run with validated issue candidates, from
// heuristics over the transcript, a remote model, or a manual file.
package candidates

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/voicetrack/voicetrack/internal/types"
)

// Limits on how many candidates one generation may produce
const (
	MinCandidates     = 1
	MaxCandidates     = 10
	DefaultCandidates = 5
)

// Mode selects the candidate source
type Mode string

const (
	ModeHeuristic Mode = "heuristic"
	ModeRemote    Mode = "remote"
	ModeManual    Mode = "manual"
)

// IsValid checks if the mode value is valid
func (m Mode) IsValid() bool {
	switch m {
	case ModeHeuristic, ModeRemote, ModeManual:
		return true
	}
	return false
}

// Proposer is the remote text-generation collaborator
type Proposer interface {
	Propose(ctx context.Context, transcript string, maxCandidates int) (*types.Proposal, error)
}

// RunService is what the generator needs from the run store
type RunService interface {
	ReadTranscript(ctx context.Context, run *types.Run) (string, error)
	SaveRun(ctx context.Context, run *types.Run) error
}

// Config holds generator dependencies
type Config struct {
	Runs     RunService
	Masker   types.Masker
	Proposer Proposer // Optional; required only for remote mode
	// Project is the configured tracker project key. It may be empty at
	// generation time.
	Project string
}

// Generator produces candidates and writes them into runs
type Generator struct {
	runs     RunService
	masker   types.Masker
	proposer Proposer
	project  string
	now      func() time.Time
}

// NewGenerator creates a generator
func NewGenerator(cfg *Config) (*Generator, error) {
	if cfg == nil || cfg.Runs == nil {
		return nil, fmt.Errorf("run service is required")
	}
	if cfg.Masker == nil {
		return nil, fmt.Errorf("masker is required")
	}
	return &Generator{
		runs:     cfg.Runs,
		masker:   cfg.Masker,
		proposer: cfg.Proposer,
		project:  cfg.Project,
		now:      time.Now,
	}, nil
}

// Options control one generation
type Options struct {
	Mode Mode
	Max  int
	// AllowRemote is the explicit per-call consent to send the transcript to
	// a remote model. Having an API key configured is not consent.
	AllowRemote bool
}

// Output is what a generation wrote into the run
type Output struct {
	Mode           Mode
	SummaryBullets []string
	Candidates     []types.Candidate
}

// Generate derives candidates for run and saves it in pending_approval
func (g *Generator) Generate(ctx context.Context, run *types.Run, opts Options) (*Output, error) {
	if err := checkMax(opts.Max); err != nil {
		return nil, err
	}
	if err := checkStatus(run); err != nil {
		return nil, err
	}

	var proposal *types.Proposal
	switch opts.Mode {
	case ModeHeuristic, "":
		opts.Mode = ModeHeuristic
		transcript, err := g.runs.ReadTranscript(ctx, run)
		if err != nil {
			return nil, fmt.Errorf("failed to read transcript: %w", err)
		}
		proposal, err = Heuristic(transcript, opts.Max)
		if err != nil {
			return nil, err
		}

	case ModeRemote:
		if !opts.AllowRemote {
			return nil, fmt.Errorf("%w: pass --allow-remote to send this transcript to a remote model", types.ErrConsentRequired)
		}
		if g.proposer == nil {
			return nil, fmt.Errorf("%w: remote generation is not configured", types.ErrPrecondition)
		}
		transcript, err := g.runs.ReadTranscript(ctx, run)
		if err != nil {
			return nil, fmt.Errorf("failed to read transcript: %w", err)
		}
		proposal, err = g.proposer.Propose(ctx, transcript, opts.Max)
		if err != nil {
			return nil, fmt.Errorf("remote generation failed: %w", err)
		}
		if len(proposal.Candidates) > opts.Max {
			return nil, fmt.Errorf("%w: remote generation returned %d candidates, limit is %d",
				types.ErrValidation, len(proposal.Candidates), opts.Max)
		}

	default:
		return nil, fmt.Errorf("%w: unknown generation mode %q", types.ErrPrecondition, opts.Mode)
	}

	return g.apply(ctx, run, proposal, opts.Mode)
}

// GenerateFrom injects an externally supplied proposal, e.g. a reviewed
// candidates file. It goes through the same validation as every other mode.
func (g *Generator) GenerateFrom(ctx context.Context, run *types.Run, proposal *types.Proposal) (*Output, error) {
	if err := checkStatus(run); err != nil {
		return nil, err
	}
	if proposal == nil {
		return nil, fmt.Errorf("%w: proposal is required", types.ErrValidation)
	}
	if len(proposal.Candidates) > MaxCandidates {
		return nil, fmt.Errorf("%w: %d candidates supplied, limit is %d",
			types.ErrValidation, len(proposal.Candidates), MaxCandidates)
	}
	return g.apply(ctx, run, proposal, ModeManual)
}

// apply normalizes every raw candidate, then replaces the run's candidates
// and saves it. Any invalid candidate aborts before the run is touched.
func (g *Generator) apply(ctx context.Context, run *types.Run, proposal *types.Proposal, mode Mode) (*Output, error) {
	if len(proposal.Candidates) == 0 {
		return nil, fmt.Errorf("%w: no candidates were produced", types.ErrValidation)
	}

	candidates := make([]types.Candidate, 0, len(proposal.Candidates))
	for i, raw := range proposal.Candidates {
		c, err := types.NewCandidate(raw, types.CandidateContext{
			Position:              i + 1,
			Project:               g.project,
			TranscriptFingerprint: run.TranscriptFingerprint,
			Masker:                g.masker,
		})
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, *c)
	}

	bullets := make([]string, 0, len(proposal.SummaryBullets))
	for _, b := range proposal.SummaryBullets {
		if b = strings.TrimSpace(g.masker.Mask(b)); b != "" {
			bullets = append(bullets, b)
		}
	}

	now := g.now().UTC().Round(0)
	run.Candidates = candidates
	run.SummaryBullets = bullets
	run.Generator = string(mode)
	run.CandidatesAt = &now
	run.Status = types.StatusPendingApproval

	if err := g.runs.SaveRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to save run: %w", err)
	}

	slog.Debug("candidates generated", "run_id", run.RunID, "mode", mode, "count", len(candidates))
	return &Output{Mode: mode, SummaryBullets: bullets, Candidates: candidates}, nil
}

func checkMax(max int) error {
	if max < MinCandidates || max > MaxCandidates {
		return fmt.Errorf("%w: max candidates must be between %d and %d (got %d)",
			types.ErrPrecondition, MinCandidates, MaxCandidates, max)
	}
	return nil
}

func checkStatus(run *types.Run) error {
	if run == nil {
		return fmt.Errorf("%w: run is required", types.ErrPrecondition)
	}
	if !run.Status.AcceptsCandidates() {
		return fmt.Errorf("%w: run %s is %s; candidates can only be generated before apply",
			types.ErrPrecondition, run.RunID, run.Status)
	}
	return nil
}
