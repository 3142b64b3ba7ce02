// Package runs owns the Run lifecycle on disk: it is the only place run ids
// are minted and the only writer of raw transcripts.
package runs

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/voicetrack/voicetrack/internal/fingerprint"
	"github.com/voicetrack/voicetrack/internal/storage"
	"github.com/voicetrack/voicetrack/internal/storage/files"
	"github.com/voicetrack/voicetrack/internal/types"
)

// PreviewLength is the rune cap of a run's masked transcript preview
const PreviewLength = 240

// runIDTimeFormat sorts lexically in creation order
const runIDTimeFormat = "20060102T150405Z"

// Store is the subset of storage.Storage the service needs
type Store interface {
	storage.RunStore
	storage.TranscriptStore
}

// Previewer masks and truncates text for display
type Previewer interface {
	types.Masker
	Preview(text string, max int) string
}

// Service creates, loads and saves runs
type Service struct {
	store  Store
	masker Previewer
	now    func() time.Time
}

// NewService creates a run service over store
func NewService(store Store, masker Previewer) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if masker == nil {
		return nil, fmt.Errorf("masker is required")
	}
	return &Service{store: store, masker: masker, now: time.Now}, nil
}

// CreateRunInput describes a new run
type CreateRunInput struct {
	Source     types.Source
	Transcript string
	Title      string
	Transcribe *types.TranscribeInfo
}

// CreateRun stores the transcript and a new run in pending_candidates
func (s *Service) CreateRun(ctx context.Context, in CreateRunInput) (*types.Run, error) {
	if strings.TrimSpace(in.Transcript) == "" {
		return nil, fmt.Errorf("%w: transcript is empty", types.ErrPrecondition)
	}

	source := in.Source
	if source == "" {
		source = types.SourceTranscript
	}
	if !source.IsValid() {
		return nil, fmt.Errorf("%w: invalid source %q", types.ErrPrecondition, source)
	}

	now := s.now().UTC().Round(0)
	runID := NewRunID(now)

	ref, err := s.store.WriteTranscript(ctx, runID, in.Transcript)
	if err != nil {
		return nil, fmt.Errorf("failed to store transcript: %w", err)
	}

	run := &types.Run{
		RunID:                 runID,
		Source:                source,
		Title:                 strings.TrimSpace(s.masker.Mask(in.Title)),
		TranscriptRef:         ref,
		TranscriptFingerprint: fingerprint.Transcript(in.Transcript),
		TranscriptPreview:     s.masker.Preview(in.Transcript, PreviewLength),
		Transcribe:            in.Transcribe,
		Status:                types.StatusPendingCandidates,
		Candidates:            []types.Candidate{},
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	if err := s.store.SaveRun(ctx, run); err != nil {
		return nil, err
	}

	slog.Debug("run created", "run_id", runID, "source", source, "transcript_ref", ref)
	return run, nil
}

// LoadRun loads a run by id
func (s *Service) LoadRun(ctx context.Context, runID string) (*types.Run, error) {
	run, err := s.store.LoadRun(ctx, strings.TrimSpace(runID))
	if err != nil {
		return nil, err
	}
	if err := run.Validate(); err != nil {
		return nil, fmt.Errorf("%w: stored run %s: %w", types.ErrValidation, runID, err)
	}
	return run, nil
}

// LoadRunFile loads a run document from an explicit location. Later saves go
// to the workspace store under the run's id.
func (s *Service) LoadRunFile(path string) (*types.Run, error) {
	run, err := files.ReadRunFile(path)
	if err != nil {
		return nil, err
	}
	if err := run.Validate(); err != nil {
		return nil, fmt.Errorf("%w: run file %s: %w", types.ErrValidation, path, err)
	}
	return run, nil
}

// SaveRun stamps UpdatedAt and atomically replaces the stored document
func (s *Service) SaveRun(ctx context.Context, run *types.Run) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("%w: %w", types.ErrValidation, err)
	}
	run.UpdatedAt = s.now().UTC().Round(0)
	if err := s.store.SaveRun(ctx, run); err != nil {
		return err
	}
	slog.Debug("run saved", "run_id", run.RunID, "status", run.Status)
	return nil
}

// ReadTranscript returns the raw transcript of a run
func (s *Service) ReadTranscript(ctx context.Context, run *types.Run) (string, error) {
	text, err := s.store.ReadTranscript(ctx, run.TranscriptRef)
	if err != nil {
		return "", err
	}
	if fingerprint.Transcript(text) != run.TranscriptFingerprint {
		return "", fmt.Errorf("%w: transcript for run %s does not match its fingerprint", types.ErrValidation, run.RunID)
	}
	return text, nil
}

// ListRuns returns every run, newest first
func (s *Service) ListRuns(ctx context.Context) ([]*types.Run, error) {
	return s.store.ListRuns(ctx)
}

// NewRunID returns "<UTC timestamp>-<8 hex>"
func NewRunID(now time.Time) string {
	id := uuid.New()
	return now.UTC().Format(runIDTimeFormat) + "-" + hex.EncodeToString(id[:4])
}
