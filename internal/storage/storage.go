package storage

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/voicetrack/voicetrack/internal/storage/files"
	"github.com/voicetrack/voicetrack/internal/storage/sqlite"
	"github.com/voicetrack/voicetrack/internal/types"
)

// RunStore persists whole run documents keyed by run id
type RunStore interface {
	// SaveRun atomically replaces the stored document
	SaveRun(ctx context.Context, run *types.Run) error
	// LoadRun returns types.ErrNotFound (wrapped) when the run is absent
	LoadRun(ctx context.Context, runID string) (*types.Run, error)
	// ListRuns returns every run, newest first
	ListRuns(ctx context.Context) ([]*types.Run, error)
}

// TranscriptStore holds raw, unmasked transcripts. A transcript is written
// once, when its run is created, and never shared between runs.
type TranscriptStore interface {
	WriteTranscript(ctx context.Context, runID, text string) (ref string, err error)
	ReadTranscript(ctx context.Context, ref string) (string, error)
}

// Ledger is the append-only idempotency record of created issues
type Ledger interface {
	// Lookup returns the earliest record for key, or nil when there is none
	Lookup(ctx context.Context, key string) (*types.IdempotencyRecord, error)
	// Record appends one record. Prior records are never rewritten.
	Record(ctx context.Context, rec *types.IdempotencyRecord) error
	// List returns every record in append order
	List(ctx context.Context) ([]*types.IdempotencyRecord, error)
}

// Storage combines the persisted state of a workspace
type Storage interface {
	RunStore
	TranscriptStore
	Ledger

	// Location describes where the backend keeps its data
	Location() string

	// Lifecycle
	Close() error
}

// Backend names
const (
	BackendFiles  = "files"
	BackendSQLite = "sqlite"
)

// DatabaseFile is the SQLite file name inside the workspace directory
const DatabaseFile = "voicetrack.db"

// Config selects and locates a storage backend
type Config struct {
	// Backend is "files" (default) or "sqlite"
	Backend string
	// Root is the workspace directory, e.g. ".voicetrack"
	Root string
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendFiles,
		Root:    DefaultDirName,
	}
}

// NewStorage opens the configured backend, creating its layout if needed
func NewStorage(ctx context.Context, cfg *Config) (Storage, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	root := cfg.Root
	if root == "" {
		root = DefaultDirName
	}

	switch cfg.Backend {
	case "", BackendFiles:
		return files.New(root)
	case BackendSQLite:
		return sqlite.New(ctx, filepath.Join(root, DatabaseFile))
	default:
		return nil, fmt.Errorf("%w: unknown storage backend %q (want %q or %q)",
			types.ErrPrecondition, cfg.Backend, BackendFiles, BackendSQLite)
	}
}
