// Package sqlite stores runs, transcripts and the idempotency ledger in a
// single SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/voicetrack/voicetrack/internal/types"
)

// refPrefix marks transcript references owned by this backend
const refPrefix = "sqlite:transcripts/"

// SQLiteStorage implements storage.Storage using SQLite
type SQLiteStorage struct {
	db   *sql.DB
	path string
}

// New opens (and if needed creates) the database at path
func New(ctx context.Context, path string) (*SQLiteStorage, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	// WAL for concurrent readers, busy_timeout so a second CLI process waits
	// instead of failing on a locked database
	dsn := "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db, path: path}, nil
}

// Location returns the database path
func (s *SQLiteStorage) Location() string {
	return s.path
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// SaveRun replaces the run document in one statement
func (s *SQLiteStorage) SaveRun(ctx context.Context, run *types.Run) error {
	if strings.TrimSpace(run.RunID) == "" {
		return fmt.Errorf("%w: run id is required", types.ErrPrecondition)
	}

	doc, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run %s: %w", run.RunID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, status, created_at, updated_at, document)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			status = excluded.status,
			updated_at = excluded.updated_at,
			document = excluded.document
	`,
		run.RunID,
		string(run.Status),
		formatTime(run.CreatedAt),
		formatTime(run.UpdatedAt),
		string(doc),
	)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.RunID, err)
	}
	return nil
}

// LoadRun returns the stored document for runID
func (s *SQLiteStorage) LoadRun(ctx context.Context, runID string) (*types.Run, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT document FROM runs WHERE run_id = ?`, runID).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: run %s", types.ErrNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	return decodeRun(runID, doc)
}

// ListRuns returns every run, newest first
func (s *SQLiteStorage) ListRuns(ctx context.Context) ([]*types.Run, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT run_id, document FROM runs ORDER BY run_id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*types.Run
	for rows.Next() {
		var id, doc string
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run, err := decodeRun(id, doc)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// WriteTranscript inserts the raw transcript. A run id can be written once.
func (s *SQLiteStorage) WriteTranscript(ctx context.Context, runID, text string) (string, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transcripts (run_id, content, created_at) VALUES (?, ?, ?)`,
		runID, text, formatTime(time.Now()))
	if err != nil {
		return "", fmt.Errorf("failed to write transcript for run %s: %w", runID, err)
	}
	return refPrefix + runID, nil
}

// ReadTranscript resolves a reference returned by WriteTranscript
func (s *SQLiteStorage) ReadTranscript(ctx context.Context, ref string) (string, error) {
	runID, ok := strings.CutPrefix(ref, refPrefix)
	if !ok || runID == "" {
		return "", fmt.Errorf("%w: transcript reference %q does not belong to the sqlite backend", types.ErrPrecondition, ref)
	}

	var content string
	err := s.db.QueryRowContext(ctx, `SELECT content FROM transcripts WHERE run_id = ?`, runID).Scan(&content)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: transcript %s", types.ErrNotFound, ref)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read transcript %s: %w", ref, err)
	}
	return content, nil
}

func decodeRun(runID, doc string) (*types.Run, error) {
	var run types.Run
	if err := json.Unmarshal([]byte(doc), &run); err != nil {
		return nil, fmt.Errorf("failed to decode run %s: %w", runID, err)
	}
	return &run, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
