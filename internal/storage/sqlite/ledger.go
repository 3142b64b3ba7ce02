package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/voicetrack/voicetrack/internal/types"
)

const ledgerColumns = `idempotency_key, created_at, issue_key, issue_url, request_fingerprint,
		site, project, issue_type, run_id, candidate_index`

// Lookup returns the earliest record for key, or nil
func (s *SQLiteStorage) Lookup(ctx context.Context, key string) (*types.IdempotencyRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+ledgerColumns+` FROM ledger WHERE idempotency_key = ? ORDER BY seq ASC LIMIT 1`, key)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up idempotency key: %w", err)
	}
	return rec, nil
}

// Record appends one record
func (s *SQLiteStorage) Record(ctx context.Context, rec *types.IdempotencyRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("%w: %w", types.ErrValidation, err)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger (`+ledgerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.IdempotencyKey,
		formatTime(rec.CreatedAt),
		rec.IssueKey,
		rec.IssueURL,
		rec.RequestFingerprint,
		rec.Site,
		rec.Project,
		rec.IssueType,
		rec.RunID,
		rec.CandidateIndex,
	)
	if err != nil {
		return fmt.Errorf("failed to append ledger record (key=%s, issue=%s): %w", rec.IdempotencyKey, rec.IssueKey, err)
	}
	return nil
}

// List returns every record in append order
func (s *SQLiteStorage) List(ctx context.Context) ([]*types.IdempotencyRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+ledgerColumns+` FROM ledger ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger: %w", err)
	}
	defer rows.Close()

	var records []*types.IdempotencyRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*types.IdempotencyRecord, error) {
	var rec types.IdempotencyRecord
	var createdAt string
	err := row.Scan(
		&rec.IdempotencyKey,
		&createdAt,
		&rec.IssueKey,
		&rec.IssueURL,
		&rec.RequestFingerprint,
		&rec.Site,
		&rec.Project,
		&rec.IssueType,
		&rec.RunID,
		&rec.CandidateIndex,
	)
	if err != nil {
		return nil, err
	}

	rec.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("invalid created_at %q: %w", createdAt, err)
	}
	return &rec, nil
}
