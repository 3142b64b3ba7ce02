package files

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/voicetrack/voicetrack/internal/types"
)

// maxLedgerLine bounds a single ledger record
const maxLedgerLine = 1024 * 1024

// Lookup scans the ledger and returns the earliest record for key
func (s *Store) Lookup(ctx context.Context, key string) (*types.IdempotencyRecord, error) {
	var found *types.IdempotencyRecord
	err := s.scan(func(rec *types.IdempotencyRecord) bool {
		if rec.IdempotencyKey == key {
			found = rec
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// List returns every record in append order
func (s *Store) List(ctx context.Context) ([]*types.IdempotencyRecord, error) {
	var records []*types.IdempotencyRecord
	err := s.scan(func(rec *types.IdempotencyRecord) bool {
		records = append(records, rec)
		return true
	})
	return records, err
}

// Record appends one JSON line under an exclusive advisory lock. The line is
// written with a single call on an O_APPEND descriptor.
func (s *Store) Record(ctx context.Context, rec *types.IdempotencyRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("%w: %w", types.ErrValidation, err)
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger record: %w", err)
	}
	line = append(line, '\n')

	f, err := os.OpenFile(s.ledgerPath(), os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0600)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer f.Close()

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("failed to lock ledger: %w", err)
	}
	defer func() { _ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN) }()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("failed to append ledger record: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync ledger: %w", err)
	}
	return nil
}

// scan calls fn for each record until fn returns false. A malformed line is
// an error; the ledger is never silently skipped over.
func (s *Store) scan(fn func(rec *types.IdempotencyRecord) bool) error {
	f, err := os.Open(s.ledgerPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer f.Close()

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_SH); err != nil {
		return fmt.Errorf("failed to lock ledger: %w", err)
	}
	defer func() { _ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN) }()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLedgerLine)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec types.IdempotencyRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return fmt.Errorf("malformed ledger record at line %d: %w", lineNo, err)
		}
		if !fn(&rec) {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read ledger: %w", err)
	}
	return nil
}

func (s *Store) ledgerPath() string {
	return filepath.Join(s.root, ledgerFile)
}
