// Package files stores runs, transcripts and the idempotency ledger as plain
// files under a workspace directory:
//
//	<root>/runs/<run_id>.json
//	<root>/transcripts/<run_id>.txt
//	<root>/ledger.jsonl
package files

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/voicetrack/voicetrack/internal/types"
)

const (
	runsDir        = "runs"
	transcriptsDir = "transcripts"
	ledgerFile     = "ledger.jsonl"
)

// Store implements storage.Storage on the local filesystem
type Store struct {
	root string
}

// New creates the directory layout under root if needed
func New(root string) (*Store, error) {
	for _, dir := range []string{root, filepath.Join(root, runsDir), filepath.Join(root, transcriptsDir)} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return &Store{root: root}, nil
}

// Location returns the workspace directory
func (s *Store) Location() string {
	return s.root
}

// Close is a no-op; every operation opens and closes its own files
func (s *Store) Close() error {
	return nil
}

// SaveRun writes the whole document to a temp file and renames it over the
// previous version, so readers see either the old or the new run.
func (s *Store) SaveRun(ctx context.Context, run *types.Run) error {
	if err := checkID(run.RunID); err != nil {
		return err
	}

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run %s: %w", run.RunID, err)
	}
	data = append(data, '\n')

	if err := writeFileAtomic(s.runPath(run.RunID), data, 0600); err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.RunID, err)
	}
	return nil
}

// LoadRun reads runs/<run_id>.json
func (s *Store) LoadRun(ctx context.Context, runID string) (*types.Run, error) {
	if err := checkID(runID); err != nil {
		return nil, err
	}
	return ReadRunFile(s.runPath(runID))
}

// ListRuns returns every stored run, newest first. Run ids sort by creation
// time, so ordering by file name is enough.
func (s *Store) ListRuns(ctx context.Context) ([]*types.Run, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, runsDir))
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Sort(sort.Reverse(sort.StringSlice(ids)))

	runs := make([]*types.Run, 0, len(ids))
	for _, id := range ids {
		run, err := s.LoadRun(ctx, id)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// ReadRunFile loads a run document from an explicit path
func ReadRunFile(path string) (*types.Run, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: run file %s", types.ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to read run file %s: %w", path, err)
	}

	var run types.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to parse run file %s: %w", path, err)
	}
	return &run, nil
}

// WriteTranscript stores the raw transcript for a new run. The file is
// created exclusively; a second write for the same run fails.
func (s *Store) WriteTranscript(ctx context.Context, runID, text string) (string, error) {
	if err := checkID(runID); err != nil {
		return "", err
	}

	ref := filepath.ToSlash(filepath.Join(transcriptsDir, runID+".txt"))
	f, err := os.OpenFile(filepath.Join(s.root, ref), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return "", fmt.Errorf("failed to create transcript for run %s: %w", runID, err)
	}

	if _, err := f.WriteString(text); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("failed to write transcript for run %s: %w", runID, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("failed to sync transcript for run %s: %w", runID, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close transcript for run %s: %w", runID, err)
	}
	return ref, nil
}

// ReadTranscript resolves a reference returned by WriteTranscript
func (s *Store) ReadTranscript(ctx context.Context, ref string) (string, error) {
	path := filepath.Join(s.root, filepath.FromSlash(ref))

	rel, err := filepath.Rel(s.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: transcript reference %q escapes the workspace", types.ErrPrecondition, ref)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: transcript %s", types.ErrNotFound, ref)
		}
		return "", fmt.Errorf("failed to read transcript %s: %w", ref, err)
	}
	return string(data), nil
}

func (s *Store) runPath(runID string) string {
	return filepath.Join(s.root, runsDir, runID+".json")
}

// checkID rejects ids that would resolve outside their directory
func checkID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%w: invalid run id %q", types.ErrPrecondition, id)
	}
	return nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}
