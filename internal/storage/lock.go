package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/voicetrack/voicetrack/internal/types"
)

// ApplyLock is the lock file written while a run is being applied. It keeps
// two operators on one host from applying the same run at the same time.
type ApplyLock struct {
	RunID     string    `json:"run_id"`
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartedAt time.Time `json:"started_at"`
}

// ErrApplyInProgress is returned when another live process holds the lock
var ErrApplyInProgress = errors.New("apply already in progress")

// AcquireApplyLock creates locks/<run_id>.lock under root. A lock left behind
// by a dead process on this host is replaced. Returns the lock path for
// ReleaseApplyLock.
func AcquireApplyLock(root, runID string) (lockPath string, err error) {
	lockDir := filepath.Join(root, "locks")
	if err := os.MkdirAll(lockDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create lock directory: %w", err)
	}
	lockPath = filepath.Join(lockDir, runID+".lock")

	hostname, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("failed to get hostname: %w", err)
	}

	data, err := json.MarshalIndent(ApplyLock{
		RunID:     runID,
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartedAt: time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal lock: %w", err)
	}

	// Two attempts: the second one runs after a stale lock was removed
	for attempt := 0; attempt < 2; attempt++ {
		err := linkLockFile(lockDir, lockPath, data)
		if err == nil {
			return lockPath, nil
		}
		if !os.IsExist(err) {
			return "", fmt.Errorf("failed to create apply lock: %w", err)
		}

		existing, rerr := readApplyLock(lockPath)
		if rerr == nil && isProcessAlive(existing.PID, existing.Hostname) {
			return "", fmt.Errorf("%w: %w for run %s (PID %d on %s, started %s)",
				types.ErrPrecondition, ErrApplyInProgress, runID,
				existing.PID, existing.Hostname, existing.StartedAt.Format(time.RFC3339))
		}
		if rerr != nil && isFreshFile(lockPath, lockGracePeriod) {
			return "", fmt.Errorf("%w: %w for run %s (lock file is unreadable and was modified within %s)",
				types.ErrPrecondition, ErrApplyInProgress, runID, lockGracePeriod)
		}

		// Stale, or unreadable and old
		if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
			return "", fmt.Errorf("failed to remove stale apply lock: %w", err)
		}
	}

	return "", fmt.Errorf("%w: %w for run %s", types.ErrPrecondition, ErrApplyInProgress, runID)
}

// lockGracePeriod is how long an unreadable lock file is still treated as held
const lockGracePeriod = 10 * time.Second

// linkLockFile writes data to a temp file and hard-links it to lockPath, so
// the lock never exists without its content. It fails with an IsExist error
// when lockPath is already taken.
func linkLockFile(dir, lockPath string, data []byte) error {
	tmp, err := os.CreateTemp(dir, filepath.Base(lockPath)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if werr != nil || cerr != nil {
		return fmt.Errorf("failed to write apply lock: %w", errors.Join(werr, cerr))
	}
	return os.Link(tmpPath, lockPath)
}

func isFreshFile(path string, within time.Duration) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return time.Since(info.ModTime()) < within
}

// ReleaseApplyLock removes the lock file. Safe to call with an empty path.
func ReleaseApplyLock(lockPath string) error {
	if lockPath == "" {
		return nil
	}

	if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove apply lock: %w", err)
	}

	return nil
}

func readApplyLock(path string) (*ApplyLock, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var lock ApplyLock
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, err
	}
	return &lock, nil
}

// isProcessAlive checks if a process with the given PID exists on the given hostname.
// Remote hosts cannot be checked and are assumed alive.
func isProcessAlive(pid int, hostname string) bool {
	currentHost, err := os.Hostname()
	if err != nil {
		return true
	}

	if !strings.EqualFold(hostname, currentHost) {
		return true
	}

	if pid <= 0 {
		return false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// Signal 0 only checks for existence
	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}

	// EPERM means the process exists but belongs to someone else
	return errors.Is(err, syscall.EPERM)
}
