package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultDirName is the workspace directory created in the project root
const DefaultDirName = ".voicetrack"

// HomeEnv overrides workspace discovery, mainly for test isolation
const HomeEnv = "VOICETRACK_HOME"

// DiscoverRoot returns the absolute workspace directory.
//
// Precedence: explicit argument, then VOICETRACK_HOME, then .voicetrack in
// the current directory. Parent directories are not searched so a nested
// checkout never picks up its parent's runs.
func DiscoverRoot(explicit string) (string, error) {
	if explicit != "" {
		return absPath(explicit)
	}

	if home := os.Getenv(HomeEnv); home != "" {
		return absPath(home)
	}

	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}

	return filepath.Join(dir, DefaultDirName), nil
}

// IsInitialized reports whether root already holds a workspace
func IsInitialized(root string) bool {
	info, err := os.Stat(root)
	return err == nil && info.IsDir()
}

func absPath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path for %s: %w", p, err)
	}
	return abs, nil
}
