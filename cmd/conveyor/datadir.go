// ABOUTME: XDG-based data directory resolution for the conveyor CLI.
// ABOUTME: Checks XDG_DATA_HOME, falls back to ~/.local/share/conveyor.
package main

import (
	"fmt"
	"os"
	"path/filepath"
)

// resolveDataDir returns the data directory to use, preferring an explicit
// override and falling back to the XDG-based default. The directory is
// created if it does not exist.
func resolveDataDir(override string) (string, error) {
	dir := override
	if dir == "" {
		var err error
		dir, err = defaultDataDir()
		if err != nil {
			return "", err
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}
	return dir, nil
}

// defaultDataDir returns the default data directory for conveyor run history.
// It checks XDG_DATA_HOME first, then falls back to ~/.local/share/conveyor.
func defaultDataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "conveyor"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}

	return filepath.Join(home, ".local", "share", "conveyor"), nil
}

// historyPath returns the SQLite database path inside a data directory.
func historyPath(dataDir string) string {
	return filepath.Join(dataDir, "history.db")
}
