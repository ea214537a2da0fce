// Package config resolves file paths for the application: user-supplied
// paths with ~ and $VAR expansion, and the default database location.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

// defaultDatabaseFile is where the import database lives when no path is
// configured, relative to the user's home directory.
const defaultDatabaseFile = ".local/share/smartimport/smartimport.db"

// ExpandPath resolves a user-supplied path: a leading ~ becomes the home
// directory and $VAR references are expanded from the environment.
func ExpandPath(path string) string {
	switch {
	case path == "":
		return path
	case path == "~":
		if home, err := os.UserHomeDir(); err == nil {
			path = home
		}
	case strings.HasPrefix(path, "~/"):
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	return os.ExpandEnv(path)
}

// DatabasePath resolves the SQLite database location: the configured path
// when one is set, otherwise the per-user default under the home directory.
// Without a resolvable home the database lands in the working directory.
func DatabasePath(configured string) string {
	if configured != "" {
		return ExpandPath(configured)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Base(defaultDatabaseFile)
	}
	return filepath.Join(home, defaultDatabaseFile)
}
