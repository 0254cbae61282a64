package fileutil

import (
	"os"
	"path/filepath"
)

// SystemConfigDir is the system-wide configuration directory.
const SystemConfigDir = "/etc/rollout"

// SearchPathsOptional returns the first path that exists as a regular file,
// or an empty string if none do.
func SearchPathsOptional(paths []string) string {
	for _, path := range paths {
		if FileExists(path) {
			return path
		}
	}
	return ""
}

// DefaultConfigPaths returns standard config search paths for a given filename.
// Search order:
// 1. Current directory (./<filename>)
// 2. User config directory ($XDG_CONFIG_HOME/rollout/<filename>), when known
// 3. System-wide config (/etc/rollout/<filename>)
func DefaultConfigPaths(filename string) []string {
	paths := []string{filepath.Join(".", filename)}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "rollout", filename))
	}
	return append(paths, filepath.Join(SystemConfigDir, filename))
}

// FindConfigOptional searches for a config file in default locations.
// Returns the path if found, or empty string if not found.
func FindConfigOptional(filename string) string {
	return SearchPathsOptional(DefaultConfigPaths(filename))
}

// FileExists checks if a file exists and is not a directory.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
