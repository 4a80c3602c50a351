package config

import (
	"os"
	"path/filepath"
	goruntime "runtime"
)

// DefaultDataDir returns the per-user data directory for the host OS, or
// ./data when no home directory is known.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = ""
	}
	return dataDirFor(goruntime.GOOS, home, os.Getenv("XDG_DATA_HOME"), os.Getenv("LOCALAPPDATA"))
}

func dataDirFor(goos, home, xdg, localAppData string) string {
	if xdg != "" {
		return filepath.Join(xdg, "listdb")
	}
	switch goos {
	case "windows":
		if localAppData != "" {
			return filepath.Join(localAppData, "ListDB")
		}
		if home != "" {
			return filepath.Join(home, "AppData", "Local", "ListDB")
		}
	case "darwin":
		if home != "" {
			return filepath.Join(home, "Library", "Application Support", "ListDB")
		}
	default:
		if home != "" {
			return filepath.Join(home, ".local", "share", "listdb")
		}
	}
	return "./data"
}
