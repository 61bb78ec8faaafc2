package config

import (
	"os"
	"path/filepath"
)

// DefaultConfigPath returns the first config file found in the standard
// locations, or empty when none exists. Search order: working directory,
// XDG config home, ~/.config, /etc.
func DefaultConfigPath() string {
	candidates := []string{
		"pgjobq.yaml",
		"pgjobq.json",
	}

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		candidates = append(candidates,
			filepath.Join(xdg, "pgjobq", "config.yaml"),
			filepath.Join(xdg, "pgjobq", "config.json"),
		)
	} else if home, err := os.UserHomeDir(); err == nil && home != "" {
		candidates = append(candidates,
			filepath.Join(home, ".config", "pgjobq", "config.yaml"),
			filepath.Join(home, ".config", "pgjobq", "config.json"),
		)
	}

	candidates = append(candidates,
		"/etc/pgjobq/config.yaml",
		"/etc/pgjobq/config.json",
	)

	for _, p := range candidates {
		if isFile(p) {
			return p
		}
	}
	return ""
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
