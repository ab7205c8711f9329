// Package config loads the relay configuration from defaults, a YAML file
// and the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultConfigDir returns the default configuration directory (~/.tgrelay).
func DefaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".tgrelay"), nil
}

// DefaultConfigPath returns the default configuration file path (~/.tgrelay/config.yaml).
func DefaultConfigPath() (string, error) {
	dir, err := DefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// DefaultBanFilePath returns the default ban list path (~/.tgrelay/banned.txt).
func DefaultBanFilePath() (string, error) {
	dir, err := DefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "banned.txt"), nil
}

// ExpandPath expands ~ prefix in path to user home directory.
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("get home dir: %w", err)
		}
		return filepath.Join(home, path[2:]), nil
	}

	if path == "~" {
		return os.UserHomeDir()
	}

	return path, nil
}
