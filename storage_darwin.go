//go:build darwin

package bootstrap

import (
	"os"
	"path/filepath"
)

// defaultWorkDir returns the default workspace directory for macOS.
// Returns ~/Library/Application Support/<appName>/
func defaultWorkDir(appName string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "Library", "Application Support", appName), nil
}
