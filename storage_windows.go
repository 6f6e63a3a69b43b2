//go:build windows

package bootstrap

import (
	"os"
	"path/filepath"
)

// defaultWorkDir returns the default workspace directory for Windows.
// Returns %APPDATA%\<appName>\
func defaultWorkDir(appName string) (string, error) {
	appData := os.Getenv("APPDATA")
	if appData == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		appData = filepath.Join(home, "AppData", "Roaming")
	}
	return filepath.Join(appData, appName), nil
}
