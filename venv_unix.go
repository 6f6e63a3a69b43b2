//go:build !windows

package bootstrap

import "path/filepath"

// venvPython returns the path of the environment's interpreter.
func venvPython(venvDir string) string {
	return filepath.Join(venvDir, "bin", "python")
}

// venvPip returns the path of the environment's pip binary.
func venvPip(venvDir string) string {
	return filepath.Join(venvDir, "bin", "pip")
}
