package bootstrap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// venvValid reports whether dir already contains a usable virtual
// environment: a pyvenv.cfg marker plus the environment's own interpreter.
func venvValid(dir string) bool {
	if _, err := os.Stat(filepath.Join(dir, "pyvenv.cfg")); err != nil {
		return false
	}
	if _, err := os.Stat(venvPython(dir)); err != nil {
		return false
	}
	return true
}

// ensureVenv creates the virtual environment at dir with the given
// interpreter unless a valid one is already present. When recreate is set, an
// existing environment is removed first.
// Returns whether the environment was (re)created.
func ensureVenv(ctx context.Context, runner CommandRunner, py Interpreter, dir string, recreate bool, logger Logger) (bool, error) {
	if venvValid(dir) {
		if !recreate {
			if logger != nil {
				logger.Debug("reusing virtual environment", "dir", dir)
			}
			return false, nil
		}
		if err := os.RemoveAll(dir); err != nil {
			return false, fmt.Errorf("%w: removing stale venv: %v", ErrStorageError, err)
		}
	}

	if logger != nil {
		logger.Info("creating virtual environment", "dir", dir, "python", py.Path)
	}
	if err := runChecked(ctx, runner, py.Path, "-m", "venv", dir); err != nil {
		return false, fmt.Errorf("creating venv at %s: %w", dir, err)
	}

	if !venvValid(dir) {
		return false, fmt.Errorf("%w: venv created at %s but interpreter missing", ErrStorageError, dir)
	}

	return true, nil
}

// installDeps upgrades pip and installs the requirements file into the venv.
// The environment is never "activated"; the venv's own pip binary is invoked
// directly, which is equivalent.
func installDeps(ctx context.Context, runner CommandRunner, venvDir, requirements string, logger Logger) error {
	if _, err := os.Stat(requirements); err != nil {
		return fmt.Errorf("%w: requirements file %s: %v", ErrStorageError, requirements, err)
	}

	pip := venvPip(venvDir)

	if logger != nil {
		logger.Info("upgrading pip", "venv", venvDir)
	}
	if err := runChecked(ctx, runner, pip, "install", "--upgrade", "pip"); err != nil {
		return fmt.Errorf("upgrading pip: %w", err)
	}

	if logger != nil {
		logger.Info("installing dependencies", "requirements", requirements)
	}
	if err := runChecked(ctx, runner, pip, "install", "-r", requirements); err != nil {
		return fmt.Errorf("installing requirements: %w", err)
	}

	return nil
}
