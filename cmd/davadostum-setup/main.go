// Command davadostum-setup provisions the runtime environment for the
// davadostum legal-precedent search tool.
//
// Running it with no arguments performs the full setup: interpreter
// discovery, virtual environment creation, dependency installation,
// workspace layout, and model artifact downloads.
//
// Configuration is read from config.toml (override with --config).
// Environment variables:
//   - PYTHON_BIN: explicit Python interpreter (optional)
//   - DAVADOSTUM_HOME: workspace directory override (optional)
package main

import (
	"errors"
	"fmt"
	"os"

	bootstrap "github.com/mert-ogul/davadostum"
)

// CLI exit codes for standardized error reporting.
const (
	// ExitSuccess indicates the operation completed successfully.
	ExitSuccess = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError = 1

	// ExitInvalidArgs indicates invalid command line arguments or
	// configuration.
	ExitInvalidArgs = 2

	// ExitInterpreterNotFound indicates no Python interpreter was found.
	ExitInterpreterNotFound = 3

	// ExitVersionUnsupported indicates the interpreter version is outside
	// the supported range.
	ExitVersionUnsupported = 4

	// ExitNetworkError indicates a network or connection failure.
	ExitNetworkError = 5

	// ExitHashMismatch indicates artifact digest verification failed.
	ExitHashMismatch = 6

	// ExitStorageError indicates a filesystem operation failed.
	ExitStorageError = 7

	// ExitCommandFailed indicates an external command (venv, pip) failed.
	ExitCommandFailed = 8

	// ExitArtifactNotFound indicates an artifact was not found on the hub.
	ExitArtifactNotFound = 9
)

func main() {
	cmd := bootstrap.NewCommand("davadostum")
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCodeFromError(err))
	}
}

// exitCodeFromError maps error types to exit codes.
func exitCodeFromError(err error) int {
	if err == nil {
		return ExitSuccess
	}

	switch {
	case errors.Is(err, bootstrap.ErrInterpreterNotFound):
		return ExitInterpreterNotFound
	case errors.Is(err, bootstrap.ErrVersionUnsupported):
		return ExitVersionUnsupported
	case errors.Is(err, bootstrap.ErrNetworkError):
		return ExitNetworkError
	case errors.Is(err, bootstrap.ErrHashMismatch):
		return ExitHashMismatch
	case errors.Is(err, bootstrap.ErrStorageError):
		return ExitStorageError
	case errors.Is(err, bootstrap.ErrCommandFailed):
		return ExitCommandFailed
	case errors.Is(err, bootstrap.ErrArtifactNotFound):
		return ExitArtifactNotFound
	case errors.Is(err, bootstrap.ErrInvalidConfig):
		return ExitInvalidArgs
	default:
		return ExitGeneralError
	}
}
