package bootstrap

import "errors"

// Sentinel errors for bootstrap operations.
// Use errors.Is() to check for specific error conditions.
var (
	// ErrInterpreterNotFound indicates no Python interpreter could be located,
	// neither via PYTHON_BIN nor by probing PATH.
	ErrInterpreterNotFound = errors.New("bootstrap: no python interpreter found")

	// ErrVersionUnsupported indicates the selected interpreter's version is
	// outside the supported range.
	ErrVersionUnsupported = errors.New("bootstrap: python version not supported")

	// ErrCommandFailed indicates an external command (venv creation, pip)
	// exited with a non-zero status.
	ErrCommandFailed = errors.New("bootstrap: command failed")

	// ErrArtifactNotFound indicates the artifact does not exist on the hub.
	ErrArtifactNotFound = errors.New("bootstrap: artifact not found on hub")

	// ErrNotFetched indicates the artifact is not present in the local ledger.
	ErrNotFetched = errors.New("bootstrap: artifact not fetched")

	// ErrAlreadyFetched indicates the artifact is already present and verified.
	// Returned by FetchArtifacts for a single artifact when WithForce() is not
	// specified.
	ErrAlreadyFetched = errors.New("bootstrap: artifact already fetched")

	// ErrHashMismatch indicates downloaded data failed digest verification.
	ErrHashMismatch = errors.New("bootstrap: hash verification failed")

	// ErrNetworkError indicates a network or connection failure.
	ErrNetworkError = errors.New("bootstrap: network error")

	// ErrStorageError indicates a filesystem operation failed.
	ErrStorageError = errors.New("bootstrap: storage error")

	// ErrHubError indicates the hub returned an unexpected response.
	ErrHubError = errors.New("bootstrap: invalid hub response")

	// ErrInvalidConfig indicates the configuration file is malformed or
	// contains invalid values.
	ErrInvalidConfig = errors.New("bootstrap: invalid configuration")
)
