package bootstrap

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"golang.org/x/mod/semver"
)

// Supported interpreter version range, half-open: [min, max).
// The search engine's Python dependencies only ship wheels for 3.10 and 3.11.
const (
	MinPythonVersion = "3.10.0"
	MaxPythonVersion = "3.12.0"
)

// PythonBinEnv overrides interpreter discovery when set.
const PythonBinEnv = "PYTHON_BIN"

// DefaultPythonCandidates are the binary names probed on PATH, in order.
// Version-pinned names come first so a supported interpreter wins even when
// plain python3 points at a newer release.
var DefaultPythonCandidates = []string{"python3.11", "python3.10", "python3", "python"}

// versionProbe asks the interpreter for its version as "X.Y.Z".
// sys.version_info is used instead of --version because the latter writes to
// stderr on some 3.x builds.
const versionProbe = `import sys; print("%d.%d.%d" % sys.version_info[:3])`

var versionRe = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

// detectInterpreter locates a Python interpreter and gates its version.
//
// Resolution order: the PYTHON_BIN environment variable, then Config.PythonBin,
// then the candidate names on PATH. An explicit override that is missing or
// unsupported is an error; there is no silent fallback to probing.
func detectInterpreter(ctx context.Context, cfg Config, runner CommandRunner, logger Logger) (Interpreter, error) {
	if bin := os.Getenv(PythonBinEnv); bin != "" {
		return resolveInterpreter(ctx, runner, bin, PythonBinEnv)
	}
	if cfg.PythonBin != "" {
		return resolveInterpreter(ctx, runner, cfg.PythonBin, "config")
	}

	candidates := cfg.PythonCandidates
	if len(candidates) == 0 {
		candidates = DefaultPythonCandidates
	}

	for _, name := range candidates {
		path, err := runner.LookPath(name)
		if err != nil {
			continue
		}
		py, err := resolveInterpreter(ctx, runner, path, "")
		if err != nil {
			// A binary that exists but is out of range is a hard stop: the
			// user has Python, just the wrong one, and should be told so.
			return Interpreter{}, err
		}
		if logger != nil {
			logger.Debug("interpreter selected", "path", py.Path, "version", py.Version)
		}
		return py, nil
	}

	return Interpreter{}, fmt.Errorf("%w: tried %s", ErrInterpreterNotFound, strings.Join(candidates, ", "))
}

// resolveInterpreter verifies a specific binary exists, queries its version,
// and gates it. source names where the binary came from, for diagnostics.
func resolveInterpreter(ctx context.Context, runner CommandRunner, bin, source string) (Interpreter, error) {
	path, err := runner.LookPath(bin)
	if err != nil {
		if source != "" {
			return Interpreter{}, fmt.Errorf("%w: %s=%s not found", ErrInterpreterNotFound, source, bin)
		}
		return Interpreter{}, fmt.Errorf("%w: %s not found", ErrInterpreterNotFound, bin)
	}

	version, err := queryVersion(ctx, runner, path)
	if err != nil {
		return Interpreter{}, err
	}

	if err := gateVersion(version); err != nil {
		return Interpreter{}, fmt.Errorf("%s reports %s: %w", path, version, err)
	}

	return Interpreter{Path: path, Version: version}, nil
}

// queryVersion executes the interpreter and parses its reported version.
func queryVersion(ctx context.Context, runner CommandRunner, path string) (string, error) {
	out, err := runner.CombinedOutput(ctx, path, "-c", versionProbe)
	if err != nil {
		return "", fmt.Errorf("%w: %s: querying version: %v", ErrCommandFailed, path, err)
	}

	version := strings.TrimSpace(string(out))
	if !versionRe.MatchString(version) {
		return "", fmt.Errorf("%w: %s: unexpected version output %q", ErrCommandFailed, path, version)
	}

	return version, nil
}

// gateVersion checks a version string against the supported range.
// Returns ErrVersionUnsupported when outside [MinPythonVersion, MaxPythonVersion).
func gateVersion(version string) error {
	v := "v" + version
	if !semver.IsValid(v) {
		return fmt.Errorf("%w: cannot parse version %q", ErrVersionUnsupported, version)
	}
	if semver.Compare(v, "v"+MinPythonVersion) < 0 || semver.Compare(v, "v"+MaxPythonVersion) >= 0 {
		return fmt.Errorf("%w: need >= %s and < %s", ErrVersionUnsupported, MinPythonVersion, MaxPythonVersion)
	}
	return nil
}
