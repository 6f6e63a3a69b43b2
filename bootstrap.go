package bootstrap

import (
	"context"
	"errors"
)

// Bootstrapper provides programmatic access to environment provisioning.
// All methods are safe for concurrent use.
// For CLI integration, use NewCommand instead.
type Bootstrapper interface {
	// DetectInterpreter locates a supported Python interpreter.
	// Returns ErrInterpreterNotFound if none exists, or ErrVersionUnsupported
	// if the selected interpreter is outside the supported range.
	DetectInterpreter(ctx context.Context) (Interpreter, error)

	// EnsureDirs creates the workspace directory tree (data/, models/).
	EnsureDirs(ctx context.Context) error

	// EnsureVenv creates the virtual environment if missing, reusing a valid
	// existing one. WithForce() recreates it. Returns the venv directory.
	EnsureVenv(ctx context.Context, opts ...SetupOption) (string, error)

	// InstallDeps installs the requirements file into the venv with pip.
	InstallDeps(ctx context.Context, opts ...SetupOption) error

	// FetchArtifacts downloads all configured artifacts that are not already
	// present and verified. WithForce() re-downloads everything.
	FetchArtifacts(ctx context.Context, opts ...SetupOption) error

	// ListArtifacts returns all artifacts recorded in the local ledger.
	ListArtifacts(ctx context.Context) ([]FetchedArtifact, error)

	// VerifyArtifacts checks every configured artifact on disk against its
	// declared digest.
	VerifyArtifacts(ctx context.Context) ([]ArtifactStatus, error)

	// RemoveArtifact deletes a fetched artifact file and its ledger entry.
	// Returns ErrNotFetched if the artifact is not in the ledger.
	RemoveArtifact(ctx context.Context, file string) error

	// PruneDownloads removes leftover partial downloads.
	// This frees disk space but loses resume state.
	PruneDownloads(ctx context.Context) error

	// ArtifactPath returns the absolute path of a fetched artifact.
	// Returns ErrNotFetched if the artifact is not in the ledger.
	ArtifactPath(ctx context.Context, file string) (string, error)

	// Run executes the full bootstrap pipeline: interpreter discovery,
	// directory layout, venv creation, dependency installation, and artifact
	// downloads. It stops at the first failing step; only downloads retry,
	// per the configured policy.
	Run(ctx context.Context, opts ...SetupOption) error

	// Doctor probes the environment and reports the state of every
	// provisioning step without changing anything.
	Doctor(ctx context.Context) (DoctorReport, error)
}

// Ensure bootstrapper implements Bootstrapper.
var _ Bootstrapper = (*bootstrapper)(nil)

// NewBootstrapper creates a new Bootstrapper with the given configuration.
// Returns an error if the configuration is invalid (empty AppName or HubURL).
func NewBootstrapper(cfg Config, opts ...Option) (Bootstrapper, error) {
	if cfg.AppName == "" {
		return nil, errors.New("bootstrap: AppName is required")
	}
	if cfg.HubURL == "" {
		return nil, errors.New("bootstrap: HubURL is required")
	}
	if cfg.Retry.isZero() {
		cfg.Retry = DefaultRetryPolicy()
	}

	mcfg := newManagerConfig()
	for _, opt := range opts {
		opt(mcfg)
	}

	ws, err := newWorkspace(cfg)
	if err != nil {
		return nil, err
	}

	return &bootstrapper{
		cfg:    cfg,
		runner: mcfg.runner,
		logger: mcfg.logger,
		ws:     ws,
		hub:    newHubClient(cfg.HubURL, mcfg.httpClient, mcfg.logger),
	}, nil
}
