package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// bootstrapper is the concrete implementation of the Bootstrapper interface.
type bootstrapper struct {
	// cfg holds the module configuration.
	cfg Config

	// runner executes external commands (python, pip).
	runner CommandRunner

	// logger receives diagnostic messages. May be nil.
	logger Logger

	// ws handles local filesystem operations.
	ws workspaceInterface

	// hub handles downloads from the model hub.
	hub *hubClient

	// interpMu guards the cached interpreter.
	interpMu sync.Mutex
	interp   *Interpreter

	// ledgerWriteMu serializes read-modify-write cycles on the ledger.
	ledgerWriteMu sync.Mutex
}

// DetectInterpreter locates a supported Python interpreter.
// The result is cached for the lifetime of the Bootstrapper: interpreter
// selection is stable within a single bootstrap run.
func (b *bootstrapper) DetectInterpreter(ctx context.Context) (Interpreter, error) {
	b.interpMu.Lock()
	defer b.interpMu.Unlock()

	if b.interp != nil {
		return *b.interp, nil
	}

	py, err := detectInterpreter(ctx, b.cfg, b.runner, b.logger)
	if err != nil {
		return Interpreter{}, err
	}

	b.interp = &py
	return py, nil
}

// EnsureDirs creates the workspace directory tree.
func (b *bootstrapper) EnsureDirs(ctx context.Context) error {
	return b.ws.ensureLayout()
}

// EnsureVenv creates or reuses the virtual environment.
func (b *bootstrapper) EnsureVenv(ctx context.Context, opts ...SetupOption) (string, error) {
	cfg := newSetupConfig(b.cfg)
	for _, opt := range opts {
		opt(cfg)
	}

	py, err := b.DetectInterpreter(ctx)
	if err != nil {
		return "", err
	}

	dir := b.ws.venvDir()
	if _, err := ensureVenv(ctx, b.runner, py, dir, cfg.force, b.logger); err != nil {
		return "", err
	}
	return dir, nil
}

// InstallDeps installs the requirements file into the venv.
func (b *bootstrapper) InstallDeps(ctx context.Context, opts ...SetupOption) error {
	dir := b.ws.venvDir()
	if !venvValid(dir) {
		return fmt.Errorf("%w: no virtual environment at %s (run setup first)", ErrStorageError, dir)
	}
	return installDeps(ctx, b.runner, dir, b.ws.requirementsPath(), b.logger)
}

// FetchArtifacts downloads all configured artifacts in parallel.
// Artifacts already present and recorded with a matching digest are skipped
// unless WithForce() is given. The first failure cancels outstanding fetches.
func (b *bootstrapper) FetchArtifacts(ctx context.Context, opts ...SetupOption) error {
	cfg := newSetupConfig(b.cfg)
	for _, opt := range opts {
		opt(cfg)
	}

	if len(b.cfg.Artifacts) == 0 {
		if b.logger != nil {
			b.logger.Info("no artifacts configured, nothing to fetch")
		}
		return nil
	}

	if err := b.ws.ensureDir(b.ws.modelsDir()); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.concurrency)

	for _, a := range b.cfg.Artifacts {
		a := a
		g.Go(func() error {
			err := b.fetchOne(gctx, a, cfg)
			if errors.Is(err, ErrAlreadyFetched) {
				if b.logger != nil {
					b.logger.Debug("artifact up to date", "file", a.File)
				}
				return nil
			}
			return err
		})
	}

	return g.Wait()
}

// fetchOne downloads a single artifact and records it in the ledger.
// Returns ErrAlreadyFetched when the artifact is present and current.
func (b *bootstrapper) fetchOne(ctx context.Context, a Artifact, cfg *setupConfig) error {
	if !cfg.force && b.isCurrent(a) {
		if cfg.progressFn != nil {
			info, _ := os.Stat(b.ws.artifactPath(a.File))
			var size int64
			if info != nil {
				size = info.Size()
			}
			cfg.progressFn(FetchProgress{File: a.File, Phase: "done", BytesTotal: size, BytesCompleted: size})
		}
		return ErrAlreadyFetched
	}

	size, err := b.hub.fetch(ctx, b.ws, a, b.cfg.Retry, cfg.progressFn)
	if err != nil {
		return err
	}

	return b.recordFetch(a, size)
}

// isCurrent reports whether an artifact file exists and its ledger entry
// matches the configured revision and digest.
func (b *bootstrapper) isCurrent(a Artifact) bool {
	if _, err := os.Stat(b.ws.artifactPath(a.File)); err != nil {
		return false
	}
	l, err := b.ws.loadLedger()
	if err != nil {
		return false
	}
	entry, ok := l[a.File]
	if !ok {
		return false
	}
	return entry.Repo == a.Repo && entry.Revision == a.rev() && entry.SHA256 == a.SHA256
}

// recordFetch updates the ledger after a successful download.
func (b *bootstrapper) recordFetch(a Artifact, size int64) error {
	b.ledgerWriteMu.Lock()
	defer b.ledgerWriteMu.Unlock()

	l, err := b.ws.loadLedger()
	if err != nil {
		return fmt.Errorf("loading ledger: %w", err)
	}

	l[a.File] = ledgerEntry{
		Repo:      a.Repo,
		Revision:  a.rev(),
		SHA256:    a.SHA256,
		Size:      size,
		FetchedAt: time.Now(),
	}

	if err := b.ws.saveLedger(l); err != nil {
		return fmt.Errorf("saving ledger: %w", err)
	}
	return nil
}

// ListArtifacts returns all artifacts recorded in the local ledger,
// sorted by file name.
func (b *bootstrapper) ListArtifacts(ctx context.Context) ([]FetchedArtifact, error) {
	l, err := b.ws.loadLedger()
	if err != nil {
		return nil, fmt.Errorf("loading ledger: %w", err)
	}

	arts := make([]FetchedArtifact, 0, len(l))
	for file, entry := range l {
		arts = append(arts, FetchedArtifact{
			Artifact: Artifact{
				Repo:     entry.Repo,
				File:     file,
				Revision: entry.Revision,
				SHA256:   entry.SHA256,
			},
			Size:      entry.Size,
			FetchedAt: entry.FetchedAt,
			Path:      b.ws.artifactPath(file),
		})
	}

	sort.Slice(arts, func(i, j int) bool {
		return arts[i].Artifact.File < arts[j].Artifact.File
	})

	return arts, nil
}

// VerifyArtifacts checks every configured artifact on disk.
func (b *bootstrapper) VerifyArtifacts(ctx context.Context) ([]ArtifactStatus, error) {
	statuses := make([]ArtifactStatus, 0, len(b.cfg.Artifacts))

	for _, a := range b.cfg.Artifacts {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		st := ArtifactStatus{Artifact: a}
		if _, err := os.Stat(b.ws.artifactPath(a.File)); err != nil {
			st.Detail = "missing"
			statuses = append(statuses, st)
			continue
		}
		st.Present = true

		if a.SHA256 == "" {
			st.Verified = true
			st.Detail = "present (no digest declared)"
		} else if err := verifyFileSHA256(b.ws.artifactPath(a.File), a.SHA256); err != nil {
			st.Detail = "digest mismatch"
		} else {
			st.Verified = true
			st.Detail = "verified"
		}
		statuses = append(statuses, st)
	}

	return statuses, nil
}

// RemoveArtifact deletes a fetched artifact file and its ledger entry.
func (b *bootstrapper) RemoveArtifact(ctx context.Context, file string) error {
	b.ledgerWriteMu.Lock()
	defer b.ledgerWriteMu.Unlock()

	l, err := b.ws.loadLedger()
	if err != nil {
		return fmt.Errorf("loading ledger: %w", err)
	}

	if _, ok := l[file]; !ok {
		return fmt.Errorf("%s: %w", file, ErrNotFetched)
	}

	if err := b.ws.removeArtifact(file); err != nil {
		return err
	}

	delete(l, file)
	if err := b.ws.saveLedger(l); err != nil {
		return fmt.Errorf("saving ledger: %w", err)
	}
	return nil
}

// PruneDownloads removes leftover partial downloads.
func (b *bootstrapper) PruneDownloads(ctx context.Context) error {
	return b.ws.removePartials()
}

// ArtifactPath returns the absolute path of a fetched artifact.
func (b *bootstrapper) ArtifactPath(ctx context.Context, file string) (string, error) {
	l, err := b.ws.loadLedger()
	if err != nil {
		return "", fmt.Errorf("loading ledger: %w", err)
	}
	if _, ok := l[file]; !ok {
		return "", fmt.Errorf("%s: %w", file, ErrNotFetched)
	}
	return b.ws.artifactPath(file), nil
}

// Run executes the full bootstrap pipeline sequentially, stopping at the
// first failing step. A cross-process lock prevents two bootstrap runs from
// provisioning the same workspace at once.
func (b *bootstrapper) Run(ctx context.Context, opts ...SetupOption) error {
	cfg := newSetupConfig(b.cfg)
	for _, opt := range opts {
		opt(cfg)
	}

	if err := b.ws.ensureDir(b.ws.root()); err != nil {
		return err
	}
	lock, err := newFileLock(b.ws.setupLockPath(), DefaultLockTimeout)
	if err != nil {
		return fmt.Errorf("%w: failed to create setup lock: %v", ErrStorageError, err)
	}
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("%w: another setup is running for this workspace: %v", ErrStorageError, err)
	}
	defer lock.Unlock()

	py, err := b.DetectInterpreter(ctx)
	if err != nil {
		return err
	}
	if b.logger != nil {
		b.logger.Info("using interpreter", "path", py.Path, "version", py.Version)
	}

	if err := b.EnsureDirs(ctx); err != nil {
		return err
	}

	if _, err := b.EnsureVenv(ctx, opts...); err != nil {
		return err
	}

	if !cfg.skipDeps {
		if err := b.InstallDeps(ctx, opts...); err != nil {
			return err
		}
	} else if b.logger != nil {
		b.logger.Info("skipping dependency installation")
	}

	return b.FetchArtifacts(ctx, opts...)
}

// Doctor probes the environment without changing anything.
func (b *bootstrapper) Doctor(ctx context.Context) (DoctorReport, error) {
	var report DoctorReport

	py, err := b.DetectInterpreter(ctx)
	if err != nil {
		report.Checks = append(report.Checks, Check{Name: "python", Detail: err.Error()})
	} else {
		report.Checks = append(report.Checks, Check{
			Name: "python", OK: true,
			Detail: fmt.Sprintf("%s (%s)", py.Path, py.Version),
		})
	}

	for _, probe := range []struct {
		name string
		dir  string
	}{
		{"workspace", b.ws.root()},
		{"data dir", b.ws.dataDir()},
		{"models dir", b.ws.modelsDir()},
	} {
		if info, err := os.Stat(probe.dir); err == nil && info.IsDir() {
			report.Checks = append(report.Checks, Check{Name: probe.name, OK: true, Detail: probe.dir})
		} else {
			report.Checks = append(report.Checks, Check{Name: probe.name, Detail: probe.dir + " missing"})
		}
	}

	if venvValid(b.ws.venvDir()) {
		report.Checks = append(report.Checks, Check{Name: "venv", OK: true, Detail: b.ws.venvDir()})
	} else {
		report.Checks = append(report.Checks, Check{Name: "venv", Detail: b.ws.venvDir() + " missing or invalid"})
	}

	if _, err := os.Stat(b.ws.requirementsPath()); err == nil {
		report.Checks = append(report.Checks, Check{Name: "requirements", OK: true, Detail: b.ws.requirementsPath()})
	} else {
		report.Checks = append(report.Checks, Check{Name: "requirements", Detail: b.ws.requirementsPath() + " missing"})
	}

	statuses, err := b.VerifyArtifacts(ctx)
	if err != nil {
		return report, err
	}
	for _, st := range statuses {
		report.Checks = append(report.Checks, Check{
			Name:   "artifact " + st.Artifact.File,
			OK:     st.Present && st.Verified,
			Detail: st.Detail,
		})
	}

	return report, nil
}
