package bootstrap

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// DefaultLockTimeout is the default timeout for acquiring file locks.
const DefaultLockTimeout = 30 * time.Second

// ledger represents the contents of the local artifacts.json file,
// keyed by artifact file name.
type ledger map[string]ledgerEntry

// ledgerEntry records one fetched artifact.
type ledgerEntry struct {
	// Repo is the hub repository the artifact came from.
	Repo string `json:"repo"`

	// Revision is the repository revision that was fetched.
	Revision string `json:"revision"`

	// SHA256 is the hex digest of the file, if one was declared.
	SHA256 string `json:"sha256,omitempty"`

	// Size is the file size in bytes.
	Size int64 `json:"size"`

	// FetchedAt is when the download completed.
	FetchedAt time.Time `json:"fetched_at"`
}

// workspaceInterface defines operations for local filesystem management.
// Implemented by *workspace for production and mock workspaces in tests.
type workspaceInterface interface {
	// root returns the workspace base directory.
	root() string

	// dataDir returns the directory the scraper writes decisions into.
	dataDir() string

	// modelsDir returns the directory model artifacts are stored in.
	modelsDir() string

	// venvDir resolves the configured venv directory against the workspace.
	venvDir() string

	// requirementsPath resolves the configured requirements file.
	requirementsPath() string

	// artifactPath returns the final path for an artifact file.
	artifactPath(file string) string

	// partialPath returns the in-progress download path for an artifact file.
	partialPath(file string) string

	// ensureLayout creates the workspace directory tree.
	ensureLayout() error

	// ensureDir creates a directory and all parents if they don't exist.
	ensureDir(path string) error

	// atomicWrite writes data to a file using write-then-rename.
	atomicWrite(path string, data []byte) error

	// loadLedger reads and parses artifacts.json.
	loadLedger() (ledger, error)

	// saveLedger atomically writes the ledger to artifacts.json.
	saveLedger(l ledger) error

	// removeArtifact deletes an artifact file and its partial, if any.
	removeArtifact(file string) error

	// removePartials deletes all in-progress download files.
	removePartials() error

	// setupLockPath returns the path of the cross-process bootstrap lock.
	setupLockPath() string
}

// workspace handles all local filesystem operations.
// Implements workspaceInterface.
type workspace struct {
	// baseDir is the workspace root.
	baseDir string

	// cfg is the module configuration the workspace was derived from.
	cfg Config

	// lockTimeout is the maximum duration to wait for file lock acquisition.
	lockTimeout time.Duration

	// ledgerMu protects concurrent in-process access to artifacts.json.
	ledgerMu sync.RWMutex
}

// Ensure workspace implements workspaceInterface.
var _ workspaceInterface = (*workspace)(nil)

// homeEnvVar constructs the workspace override variable from the app name.
// Example: homeEnvVar("davadostum") returns "DAVADOSTUM_HOME".
func homeEnvVar(appName string) string {
	return strings.ToUpper(appName) + "_HOME"
}

// newWorkspace resolves the workspace directory and creates the instance.
// Priority: env var > Config.WorkDir > platform default.
func newWorkspace(cfg Config) (*workspace, error) {
	var baseDir string

	if envDir := os.Getenv(homeEnvVar(cfg.AppName)); envDir != "" {
		baseDir = envDir
	} else if cfg.WorkDir != "" {
		baseDir = cfg.WorkDir
	} else {
		defaultDir, err := defaultWorkDir(cfg.AppName)
		if err != nil {
			return nil, fmt.Errorf("%w: resolving default workspace: %v", ErrStorageError, err)
		}
		baseDir = defaultDir
	}

	return &workspace{baseDir: baseDir, cfg: cfg, lockTimeout: DefaultLockTimeout}, nil
}

func (w *workspace) root() string      { return w.baseDir }
func (w *workspace) dataDir() string   { return filepath.Join(w.baseDir, "data") }
func (w *workspace) modelsDir() string { return filepath.Join(w.baseDir, "models") }

// venvDir resolves Config.VenvDir; relative values live under the workspace.
func (w *workspace) venvDir() string {
	dir := w.cfg.VenvDir
	if dir == "" {
		dir = DefaultVenvDir
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(w.baseDir, dir)
}

// requirementsPath resolves Config.RequirementsFile against the workspace.
func (w *workspace) requirementsPath() string {
	p := w.cfg.RequirementsFile
	if p == "" {
		p = DefaultRequirementsFile
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(w.baseDir, p)
}

func (w *workspace) artifactPath(file string) string {
	return filepath.Join(w.modelsDir(), file)
}

func (w *workspace) partialPath(file string) string {
	return w.artifactPath(file) + ".part"
}

func (w *workspace) setupLockPath() string {
	return filepath.Join(w.baseDir, ".setup.lock")
}

// ensureLayout creates the workspace root plus the data and models
// directories the search engine expects.
func (w *workspace) ensureLayout() error {
	for _, dir := range []string{w.baseDir, w.dataDir(), w.modelsDir()} {
		if err := w.ensureDir(dir); err != nil {
			return err
		}
	}
	return nil
}

// ensureDir creates a directory and all parent directories if they don't exist.
func (w *workspace) ensureDir(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("%w: failed to create directory %s: %v", ErrStorageError, path, err)
	}
	return nil
}

// atomicWrite writes data to a file using write-then-rename for atomicity.
func (w *workspace) atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: failed to create directory: %v", ErrStorageError, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("%w: failed to write temp file: %v", ErrStorageError, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp) // cleanup on failure
		return fmt.Errorf("%w: failed to rename temp file: %v", ErrStorageError, err)
	}

	return nil
}

// ledgerPath returns the path of artifacts.json.
func (w *workspace) ledgerPath() string {
	return filepath.Join(w.baseDir, "artifacts.json")
}

// loadLedger reads and parses artifacts.json.
// Returns an empty ledger if the file doesn't exist.
func (w *workspace) loadLedger() (ledger, error) {
	w.ledgerMu.RLock()
	defer w.ledgerMu.RUnlock()

	data, err := os.ReadFile(w.ledgerPath())
	if os.IsNotExist(err) {
		return make(ledger), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageError, err)
	}

	var l ledger
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("%w: invalid artifacts.json: %v", ErrStorageError, err)
	}

	return l, nil
}

// saveLedger atomically writes the ledger to artifacts.json.
// Uses cross-process file locking to prevent concurrent writes from multiple
// processes.
func (w *workspace) saveLedger(l ledger) error {
	w.ledgerMu.Lock()
	defer w.ledgerMu.Unlock()

	lockPath := w.ledgerPath() + ".lock"
	lock, err := newFileLock(lockPath, w.lockTimeout)
	if err != nil {
		return fmt.Errorf("%w: failed to create lock: %v", ErrStorageError, err)
	}
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("%w: failed to acquire lock: %v", ErrStorageError, err)
	}
	defer lock.Unlock()

	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: failed to marshal ledger: %v", ErrStorageError, err)
	}

	return w.atomicWrite(w.ledgerPath(), data)
}

// removeArtifact deletes an artifact file and any leftover partial.
func (w *workspace) removeArtifact(file string) error {
	for _, path := range []string{w.artifactPath(file), w.partialPath(file)} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("%w: removing %s: %v", ErrStorageError, path, err)
		}
	}
	return nil
}

// removePartials deletes all .part files in the models directory.
func (w *workspace) removePartials() error {
	entries, err := os.ReadDir(w.modelsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("%w: reading models dir: %v", ErrStorageError, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".part") {
			continue
		}
		path := filepath.Join(w.modelsDir(), entry.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("%w: removing %s: %v", ErrStorageError, path, err)
		}
	}

	return nil
}
