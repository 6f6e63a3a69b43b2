package bootstrap

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Defaults applied when the configuration file omits a value.
const (
	// DefaultHubURL is the model hub downloads are served from.
	DefaultHubURL = "https://huggingface.co"

	// DefaultVenvDir is the virtual environment directory, relative to the
	// workspace.
	DefaultVenvDir = ".venv"

	// DefaultRequirementsFile is the pip requirements file, relative to the
	// workspace.
	DefaultRequirementsFile = "requirements.txt"
)

// duration wraps time.Duration so TOML values like "30s" parse directly.
type duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = duration(v)
	return nil
}

// fileConfig mirrors the on-disk config.toml layout.
type fileConfig struct {
	Python struct {
		Bin        string   `toml:"bin"`
		Candidates []string `toml:"candidates"`
	} `toml:"python"`

	Venv struct {
		Dir          string `toml:"dir"`
		Requirements string `toml:"requirements"`
	} `toml:"venv"`

	Workspace struct {
		Dir string `toml:"dir"`
	} `toml:"workspace"`

	Hub struct {
		URL string `toml:"url"`
	} `toml:"hub"`

	Download struct {
		MaxAttempts    int      `toml:"max_attempts"`
		InitialBackoff duration `toml:"initial_backoff"`
		MaxBackoff     duration `toml:"max_backoff"`
		Concurrency    int      `toml:"concurrency"`
	} `toml:"download"`

	Artifacts []Artifact `toml:"artifact"`
}

// LoadConfigFile reads a TOML configuration file and merges it over the
// defaults for the given application name. A missing file is not an error;
// the defaults are returned unchanged, matching the bare no-argument
// invocation of the original bootstrap.
func LoadConfigFile(appName, path string) (Config, error) {
	cfg := defaultConfig(appName)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("%w: reading %s: %v", ErrStorageError, path, err)
	}

	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return Config{}, fmt.Errorf("%w: parsing %s: %v", ErrInvalidConfig, path, err)
	}

	if fc.Python.Bin != "" {
		cfg.PythonBin = fc.Python.Bin
	}
	if len(fc.Python.Candidates) > 0 {
		cfg.PythonCandidates = fc.Python.Candidates
	}
	if fc.Venv.Dir != "" {
		cfg.VenvDir = fc.Venv.Dir
	}
	if fc.Venv.Requirements != "" {
		cfg.RequirementsFile = fc.Venv.Requirements
	}
	if fc.Workspace.Dir != "" {
		cfg.WorkDir = fc.Workspace.Dir
	}
	if fc.Hub.URL != "" {
		cfg.HubURL = fc.Hub.URL
	}
	if fc.Download.MaxAttempts != 0 {
		cfg.Retry.MaxAttempts = fc.Download.MaxAttempts
	}
	if fc.Download.InitialBackoff != 0 {
		cfg.Retry.InitialBackoff = time.Duration(fc.Download.InitialBackoff)
	}
	if fc.Download.MaxBackoff != 0 {
		cfg.Retry.MaxBackoff = time.Duration(fc.Download.MaxBackoff)
	}
	if fc.Download.Concurrency != 0 {
		cfg.Concurrency = fc.Download.Concurrency
	}
	cfg.Artifacts = fc.Artifacts

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// defaultConfig returns the configuration used when no file is present.
func defaultConfig(appName string) Config {
	return Config{
		AppName:          appName,
		VenvDir:          DefaultVenvDir,
		RequirementsFile: DefaultRequirementsFile,
		HubURL:           DefaultHubURL,
		Retry:            DefaultRetryPolicy(),
		Concurrency:      DefaultConcurrency,
	}
}

// validateConfig rejects values that would only fail later, with worse
// diagnostics.
func validateConfig(cfg Config) error {
	if cfg.Retry.InitialBackoff < 0 || cfg.Retry.MaxBackoff < 0 {
		return fmt.Errorf("%w: download backoff must not be negative", ErrInvalidConfig)
	}
	if cfg.Retry.MaxBackoff > 0 && cfg.Retry.InitialBackoff > cfg.Retry.MaxBackoff {
		return fmt.Errorf("%w: initial_backoff exceeds max_backoff", ErrInvalidConfig)
	}
	for _, a := range cfg.Artifacts {
		if a.Repo == "" || a.File == "" {
			return fmt.Errorf("%w: artifact requires repo and file", ErrInvalidConfig)
		}
		if a.SHA256 != "" && len(a.SHA256) != 64 {
			return fmt.Errorf("%w: artifact %s: sha256 must be 64 hex chars", ErrInvalidConfig, a.File)
		}
	}
	return nil
}
