package bootstrap

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigFileDefaults(t *testing.T) {
	// A missing config file is not an error; the bare invocation must work.
	cfg, err := LoadConfigFile("davadostum", filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}

	if cfg.AppName != "davadostum" {
		t.Errorf("AppName = %q", cfg.AppName)
	}
	if cfg.HubURL != DefaultHubURL {
		t.Errorf("HubURL = %q, want %q", cfg.HubURL, DefaultHubURL)
	}
	if cfg.VenvDir != DefaultVenvDir {
		t.Errorf("VenvDir = %q, want %q", cfg.VenvDir, DefaultVenvDir)
	}
	if cfg.RequirementsFile != DefaultRequirementsFile {
		t.Errorf("RequirementsFile = %q, want %q", cfg.RequirementsFile, DefaultRequirementsFile)
	}
	if cfg.Retry != DefaultRetryPolicy() {
		t.Errorf("Retry = %+v, want defaults", cfg.Retry)
	}
	if cfg.Concurrency != DefaultConcurrency {
		t.Errorf("Concurrency = %d, want %d", cfg.Concurrency, DefaultConcurrency)
	}
	if len(cfg.Artifacts) != 0 {
		t.Errorf("Artifacts = %v, want none", cfg.Artifacts)
	}
}

func TestLoadConfigFileFull(t *testing.T) {
	path := writeConfig(t, `
[python]
bin = "/opt/python3.10/bin/python"
candidates = ["python3.10"]

[venv]
dir = "env"
requirements = "deps.txt"

[workspace]
dir = "/srv/davadostum"

[hub]
url = "https://hub.internal"

[download]
max_attempts = 10
initial_backoff = "500ms"
max_backoff = "1m"
concurrency = 4

[[artifact]]
repo = "org/model"
file = "model.Q4_K_M.gguf"
revision = "v1"
sha256 = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

[[artifact]]
repo = "org/embedder"
file = "embedder.bin"
`)

	cfg, err := LoadConfigFile("davadostum", path)
	if err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}

	if cfg.PythonBin != "/opt/python3.10/bin/python" {
		t.Errorf("PythonBin = %q", cfg.PythonBin)
	}
	if len(cfg.PythonCandidates) != 1 || cfg.PythonCandidates[0] != "python3.10" {
		t.Errorf("PythonCandidates = %v", cfg.PythonCandidates)
	}
	if cfg.VenvDir != "env" {
		t.Errorf("VenvDir = %q", cfg.VenvDir)
	}
	if cfg.RequirementsFile != "deps.txt" {
		t.Errorf("RequirementsFile = %q", cfg.RequirementsFile)
	}
	if cfg.WorkDir != "/srv/davadostum" {
		t.Errorf("WorkDir = %q", cfg.WorkDir)
	}
	if cfg.HubURL != "https://hub.internal" {
		t.Errorf("HubURL = %q", cfg.HubURL)
	}
	if cfg.Retry.MaxAttempts != 10 {
		t.Errorf("MaxAttempts = %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.InitialBackoff != 500*time.Millisecond {
		t.Errorf("InitialBackoff = %v", cfg.Retry.InitialBackoff)
	}
	if cfg.Retry.MaxBackoff != time.Minute {
		t.Errorf("MaxBackoff = %v", cfg.Retry.MaxBackoff)
	}
	if cfg.Concurrency != 4 {
		t.Errorf("Concurrency = %d", cfg.Concurrency)
	}
	if len(cfg.Artifacts) != 2 {
		t.Fatalf("Artifacts = %v", cfg.Artifacts)
	}
	if cfg.Artifacts[0].Revision != "v1" || cfg.Artifacts[1].File != "embedder.bin" {
		t.Errorf("Artifacts = %+v", cfg.Artifacts)
	}
}

func TestLoadConfigFileRetryForever(t *testing.T) {
	path := writeConfig(t, `
[download]
max_attempts = -1
`)

	cfg, err := LoadConfigFile("davadostum", path)
	if err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}
	if cfg.Retry.MaxAttempts != -1 {
		t.Errorf("MaxAttempts = %d, want -1", cfg.Retry.MaxAttempts)
	}
	// The backoff defaults survive a partial [download] section.
	if cfg.Retry.InitialBackoff != DefaultRetryPolicy().InitialBackoff {
		t.Errorf("InitialBackoff = %v", cfg.Retry.InitialBackoff)
	}
}

func TestLoadConfigFileErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"malformed toml", "[python\nbin ="},
		{"bad duration", "[download]\ninitial_backoff = \"soon\""},
		{"artifact missing file", "[[artifact]]\nrepo = \"org/model\""},
		{"artifact missing repo", "[[artifact]]\nfile = \"m.gguf\""},
		{"short sha256", "[[artifact]]\nrepo = \"o/m\"\nfile = \"m.gguf\"\nsha256 = \"abcd\""},
		{"backoff inversion", "[download]\ninitial_backoff = \"2m\"\nmax_backoff = \"1s\""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			_, err := LoadConfigFile("davadostum", path)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("err = %v, want ErrInvalidConfig", err)
			}
		})
	}
}
