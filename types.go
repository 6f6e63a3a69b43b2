package bootstrap

import (
	"strings"
	"time"
)

// Config configures the bootstrap module.
type Config struct {
	// AppName determines the workspace directory name and the prefix of the
	// environment variables the module honors.
	// Example: "davadostum" → ~/.local/share/davadostum/ on Linux,
	// overridable via DAVADOSTUM_HOME.
	AppName string

	// WorkDir overrides the default workspace directory.
	// If empty, uses the platform-appropriate default.
	// Can also be set via environment variable: <APPNAME>_HOME
	WorkDir string

	// PythonBin overrides interpreter discovery with an explicit binary.
	// The PYTHON_BIN environment variable takes precedence over this field.
	PythonBin string

	// PythonCandidates are the binary names probed on PATH, in order.
	// If empty, DefaultPythonCandidates is used.
	PythonCandidates []string

	// VenvDir is the virtual environment directory. Relative paths are
	// resolved against the workspace. Defaults to ".venv".
	VenvDir string

	// RequirementsFile is the pip requirements file installed into the venv.
	// Relative paths are resolved against the workspace.
	// Defaults to "requirements.txt".
	RequirementsFile string

	// HubURL is the base URL of the model hub.
	// Example: "https://huggingface.co"
	HubURL string

	// Artifacts are the model files to download during setup.
	Artifacts []Artifact

	// Retry governs download retry behavior.
	// Zero value means DefaultRetryPolicy().
	Retry RetryPolicy

	// Concurrency is the number of artifacts fetched in parallel.
	// Values are clamped to [1, MaxConcurrency]. Defaults to
	// DefaultConcurrency.
	Concurrency int
}

// Artifact identifies a model file on the hub.
type Artifact struct {
	// Repo is the hub repository, e.g. "ytu-ce-cosmos/Turkish-Llama-8b-GGUF".
	Repo string `toml:"repo"`

	// File is the file name within the repository,
	// e.g. "turkish-llama-8b.Q4_K_M.gguf".
	File string `toml:"file"`

	// Revision is the repository revision. Defaults to "main".
	Revision string `toml:"revision"`

	// SHA256 is the expected hex digest of the file. When set, downloads are
	// verified; when empty, verification is skipped.
	SHA256 string `toml:"sha256"`
}

// String returns the canonical string form: "repo/file@revision".
// If Revision is empty, returns "repo/file".
func (a Artifact) String() string {
	if a.Revision == "" {
		return a.Repo + "/" + a.File
	}
	return a.Repo + "/" + a.File + "@" + a.Revision
}

// rev returns the revision, defaulting to "main".
func (a Artifact) rev() string {
	if a.Revision == "" {
		return "main"
	}
	return a.Revision
}

// ParseArtifactRef parses "repo/file" or "repo/file@revision" into an
// Artifact. The repo itself may contain slashes; the file is the last path
// segment. Returns an error wrapping ErrInvalidConfig if the format is
// invalid.
func ParseArtifactRef(s string) (Artifact, error) {
	var revision string
	if idx := strings.LastIndex(s, "@"); idx != -1 {
		revision = s[idx+1:]
		s = s[:idx]
	}

	idx := strings.LastIndex(s, "/")
	if idx <= 0 || idx == len(s)-1 {
		return Artifact{}, ErrInvalidConfig
	}

	return Artifact{
		Repo:     s[:idx],
		File:     s[idx+1:],
		Revision: revision,
	}, nil
}

// RetryPolicy governs how failed downloads are retried.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts per artifact.
	// Values <= 0 mean retry indefinitely, matching the behavior of the
	// original shell bootstrap.
	MaxAttempts int

	// InitialBackoff is the wait before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential backoff growth.
	MaxBackoff time.Duration
}

// DefaultRetryPolicy returns the retry policy used when Config.Retry is the
// zero value: five attempts with backoff doubling from one second up to
// thirty seconds.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    5,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
	}
}

// isZero reports whether the policy is entirely unset.
func (p RetryPolicy) isZero() bool {
	return p.MaxAttempts == 0 && p.InitialBackoff == 0 && p.MaxBackoff == 0
}

// Interpreter describes a discovered Python interpreter.
type Interpreter struct {
	// Path is the absolute path to the interpreter binary.
	Path string `json:"path"`

	// Version is the reported version, e.g. "3.10.12".
	Version string `json:"version"`
}

// FetchedArtifact contains information about a locally fetched artifact.
type FetchedArtifact struct {
	// Artifact identifies the file and its origin.
	Artifact Artifact `json:"artifact"`

	// Size is the file size in bytes.
	Size int64 `json:"size"`

	// FetchedAt is when the artifact finished downloading.
	FetchedAt time.Time `json:"fetched_at"`

	// Path is the absolute path to the file in the models directory.
	Path string `json:"path"`
}

// ArtifactStatus is the result of verifying one artifact on disk.
type ArtifactStatus struct {
	// Artifact identifies the file.
	Artifact Artifact `json:"artifact"`

	// Present reports whether the file exists in the models directory.
	Present bool `json:"present"`

	// Verified reports whether the on-disk digest matched. Only meaningful
	// when the artifact declares a SHA256 and Present is true.
	Verified bool `json:"verified"`

	// Detail carries a human-readable note ("missing", "digest mismatch", ...).
	Detail string `json:"detail,omitempty"`
}

// FetchProgress reports download progress during a fetch operation.
type FetchProgress struct {
	// File is the artifact file the update refers to.
	File string

	// Phase indicates the current phase: "resolving", "downloading",
	// "verifying", or "done".
	Phase string

	// BytesTotal is the total size of the artifact, or 0 if unknown.
	BytesTotal int64

	// BytesCompleted is the bytes present on disk so far, including any
	// resumed partial data.
	BytesCompleted int64

	// BytesDownloaded is bytes actually fetched from the network this session
	// (excludes resumed data).
	BytesDownloaded int64

	// Attempt is the 1-based attempt number for the current download.
	Attempt int
}

// Check is one probe performed by Doctor.
type Check struct {
	// Name identifies the probe, e.g. "python", "venv", "artifacts".
	Name string `json:"name"`

	// OK reports whether the probe passed.
	OK bool `json:"ok"`

	// Detail is a human-readable summary of the outcome.
	Detail string `json:"detail"`
}

// DoctorReport aggregates the environment probes run by Doctor.
type DoctorReport struct {
	// Checks lists every probe in execution order.
	Checks []Check `json:"checks"`
}

// OK reports whether every check passed.
func (r DoctorReport) OK() bool {
	for _, c := range r.Checks {
		if !c.OK {
			return false
		}
	}
	return true
}
