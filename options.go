package bootstrap

import "net/http"

// SetupOption configures a setup or fetch run.
type SetupOption func(*setupConfig)

// setupConfig holds configuration for a single run.
type setupConfig struct {
	// force recreates the venv and re-downloads artifacts that are already
	// present.
	force bool

	// skipDeps skips pip dependency installation.
	skipDeps bool

	// concurrency is the number of artifacts fetched in parallel.
	concurrency int

	// progressFn is called with progress updates during downloads.
	progressFn func(FetchProgress)
}

// newSetupConfig returns a setupConfig with defaults from the module config.
func newSetupConfig(cfg Config) *setupConfig {
	c := &setupConfig{concurrency: cfg.Concurrency}
	if c.concurrency < 1 {
		c.concurrency = DefaultConcurrency
	}
	if c.concurrency > MaxConcurrency {
		c.concurrency = MaxConcurrency
	}
	return c
}

// WithForce recreates the virtual environment and re-downloads artifacts
// even when they are already present.
func WithForce() SetupOption {
	return func(c *setupConfig) {
		c.force = true
	}
}

// WithSkipDeps skips pip dependency installation during Run.
func WithSkipDeps() SetupOption {
	return func(c *setupConfig) {
		c.skipDeps = true
	}
}

// WithConcurrency sets the number of artifacts fetched in parallel.
// Values are clamped to the range [1, MaxConcurrency].
func WithConcurrency(n int) SetupOption {
	return func(c *setupConfig) {
		if n < 1 {
			n = 1
		}
		if n > MaxConcurrency {
			n = MaxConcurrency
		}
		c.concurrency = n
	}
}

// WithProgress sets a callback for progress updates during downloads.
// The callback is invoked from download goroutines and must be thread-safe.
func WithProgress(fn func(FetchProgress)) SetupOption {
	return func(c *setupConfig) {
		c.progressFn = fn
	}
}

// Option configures a Bootstrapper.
type Option func(*managerConfig)

// managerConfig holds configuration for Bootstrapper construction.
type managerConfig struct {
	// httpClient is used for all HTTP requests to the hub.
	httpClient HTTPClient

	// runner executes external commands.
	runner CommandRunner

	// logger receives diagnostic log messages.
	logger Logger
}

// newManagerConfig returns a managerConfig with default values.
func newManagerConfig() *managerConfig {
	return &managerConfig{
		httpClient: http.DefaultClient,
		runner:     execRunner{},
	}
}

// WithHTTPClient sets a custom HTTP client for hub requests.
// Useful for testing with mock servers or customizing timeouts.
// If not set, http.DefaultClient is used.
func WithHTTPClient(client HTTPClient) Option {
	return func(c *managerConfig) {
		c.httpClient = client
	}
}

// WithRunner sets a custom command runner for subprocess execution.
// Useful for testing without a Python installation.
func WithRunner(runner CommandRunner) Option {
	return func(c *managerConfig) {
		c.runner = runner
	}
}

// WithLogger sets a logger for diagnostic output.
// If not set, logging is disabled.
func WithLogger(logger Logger) Option {
	return func(c *managerConfig) {
		c.logger = logger
	}
}

// HTTPClient is the interface for HTTP operations.
// *http.Client satisfies this interface.
type HTTPClient interface {
	// Do sends an HTTP request and returns an HTTP response.
	Do(req *http.Request) (*http.Response, error)
}

// Logger is the interface for diagnostic logging.
// Compatible with slog, zap, logrus, and other structured loggers.
type Logger interface {
	// Debug logs a debug-level message with optional key-value pairs.
	Debug(msg string, keysAndValues ...any)

	// Info logs an info-level message with optional key-value pairs.
	Info(msg string, keysAndValues ...any)

	// Warn logs a warning-level message with optional key-value pairs.
	Warn(msg string, keysAndValues ...any)

	// Error logs an error-level message with optional key-value pairs.
	Error(msg string, keysAndValues ...any)
}
