// Package bootstrap provisions the runtime environment for the davadostum
// legal-precedent search tool: it locates a supported Python interpreter,
// creates the virtual environment, installs Python dependencies, lays out the
// workspace directories, and downloads the quantized model artifacts the
// search engine runs on.
//
// The package serves two primary use cases:
//
//  1. Programmatic API via the Bootstrapper interface - Applications can use
//     NewBootstrapper to run individual provisioning steps or the whole
//     pipeline.
//
//  2. Embeddable CLI via NewCommand - Parent CLI tools can attach the complete
//     setup command tree to their Cobra root command, providing commands like
//     "mytool setup", "mytool doctor", "mytool fetch", etc.
//
// # Interpreter Selection
//
// A supported CPython interpreter (>= 3.10, < 3.12) is discovered by probing
// well-known names on PATH. The PYTHON_BIN environment variable overrides
// probing entirely; if it points at a missing or unsupported interpreter the
// bootstrap fails rather than falling back.
//
// # Downloads
//
// Model artifacts are fetched from a Hugging Face style hub with bounded
// retries and exponential backoff. Partial downloads are resumed with Range
// requests, and artifacts that declare a SHA-256 digest are verified while
// streaming.
//
// # Workspace
//
// The workspace lives in a platform-appropriate directory:
//   - Linux: $XDG_DATA_HOME/<app>/ or ~/.local/share/<app>/
//   - macOS: ~/Library/Application Support/<app>/
//   - Windows: %APPDATA%\<app>\
//
// The location can be overridden via Config.WorkDir or the <APPNAME>_HOME
// environment variable.
package bootstrap
