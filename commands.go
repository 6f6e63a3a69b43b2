package bootstrap

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewCommand creates the Cobra command tree for environment provisioning.
// The returned command can run standalone or be added to a parent CLI.
//
// Running the bare root command performs the full setup, matching the
// original no-argument bootstrap invocation. Subcommands:
//   - setup [--force] [--skip-deps]
//   - doctor
//   - python
//   - fetch [--force]
//   - artifacts list|verify|remove
//   - prune
//
// Global flags: --config, --json, --quiet, --verbose
func NewCommand(appName string, opts ...Option) *cobra.Command {
	var (
		configPath string
		jsonOutput bool
		quiet      bool
		verbose    bool
	)

	// Bootstrapper is created in PersistentPreRunE once flags are parsed.
	var boot Bootstrapper

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Provision the " + appName + " runtime environment",
		Long: "Set up the Python runtime, install dependencies, and download model\n" +
			"artifacts for the " + appName + " legal search engine.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}

			cfg, err := LoadConfigFile(appName, configPath)
			if err != nil {
				return err
			}

			mopts := opts
			if verbose {
				logger, err := newZapLogger()
				if err != nil {
					return err
				}
				mopts = append(mopts, WithLogger(logger))
			}

			boot, err = NewBootstrapper(cfg, mopts...)
			if err != nil {
				return fmt.Errorf("failed to initialize bootstrapper: %w", err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSetup(cmd, &boot, false, false, quiet, verbose)
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.toml", "Path to configuration file")
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	cmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress non-essential output")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	cmd.AddCommand(setupCmd(&boot, &quiet, &verbose))
	cmd.AddCommand(doctorCmd(&boot, &jsonOutput))
	cmd.AddCommand(pythonCmd(&boot, &jsonOutput))
	cmd.AddCommand(fetchCmd(&boot, &quiet, &verbose))
	cmd.AddCommand(artifactsCmd(&boot, &jsonOutput, &quiet))
	cmd.AddCommand(pruneCmd(&boot, &quiet))

	return cmd
}

// newZapLogger builds the development-flavored zap logger used by --verbose.
func newZapLogger() (Logger, error) {
	zcfg := zap.NewDevelopmentConfig()
	zcfg.DisableStacktrace = true
	z, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return zapAdapter{z.Sugar()}, nil
}

// zapAdapter bridges *zap.SugaredLogger to the package Logger interface.
type zapAdapter struct {
	s *zap.SugaredLogger
}

func (a zapAdapter) Debug(msg string, kv ...any) { a.s.Debugw(msg, kv...) }
func (a zapAdapter) Info(msg string, kv ...any)  { a.s.Infow(msg, kv...) }
func (a zapAdapter) Warn(msg string, kv ...any)  { a.s.Warnw(msg, kv...) }
func (a zapAdapter) Error(msg string, kv ...any) { a.s.Errorw(msg, kv...) }

// runSetup executes the full pipeline with a progress bar on downloads.
func runSetup(cmd *cobra.Command, boot *Bootstrapper, force, skipDeps, quiet, verbose bool) error {
	ctx := cmd.Context()

	var opts []SetupOption
	if force {
		opts = append(opts, WithForce())
	}
	if skipDeps {
		opts = append(opts, WithSkipDeps())
	}

	var r *progressRenderer
	if !quiet {
		r = newProgressRenderer(cmd.OutOrStdout(), verbose)
		opts = append(opts, WithProgress(r.update))
	}

	py, err := (*boot).DetectInterpreter(ctx)
	if err != nil {
		return err
	}
	if !quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "Using %s (Python %s)\n", py.Path, py.Version)
	}

	err = (*boot).Run(ctx, opts...)
	if r != nil {
		r.finish()
	}
	if err != nil {
		return err
	}

	if !quiet {
		fmt.Fprintln(cmd.OutOrStdout(), "Environment ready.")
	}
	return nil
}

func setupCmd(boot *Bootstrapper, quiet, verbose *bool) *cobra.Command {
	var (
		force    bool
		skipDeps bool
	)

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Run the full environment setup",
		Long:  "Discover Python, create the venv, install dependencies, create workspace directories, and download model artifacts.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSetup(cmd, boot, force, skipDeps, *quiet, *verbose)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Recreate the venv and re-download artifacts")
	cmd.Flags().BoolVar(&skipDeps, "skip-deps", false, "Skip pip dependency installation")
	return cmd
}

func doctorCmd(boot *Bootstrapper, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the environment without changing it",
		Long:  "Probe interpreter, workspace, venv, and artifacts, and report the state of each. Exits non-zero when a probe fails.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := (*boot).Doctor(cmd.Context())
			if err != nil {
				return err
			}

			if *jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return err
				}
			} else {
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				for _, c := range report.Checks {
					mark := "ok"
					if !c.OK {
						mark = "FAIL"
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\n", mark, c.Name, c.Detail)
				}
				tw.Flush()
			}

			if !report.OK() {
				return fmt.Errorf("environment is not ready")
			}
			return nil
		},
	}
}

func pythonCmd(boot *Bootstrapper, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "python",
		Short: "Print the selected Python interpreter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			py, err := (*boot).DetectInterpreter(cmd.Context())
			if err != nil {
				return err
			}

			if *jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(py)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s (Python %s)\n", py.Path, py.Version)
			return nil
		},
	}
}

func fetchCmd(boot *Bootstrapper, quiet, verbose *bool) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download model artifacts",
		Long:  "Download the configured model artifacts, resuming partial downloads. Artifacts already present and verified are skipped.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var opts []SetupOption
			if force {
				opts = append(opts, WithForce())
			}

			var r *progressRenderer
			if !*quiet {
				r = newProgressRenderer(cmd.OutOrStdout(), *verbose)
				opts = append(opts, WithProgress(r.update))
			}

			err := (*boot).FetchArtifacts(ctx, opts...)
			if r != nil {
				r.finish()
			}
			if err != nil {
				return err
			}

			if !*quiet {
				fmt.Fprintln(cmd.OutOrStdout(), "Artifacts up to date.")
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Re-download artifacts even if already present")
	return cmd
}

func artifactsCmd(boot *Bootstrapper, jsonOutput, quiet *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "artifacts",
		Short: "Manage downloaded model artifacts",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List fetched artifacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			arts, err := (*boot).ListArtifacts(cmd.Context())
			if err != nil {
				return err
			}
			return outputArtifacts(cmd.OutOrStdout(), arts, *jsonOutput)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "verify",
		Short: "Verify artifacts on disk against their declared digests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := (*boot).VerifyArtifacts(cmd.Context())
			if err != nil {
				return err
			}

			if *jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(statuses); err != nil {
					return err
				}
			} else {
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				for _, st := range statuses {
					mark := "ok"
					if !st.Present || !st.Verified {
						mark = "FAIL"
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\n", mark, st.Artifact.File, st.Detail)
				}
				tw.Flush()
			}

			for _, st := range statuses {
				if !st.Present || !st.Verified {
					return fmt.Errorf("artifact verification failed")
				}
			}
			return nil
		},
	})

	var yes bool
	remove := &cobra.Command{
		Use:   "remove <file>",
		Short: "Remove a fetched artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file := args[0]

			if !yes {
				fmt.Fprintf(cmd.OutOrStdout(), "Remove %s? [y/N]: ", file)
				if !confirmPrompt(cmd.InOrStdin()) {
					fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
					return nil
				}
			}

			if err := (*boot).RemoveArtifact(cmd.Context(), file); err != nil {
				return err
			}

			if !*quiet {
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", file)
			}
			return nil
		},
	}
	remove.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation prompt")
	cmd.AddCommand(remove)

	return cmd
}

func pruneCmd(boot *Bootstrapper, quiet *bool) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove partial downloads",
		Long:  "Remove leftover .part files from interrupted downloads. This frees disk space but loses resume state.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				fmt.Fprint(cmd.OutOrStdout(), "Remove partial downloads? [y/N]: ")
				if !confirmPrompt(cmd.InOrStdin()) {
					fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
					return nil
				}
			}

			if err := (*boot).PruneDownloads(cmd.Context()); err != nil {
				return err
			}

			if !*quiet {
				fmt.Fprintln(cmd.OutOrStdout(), "Partial downloads removed.")
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation prompt")
	return cmd
}

// confirmPrompt reads from stdin and returns true only if the user types
// 'y' or 'yes'. Returns false for empty input or any other response.
func confirmPrompt(r io.Reader) bool {
	scanner := bufio.NewScanner(r)
	if scanner.Scan() {
		response := strings.TrimSpace(strings.ToLower(scanner.Text()))
		return response == "y" || response == "yes"
	}
	return false
}

// Output helpers

func outputArtifacts(w io.Writer, arts []FetchedArtifact, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(arts)
	}

	if len(arts) == 0 {
		fmt.Fprintln(w, "No artifacts fetched")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tREPO\tSIZE\tFETCHED")
	for _, a := range arts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			a.Artifact.File,
			a.Artifact.Repo,
			formatSize(a.Size),
			a.FetchedAt.Format("2006-01-02 15:04"),
		)
	}
	return tw.Flush()
}

// progressRenderer aggregates per-artifact progress into a single terminal
// progress line. update is safe to call from multiple download goroutines.
type progressRenderer struct {
	mu      sync.Mutex
	w       io.Writer
	verbose bool

	files      map[string]FetchProgress
	start      time.Time
	lastRender time.Time
	started    bool
}

func newProgressRenderer(w io.Writer, verbose bool) *progressRenderer {
	return &progressRenderer{
		w:       w,
		verbose: verbose,
		files:   make(map[string]FetchProgress),
	}
}

func (r *progressRenderer) update(p FetchProgress) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started {
		r.start = time.Now()
		r.started = true
		fmt.Fprint(r.w, "\x1b[?25l") // hide cursor
	}

	if r.verbose && p.Attempt > 1 && p.BytesCompleted == 0 {
		fmt.Fprintf(r.w, "\r\x1b[KRetrying %s (attempt %d)\n", p.File, p.Attempt)
	}

	r.files[p.File] = p

	// Throttle redraws; individual reads arrive far faster than a terminal
	// needs.
	if time.Since(r.lastRender) < 100*time.Millisecond && p.Phase != "done" {
		return
	}
	r.lastRender = time.Now()
	r.render()
}

// render draws the aggregate progress line.
// Format: Downloading [============>        ] 45% (5.2 MB/s, elapsed: 30s)
func (r *progressRenderer) render() {
	var completed, total, downloaded int64
	for _, p := range r.files {
		completed += p.BytesCompleted
		total += p.BytesTotal
		downloaded += p.BytesDownloaded
	}
	if total == 0 {
		return
	}

	elapsed := time.Since(r.start)
	pct := float64(completed) / float64(total) * 100

	var speed float64
	if elapsed.Seconds() > 0 && downloaded > 0 {
		speed = float64(downloaded) / elapsed.Seconds()
	}

	const barWidth = 30
	filled := int(pct / 100 * float64(barWidth))
	if filled > barWidth {
		filled = barWidth
	}

	var bar string
	if filled >= barWidth {
		bar = strings.Repeat("=", barWidth)
	} else if filled > 0 {
		bar = strings.Repeat("=", filled) + ">" + strings.Repeat(" ", barWidth-filled-1)
	} else {
		bar = ">" + strings.Repeat(" ", barWidth-1)
	}

	fmt.Fprintf(r.w, "\r\x1b[KDownloading [%s] %.0f%% (%s, elapsed: %s)",
		bar, pct, formatSpeed(speed), formatDuration(elapsed))
}

// finish draws the final state and restores the cursor.
func (r *progressRenderer) finish() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started {
		return
	}
	r.render()
	fmt.Fprint(r.w, "\x1b[?25h\n") // show cursor and move past the bar
	r.started = false
}

func formatSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// formatSpeed formats bytes per second as KB/s or MB/s.
func formatSpeed(bytesPerSec float64) string {
	const (
		KB = 1024
		MB = KB * 1024
	)

	if bytesPerSec >= MB {
		return fmt.Sprintf("%.1f MB/s", bytesPerSec/MB)
	}
	if bytesPerSec >= KB {
		return fmt.Sprintf("%.1f KB/s", bytesPerSec/KB)
	}
	return fmt.Sprintf("%.0f B/s", bytesPerSec)
}

// formatDuration formats a duration as human-readable text (e.g. "5s",
// "2m 30s", "1h 5m").
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "0s"
	}
	d = d.Round(time.Second)

	hours := int(d.Hours())
	mins := int(d.Minutes()) % 60
	secs := int(d.Seconds()) % 60

	if hours > 0 {
		if mins > 0 {
			return fmt.Sprintf("%dh %dm", hours, mins)
		}
		return fmt.Sprintf("%dh", hours)
	}
	if mins > 0 {
		if secs > 0 {
			return fmt.Sprintf("%dm %ds", mins, secs)
		}
		return fmt.Sprintf("%dm", mins)
	}
	return fmt.Sprintf("%ds", secs)
}
