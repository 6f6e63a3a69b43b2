package bootstrap

import (
	"context"
	"fmt"
	"os/exec"
)

// CommandRunner is the interface for subprocess execution.
// It exists so interpreter probing and venv provisioning can be tested
// without a Python installation.
type CommandRunner interface {
	// LookPath searches for an executable in the directories named by PATH.
	LookPath(name string) (string, error)

	// CombinedOutput runs the command and returns its combined stdout and
	// stderr. A non-zero exit status is returned as an error alongside
	// whatever output was produced.
	CombinedOutput(ctx context.Context, name string, args ...string) ([]byte, error)
}

// execRunner implements CommandRunner using os/exec.
type execRunner struct{}

// Ensure execRunner implements CommandRunner.
var _ CommandRunner = execRunner{}

func (execRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

func (execRunner) CombinedOutput(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// runChecked executes a command through the runner and wraps non-zero exits
// in ErrCommandFailed, including the tail of the output for diagnostics.
func runChecked(ctx context.Context, runner CommandRunner, name string, args ...string) error {
	out, err := runner.CombinedOutput(ctx, name, args...)
	if err != nil {
		return fmt.Errorf("%w: %s: %v: %s", ErrCommandFailed, name, err, tail(out, 512))
	}
	return nil
}

// tail returns at most n trailing bytes of b as a string.
func tail(b []byte, n int) string {
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return string(b)
}
