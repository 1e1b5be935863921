// Package timew runs the timewarrior command line tool.
package timew

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// DefaultTimeout bounds a single timew invocation.
const DefaultTimeout = 30 * time.Second

// Runner invokes timew.
type Runner struct {
	// Command is the timew executable. Empty means "timew".
	Command string
	Timeout time.Duration
	Logger  *slog.Logger
}

// CommandError reports a failed timew invocation.
type CommandError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("timew %s: %s", strings.Join(e.Args, " "), msg)
}

func (e *CommandError) Unwrap() error { return e.Err }

// ExportArgs builds the arguments for exporting [start, end) intervals.
// Extra filter tags are appended after the range.
func ExportArgs(start, end time.Time, tags ...string) []string {
	args := []string{"export", start.UTC().Format(time.DateOnly), "-", end.UTC().Format(time.DateOnly)}
	return append(args, tags...)
}

// Export returns the JSON export of intervals between start and end.
func (r Runner) Export(ctx context.Context, start, end time.Time, tags ...string) ([]byte, error) {
	return r.run(ctx, ExportArgs(start, end, tags...)...)
}

// Version returns the installed timew version string.
func (r Runner) Version(ctx context.Context) (string, error) {
	out, err := r.run(ctx, "--version")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// Available reports whether the timew executable can be found.
func (r Runner) Available() bool {
	_, err := exec.LookPath(r.command())
	return err == nil
}

func (r Runner) run(ctx context.Context, args ...string) ([]byte, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("Running timew", "command", r.command(), "args", args)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.command(), args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, &CommandError{Args: args, Stderr: stderr.String(), Err: err}
	}
	return stdout.Bytes(), nil
}

func (r Runner) command() string {
	if r.Command == "" {
		return "timew"
	}
	return r.Command
}
