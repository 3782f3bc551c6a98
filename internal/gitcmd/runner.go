// Package gitcmd invokes the git binary with controlled argument lists.
package gitcmd

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"
)

// Result is the structured outcome of a git invocation. A failed command is
// reported through OK=false and Output, never through a returned error.
type Result struct {
	OK     bool
	Stdout string
	Stderr string
	// Output folds stderr, stdout, and the execution error into a single
	// diagnostic string. Empty when OK is true.
	Output string
}

// Runner executes git commands in a given directory.
//
// Every invocation prepends -c core.quotepath=false so that non-ASCII paths
// come back as literal UTF-8 instead of octal-escaped quoting.
type Runner struct {
	// Timeout bounds a single git invocation. Zero means no timeout beyond
	// the caller's context.
	Timeout time.Duration
}

// NewRunner returns a Runner with the given per-command timeout.
func NewRunner(timeout time.Duration) *Runner {
	return &Runner{Timeout: timeout}
}

// Run executes git with the given arguments in dir.
func (r *Runner) Run(ctx context.Context, dir string, args ...string) Result {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	full := append([]string{"-c", "core.quotepath=false"}, args...)
	cmd := exec.CommandContext(ctx, "git", full...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		return Result{
			OK:     false,
			Stdout: stdout.String(),
			Stderr: stderr.String(),
			Output: foldDiagnostics(stderr.String(), stdout.String(), err),
		}
	}

	return Result{
		OK:     true,
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
}

// foldDiagnostics combines stderr, stdout, and the execution error into one
// diagnostic string, skipping empty parts.
func foldDiagnostics(stderr, stdout string, err error) string {
	var parts []string
	if s := strings.TrimSpace(stderr); s != "" {
		parts = append(parts, s)
	}
	if s := strings.TrimSpace(stdout); s != "" {
		parts = append(parts, s)
	}
	if err != nil {
		parts = append(parts, err.Error())
	}
	return strings.Join(parts, "\n")
}
