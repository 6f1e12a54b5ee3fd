//go:build !unix

package runner

import (
	"bytes"
	"context"
	"os/exec"
	"time"

	"github.com/charmbracelet/x/ansi"

	"github.com/necessist/necessist/internal/backend"
)

// Result is one command's outcome.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
	Err      error
}

// Process is the non-POSIX fallback: it can only kill the direct child,
// not its process group, so a test runner that forks its own workers may
// leave orphans behind on timeout. The unix build (runner_unix.go) is
// preferred wherever available.
type Process struct{}

// New constructs a Process runner.
func New() *Process { return &Process{} }

// Run executes cmd, killing the child process if timeout elapses.
func (p *Process) Run(ctx context.Context, cmd backend.Command, timeout time.Duration) Result {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)

		defer cancel()
	}

	c := exec.CommandContext(ctx, cmd.Program, cmd.Args...)
	c.Dir = cmd.Dir

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()

	res := Result{
		Stdout: ansi.Strip(stdout.String()),
		Stderr: ansi.Strip(stderr.String()),
	}

	if ctx.Err() == context.DeadlineExceeded {
		res.TimedOut = true
		return res
	}

	if exitErr, ok := err.(*exec.ExitError); ok {
		res.ExitCode = exitErr.ExitCode()
		res.Err = err

		return res
	}

	res.Err = err

	return res
}

// Kill terminates cmd's process, best-effort.
func Kill(c *exec.Cmd) error {
	if c.Process == nil {
		return nil
	}

	return c.Process.Kill()
}
