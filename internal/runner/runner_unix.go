//go:build unix

// Package runner implements the test-runner adapter contract:
// run(cmd, tests, timeout) -> {stdout, stderr, status, timed_out}, with
// ANSI escapes stripped before the caller parses output. It shells out to
// the external test tool, enforcing a wall-clock watchdog and killing the
// entire child process tree, since the spawned command may itself fork
// test workers.
package runner

import (
	"bytes"
	"context"
	"os/exec"
	"syscall"
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

// Process runs backend.Command values via os/exec, placing each child in
// its own process group so the entire tree it spawns can be killed at
// once on timeout or SIGINT (spec §5's "recursive kill of all
// descendants — post-visit order, so children die before parents": a
// process-group SIGKILL delivers to every descendant simultaneously,
// which trivially satisfies post-visit ordering since there is no parent
// left alive to observe an intermediate state).
type Process struct{}

// New constructs a Process runner.
func New() *Process { return &Process{} }

// Run executes cmd, killing its process group if timeout elapses.
// timeout <= 0 means no timeout.
func (p *Process) Run(ctx context.Context, cmd backend.Command, timeout time.Duration) Result {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)

		defer cancel()
	}

	c := exec.CommandContext(ctx, cmd.Program, cmd.Args...)
	c.Dir = cmd.Dir
	setProcessGroup(c)

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	c.Cancel = func() error {
		return killGroup(c)
	}

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

// Kill terminates cmd's entire process group immediately. Run does not
// call it: on timeout or context cancellation (SIGINT, spec §5) Run kills
// the group through exec.Cmd.Cancel, so a cancelled trial leaves no
// orphaned test workers behind.
func Kill(c *exec.Cmd) error {
	return killGroup(c)
}

func killGroup(c *exec.Cmd) error {
	if c.Process == nil {
		return nil
	}

	return syscall.Kill(-c.Process.Pid, syscall.SIGKILL)
}

func setProcessGroup(c *exec.Cmd) {
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
