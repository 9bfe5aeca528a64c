// Package launcher starts external programs either detached (service mode)
// or captured (one-shot mode), trying an ordered list of candidate commands.
package launcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/shahar-caura/vlmshell/internal/failure"
)

// Request describes one launch. Commands are candidates tried in order; a
// candidate is skipped only when the OS refuses to spawn it.
type Request struct {
	Commands []string
	Args     []string
	Dir      string
	Capture  bool
}

// Outcome is the result of exactly one spawned process.
type Outcome struct {
	Command  string
	Pid      int
	ExitCode int // -1 while a detached child is still running
	Stdout   []byte
	Stderr   []byte
	Detached bool

	// Done delivers the wait result of a detached child once it is reaped,
	// then closes. Nil for captured runs.
	Done <-chan error
}

// Success reports whether a captured child exited with status 0.
func (o *Outcome) Success() bool { return !o.Detached && o.ExitCode == 0 }

// Launcher spawns child processes.
type Launcher struct {
	Logger *slog.Logger

	// commandContext is overridable for testing.
	commandContext func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// New creates a Launcher backed by os/exec.
func New(logger *slog.Logger) *Launcher {
	return &Launcher{
		Logger:         logger,
		commandContext: exec.CommandContext,
	}
}

// Launch dispatches on req.Capture: captured requests wait for the child,
// detached requests return once the spawn call returns.
func (l *Launcher) Launch(ctx context.Context, req Request) (*Outcome, error) {
	if req.Capture {
		return l.Run(ctx, req)
	}
	return l.Start(ctx, req)
}

// Start spawns the first candidate the OS accepts and returns without waiting.
// The child inherits stdout/stderr, outlives ctx, and is reaped in the
// background.
func (l *Launcher) Start(ctx context.Context, req Request) (*Outcome, error) {
	if len(req.Commands) == 0 {
		return nil, failure.New(failure.LaunchFailed, "no command to launch")
	}

	var spawnErrs []error
	for i, name := range req.Commands {
		cmd := l.commandContext(context.WithoutCancel(ctx), name, req.Args...)
		cmd.Dir = req.Dir
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		detach(cmd)

		l.Logger.Info("starting detached process", "cmd", name, "args", req.Args, "dir", req.Dir, "attempt", i+1)
		if err := cmd.Start(); err != nil {
			l.Logger.Warn("spawn failed", "cmd", name, "error", err)
			spawnErrs = append(spawnErrs, fmt.Errorf("%s: %w", name, err))
			continue
		}

		pid := cmd.Process.Pid
		done := make(chan error, 1)
		go func() {
			err := cmd.Wait()
			l.Logger.Info("detached process exited", "cmd", name, "pid", pid, "error", err)
			done <- err
			close(done)
		}()

		l.Logger.Info("detached process started", "cmd", name, "pid", pid)
		return &Outcome{Command: name, Pid: pid, ExitCode: -1, Detached: true, Done: done}, nil
	}

	return nil, failure.Wrap(failure.LaunchFailed, errors.Join(spawnErrs...),
		"could not start any of [%s]", strings.Join(req.Commands, ", "))
}

// Run spawns the first candidate the OS accepts, waits for it, and captures
// stdout and stderr in full. A child that exits non-zero yields a ScriptFailed
// error carrying its stderr, never an Outcome.
func (l *Launcher) Run(ctx context.Context, req Request) (*Outcome, error) {
	if len(req.Commands) == 0 {
		return nil, failure.New(failure.LaunchFailed, "no command to launch")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var spawnErrs []error
	for i, name := range req.Commands {
		cmd := l.commandContext(ctx, name, req.Args...)
		cmd.Dir = req.Dir
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		l.Logger.Info("launching", "cmd", name, "args", req.Args, "attempt", i+1, "of", len(req.Commands))
		if err := cmd.Start(); err != nil {
			l.Logger.Warn("spawn failed, trying next candidate", "cmd", name, "error", err)
			spawnErrs = append(spawnErrs, fmt.Errorf("%s: %w", name, err))
			continue
		}

		waitErr := cmd.Wait()
		out := &Outcome{
			Command:  name,
			Pid:      cmd.Process.Pid,
			ExitCode: cmd.ProcessState.ExitCode(),
			Stdout:   stdout.Bytes(),
			Stderr:   stderr.Bytes(),
		}
		l.Logger.Debug("process finished",
			"cmd", name,
			"exit_code", out.ExitCode,
			"stdout_bytes", len(out.Stdout),
			"stderr", strings.TrimSpace(stderr.String()),
		)

		if waitErr != nil {
			detail := strings.TrimSpace(stderr.String())
			if ctx.Err() != nil {
				return nil, failure.Wrap(failure.ScriptFailed, ctx.Err(), "%s terminated: %s", name, detail)
			}
			l.Logger.Warn("process failed", "cmd", name, "exit_code", out.ExitCode, "stderr", detail)
			return nil, failure.Wrap(failure.ScriptFailed, waitErr, "script failed (exit status %d): %s", out.ExitCode, detail)
		}
		return out, nil
	}

	return nil, failure.Wrap(failure.LaunchFailed, errors.Join(spawnErrs...),
		"could not start any of [%s]", strings.Join(req.Commands, ", "))
}
