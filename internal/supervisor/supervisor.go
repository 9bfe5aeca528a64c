// Package supervisor starts and stops the long-lived classifier backend.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/shahar-caura/vlmshell/internal/failure"
	"github.com/shahar-caura/vlmshell/internal/launcher"
	"github.com/shahar-caura/vlmshell/internal/layout"
	"github.com/shahar-caura/vlmshell/internal/state"
)

// Starter spawns a detached process.
type Starter interface {
	Start(ctx context.Context, req launcher.Request) (*launcher.Outcome, error)
}

const (
	defaultShell         = "bash"
	defaultReadyAttempts = 30
	defaultReadyInterval = time.Second
	defaultStopGrace     = 5 * time.Second
	healthProbeTimeout   = 2 * time.Second
)

// Supervisor launches the backend start script and tracks the resulting
// process.
type Supervisor struct {
	Names     layout.Names
	Shell     string // interpreter for the start script, no fallback
	HealthURL string // optional; enables the already-running check and WaitReady

	ReadyAttempts int
	ReadyInterval time.Duration
	StopGrace     time.Duration

	Launcher Starter
	Store    *state.Store // optional
	Logger   *slog.Logger

	client *http.Client

	mu  sync.Mutex
	pid int
}

// New creates a Supervisor with default settings.
func New(starter Starter, store *state.Store, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		Names:         layout.DefaultNames,
		Shell:         defaultShell,
		ReadyAttempts: defaultReadyAttempts,
		ReadyInterval: defaultReadyInterval,
		StopGrace:     defaultStopGrace,
		Launcher:      starter,
		Store:         store,
		Logger:        logger,
		client:        &http.Client{Timeout: healthProbeTimeout},
	}
}

// StartBackend is the unattended boot path. It runs Start and only logs a
// failure; it never returns an error to the caller.
func (s *Supervisor) StartBackend(ctx context.Context, root string) {
	if err := s.Start(ctx, root); err != nil {
		s.Logger.Error("backend startup failed", "kind", failure.KindOf(err), "error", err)
		return
	}
}

// Start verifies the backend layout under root and spawns the start script
// detached. It returns as soon as the spawn call returns.
func (s *Supervisor) Start(ctx context.Context, root string) error {
	if s.HealthURL != "" && s.Healthy(ctx) {
		s.Logger.Info("backend already running", "url", s.HealthURL)
		return nil
	}

	lay := s.Names.Resolve(root)
	s.Logger.Info("starting backend", "root", lay.Root, "backend_dir", lay.BackendDir)

	if !layout.IsDir(lay.BackendDir) {
		s.Logger.Error("backend directory not found", "dir", lay.BackendDir)
		s.logContents(lay.Root)
		return failure.New(failure.BackendNotFound, "backend directory not found: %s", lay.BackendDir)
	}
	if !layout.IsFile(lay.StartScript) {
		s.Logger.Error("start script not found", "script", lay.StartScript)
		s.logContents(lay.BackendDir)
		return failure.New(failure.ScriptNotFound, "start script not found: %s", lay.StartScript)
	}

	shell := s.Shell
	if shell == "" {
		shell = defaultShell
	}
	out, err := s.Launcher.Start(ctx, launcher.Request{
		Commands: []string{shell},
		Args:     []string{"./" + filepath.Base(lay.StartScript)},
		Dir:      lay.BackendDir,
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.pid = out.Pid
	s.mu.Unlock()

	s.Logger.Info("backend started", "pid", out.Pid, "script", lay.StartScript)

	if s.Store != nil {
		rec := &state.Backend{
			PID:          out.Pid,
			Command:      out.Command,
			ResourceRoot: lay.Root,
			Script:       lay.StartScript,
			Status:       state.Running,
			StartedAt:    time.Now(),
		}
		if err := s.Store.Save(rec); err != nil {
			s.Logger.Warn("could not record backend state", "error", err)
		}
	}

	if out.Done != nil {
		go s.watchExit(out.Pid, out.Done)
	}
	return nil
}

// watchExit forgets pid and marks its record stopped once the child is reaped.
func (s *Supervisor) watchExit(pid int, done <-chan error) {
	err := <-done
	s.Logger.Info("backend exited", "pid", pid, "error", err)

	s.mu.Lock()
	if s.pid == pid {
		s.pid = 0
	}
	s.mu.Unlock()

	s.markStopped(pid)
}

func (s *Supervisor) markStopped(pid int) {
	if s.Store == nil {
		return
	}
	rec, err := s.Store.Load()
	if err != nil || rec.PID != pid || rec.Status != state.Running {
		return
	}
	rec.Status = state.Stopped
	if err := s.Store.Save(rec); err != nil {
		s.Logger.Warn("could not record backend state", "error", err)
	}
}

// PID returns the PID of the backend started by this Supervisor, or 0.
func (s *Supervisor) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pid
}

// Healthy reports whether HealthURL answers with a 2xx status.
func (s *Supervisor) Healthy(ctx context.Context) bool {
	if s.HealthURL == "" {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.HealthURL, nil)
	if err != nil {
		return false
	}
	resp, err := s.httpClient().Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// WaitReady polls HealthURL every ReadyInterval, up to ReadyAttempts times.
func (s *Supervisor) WaitReady(ctx context.Context) error {
	if s.HealthURL == "" {
		return errors.New("no backend health url configured")
	}
	attempts := s.ReadyAttempts
	if attempts <= 0 {
		attempts = defaultReadyAttempts
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		s.Logger.Debug("waiting for backend", "attempt", attempt, "max", attempts)
		if s.Healthy(ctx) {
			s.Logger.Info("backend ready", "url", s.HealthURL, "attempt", attempt)
			return nil
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.ReadyInterval):
		}
	}
	return fmt.Errorf("backend not ready after %d attempts", attempts)
}

// Stop terminates the backend: SIGTERM to its process group, then SIGKILL
// once StopGrace elapses. The PID comes from this Supervisor or, failing
// that, from the state store. A recorded PID is signalled only while it is
// alive and, when HealthURL is set, the backend answers on it.
func (s *Supervisor) Stop(ctx context.Context) error {
	pid := s.PID()
	if pid == 0 {
		var err error
		if pid, err = s.recordedPID(ctx); err != nil {
			return err
		}
	}

	s.Logger.Info("stopping backend", "pid", pid)
	if err := terminate(ctx, pid, s.stopGrace()); err != nil {
		return fmt.Errorf("stopping backend %d: %w", pid, err)
	}

	s.mu.Lock()
	if s.pid == pid {
		s.pid = 0
	}
	s.mu.Unlock()

	s.markStopped(pid)
	s.Logger.Info("backend stopped", "pid", pid)
	return nil
}

func (s *Supervisor) recordedPID(ctx context.Context) (int, error) {
	if s.Store == nil {
		return 0, state.ErrNoBackend
	}
	rec, err := s.Store.Load()
	if err != nil {
		return 0, err
	}
	if rec.Status != state.Running {
		return 0, state.ErrNoBackend
	}
	if !rec.Alive() {
		s.Logger.Info("recorded backend is gone", "pid", rec.PID)
		s.markStopped(rec.PID)
		return 0, state.ErrNoBackend
	}
	if s.HealthURL != "" && !s.Healthy(ctx) {
		return 0, fmt.Errorf("recorded backend pid %d does not answer on %s, refusing to signal it", rec.PID, s.HealthURL)
	}
	return rec.PID, nil
}

// Status returns the recorded backend, or one describing the process started
// by this Supervisor when no store is configured.
func (s *Supervisor) Status() (*state.Backend, error) {
	if s.Store != nil {
		return s.Store.Load()
	}
	pid := s.PID()
	if pid == 0 {
		return nil, state.ErrNoBackend
	}
	return &state.Backend{PID: pid, Status: state.Running}, nil
}

func terminate(ctx context.Context, pid int, grace time.Duration) error {
	if !launcher.Alive(pid) {
		return nil
	}
	if err := launcher.Signal(pid, syscall.SIGTERM); err != nil && launcher.Alive(pid) {
		return err
	}

	deadline := time.Now().Add(grace)
	for launcher.Alive(pid) {
		if time.Now().After(deadline) {
			return launcher.Signal(pid, syscall.SIGKILL)
		}
		select {
		case <-ctx.Done():
			_ = launcher.Signal(pid, syscall.SIGKILL)
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
	return nil
}

func (s *Supervisor) stopGrace() time.Duration {
	if s.StopGrace <= 0 {
		return defaultStopGrace
	}
	return s.StopGrace
}

func (s *Supervisor) httpClient() *http.Client {
	if s.client == nil {
		return http.DefaultClient
	}
	return s.client
}

func (s *Supervisor) logContents(dir string) {
	if !layout.IsDir(dir) {
		s.Logger.Warn("directory missing", "dir", dir)
		return
	}
	entries, err := layout.Contents(dir)
	if err != nil {
		s.Logger.Warn("cannot list directory", "dir", dir, "error", err)
		return
	}
	s.Logger.Info("directory contents", "dir", dir, "entries", entries)
}
