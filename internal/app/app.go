// Package app assembles the shell: it binds one resource root to the backend
// supervisor and the classification invoker and exposes the host commands.
package app

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/shahar-caura/vlmshell/internal/batch"
	"github.com/shahar-caura/vlmshell/internal/config"
	"github.com/shahar-caura/vlmshell/internal/invoker"
	"github.com/shahar-caura/vlmshell/internal/launcher"
	"github.com/shahar-caura/vlmshell/internal/layout"
	"github.com/shahar-caura/vlmshell/internal/result"
	"github.com/shahar-caura/vlmshell/internal/state"
	"github.com/shahar-caura/vlmshell/internal/supervisor"
	"github.com/shahar-caura/vlmshell/internal/watch"
)

// Shell is the host-facing facade.
type Shell struct {
	Root       string
	Config     *config.Config
	Supervisor *supervisor.Supervisor
	Invoker    *invoker.Invoker
	Batch      *batch.Runner
	Logger     *slog.Logger

	booted atomic.Bool
	boot   sync.WaitGroup
}

// New wires a Shell for root from cfg.
func New(cfg *config.Config, root string, logger *slog.Logger) *Shell {
	l := launcher.New(logger)

	stateDir := cfg.State.Dir
	if stateDir == "" {
		stateDir = state.DefaultDir()
	}

	sup := supervisor.New(l, state.NewStore(stateDir), logger)
	sup.Names = cfg.Names()
	sup.Shell = cfg.Backend.Shell
	sup.HealthURL = cfg.Backend.HealthURL
	sup.ReadyAttempts = cfg.Backend.ReadyAttempts
	sup.ReadyInterval = cfg.Backend.ReadyInterval.Duration
	sup.StopGrace = cfg.Backend.StopGrace.Duration

	inv := invoker.New(l, logger)
	inv.Names = cfg.Names()
	inv.Interpreters = cfg.Classify.Interpreters
	inv.Bundled = cfg.Classify.UseBundled()
	inv.Timeout = cfg.Classify.Timeout.Duration

	s := &Shell{
		Root:       root,
		Config:     cfg,
		Supervisor: sup,
		Invoker:    inv,
		Logger:     logger,
	}
	s.Batch = batch.New(inv, logger)
	s.Batch.Parallel = cfg.Batch.Parallel
	return s
}

// Layout returns the resolved backend paths for the shell's root.
func (s *Shell) Layout() layout.Layout { return s.Config.Names().Resolve(s.Root) }

// Interpreters returns the launch candidates for the classify script.
func (s *Shell) Interpreters() []string {
	return layout.Interpreters(s.Root, s.Invoker.Bundled, s.Invoker.Interpreters)
}

// StartBackendService launches the backend and returns an acknowledgement or
// the failure.
func (s *Shell) StartBackendService(ctx context.Context) (string, error) {
	if err := s.Supervisor.Start(ctx, s.Root); err != nil {
		return "", err
	}
	return "backend started", nil
}

// ClassifyImage classifies one image with the shell's root.
func (s *Shell) ClassifyImage(ctx context.Context, imagePath string) (*result.Result, error) {
	return s.Invoker.ClassifyImage(ctx, s.Root, imagePath)
}

// ClassifyAll classifies images in parallel.
func (s *Shell) ClassifyAll(ctx context.Context, images []string) *batch.Report {
	return s.Batch.Run(ctx, s.Root, images)
}

// Watcher returns a directory watcher that classifies through this Shell.
func (s *Shell) Watcher(sink watch.Sink) *watch.Watcher {
	w := watch.New(s.Invoker, sink, s.Logger)
	w.Extensions = s.Config.Batch.Extensions
	return w
}

// WaitReady blocks until the backend health URL answers.
func (s *Shell) WaitReady(ctx context.Context) error { return s.Supervisor.WaitReady(ctx) }

// BackendPID returns the PID of the backend this process started, or 0.
func (s *Shell) BackendPID() int { return s.Supervisor.PID() }

// Boot starts the backend in the background. Failures are logged and never
// reach the caller.
func (s *Shell) Boot(ctx context.Context) {
	s.booted.Store(true)
	s.boot.Add(1)
	go func() {
		defer s.boot.Done()
		s.Supervisor.StartBackend(ctx, s.Root)
	}()
}

// Shutdown stops the backend if Boot started one.
func (s *Shell) Shutdown(ctx context.Context) error {
	s.boot.Wait()
	if !s.booted.Load() || s.Supervisor.PID() == 0 {
		return nil
	}
	return s.Supervisor.Stop(ctx)
}
