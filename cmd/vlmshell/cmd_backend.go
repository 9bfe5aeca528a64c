package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shahar-caura/vlmshell/internal/state"
	"github.com/spf13/cobra"
)

func newStartBackendCmd(logger *slog.Logger, opts *rootOptions) *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "start-backend",
		Short: "Launch the backend service detached",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			shell, err := loadShell(opts, logger, true)
			if err != nil {
				return err
			}
			msg, err := shell.StartBackendService(cmd.Context())
			if err != nil {
				return err
			}
			if wait {
				if err := shell.WaitReady(cmd.Context()); err != nil {
					return err
				}
				msg = "backend ready"
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "poll backend.health_url until the backend answers")
	return cmd
}

func newStopBackendCmd(logger *slog.Logger, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stop-backend",
		Short: "Stop the recorded backend process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			shell, err := loadShell(opts, logger, false)
			if err != nil {
				return err
			}
			err = shell.Supervisor.Stop(cmd.Context())
			if errors.Is(err, state.ErrNoBackend) {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No backend running.")
				return nil
			}
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "backend stopped")
			return nil
		},
	}
}

func newStatusCmd(logger *slog.Logger, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the recorded backend process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			shell, err := loadShell(opts, logger, false)
			if err != nil {
				return err
			}
			b, err := shell.Supervisor.Status()
			if errors.Is(err, state.ErrNoBackend) {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No backend recorded.")
				return nil
			}
			if err != nil {
				return err
			}

			status := b.Status
			if status == state.Running && !b.Alive() {
				status = "exited"
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "Status:   %s\n", status)
			_, _ = fmt.Fprintf(out, "PID:      %d\n", b.PID)
			_, _ = fmt.Fprintf(out, "Root:     %s\n", b.ResourceRoot)
			_, _ = fmt.Fprintf(out, "Script:   %s\n", b.Script)
			if !b.StartedAt.IsZero() {
				_, _ = fmt.Fprintf(out, "Started:  %s (%s ago)\n",
					b.StartedAt.Format("2006-01-02 15:04:05"), time.Since(b.StartedAt).Truncate(time.Second))
			}
			return nil
		},
	}
}
