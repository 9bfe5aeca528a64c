package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/shahar-caura/vlmshell/internal/server"
	"github.com/shahar-caura/vlmshell/internal/watch"
	"github.com/spf13/cobra"
)

func newServeCmd(logger *slog.Logger, opts *rootOptions) *cobra.Command {
	var port int
	var watchDir string
	var noBoot bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP bridge for a web host UI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			shell, err := loadShell(opts, logger, true)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("port") {
				port = shell.Config.Server.Port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			srv, err := server.New(port, version, shell, logger)
			if err != nil {
				return err
			}

			if !noBoot {
				shell.Boot(ctx)
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := shell.Shutdown(shutdownCtx); err != nil {
					logger.Warn("backend shutdown failed", "error", err)
				}
			}()

			if watchDir != "" {
				w := shell.Watcher(func(ev watch.Event) { srv.Hub().Publish(ev) })
				go func() {
					if err := w.Run(ctx, watchDir, shell.Root); err != nil {
						logger.Error("watcher stopped", "dir", watchDir, "error", err)
					}
				}()
			}

			return srv.Run(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 8787, "HTTP server port (default from server.port)")
	cmd.Flags().StringVar(&watchDir, "watch", "", "directory whose new images are classified and streamed on /api/events")
	cmd.Flags().BoolVar(&noBoot, "no-boot", false, "do not start the backend on boot")
	return cmd
}
