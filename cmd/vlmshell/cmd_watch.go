package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/shahar-caura/vlmshell/internal/watch"
	"github.com/spf13/cobra"
)

func newWatchCmd(logger *slog.Logger, opts *rootOptions) *cobra.Command {
	var existing bool

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Classify images as they appear in a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			shell, err := loadShell(opts, logger, true)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			out := cmd.OutOrStdout()
			enc := json.NewEncoder(out)
			w := shell.Watcher(func(ev watch.Event) {
				if err := enc.Encode(ev); err != nil {
					_, _ = fmt.Fprintln(cmd.ErrOrStderr(), err)
				}
			})
			w.Existing = existing
			return w.Run(ctx, args[0], shell.Root)
		},
	}

	cmd.Flags().BoolVar(&existing, "existing", false, "also classify images already in the directory")
	return cmd
}
