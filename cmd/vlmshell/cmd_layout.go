package main

import (
	"fmt"
	"log/slog"

	"github.com/shahar-caura/vlmshell/internal/layout"
	"github.com/spf13/cobra"
)

func newLayoutCmd(logger *slog.Logger, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "layout",
		Short: "Show the resolved backend layout and interpreter candidates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			shell, err := loadShell(opts, logger, true)
			if err != nil {
				return err
			}
			lay := shell.Layout()
			out := cmd.OutOrStdout()

			_, _ = fmt.Fprintf(out, "Root:            %s\n", lay.Root)
			_, _ = fmt.Fprintf(out, "Backend dir:     %s%s\n", lay.BackendDir, missing(layout.IsDir(lay.BackendDir)))
			_, _ = fmt.Fprintf(out, "Start script:    %s%s\n", lay.StartScript, missing(layout.IsFile(lay.StartScript)))
			_, _ = fmt.Fprintf(out, "Classify script: %s%s\n", lay.ClassifyScript, missing(layout.IsFile(lay.ClassifyScript)))
			_, _ = fmt.Fprintln(out, "Interpreters:")
			for i, name := range shell.Interpreters() {
				_, _ = fmt.Fprintf(out, "  %d. %s\n", i+1, name)
			}
			return nil
		},
	}
}

func missing(ok bool) string {
	if ok {
		return ""
	}
	return "  (missing)"
}
