package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/shahar-caura/vlmshell/internal/app"
	"github.com/shahar-caura/vlmshell/internal/config"
	"github.com/spf13/cobra"
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	resources  string
	verbose    bool
}

func newRootCmd(logger *slog.Logger, level *slog.LevelVar) *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "vlmshell",
		Short:         "Desktop shell core for a vision-language image classifier",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.verbose {
				level.Set(slog.LevelDebug)
			}
		},
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", config.DefaultPath, "path to config file")
	root.PersistentFlags().StringVarP(&opts.resources, "resources", "r", "", "resource root containing the backend directory")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newStartBackendCmd(logger, opts),
		newStopBackendCmd(logger, opts),
		newStatusCmd(logger, opts),
		newClassifyCmd(logger, opts),
		newClassifyDirCmd(logger, opts),
		newWatchCmd(logger, opts),
		newServeCmd(logger, opts),
		newLayoutCmd(logger, opts),
		newCompletionCmd(),
	)
	return root
}

// loadShell reads the config and resolves the resource root. Commands that
// only touch the recorded backend pass needRoot=false and tolerate a missing
// root.
func loadShell(opts *rootOptions, logger *slog.Logger, needRoot bool) (*app.Shell, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	exe, err := os.Executable()
	if err != nil {
		exe = os.Args[0]
	}
	root, err := cfg.ResolveRoot(opts.resources, exe)
	if err != nil {
		if needRoot {
			return nil, err
		}
		logger.Debug("no resource root", "error", err)
	}
	logger.Debug("resource root resolved", "root", root, "config", opts.configPath)
	return app.New(cfg, root, logger), nil
}
