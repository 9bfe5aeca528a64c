package main

import (
	"log/slog"
	"os"

	"github.com/shahar-caura/vlmshell/internal/config"
)

var version = "dev"

func main() {
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	config.LoadEnvFiles()

	if err := newRootCmd(logger, level).Execute(); err != nil {
		logger.Error("vlmshell failed", "error", err)
		os.Exit(1)
	}
}
