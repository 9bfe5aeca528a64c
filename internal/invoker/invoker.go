// Package invoker runs the classification script for one image and returns a
// normalized result.
package invoker

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/shahar-caura/vlmshell/internal/failure"
	"github.com/shahar-caura/vlmshell/internal/launcher"
	"github.com/shahar-caura/vlmshell/internal/layout"
	"github.com/shahar-caura/vlmshell/internal/result"
)

// Runner runs a captured launch request.
type Runner interface {
	Run(ctx context.Context, req launcher.Request) (*launcher.Outcome, error)
}

// Invoker classifies images through the backend's classify script. It holds
// no per-call state and is safe for concurrent use.
type Invoker struct {
	Names        layout.Names
	Interpreters []string // system interpreter names, in order
	Bundled      bool     // prefer the interpreter shipped in the resource root
	Timeout      time.Duration
	Runner       Runner
	Logger       *slog.Logger
}

// New creates an Invoker with the default layout and interpreters.
func New(runner Runner, logger *slog.Logger) *Invoker {
	return &Invoker{
		Names:        layout.DefaultNames,
		Interpreters: layout.DefaultInterpreters,
		Bundled:      true,
		Runner:       runner,
		Logger:       logger,
	}
}

// ClassifyImage validates imagePath, runs the classify script from root with
// the image as its only argument, and parses its stdout.
//
// There is no timeout unless Timeout is set; a hung script blocks the call.
func (i *Invoker) ClassifyImage(ctx context.Context, root, imagePath string) (*result.Result, error) {
	logger := i.Logger.With("invocation", uuid.NewString())

	if abs, err := filepath.Abs(imagePath); err == nil {
		imagePath = abs
	}

	info, err := os.Stat(imagePath)
	if err != nil || info.IsDir() {
		logger.Warn("image not found", "image", imagePath, "error", err)
		if err == nil {
			return nil, failure.New(failure.InputNotFound, "image is a directory: %s", imagePath)
		}
		return nil, failure.Wrap(failure.InputNotFound, err, "image not found: %s", imagePath)
	}
	probeImage(logger, imagePath)

	lay := i.Names.Resolve(root)
	logger.Debug("layout resolved",
		"root", lay.Root,
		"backend_dir", lay.BackendDir,
		"script", lay.ClassifyScript,
	)

	if !layout.IsFile(lay.ClassifyScript) {
		logger.Error("classify script not found", "script", lay.ClassifyScript)
		logDirContents(logger, lay.BackendDir)
		return nil, failure.New(failure.ScriptNotFound, "classify script not found: %s", lay.ClassifyScript)
	}

	if i.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.Timeout)
		defer cancel()
	}

	out, err := i.Runner.Run(ctx, launcher.Request{
		Commands: layout.Interpreters(root, i.Bundled, i.Interpreters),
		Args:     []string{lay.ClassifyScript, imagePath},
		Dir:      lay.BackendDir,
		Capture:  true,
	})
	if err != nil {
		logger.Error("classification failed", "image", imagePath, "kind", failure.KindOf(err), "error", err)
		return nil, err
	}

	r, src, err := result.ParseSource(string(out.Stdout))
	if err != nil {
		logger.Error("unusable classification output", "image", imagePath, "error", err)
		return nil, err
	}

	logger.Info("image classified",
		"image", imagePath,
		"interpreter", out.Command,
		"category", r.Category,
		"confidence", r.Confidence,
		"parse", src,
	)
	return r, nil
}

// probeImage reads the image to log its size. Read failures are logged only.
func probeImage(logger *slog.Logger, path string) {
	f, err := os.Open(path)
	if err != nil {
		logger.Warn("image not readable", "image", path, "error", err)
		return
	}
	defer f.Close()

	n, err := io.Copy(io.Discard, f)
	if err != nil {
		logger.Warn("image read failed", "image", path, "error", err)
		return
	}
	logger.Debug("image found", "image", path, "bytes", n)
}

func logDirContents(logger *slog.Logger, dir string) {
	if !layout.IsDir(dir) {
		logger.Warn("backend directory missing", "dir", dir)
		return
	}
	entries, err := layout.Contents(dir)
	if err != nil {
		logger.Warn("cannot list backend directory", "dir", dir, "error", err)
		return
	}
	logger.Info("backend directory contents", "dir", dir, "entries", entries)
}
