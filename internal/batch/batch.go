// Package batch classifies many images with bounded parallelism.
package batch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shahar-caura/vlmshell/internal/result"
	"golang.org/x/sync/errgroup"
)

// DefaultExtensions are the image file extensions selected by FindImages.
var DefaultExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".bmp"}

const defaultParallel = 4

// Classifier classifies one image under a resource root.
type Classifier interface {
	ClassifyImage(ctx context.Context, root, imagePath string) (*result.Result, error)
}

// Item is the outcome for one image. Exactly one of Result and Err is set.
type Item struct {
	Path   string
	Result *result.Result
	Err    error
}

// Report holds every item of one batch in input order.
type Report struct {
	ID       string
	Items    []Item
	Duration time.Duration
}

// Failed counts the items that carry an error.
func (r *Report) Failed() int {
	n := 0
	for _, it := range r.Items {
		if it.Err != nil {
			n++
		}
	}
	return n
}

// Runner classifies images concurrently.
type Runner struct {
	Classifier Classifier
	Parallel   int
	Logger     *slog.Logger
}

// New creates a Runner with the default parallelism.
func New(c Classifier, logger *slog.Logger) *Runner {
	return &Runner{Classifier: c, Parallel: defaultParallel, Logger: logger}
}

// Run classifies images from root. A failing image never stops the batch;
// its error is recorded on its Item. Cancelling ctx fails the images not yet
// started with ctx.Err().
func (r *Runner) Run(ctx context.Context, root string, images []string) *Report {
	rep := &Report{ID: uuid.NewString(), Items: make([]Item, len(images))}
	logger := r.Logger.With("batch", rep.ID)

	parallel := r.Parallel
	if parallel <= 0 {
		parallel = defaultParallel
	}
	logger.Info("batch started", "images", len(images), "workers", parallel)
	start := time.Now()

	g := new(errgroup.Group)
	g.SetLimit(parallel)
	for i, path := range images {
		rep.Items[i].Path = path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				rep.Items[i].Err = err
				return nil
			}
			res, err := r.Classifier.ClassifyImage(ctx, root, path)
			if err != nil {
				logger.Warn("image failed", "image", path, "error", err)
				rep.Items[i].Err = err
				return nil
			}
			rep.Items[i].Result = res
			return nil
		})
	}
	_ = g.Wait() // errors captured per item

	rep.Duration = time.Since(start)
	logger.Info("batch finished", "images", len(images), "failed", rep.Failed(), "duration", rep.Duration)
	return rep
}

// FindImages expands paths into image files. Files are kept when their
// extension matches; directories are walked recursively. Matching is
// case-insensitive. The result is sorted per argument and free of duplicates.
func FindImages(paths []string, exts []string) ([]string, error) {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	seen := make(map[string]bool)
	var images []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			images = append(images, p)
		}
	}

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("finding images: %w", err)
		}
		if !info.IsDir() {
			if IsImage(p, exts) {
				add(p)
			}
			continue
		}

		var found []string
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && IsImage(path, exts) {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", p, err)
		}
		slices.Sort(found)
		for _, f := range found {
			add(f)
		}
	}
	return images, nil
}

// IsImage reports whether path has one of exts, ignoring case.
func IsImage(path string, exts []string) bool {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}
