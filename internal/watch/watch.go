// Package watch classifies images as they appear in a directory.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/shahar-caura/vlmshell/internal/batch"
	"github.com/shahar-caura/vlmshell/internal/failure"
	"github.com/shahar-caura/vlmshell/internal/result"
)

const defaultSettle = 250 * time.Millisecond

// Event reports the classification of one image that appeared.
type Event struct {
	Path   string         `json:"path"`
	Result *result.Result `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
	Kind   failure.Kind   `json:"kind,omitempty"`
	At     time.Time      `json:"at"`
}

// Sink receives events. It is called from a single goroutine.
type Sink func(Event)

// Watcher watches one directory and classifies new image files once each.
type Watcher struct {
	Classifier batch.Classifier
	Extensions []string
	Settle     time.Duration // quiet period after the last write before classifying
	Existing   bool          // also classify images present when Run starts
	Sink       Sink
	Logger     *slog.Logger
}

// New creates a Watcher delivering events to sink.
func New(c batch.Classifier, sink Sink, logger *slog.Logger) *Watcher {
	return &Watcher{
		Classifier: c,
		Extensions: batch.DefaultExtensions,
		Settle:     defaultSettle,
		Sink:       sink,
		Logger:     logger,
	}
}

// Run watches dir and classifies images under root until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context, dir, root string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	w.Logger.Info("watching for images", "dir", dir, "root", root)

	settle := w.Settle
	if settle <= 0 {
		settle = defaultSettle
	}

	work := make(chan string, 64)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for path := range work {
			w.classify(ctx, root, path)
		}
	}()
	defer func() {
		close(work)
		wg.Wait()
	}()

	pending := make(map[string]time.Time)
	done := make(map[string]bool)

	if w.Existing {
		existing, err := batch.FindImages([]string{dir}, w.Extensions)
		if err != nil {
			w.Logger.Warn("listing existing images", "dir", dir, "error", err)
		}
		for _, p := range existing {
			if filepath.Dir(p) == filepath.Clean(dir) {
				pending[p] = time.Now()
			}
		}
	}

	tick := time.NewTicker(max(settle/2, time.Millisecond))
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			path := event.Name
			if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				delete(pending, path)
				delete(done, path)
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if done[path] || !batch.IsImage(path, w.Extensions) {
				continue
			}
			pending[path] = time.Now().Add(settle)

		case now := <-tick.C:
			for path, due := range pending {
				if now.Before(due) {
					continue
				}
				delete(pending, path)
				if info, err := os.Stat(path); err != nil || info.IsDir() {
					continue
				}
				done[path] = true
				select {
				case work <- path:
				case <-ctx.Done():
					return nil
				}
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.Logger.Error("watcher error", "error", err)
		}
	}
}

func (w *Watcher) classify(ctx context.Context, root, path string) {
	if ctx.Err() != nil {
		return
	}
	ev := Event{Path: path}
	res, err := w.Classifier.ClassifyImage(ctx, root, path)
	ev.At = time.Now()
	if err != nil {
		w.Logger.Warn("classification failed", "image", path, "error", err)
		ev.Error = err.Error()
		ev.Kind = failure.KindOf(err)
	} else {
		w.Logger.Info("image classified", "image", path, "category", res.Category, "confidence", res.Confidence)
		ev.Result = res
	}
	if w.Sink != nil {
		w.Sink(ev)
	}
}
