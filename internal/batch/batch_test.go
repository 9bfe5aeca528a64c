package batch

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shahar-caura/vlmshell/internal/failure"
	"github.com/shahar-caura/vlmshell/internal/result"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// fakeClassifier labels images by base name and fails those named in fail.
type fakeClassifier struct {
	fail  map[string]bool
	delay time.Duration

	mu      sync.Mutex
	roots   []string
	active  atomic.Int32
	maxSeen atomic.Int32
}

func (f *fakeClassifier) ClassifyImage(ctx context.Context, root, imagePath string) (*result.Result, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		cur := f.maxSeen.Load()
		if n <= cur || f.maxSeen.CompareAndSwap(cur, n) {
			break
		}
	}

	f.mu.Lock()
	f.roots = append(f.roots, root)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	name := filepath.Base(imagePath)
	if f.fail[name] {
		return nil, failure.New(failure.ScriptFailed, "boom: %s", name)
	}
	return &result.Result{Category: name, Confidence: 0.5, OriginalResponse: name}, nil
}

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("img"), 0o644))
}

func TestFindImages_WalksAndFilters(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "b.png"))
	touch(t, filepath.Join(dir, "a.JPG"))
	touch(t, filepath.Join(dir, "notes.txt"))
	touch(t, filepath.Join(dir, "nested", "deep", "c.gif"))
	touch(t, filepath.Join(dir, "nested", "d.bmp"))
	touch(t, filepath.Join(dir, "nested", "e.jpeg"))

	got, err := FindImages([]string{dir}, nil)
	require.NoError(t, err)

	want := []string{
		filepath.Join(dir, "a.JPG"),
		filepath.Join(dir, "b.png"),
		filepath.Join(dir, "nested", "d.bmp"),
		filepath.Join(dir, "nested", "deep", "c.gif"),
		filepath.Join(dir, "nested", "e.jpeg"),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FindImages mismatch (-want +got):\n%s", diff)
	}
}

func TestFindImages_FilesAndDirsMixedWithoutDuplicates(t *testing.T) {
	dir := t.TempDir()
	single := filepath.Join(dir, "one.png")
	touch(t, single)
	touch(t, filepath.Join(dir, "sub", "two.png"))
	text := filepath.Join(dir, "readme.md")
	touch(t, text)

	got, err := FindImages([]string{single, text, dir}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{single, filepath.Join(dir, "sub", "two.png")}, got)
}

func TestFindImages_CustomExtensions(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "a.webp"))
	touch(t, filepath.Join(dir, "b.png"))

	got, err := FindImages([]string{dir}, []string{".WEBP"})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.webp")}, got)
}

func TestFindImages_MissingPath(t *testing.T) {
	_, err := FindImages([]string{filepath.Join(t.TempDir(), "nope")}, nil)
	assert.Error(t, err)
}

func TestIsImage(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"photo.png", true},
		{"photo.PNG", true},
		{"photo.jpeg", true},
		{"archive.tar.gz", false},
		{"noext", false},
		{"dir.png/file", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, IsImage(tt.path, nil))
		})
	}
}

func TestRun_KeepsOrderAndIsolatesFailures(t *testing.T) {
	images := []string{"/in/a.png", "/in/bad.png", "/in/c.png", "/in/d.png"}
	fc := &fakeClassifier{fail: map[string]bool{"bad.png": true}}
	r := New(fc, testLogger())

	rep := r.Run(context.Background(), "/res", images)

	require.Len(t, rep.Items, 4)
	assert.NotEmpty(t, rep.ID)
	assert.Equal(t, 1, rep.Failed())
	for i, it := range rep.Items {
		assert.Equal(t, images[i], it.Path)
	}
	assert.Equal(t, "a.png", rep.Items[0].Result.Category)
	assert.Nil(t, rep.Items[1].Result)
	assert.True(t, errors.Is(rep.Items[1].Err, failure.ErrScriptFailed))
	assert.Equal(t, "c.png", rep.Items[2].Result.Category)
	assert.Equal(t, "d.png", rep.Items[3].Result.Category)

	for _, root := range fc.roots {
		assert.Equal(t, "/res", root)
	}
}

func TestRun_BoundsParallelism(t *testing.T) {
	images := make([]string, 12)
	for i := range images {
		images[i] = filepath.Join("/in", string(rune('a'+i))+".png")
	}
	fc := &fakeClassifier{delay: 20 * time.Millisecond}
	r := New(fc, testLogger())
	r.Parallel = 3

	rep := r.Run(context.Background(), "/res", images)

	assert.Zero(t, rep.Failed())
	assert.LessOrEqual(t, fc.maxSeen.Load(), int32(3))
	assert.Greater(t, fc.maxSeen.Load(), int32(1))
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep := New(&fakeClassifier{}, testLogger()).Run(ctx, "/res", []string{"/in/a.png", "/in/b.png"})

	assert.Equal(t, 2, rep.Failed())
	for _, it := range rep.Items {
		assert.ErrorIs(t, it.Err, context.Canceled)
	}
}

func TestRun_Empty(t *testing.T) {
	rep := New(&fakeClassifier{}, testLogger()).Run(context.Background(), "/res", nil)
	assert.Empty(t, rep.Items)
	assert.Zero(t, rep.Failed())
}
