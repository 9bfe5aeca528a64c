// Package layout derives backend locations from a deployed resource root.
package layout

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Names are the entry names inside a resource root.
type Names struct {
	BackendDir     string `yaml:"dir"`
	StartScript    string `yaml:"start_script"`
	ClassifyScript string `yaml:"classify_script"`
}

// DefaultNames matches the layout the bundler produces.
var DefaultNames = Names{
	BackendDir:     "backend",
	StartScript:    "start_backend.sh",
	ClassifyScript: "classify_image.py",
}

// Layout holds the concrete paths derived from one resource root.
type Layout struct {
	Root           string
	BackendDir     string
	StartScript    string
	ClassifyScript string
}

// Resolve computes the layout for root using DefaultNames.
func Resolve(root string) Layout { return DefaultNames.Resolve(root) }

// Resolve computes the layout for root. It never touches the filesystem; an
// empty root yields paths relative to the working directory, which existence
// checks downstream reject.
func (n Names) Resolve(root string) Layout {
	n = n.withDefaults()
	backend := filepath.Join(root, n.BackendDir)
	return Layout{
		Root:           root,
		BackendDir:     backend,
		StartScript:    filepath.Join(backend, n.StartScript),
		ClassifyScript: filepath.Join(backend, n.ClassifyScript),
	}
}

func (n Names) withDefaults() Names {
	if n.BackendDir == "" {
		n.BackendDir = DefaultNames.BackendDir
	}
	if n.StartScript == "" {
		n.StartScript = DefaultNames.StartScript
	}
	if n.ClassifyScript == "" {
		n.ClassifyScript = DefaultNames.ClassifyScript
	}
	return n
}

// Contents lists the entries of dir as full paths, sorted. Used for
// diagnostics when an expected file is missing.
func Contents(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}
	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// IsDir reports whether path exists and is a directory.
func IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// IsFile reports whether path exists and is not a directory.
func IsFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// DiscoverRoot finds a resource root next to the executable at exe when the
// host did not supply one. Candidates are checked in order and the first that
// contains the backend directory wins.
func DiscoverRoot(exe string, names Names) (string, error) {
	names = names.withDefaults()
	dir := filepath.Dir(exe)
	candidates := []string{
		filepath.Join(dir, "resources"),
		filepath.Join(dir, "..", "Resources"), // macOS app bundle
		dir,
	}
	for _, c := range candidates {
		if IsDir(filepath.Join(c, names.BackendDir)) {
			return filepath.Clean(c), nil
		}
	}
	return "", fmt.Errorf("no resource root with a %q directory near %s", names.BackendDir, exe)
}
