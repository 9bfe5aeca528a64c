package layout

import (
	"path/filepath"
	"runtime"
)

// DefaultInterpreters are tried, in order, when no bundled interpreter exists.
var DefaultInterpreters = []string{"python3", "python"}

// BundledInterpreter returns where the packager places a private interpreter
// for goos/goarch under root, or "" for unsupported platforms.
func BundledInterpreter(root, goos, goarch string) string {
	var dir, exe string
	switch goos {
	case "windows":
		dir, exe = "python-windows", "python.exe"
	case "darwin":
		dir, exe = "python-macos-x64", filepath.Join("bin", "python3")
		if goarch == "arm64" {
			dir = "python-macos-arm64"
		}
	case "linux":
		dir, exe = "python-linux", filepath.Join("bin", "python3")
	default:
		return ""
	}
	return filepath.Join(root, "python", dir, exe)
}

// Interpreters returns the ordered launch candidates for the classification
// script: the bundled interpreter when present on disk, then system names.
// Duplicates are dropped.
func Interpreters(root string, bundled bool, system []string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(name string) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		out = append(out, name)
	}

	if bundled && root != "" {
		if p := BundledInterpreter(root, runtime.GOOS, runtime.GOARCH); p != "" && IsFile(p) {
			add(p)
		}
	}
	for _, name := range system {
		add(name)
	}
	return out
}
