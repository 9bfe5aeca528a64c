// Package state records the backend process started by the shell so that a
// later invocation can report on it or stop it. Classification results are
// never stored here.
package state

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/shahar-caura/vlmshell/internal/launcher"
	"gopkg.in/yaml.v3"
)

const fileName = "backend.yaml"

// ErrNoBackend is returned by Load when no backend has been recorded.
var ErrNoBackend = errors.New("no backend recorded")

// Status is the last known state of the backend process.
type Status string

const (
	Running Status = "running"
	Stopped Status = "stopped"
)

// Backend is the persistent record of one backend launch.
type Backend struct {
	PID          int       `yaml:"pid"`
	Command      string    `yaml:"command"`
	ResourceRoot string    `yaml:"resource_root"`
	Script       string    `yaml:"script"`
	Status       Status    `yaml:"status"`
	StartedAt    time.Time `yaml:"started_at"`
	UpdatedAt    time.Time `yaml:"updated_at"`
}

// Alive reports whether the recorded PID still names a live process.
func (b *Backend) Alive() bool {
	return b.Status == Running && launcher.Alive(b.PID)
}

// Store reads and writes the backend record under Dir.
type Store struct {
	Dir string
}

// NewStore returns a Store rooted at dir.
func NewStore(dir string) *Store { return &Store{Dir: dir} }

// DefaultDir is the per-user state directory.
func DefaultDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "vlmshell", "state")
	}
	return filepath.Join(os.Getenv("HOME"), ".config", "vlmshell", "state")
}

func (s *Store) path() string { return filepath.Join(s.Dir, fileName) }

// Load reads the backend record. It returns ErrNoBackend when none exists.
func (s *Store) Load() (*Backend, error) {
	data, err := os.ReadFile(s.path())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoBackend
	}
	if err != nil {
		return nil, fmt.Errorf("loading backend state: %w", err)
	}

	var b Backend
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parsing backend state %q: %w", s.path(), err)
	}
	return &b, nil
}

// Save writes the record atomically.
func (s *Store) Save(b *Backend) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}

	b.UpdatedAt = time.Now()

	data, err := yaml.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshaling backend state: %w", err)
	}

	f, err := os.CreateTemp(s.Dir, fileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp state file: %w", err)
	}
	tmp := f.Name()
	_, werr := f.Write(data)
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("writing temp state file: %w", werr)
	}

	if err := os.Rename(tmp, s.path()); err != nil {
		_ = os.Remove(tmp) // best-effort cleanup
		return fmt.Errorf("renaming state file: %w", err)
	}

	return nil
}

// Clear removes the record. A missing record is not an error.
func (s *Store) Clear() error {
	if err := os.Remove(s.path()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing backend state: %w", err)
	}
	return nil
}
