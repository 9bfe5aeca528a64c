package state

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "vlmshell", "state"))
}

func TestSave_CreatesStateDirectory(t *testing.T) {
	s := testStore(t)

	require.NoError(t, s.Save(&Backend{PID: 42, Status: Running}))

	_, err := os.Stat(filepath.Join(s.Dir, "backend.yaml"))
	require.NoError(t, err, "state file should exist")
}

func TestSaveAndLoad_RoundTrip(t *testing.T) {
	s := testStore(t)
	started := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	b := &Backend{
		PID:          4242,
		Command:      "bash",
		ResourceRoot: "/opt/app/resources",
		Script:       "/opt/app/resources/backend/start_backend.sh",
		Status:       Running,
		StartedAt:    started,
	}
	require.NoError(t, s.Save(b))

	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, 4242, got.PID)
	assert.Equal(t, "bash", got.Command)
	assert.Equal(t, "/opt/app/resources", got.ResourceRoot)
	assert.Equal(t, Running, got.Status)
	assert.True(t, started.Equal(got.StartedAt))
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestSave_NoTempFileLeftBehind(t *testing.T) {
	s := testStore(t)
	require.NoError(t, s.Save(&Backend{PID: 1}))

	entries, err := os.ReadDir(s.Dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "backend.yaml", entries[0].Name())
}

func TestSave_ConcurrentWritersKeepRecordReadable(t *testing.T) {
	s := testStore(t)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Save(&Backend{PID: 100 + i, Status: Stopped}))
		}()
	}
	wg.Wait()

	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, Stopped, got.Status)
	assert.GreaterOrEqual(t, got.PID, 100)
}

func TestSave_YAMLKeys(t *testing.T) {
	s := testStore(t)
	require.NoError(t, s.Save(&Backend{PID: 7, ResourceRoot: "/r", Status: Stopped}))

	data, err := os.ReadFile(filepath.Join(s.Dir, "backend.yaml"))
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, yaml.Unmarshal(data, &raw))
	assert.Equal(t, 7, raw["pid"])
	assert.Equal(t, "/r", raw["resource_root"])
	assert.Equal(t, "stopped", raw["status"])
}

func TestLoad_NoRecord(t *testing.T) {
	_, err := testStore(t).Load()
	assert.ErrorIs(t, err, ErrNoBackend)
}

func TestLoad_CorruptFile(t *testing.T) {
	s := testStore(t)
	require.NoError(t, os.MkdirAll(s.Dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir, "backend.yaml"), []byte("pid: [not an int"), 0o644))

	_, err := s.Load()
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoBackend)
}

func TestClear(t *testing.T) {
	s := testStore(t)
	require.NoError(t, s.Clear(), "clearing a missing record is fine")

	require.NoError(t, s.Save(&Backend{PID: 1}))
	require.NoError(t, s.Clear())

	_, err := s.Load()
	assert.ErrorIs(t, err, ErrNoBackend)
}

func TestAlive(t *testing.T) {
	self := &Backend{PID: os.Getpid(), Status: Running}
	assert.True(t, self.Alive())

	stopped := &Backend{PID: os.Getpid(), Status: Stopped}
	assert.False(t, stopped.Alive())

	assert.False(t, (&Backend{Status: Running}).Alive())
}
