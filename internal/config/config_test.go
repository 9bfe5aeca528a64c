package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shahar-caura/vlmshell/internal/batch"
	"github.com/shahar-caura/vlmshell/internal/layout"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
resource_root: /opt/vlmshell/resources
backend:
  dir: server
  start_script: run.sh
  shell: sh
  health_url: http://127.0.0.1:8000/health
  ready_attempts: 10
  ready_interval: 500ms
  stop_grace: 2s
classify:
  interpreters: [python3.12, python3]
  bundled_interpreter: false
  timeout: 2m
batch:
  parallel: 8
  extensions: [.png, .webp]
server:
  port: 9000
state:
  dir: /tmp/vlmshell-state
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "vlmshell.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, validYAML)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/opt/vlmshell/resources", cfg.ResourceRoot)
	assert.Equal(t, "server", cfg.Backend.BackendDir)
	assert.Equal(t, "run.sh", cfg.Backend.StartScript)
	assert.Equal(t, "classify_image.py", cfg.Backend.ClassifyScript, "unset names keep their default")
	assert.Equal(t, "sh", cfg.Backend.Shell)
	assert.Equal(t, "http://127.0.0.1:8000/health", cfg.Backend.HealthURL)
	assert.Equal(t, 10, cfg.Backend.ReadyAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Backend.ReadyInterval.Duration)
	assert.Equal(t, 2*time.Second, cfg.Backend.StopGrace.Duration)
	assert.Equal(t, []string{"python3.12", "python3"}, cfg.Classify.Interpreters)
	assert.False(t, cfg.Classify.UseBundled())
	assert.Equal(t, 2*time.Minute, cfg.Classify.Timeout.Duration)
	assert.Equal(t, 8, cfg.Batch.Parallel)
	assert.Equal(t, []string{".png", ".webp"}, cfg.Batch.Extensions)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "/tmp/vlmshell-state", cfg.State.Dir)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "vlmshell.yaml"))
	require.NoError(t, err)
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, layout.DefaultNames, cfg.Names())
	assert.Equal(t, "bash", cfg.Backend.Shell)
	assert.Empty(t, cfg.Backend.HealthURL)
	assert.Equal(t, 30, cfg.Backend.ReadyAttempts)
	assert.Equal(t, time.Second, cfg.Backend.ReadyInterval.Duration)
	assert.Equal(t, []string{"python3", "python"}, cfg.Classify.Interpreters)
	assert.True(t, cfg.Classify.UseBundled())
	assert.Zero(t, cfg.Classify.Timeout.Duration, "no classification timeout by default")
	assert.Equal(t, 4, cfg.Batch.Parallel)
	assert.Equal(t, batch.DefaultExtensions, cfg.Batch.Extensions)
	assert.Equal(t, 8787, cfg.Server.Port)
}

func TestDefault_DoesNotShareInterpreterSlice(t *testing.T) {
	cfg := Default()
	cfg.Classify.Interpreters[0] = "changed"
	assert.Equal(t, "python3", layout.DefaultInterpreters[0])
}

func TestDefault_DoesNotShareExtensionSlice(t *testing.T) {
	cfg := Default()
	cfg.Batch.Extensions[0] = ".changed"
	assert.Equal(t, ".png", batch.DefaultExtensions[0])
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("VLMSHELL_TEST_ROOT", "/srv/resources")
	t.Setenv("VLMSHELL_TEST_PORT", "8001")

	path := writeConfig(t, `
resource_root: ${VLMSHELL_TEST_ROOT}
backend:
  health_url: http://localhost:${VLMSHELL_TEST_PORT}/health
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/resources", cfg.ResourceRoot)
	assert.Equal(t, "http://localhost:8001/health", cfg.Backend.HealthURL)
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := writeConfig(t, `
classify:
  timeout: not-a-duration
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid duration")
}

func TestLoad_ValidationErrorsAreJoined(t *testing.T) {
	path := writeConfig(t, `
backend:
  health_url: localhost:8000
  ready_attempts: -1
classify:
  interpreters: ["python3", " "]
batch:
  parallel: -2
  extensions: [png]
server:
  port: 70000
`)
	_, err := Load(path)
	require.Error(t, err)

	assert.Contains(t, err.Error(), "backend.health_url")
	assert.Contains(t, err.Error(), "backend.ready_attempts")
	assert.Contains(t, err.Error(), "classify.interpreters[1]")
	assert.Contains(t, err.Error(), "batch.parallel")
	assert.Contains(t, err.Error(), "batch.extensions[0]")
	assert.Contains(t, err.Error(), "server.port")
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, ":\n\t- :\n  bad:\n\t  indent")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config")
}

func TestLoad_UnreadableFile(t *testing.T) {
	_, err := Load(t.TempDir()) // a directory cannot be read as a file
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config")
}

func TestResolveRoot_Precedence(t *testing.T) {
	exeDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(exeDir, "resources", "backend"), 0o755))
	exe := filepath.Join(exeDir, "vlmshell")

	tests := []struct {
		name     string
		flag     string
		fromFile string
		env      string
		want     string
	}{
		{name: "flag wins", flag: "/from/flag", fromFile: "/from/file", env: "/from/env", want: "/from/flag"},
		{name: "file before env", fromFile: "/from/file", env: "/from/env", want: "/from/file"},
		{name: "env before discovery", env: "/from/env", want: "/from/env"},
		{name: "discovered next to executable", want: filepath.Join(exeDir, "resources")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(RootEnv, tt.env)
			cfg := Default()
			cfg.ResourceRoot = tt.fromFile

			got, err := cfg.ResolveRoot(tt.flag, exe)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveRoot_NothingFound(t *testing.T) {
	t.Setenv(RootEnv, "")
	_, err := Default().ResolveRoot("", filepath.Join(t.TempDir(), "vlmshell"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolving resource root")
}
