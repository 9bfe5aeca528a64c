package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/shahar-caura/vlmshell/internal/batch"
	"github.com/shahar-caura/vlmshell/internal/layout"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file read when no --config flag is given.
const DefaultPath = "vlmshell.yaml"

// RootEnv names the environment variable consulted for the resource root.
const RootEnv = "VLMSHELL_RESOURCE_ROOT"

// Duration wraps time.Duration with YAML unmarshaling from strings like "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// Config is the top-level vlmshell configuration.
type Config struct {
	ResourceRoot string         `yaml:"resource_root"`
	Backend      BackendConfig  `yaml:"backend"`
	Classify     ClassifyConfig `yaml:"classify"`
	Batch        BatchConfig    `yaml:"batch"`
	Server       ServerConfig   `yaml:"server"`
	State        StateConfig    `yaml:"state"`
}

type BackendConfig struct {
	layout.Names  `yaml:",inline"`
	Shell         string   `yaml:"shell"`
	HealthURL     string   `yaml:"health_url"`
	ReadyAttempts int      `yaml:"ready_attempts"`
	ReadyInterval Duration `yaml:"ready_interval"`
	StopGrace     Duration `yaml:"stop_grace"`
}

type ClassifyConfig struct {
	Interpreters       []string `yaml:"interpreters"`
	BundledInterpreter *bool    `yaml:"bundled_interpreter"` // default true
	Timeout            Duration `yaml:"timeout"`             // zero means no limit
}

// UseBundled reports whether the embedded interpreter is tried first.
func (c ClassifyConfig) UseBundled() bool {
	return c.BundledInterpreter == nil || *c.BundledInterpreter
}

type BatchConfig struct {
	Parallel   int      `yaml:"parallel"`
	Extensions []string `yaml:"extensions"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type StateConfig struct {
	Dir string `yaml:"dir"`
}

const (
	defaultShell         = "bash"
	defaultReadyAttempts = 30
	defaultReadyInterval = time.Second
	defaultStopGrace     = 5 * time.Second
	defaultParallel      = 4
	defaultPort          = 8787
)

// Default returns the configuration used when no config file exists.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads, expands env vars, parses, and validates a vlmshell config file.
// A missing file yields Default().
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	d := layout.DefaultNames
	if cfg.Backend.BackendDir == "" {
		cfg.Backend.BackendDir = d.BackendDir
	}
	if cfg.Backend.StartScript == "" {
		cfg.Backend.StartScript = d.StartScript
	}
	if cfg.Backend.ClassifyScript == "" {
		cfg.Backend.ClassifyScript = d.ClassifyScript
	}
	if cfg.Backend.Shell == "" {
		cfg.Backend.Shell = defaultShell
	}
	if cfg.Backend.ReadyAttempts == 0 {
		cfg.Backend.ReadyAttempts = defaultReadyAttempts
	}
	if cfg.Backend.ReadyInterval.Duration == 0 {
		cfg.Backend.ReadyInterval.Duration = defaultReadyInterval
	}
	if cfg.Backend.StopGrace.Duration == 0 {
		cfg.Backend.StopGrace.Duration = defaultStopGrace
	}
	if len(cfg.Classify.Interpreters) == 0 {
		cfg.Classify.Interpreters = append([]string(nil), layout.DefaultInterpreters...)
	}
	if cfg.Batch.Parallel == 0 {
		cfg.Batch.Parallel = defaultParallel
	}
	if len(cfg.Batch.Extensions) == 0 {
		cfg.Batch.Extensions = append([]string(nil), batch.DefaultExtensions...)
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaultPort
	}
}

func validate(cfg *Config) error {
	var errs []error

	if cfg.Backend.ReadyAttempts < 0 {
		errs = append(errs, errors.New("backend.ready_attempts must not be negative"))
	}
	if cfg.Backend.ReadyInterval.Duration < 0 {
		errs = append(errs, errors.New("backend.ready_interval must not be negative"))
	}
	if cfg.Backend.StopGrace.Duration < 0 {
		errs = append(errs, errors.New("backend.stop_grace must not be negative"))
	}
	if cfg.Backend.HealthURL != "" &&
		!strings.HasPrefix(cfg.Backend.HealthURL, "http://") && !strings.HasPrefix(cfg.Backend.HealthURL, "https://") {
		errs = append(errs, fmt.Errorf("backend.health_url must be an http(s) URL, got %q", cfg.Backend.HealthURL))
	}
	for i, name := range cfg.Classify.Interpreters {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, fmt.Errorf("classify.interpreters[%d] is empty", i))
		}
	}
	if cfg.Classify.Timeout.Duration < 0 {
		errs = append(errs, errors.New("classify.timeout must not be negative"))
	}
	if cfg.Batch.Parallel < 0 {
		errs = append(errs, errors.New("batch.parallel must not be negative"))
	}
	for i, ext := range cfg.Batch.Extensions {
		if !strings.HasPrefix(ext, ".") {
			errs = append(errs, fmt.Errorf("batch.extensions[%d] must start with '.', got %q", i, ext))
		}
	}
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", cfg.Server.Port))
	}

	return errors.Join(errs...)
}

// Names returns the backend file names to resolve under the resource root.
func (c *Config) Names() layout.Names { return c.Backend.Names }

// ResolveRoot picks the resource root: the flag value, then resource_root
// from the file, then $VLMSHELL_RESOURCE_ROOT, then a directory discovered
// next to the executable at exe.
func (c *Config) ResolveRoot(flag, exe string) (string, error) {
	switch {
	case flag != "":
		return flag, nil
	case c.ResourceRoot != "":
		return c.ResourceRoot, nil
	case os.Getenv(RootEnv) != "":
		return os.Getenv(RootEnv), nil
	}
	root, err := layout.DiscoverRoot(exe, c.Names())
	if err != nil {
		return "", fmt.Errorf("resolving resource root: %w", err)
	}
	return root, nil
}
