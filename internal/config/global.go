// Package config loads agent settings and step files.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/majorcontext/jobdock/internal/container"
	"github.com/majorcontext/jobdock/internal/image"
)

// GlobalConfig holds agent settings from ~/.jobdock/config.yaml.
type GlobalConfig struct {
	Engine         EngineConfig              `yaml:"engine"`
	Services       ServicesConfig            `yaml:"services"`
	Debug          DebugConfig               `yaml:"debug"`
	ImageMappings  []image.Mapping           `yaml:"image_mappings"`
	RegistryLogins []container.RegistryLogin `yaml:"registry_logins"`
	BuiltinLogin   *container.BuiltInLogin   `yaml:"builtin_login"`
}

// EngineConfig selects the engine CLI and daemon.
type EngineConfig struct {
	// Binary is the CLI to run; empty detects docker, then podman, on PATH.
	Binary string `yaml:"binary"`
	// Socket overrides DOCKER_HOST with the given unix socket or named pipe path.
	Socket string `yaml:"socket"`
}

// ServicesConfig tunes the service readiness loop and default resource limits.
type ServicesConfig struct {
	PollInterval      time.Duration `yaml:"poll_interval"`
	ReadinessDeadline time.Duration `yaml:"readiness_deadline"`
	CPULimit          string        `yaml:"cpu_limit"`
	MemoryLimit       string        `yaml:"memory_limit"`
}

// DebugConfig controls the agent debug log.
type DebugConfig struct {
	RetentionDays int `yaml:"retention_days"`
}

// PollPolicy converts the services section for the container package.
func (s ServicesConfig) PollPolicy() container.PollPolicy {
	return container.PollPolicy{Interval: s.PollInterval, Deadline: s.ReadinessDeadline}
}

// ApplyLimits fills the unset resource limits of spec from the agent defaults.
func (s ServicesConfig) ApplyLimits(spec container.ServiceSpec) container.ServiceSpec {
	if spec.CPULimit == "" {
		spec.CPULimit = s.CPULimit
	}
	if spec.MemoryLimit == "" {
		spec.MemoryLimit = s.MemoryLimit
	}
	return spec
}

// DefaultGlobalConfig returns the configuration used when no file exists.
func DefaultGlobalConfig() *GlobalConfig {
	return &GlobalConfig{
		Services: ServicesConfig{PollInterval: container.DefaultPollInterval},
		Debug:    DebugConfig{RetentionDays: 14},
	}
}

// Environment variables that override the config file. They are read from
// agent.env next to config.yaml first, then from the process environment.
const (
	EnvDockerBin         = "JOBDOCK_DOCKER_BIN"
	EnvDockerSock        = "JOBDOCK_DOCKER_SOCK"
	EnvPollInterval      = "JOBDOCK_POLL_INTERVAL"
	EnvReadinessDeadline = "JOBDOCK_READINESS_DEADLINE"
	EnvRetentionDays     = "JOBDOCK_DEBUG_RETENTION_DAYS"
)

// LoadGlobal reads the config file at path, or ~/.jobdock/config.yaml when path is
// empty, and applies overrides. A missing file yields the defaults.
func LoadGlobal(path string) (*GlobalConfig, error) {
	cfg := DefaultGlobalConfig()
	if path == "" {
		path = filepath.Join(GlobalConfigDir(), "config.yaml")
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	env, err := readEnvFile(filepath.Join(filepath.Dir(path), "agent.env"))
	if err != nil {
		return nil, err
	}
	lookup := func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		return env[key]
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readEnvFile(path string) (map[string]string, error) {
	env, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return env, nil
}

func (c *GlobalConfig) applyEnv(lookup func(string) string) error {
	if v := lookup(EnvDockerBin); v != "" {
		c.Engine.Binary = v
	}
	if v := lookup(EnvDockerSock); v != "" {
		c.Engine.Socket = v
	}
	if v := lookup(EnvPollInterval); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvPollInterval, err)
		}
		c.Services.PollInterval = d
	}
	if v := lookup(EnvReadinessDeadline); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvReadinessDeadline, err)
		}
		c.Services.ReadinessDeadline = d
	}
	if v := lookup(EnvRetentionDays); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvRetentionDays, err)
		}
		c.Debug.RetentionDays = n
	}
	return nil
}

func (c *GlobalConfig) validate() error {
	if c.Services.PollInterval <= 0 {
		return fmt.Errorf("services.poll_interval must be positive, got %s", c.Services.PollInterval)
	}
	if c.Services.ReadinessDeadline < 0 {
		return fmt.Errorf("services.readiness_deadline must not be negative, got %s", c.Services.ReadinessDeadline)
	}
	limits := container.ServiceSpec{
		Name:        "defaults",
		Image:       "scratch",
		CPULimit:    c.Services.CPULimit,
		MemoryLimit: c.Services.MemoryLimit,
	}
	if err := limits.Validate(); err != nil {
		return fmt.Errorf("services: %w", err)
	}
	if _, err := image.NewMapper(c.ImageMappings); err != nil {
		return err
	}
	for i, l := range c.RegistryLogins {
		if l.RegistryURL == "" {
			return fmt.Errorf("registry_logins[%d]: registry_url is required", i)
		}
	}
	return nil
}

// Mapper compiles the image mappings. LoadGlobal has already validated them.
func (c *GlobalConfig) Mapper() *image.Mapper {
	m, err := image.NewMapper(c.ImageMappings)
	if err != nil {
		return nil
	}
	return m
}

// GlobalConfigDir returns ~/.jobdock.
func GlobalConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".jobdock")
	}
	return filepath.Join(home, ".jobdock")
}

// DebugDir is where the agent writes its JSONL debug log.
func DebugDir() string {
	return filepath.Join(GlobalConfigDir(), "debug")
}
