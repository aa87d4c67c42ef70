package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/majorcontext/jobdock/internal/container"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvDockerBin, EnvDockerSock, EnvPollInterval, EnvReadinessDeadline, EnvRetentionDays} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadGlobalDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOME", t.TempDir())

	cfg, err := LoadGlobal("")
	require.NoError(t, err)
	assert.Equal(t, container.DefaultPollInterval, cfg.Services.PollInterval)
	assert.Zero(t, cfg.Services.ReadinessDeadline)
	assert.Equal(t, 14, cfg.Debug.RetentionDays)
	assert.Empty(t, cfg.Engine.Binary)
}

func TestLoadGlobalFile(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()
	t.Setenv("HOME", home)
	dir := filepath.Join(home, ".jobdock")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(`
engine:
  binary: podman
  socket: /run/podman/podman.sock
services:
  poll_interval: 2s
  readiness_deadline: 5m
  memory_limit: 1g
debug:
  retention_days: 3
image_mappings:
  - from: "postgres:(.*)"
    to: "mirror.example.com/postgres:$1"
registry_logins:
  - registry_url: ghcr.io
    user_name: bot
    password: s3cret
builtin_login:
  url: ci.example.com
  auth: dG9rZW4=
`), 0o644))

	cfg, err := LoadGlobal("")
	require.NoError(t, err)
	assert.Equal(t, "podman", cfg.Engine.Binary)
	assert.Equal(t, "/run/podman/podman.sock", cfg.Engine.Socket)
	assert.Equal(t, container.PollPolicy{Interval: 2 * time.Second, Deadline: 5 * time.Minute}, cfg.Services.PollPolicy())
	assert.Equal(t, "1g", cfg.Services.MemoryLimit)
	assert.Equal(t, 3, cfg.Debug.RetentionDays)
	assert.Equal(t, []container.RegistryLogin{{RegistryURL: "ghcr.io", UserName: "bot", Password: "s3cret"}}, cfg.RegistryLogins)
	require.NotNil(t, cfg.BuiltinLogin)
	assert.Equal(t, "dG9rZW4=", cfg.BuiltinLogin.Auth)
	assert.Equal(t, "mirror.example.com/postgres:16", cfg.Mapper().Map("postgres:16"))
}

func TestLoadGlobalEnvOverrides(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  binary: docker\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agent.env"), []byte(
		"JOBDOCK_DOCKER_BIN=nerdctl\nJOBDOCK_POLL_INTERVAL=3s\n# comment\nJOBDOCK_DOCKER_SOCK=/from/file.sock\n"), 0o644))
	t.Setenv(EnvDockerSock, "/from/env.sock")

	cfg, err := LoadGlobal(path)
	require.NoError(t, err)
	assert.Equal(t, "nerdctl", cfg.Engine.Binary, "agent.env overrides the file")
	assert.Equal(t, "/from/env.sock", cfg.Engine.Socket, "process env overrides agent.env")
	assert.Equal(t, 3*time.Second, cfg.Services.PollInterval)
}

func TestLoadGlobalInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		env     map[string]string
	}{
		{"bad yaml", "engine: [", nil},
		{"bad mapping", "image_mappings:\n  - from: \"(\"\n    to: x\n", nil},
		{"login without url", "registry_logins:\n  - user_name: u\n", nil},
		{"bad poll env", "", map[string]string{EnvPollInterval: "soon"}},
		{"zero poll", "services:\n  poll_interval: 0s\n", nil},
		{"bad retention env", "", map[string]string{EnvRetentionDays: "two"}},
		{"bad default memory", "services:\n  memory_limit: lots\n", nil},
		{"bad default cpus", "services:\n  cpu_limit: \"-1\"\n", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))
			_, err := LoadGlobal(path)
			assert.Error(t, err)
		})
	}
}

func TestApplyLimits(t *testing.T) {
	defaults := ServicesConfig{CPULimit: "2", MemoryLimit: "512m"}

	spec := defaults.ApplyLimits(container.ServiceSpec{Name: "db", Image: "postgres", MemoryLimit: "1g"})
	assert.Equal(t, "2", spec.CPULimit)
	assert.Equal(t, "1g", spec.MemoryLimit, "a service's own limit wins")
}
