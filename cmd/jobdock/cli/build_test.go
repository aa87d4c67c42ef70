package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/containerd/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/majorcontext/jobdock/internal/config"
	"github.com/majorcontext/jobdock/internal/container"
)

func TestBuildCommand(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "workspace", "app", "Dockerfile"), "FROM scratch\n")
	step := writeFile(t, filepath.Join(t.TempDir(), "step.yaml"), `
build:
  tags: app:1 app:latest
  publish: true
  build_path: app
  more_options: --build-arg VERSION=1 --pull
  remove_dangling_images: true
registry_logins:
  - registry_url: ghcr.io
    user_name: bot
    password: s3cret
`)

	var configDir, authDoc string
	f := &fakeExec{handler: func(c container.Command) ([]string, int) {
		for _, kv := range c.Env {
			if dir, ok := strings.CutPrefix(kv, "DOCKER_CONFIG="); ok && configDir == "" {
				configDir = dir
				data, err := os.ReadFile(filepath.Join(dir, "config.json"))
				if err == nil {
					authDoc = string(data)
				}
			}
		}
		return nil, 0
	}}
	setupCLI(t, f)

	_, _, err := runCLI(t, "build", "--build-dir", root, step)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"buildx build --push -t app:1 -t app:latest --build-arg VERSION=1 --pull app",
		"image prune -f",
	}, f.argv())
	realRoot, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(realRoot, "workspace"), f.calls[0].Dir)
	assert.Contains(t, authDoc, `"ghcr.io"`)
	require.NotEmpty(t, configDir)
	assert.NoDirExists(t, configDir, "scoped docker config is removed after the build")
}

func TestBuildCommandRejectsUnsupportedOption(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "workspace"), 0o755))
	step := writeFile(t, filepath.Join(t.TempDir(), "step.yaml"), "build:\n  tags: app\n  more_options: --squash\n")

	f := &fakeExec{}
	setupCLI(t, f)

	_, _, err := runCLI(t, "build", "--build-dir", root, step)
	require.Error(t, err)
	assert.ErrorIs(t, err, errdefs.ErrInvalidArgument)
	assert.Equal(t, "Option '--squash' is not supported for build image step", container.ErrorMessage(err))
	assert.Empty(t, f.argv())
}

func TestBuildCommandNeedsBuildSection(t *testing.T) {
	step := writeFile(t, filepath.Join(t.TempDir(), "step.yaml"), "imagetools:\n  arguments: inspect app\n")
	setupCLI(t, &fakeExec{})

	_, _, err := runCLI(t, "build", "--build-dir", t.TempDir(), step)
	assert.EqualError(t, err, "step file has no build section")
}

func TestImagetoolsCommand(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "workspace"), 0o755))
	step := writeFile(t, filepath.Join(t.TempDir(), "step.yaml"), "imagetools:\n  arguments: create -t app:multi app:amd64 app:arm64\n")

	f := &fakeExec{}
	setupCLI(t, f)

	_, _, err := runCLI(t, "imagetools", "--build-dir", root, step)
	require.NoError(t, err)
	assert.Equal(t, []string{"buildx imagetools create -t app:multi app:amd64 app:arm64"}, f.argv())
}

func TestResolveBuildDir(t *testing.T) {
	dir := t.TempDir()
	got, err := resolveBuildDir(dir)
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got))

	file := writeFile(t, filepath.Join(dir, "f"), "x")
	_, err = resolveBuildDir(file)
	assert.Error(t, err)

	_, err = resolveBuildDir(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestRegistryLoginsStepWins(t *testing.T) {
	step := &config.Step{RegistryLogins: []container.RegistryLogin{{RegistryURL: "ghcr.io", UserName: "step"}}}
	cfg := &config.GlobalConfig{RegistryLogins: []container.RegistryLogin{
		{RegistryURL: "ghcr.io", UserName: "agent"},
		{RegistryURL: "quay.io", UserName: "agent"},
	}}

	logins := registryLogins(step, cfg)
	require.Len(t, logins, 3)
	assert.Equal(t, "step", logins[2].UserName, "step logins come last so they replace agent ones")
}
