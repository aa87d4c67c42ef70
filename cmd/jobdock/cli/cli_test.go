package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/majorcontext/jobdock/internal/config"
	"github.com/majorcontext/jobdock/internal/container"
	"github.com/majorcontext/jobdock/internal/log"
)

// fakeExec answers engine invocations from a handler and records every command.
type fakeExec struct {
	mu      sync.Mutex
	calls   []container.Command
	handler func(c container.Command) (stdout []string, code int)
}

func (f *fakeExec) Execute(_ context.Context, c container.Command, stdout, _ container.LineSink) (int, error) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	handler := f.handler
	f.mu.Unlock()

	if handler == nil {
		return 0, nil
	}
	lines, code := handler(c)
	for _, l := range lines {
		stdout.Consume(l)
	}
	return code, nil
}

func (f *fakeExec) argv() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = strings.Join(c.Args, " ")
	}
	return out
}

// setupCLI isolates a command run: a private home and config file, default flag
// values, and an engine backed by f.
func setupCLI(t *testing.T, f *fakeExec) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, k := range []string{config.EnvDockerBin, config.EnvDockerSock, config.EnvPollInterval,
		config.EnvReadinessDeadline, config.EnvRetentionDays} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	origEngine, origHost := newEngine, hostOsInfo
	newEngine = func(cfg *config.GlobalConfig) (*container.Docker, error) {
		return container.NewDocker("docker",
			container.WithExecutor(f),
			container.WithGOOS("linux"),
			container.WithPollPolicy(cfg.Services.PollPolicy()),
		), nil
	}
	hostOsInfo = func() (container.OsInfo, error) {
		return container.OsInfo{Name: "Linux", Version: "6.8.0", Arch: "x86_64"}, nil
	}
	t.Cleanup(func() {
		newEngine, hostOsInfo = origEngine, origHost
		verbose, jsonOut, configPath, socketPath, jobID = false, false, "", "", ""
		buildDir, networkOptions, serviceNetwork, serviceHold = ".", "", "", false
		osinfoPull, rmdirDocker = false, false
	})
}

// runCLI executes the root command with args and returns stdout and stderr.
func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cfg := filepath.Join(os.Getenv("HOME"), ".jobdock", "config.yaml")
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(append([]string{"--config", cfg}, args...))
	t.Cleanup(func() {
		log.Close()
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
