package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/majorcontext/jobdock/internal/config"
	"github.com/majorcontext/jobdock/internal/container"
)

// resolveBuildDir resolves and validates the --build-dir argument.
// Returns the absolute, symlink-resolved path.
func resolveBuildDir(dir string) (string, error) {
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving build dir: %w", err)
	}
	absPath, err = filepath.EvalSymlinks(absPath)
	if err != nil {
		return "", fmt.Errorf("build dir %q: %w", dir, err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("build dir %q: %w", absPath, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("build dir %q is not a directory", absPath)
	}
	return absPath, nil
}

// registryLogins merges the agent's logins with the step's. A later login for the
// same registry replaces an earlier one, so the step's own logins win.
func registryLogins(step *config.Step, cfg *config.GlobalConfig) []container.RegistryLogin {
	logins := make([]container.RegistryLogin, 0, len(step.RegistryLogins)+len(cfg.RegistryLogins))
	logins = append(logins, cfg.RegistryLogins...)
	return append(logins, step.RegistryLogins...)
}
