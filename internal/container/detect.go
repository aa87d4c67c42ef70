package container

import (
	"fmt"
	"os/exec"

	"github.com/majorcontext/jobdock/internal/log"
)

// candidateBinaries are tried in order when no engine binary is configured.
var candidateBinaries = []string{"docker", "podman"}

var lookPath = exec.LookPath

// DetectBinary returns the engine CLI to use. A configured binary wins; otherwise the
// first Docker-compatible CLI found on PATH is used.
func DetectBinary(configured string) (string, error) {
	if configured != "" {
		path, err := lookPath(configured)
		if err != nil {
			return "", fmt.Errorf("engine binary %q: %w", configured, err)
		}
		return path, nil
	}
	for _, name := range candidateBinaries {
		path, err := lookPath(name)
		if err == nil {
			log.Debug("detected engine binary", "binary", path)
			return path, nil
		}
	}
	return "", fmt.Errorf("no container engine CLI found on PATH (tried %v)", candidateBinaries)
}
