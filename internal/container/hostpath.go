package container

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/majorcontext/jobdock/internal/log"
)

// GetHostPath finds the host directory bind-mounted at mountPath in the agent's own
// container, so the same directory can be mounted into sibling containers.
//
// Containers mounting mountPath are inspected for the mount source. When more than
// one container qualifies, a uniquely named probe file is written under mountPath
// and each candidate source is mounted into a throwaway container; the first one in
// which the probe is visible is the agent's own mount.
func (d *Docker) GetHostPath(ctx context.Context, mountPath string) (string, error) {
	log.Info("finding host path", "mount", mountPath)
	errLog := LineSinkFunc(func(line string) { log.Error(line, "mount", mountPath) })

	var ids []string
	if err := d.run(ctx, "", collect(&ids), errLog, "ps", "--format={{.ID}}", "-f", "volume="+mountPath); err != nil {
		return "", fmt.Errorf("listing containers: %w", err)
	}
	if len(ids) == 0 {
		// Some engines (podman) cannot filter by volume and return nothing.
		log.Debug("volume filter matched nothing, listing all running containers", "mount", mountPath)
		if err := d.run(ctx, "", collect(&ids), errLog, "ps", "--format={{.ID}}"); err != nil {
			return "", fmt.Errorf("listing containers: %w", err)
		}
	}
	if len(ids) == 0 {
		return "", &StateError{Op: "find host path", Reason: "Unable to find any running container", NotFound: true}
	}

	format := fmt.Sprintf(`{{range .Mounts}}{{if eq .Destination "%s"}}{{.Source}}{{end}}{{end}}`, mountPath)
	var candidates []string
	keep := LineSinkFunc(func(line string) {
		if strings.TrimSpace(line) != "" {
			candidates = append(candidates, line)
		}
	})
	args := append([]string{"container", "inspect", "-f", format}, ids...)
	if err := d.run(ctx, "", keep, errLog, args...); err != nil {
		return "", fmt.Errorf("inspecting container mounts: %w", err)
	}

	var found string
	switch len(candidates) {
	case 0:
		return "", &StateError{
			Op:       "find host path",
			Reason:   "No container mounting host path found: make sure the agent is started with a bind mount",
			NotFound: true,
		}
	case 1:
		found = candidates[0]
	default:
		var err error
		found, err = d.probeHostPath(ctx, mountPath, candidates)
		if err != nil {
			return "", err
		}
	}
	log.Info("found host path", "mount", mountPath, "host", found)
	return found, nil
}

func (d *Docker) probeHostPath(ctx context.Context, mountPath string, candidates []string) (string, error) {
	probe := uuid.NewString()
	probePath := filepath.Join(mountPath, probe)
	if err := os.WriteFile(probePath, nil, 0o644); err != nil {
		return "", fmt.Errorf("creating probe file: %w", err)
	}
	defer func() {
		if err := os.Remove(probePath); err != nil {
			log.Warn("removing probe file", "path", probePath, "error", err)
		}
	}()

	for _, candidate := range candidates {
		missing := false
		stderr := LineSinkFunc(func(line string) {
			if strings.Contains(line, "No such file or directory") {
				missing = true
				return
			}
			log.Error(line, "candidate", candidate)
		})
		res, err := d.execute(ctx, "", Discard, stderr,
			"run", "--rm", "-v", candidate+":"+mountPath, d.probeImage, "ls", mountPath+"/"+probe)
		if err != nil {
			return "", fmt.Errorf("probing %s: %w", candidate, err)
		}
		if missing {
			log.Debug("probe not visible", "candidate", candidate)
			continue
		}
		if err := res.Check(); err != nil {
			return "", fmt.Errorf("probing %s: %w", candidate, err)
		}
		return candidate, nil
	}
	return "", &StateError{Op: "find host path", Reason: "Unable to find host path", NotFound: true}
}
