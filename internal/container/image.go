package container

import (
	"context"
	"fmt"
	"strings"

	"github.com/majorcontext/jobdock/internal/log"
	"github.com/majorcontext/jobdock/internal/tasklog"
)

const osInfoFormat = "--format={{.Os}}%{{.OsVersion}}%{{.Architecture}}"

var noSuchImagePrefixes = []string{
	"Error: No such image:",
	"Error response from daemon: No such image:",
}

func isNoSuchImage(line string) bool {
	for _, p := range noSuchImagePrefixes {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return false
}

// GetOsInfo inspects image for its platform. An absent image is pulled once when
// pullIfAbsent is set and inspected again; otherwise, or if it is still absent
// after the pull, a *StateError matching errdefs.ErrNotFound is returned.
func (d *Docker) GetOsInfo(ctx context.Context, image string, pullIfAbsent bool, logger tasklog.Logger) (OsInfo, error) {
	const maxAttempts = 2
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		var infoLine, absent string
		stdout := LineSinkFunc(func(line string) {
			if strings.Contains(line, "%") {
				infoLine = line
			}
		})
		stderr := LineSinkFunc(func(line string) {
			if isNoSuchImage(line) {
				absent = line
				return
			}
			logger.Error(line)
		})
		res, err := d.execute(ctx, "", stdout, stderr, "image", "inspect", image, osInfoFormat)
		if err != nil {
			return OsInfo{}, fmt.Errorf("inspecting image %s: %w", image, err)
		}

		if absent != "" {
			if !pullIfAbsent || attempt == maxAttempts {
				return OsInfo{}, &StateError{Op: "inspect image", Reason: absent, NotFound: true}
			}
			log.Debug("image absent, pulling", "image", image)
			if err := d.PullImage(ctx, image, logger); err != nil {
				return OsInfo{}, err
			}
			pullIfAbsent = false
			continue
		}

		if err := res.Check(); err != nil {
			return OsInfo{}, fmt.Errorf("inspecting image %s: %w", image, err)
		}
		info, err := parseOsInfo(infoLine)
		if err != nil {
			return OsInfo{}, fmt.Errorf("inspecting image %s: %w", image, err)
		}
		return info, nil
	}
	panic("unreachable")
}

// PullImage pulls image, forwarding progress to the task log.
func (d *Docker) PullImage(ctx context.Context, image string, logger tasklog.Logger) error {
	if err := d.run(ctx, "", infoSink(logger), errorSink(logger), "pull", image); err != nil {
		return fmt.Errorf("pulling image %s: %w", image, err)
	}
	return nil
}

// IsUseProcessIsolation reports whether a container from image can run with process
// isolation on host. It is always false unless the agent runs on Windows; there it
// requires the image and host builds to map to the same Windows release.
func (d *Docker) IsUseProcessIsolation(ctx context.Context, image string, host OsInfo, logger tasklog.Logger) (bool, error) {
	if d.goos != "windows" {
		return false, nil
	}
	logger.Log("Checking image OS info...")
	info, err := d.GetOsInfo(ctx, image, true, logger)
	if err != nil {
		return false, err
	}
	imageVersion, ok := info.WindowsVersion()
	if !ok {
		return false, nil
	}
	hostVersion, ok := host.WindowsVersion()
	return ok && imageVersion == hostVersion, nil
}
