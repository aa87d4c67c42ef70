package container

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"mvdan.cc/sh/v3/syntax"

	"github.com/majorcontext/jobdock/internal/log"
)

const deleteMount = "/parent-of-dir-to-delete"

// DeleteDir removes dir. Job containers may leave root-owned files behind, so on
// non-Windows hosts where the agent itself is not containerized the removal runs
// inside a throwaway container with the parent directory mounted.
func (d *Docker) DeleteDir(ctx context.Context, dir string, runInDocker bool) error {
	if d.goos == "windows" || runInDocker {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("removing %s: %w", dir, err)
		}
		return nil
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", dir, err)
	}
	parent, name := filepath.Dir(abs), filepath.Base(abs)
	if name == "" || name == "." || name == string(filepath.Separator) {
		return invalidf("refusing to delete %q", dir)
	}
	target, err := syntax.Quote(deleteMount+"/"+name, syntax.LangPOSIX)
	if err != nil {
		return invalidf("cannot quote directory name %q: %v", name, err)
	}

	stdout := LineSinkFunc(func(line string) { log.Info(line) })
	stderr := LineSinkFunc(func(line string) {
		if strings.Contains(line, "Error response from daemon") {
			log.Error(line)
		} else {
			log.Info(line)
		}
	})
	err = d.run(ctx, "", stdout, stderr,
		"run", "-v", parent+":"+deleteMount, "--rm", d.probeImage, "sh", "-c", "rm -rf "+target)
	if err != nil {
		return fmt.Errorf("removing %s: %w", dir, err)
	}
	return nil
}
