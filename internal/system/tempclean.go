// Package system finds and removes state the agent leaves behind when it is killed
// before its own cleanup runs.
package system

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docker/go-units"

	"github.com/majorcontext/jobdock/internal/container"
	"github.com/majorcontext/jobdock/internal/log"
)

// TempDirPattern is a glob, relative to the temp dir, for directories jobdock creates.
type TempDirPattern struct {
	Pattern     string
	Description string
}

// TempPatterns lists the temporary directories jobdock creates.
var TempPatterns = []TempDirPattern{
	{Pattern: container.AuthDirPrefix + "*", Description: "scoped docker config (registry credentials)"},
}

// OrphanedTempDir is a temporary directory old enough to be considered abandoned.
type OrphanedTempDir struct {
	Path        string
	Description string
	ModTime     time.Time
	Size        int64
}

// HumanSize formats Size for display.
func (o OrphanedTempDir) HumanSize() string {
	return units.HumanSize(float64(o.Size))
}

// FindOrphanedTempDirs scans dir (os.TempDir() when empty) for jobdock directories
// not modified within minAge.
func FindOrphanedTempDirs(dir string, minAge time.Duration) ([]OrphanedTempDir, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	cutoff := time.Now().Add(-minAge)

	var orphaned []OrphanedTempDir
	for _, p := range TempPatterns {
		matches, err := filepath.Glob(filepath.Join(dir, p.Pattern))
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", dir, err)
		}
		for _, match := range matches {
			info, err := os.Stat(match)
			if err != nil || !info.IsDir() {
				continue
			}
			// Still in use by a running build.
			if info.ModTime().After(cutoff) {
				continue
			}
			size, _ := dirSize(match)
			orphaned = append(orphaned, OrphanedTempDir{
				Path:        match,
				Description: p.Description,
				ModTime:     info.ModTime(),
				Size:        size,
			})
		}
	}
	return orphaned, nil
}

// CleanOrphanedTempDirs removes dirs and returns the ones actually removed. Age is
// checked again right before removal; a directory touched since the scan belongs to
// a running build.
func CleanOrphanedTempDirs(dirs []OrphanedTempDir, minAge time.Duration) ([]string, error) {
	cutoff := time.Now().Add(-minAge)
	var removed, errs []string
	for _, d := range dirs {
		if info, err := os.Stat(d.Path); err == nil && info.ModTime().After(cutoff) {
			log.Debug("skipping recently modified temp dir", "path", d.Path)
			continue
		}
		if err := os.RemoveAll(d.Path); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", d.Path, err))
			continue
		}
		removed = append(removed, d.Path)
	}
	if len(errs) > 0 {
		return removed, fmt.Errorf("failed to remove some directories:\n  %s", strings.Join(errs, "\n  "))
	}
	return removed, nil
}

func dirSize(path string) (int64, error) {
	var size int64
	err := filepath.WalkDir(path, func(_ string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			if info, err := d.Info(); err == nil {
				size += info.Size()
			}
		}
		return nil
	})
	return size, err
}
