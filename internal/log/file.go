package log

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	debugPrefix = "agent-"
	debugSuffix = ".jsonl"
	dayLayout   = "2006-01-02"
)

// debugFileName is the file every invocation started on day appends to.
func debugFileName(day time.Time) string {
	return debugPrefix + day.Format(dayLayout) + debugSuffix
}

// openDebugFile creates dir if needed and opens the file for now's date in append
// mode. Each jobdock invocation lives for one engine step, so the file is picked once
// per process and never switched.
func openDebugFile(dir string, now time.Time) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating debug log dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, debugFileName(now)), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening debug log: %w", err)
	}
	return f, nil
}

// pruneDebugFiles removes debug files dated more than keepDays before now and
// returns their names. Anything not named like a debug file is left alone.
func pruneDebugFiles(dir string, keepDays int, now time.Time) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	y, m, d := now.AddDate(0, 0, -keepDays).Date()
	cutoff := time.Date(y, m, d, 0, 0, 0, 0, now.Location())

	var removed []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		day, ok := debugFileDay(e.Name(), now.Location())
		if !ok || !day.Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err == nil {
			removed = append(removed, e.Name())
		}
	}
	return removed
}

func debugFileDay(name string, loc *time.Location) (time.Time, bool) {
	rest, ok := strings.CutPrefix(name, debugPrefix)
	if !ok {
		return time.Time{}, false
	}
	rest, ok = strings.CutSuffix(rest, debugSuffix)
	if !ok {
		return time.Time{}, false
	}
	day, err := time.ParseInLocation(dayLayout, rest, loc)
	if err != nil {
		return time.Time{}, false
	}
	return day, true
}
