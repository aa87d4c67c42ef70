// Package workspace validates paths and expands option strings that arrive from job
// configuration. Everything here is evaluated against a job's workspace root.
package workspace

import (
	"path/filepath"
	"strings"
)

// IsSubPath reports whether candidate, taken as relative to root and normalized, stays
// at or below root. Absolute paths, drive-qualified paths and the empty string are
// rejected. Backslashes count as separators on every platform so that a Windows-style
// "..\" cannot slip past a Linux agent.
func IsSubPath(root, candidate string) bool {
	if strings.TrimSpace(candidate) == "" {
		return false
	}
	slashed := strings.ReplaceAll(candidate, `\`, "/")
	if strings.HasPrefix(slashed, "/") || filepath.IsAbs(candidate) || hasVolumeName(slashed) {
		return false
	}
	if root == "" {
		root = "."
	}
	base := filepath.Clean(root)
	joined := filepath.Join(base, filepath.FromSlash(slashed))
	rel, err := filepath.Rel(base, joined)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Resolve joins candidate onto root after checking it with IsSubPath.
func Resolve(root, candidate string) (string, bool) {
	if !IsSubPath(root, candidate) {
		return "", false
	}
	return filepath.Join(root, filepath.FromSlash(strings.ReplaceAll(candidate, `\`, "/"))), true
}

// hasVolumeName matches "C:" style prefixes regardless of the host OS.
func hasVolumeName(p string) bool {
	if len(p) < 2 || p[1] != ':' {
		return false
	}
	c := p[0]
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
