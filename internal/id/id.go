// Package id generates names for per-job engine resources.
package id

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
)

// DefaultNetworkPrefix prefixes network names when the caller has no job name.
const DefaultNetworkPrefix = "jobdock"

var prefixPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

// Generate returns <prefix>-<12 hex chars> from 6 random bytes.
func Generate(prefix string) string {
	b := make([]byte, 6)
	// crypto/rand.Read never returns an error on supported platforms.
	_, _ = rand.Read(b)
	return prefix + "-" + hex.EncodeToString(b)
}

// NetworkName returns a fresh network name for one job execution. Service
// containers derive their names from it, so it must not be reused while the job
// runs.
func NetworkName(prefix string) (string, error) {
	if prefix == "" {
		prefix = DefaultNetworkPrefix
	}
	if !prefixPattern.MatchString(prefix) {
		return "", fmt.Errorf("invalid network prefix %q", prefix)
	}
	return Generate(prefix), nil
}
