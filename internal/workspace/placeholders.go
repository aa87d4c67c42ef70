package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// WorkspaceDir is the directory under a job root that holds checked out sources and
// is the working directory of build invocations.
const WorkspaceDir = "workspace"

// placeholderPattern matches @file:<path>@ references. Paths may not contain '@'.
var placeholderPattern = regexp.MustCompile(`@file:([^@]+)@`)

// ReplacePlaceholders expands @file:<path>@ references in s with the trimmed contents
// of <root>/workspace/<path>. The referenced path must be a sub-path of the workspace;
// a missing file or an escaping path is an error. Strings without placeholders are
// returned unchanged.
func ReplacePlaceholders(root, s string) (string, error) {
	if !strings.Contains(s, "@file:") {
		return s, nil
	}
	var firstErr error
	out := placeholderPattern.ReplaceAllStringFunc(s, func(m string) string {
		if firstErr != nil {
			return m
		}
		rel := placeholderPattern.FindStringSubmatch(m)[1]
		path, ok := Resolve(filepath.Join(root, WorkspaceDir), rel)
		if !ok {
			firstErr = fmt.Errorf("placeholder file %q should be a relative path not containing '..'", rel)
			return m
		}
		data, err := os.ReadFile(path)
		if err != nil {
			firstErr = fmt.Errorf("reading placeholder file %q: %w", rel, err)
			return m
		}
		return strings.TrimSpace(string(data))
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}
