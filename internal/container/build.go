package container

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/majorcontext/jobdock/internal/tasklog"
	"github.com/majorcontext/jobdock/internal/workspace"
)

// BuildImageSpec describes one build image step.
type BuildImageSpec struct {
	// Tags is a quote-aware, space separated list of image references.
	Tags    string `yaml:"tags"`
	Publish bool   `yaml:"publish"`
	// MoreOptions holds extra buildx flags, restricted to the supported set.
	MoreOptions          string `yaml:"more_options"`
	BuildPath            string `yaml:"build_path"`
	Dockerfile           string `yaml:"dockerfile"`
	RemoveDanglingImages bool   `yaml:"remove_dangling_images"`
}

// ImageToolsSpec describes one `buildx imagetools` step.
type ImageToolsSpec struct {
	Arguments string `yaml:"arguments"`
}

// Flags that take a value copied verbatim.
var buildValueFlags = map[string]bool{
	"--add-host":        true,
	"--allow":           true,
	"--build-arg":       true,
	"--builder":         true,
	"--label":           true,
	"--network":         true,
	"--no-cache-filter": true,
	"--platform":        true,
	"--progress":        true,
	"--target":          true,
}

var buildBoolFlags = map[string]bool{
	"--no-cache": true,
	"--pull":     true,
	"-q":         true,
	"--quiet":    true,
}

// localExportKeys are the attributes of a type=local exporter or cache that name a
// filesystem location.
var localExportKeys = map[string]bool{"dest": true, "src": true, "path": true}

// BuildImageArgs assembles the `buildx build` argument vector for spec. Every path
// that reaches the engine is checked against the workspace under root; any problem
// is returned as a *ValidationError before anything runs.
func BuildImageArgs(spec BuildImageSpec, root string) ([]string, error) {
	ws := filepath.Join(root, workspace.WorkspaceDir)
	args := []string{"buildx", "build"}
	if spec.Publish {
		args = append(args, "--push")
	}

	tags, err := workspace.ReplacePlaceholders(root, spec.Tags)
	if err != nil {
		return nil, err
	}
	tagList, err := workspace.ParseQuoteTokens(tags)
	if err != nil {
		return nil, invalidf("parsing tags of build image step: %v", err)
	}
	for _, t := range tagList {
		args = append(args, "-t", t)
	}

	opts, err := workspace.ParseOptions(root, spec.MoreOptions)
	if err != nil {
		return nil, invalidf("parsing options of build image step: %v", err)
	}
	for i := 0; i < len(opts); i++ {
		opt := opts[i]
		if buildBoolFlags[opt] {
			args = append(args, opt)
			continue
		}
		if !isBuildValueFlag(opt) {
			return nil, invalidf("Option '%s' is not supported for build image step", opt)
		}
		args = append(args, opt)
		if i+1 == len(opts) {
			break
		}
		i++
		value := opts[i]
		if err := checkBuildValue(ws, opt, value); err != nil {
			return nil, err
		}
		args = append(args, value)
	}

	if spec.BuildPath != "" {
		p, err := workspace.ReplacePlaceholders(root, spec.BuildPath)
		if err != nil {
			return nil, err
		}
		if !workspace.IsSubPath(ws, p) {
			return nil, invalidf("Build path of build image step should be a relative path not containing '..'")
		}
		args = append(args, p)
	} else {
		args = append(args, ".")
	}

	if spec.Dockerfile != "" {
		p, err := workspace.ReplacePlaceholders(root, spec.Dockerfile)
		if err != nil {
			return nil, err
		}
		if !workspace.IsSubPath(ws, p) {
			return nil, invalidf("Dockerfile of build image step should be a relative path not containing '..'")
		}
		args = append(args, "-f", p)
	}
	return args, nil
}

func isBuildValueFlag(opt string) bool {
	switch opt {
	case "--cache-from", "--cache-to", "--output", "-o", "--secret", "--build-context", "--iidfile", "--metadata-file":
		return true
	}
	return buildValueFlags[opt]
}

func checkBuildValue(ws, opt, value string) error {
	switch opt {
	case "--cache-from", "--cache-to", "--output", "-o":
		if !strings.HasPrefix(value, "type=local") {
			return nil
		}
		if localPathsSafe(ws, value) {
			return nil
		}
		if opt == "--output" || opt == "-o" {
			return invalidf("Output path of build image step should be a relative path not containing '..'")
		}
		return invalidf("Local cache path of build image step should be a relative path not containing '..'")
	case "--secret":
		for _, part := range strings.Split(value, ",") {
			k, v, _ := strings.Cut(part, "=")
			if (k == "src" || k == "source") && !workspace.IsSubPath(ws, v) {
				return invalidf("Secret source path of build image step should be a relative path not containing '..'")
			}
		}
	case "--build-context":
		_, p, _ := strings.Cut(value, "=")
		if !workspace.IsSubPath(ws, p) {
			return invalidf("Build context path of build image step should be a relative path not containing '..'")
		}
	case "--iidfile":
		if !workspace.IsSubPath(ws, value) {
			return invalidf("Image id file path of build image step should be a relative path not containing '..'")
		}
	case "--metadata-file":
		if !workspace.IsSubPath(ws, value) {
			return invalidf("Metadata file path of build image step should be a relative path not containing '..'")
		}
	}
	return nil
}

// localPathsSafe checks every location attribute of a type=local spec such as
// "type=local,dest=out". A spec that names no location is rejected.
func localPathsSafe(ws, value string) bool {
	found := false
	for _, part := range strings.Split(value, ",") {
		k, v, ok := strings.Cut(part, "=")
		if !ok || !localExportKeys[k] {
			continue
		}
		found = true
		if !workspace.IsSubPath(ws, v) {
			return false
		}
	}
	return found
}

// ImagetoolsArgs assembles the `buildx imagetools` argument vector. Only the value
// following a --file/-f style flag is path checked; everything else passes through.
func ImagetoolsArgs(spec ImageToolsSpec, root string) ([]string, error) {
	ws := filepath.Join(root, workspace.WorkspaceDir)
	opts, err := workspace.ParseOptions(root, spec.Arguments)
	if err != nil {
		return nil, invalidf("parsing arguments of imagetools step: %v", err)
	}
	args := []string{"buildx", "imagetools"}
	for i := 0; i < len(opts); i++ {
		opt := opts[i]
		args = append(args, opt)
		if (strings.HasPrefix(opt, "--file") || strings.HasPrefix(opt, "-f")) && i+1 < len(opts) {
			i++
			if !workspace.IsSubPath(ws, opts[i]) {
				return nil, invalidf("Source descriptor path of imagetools step should be a relative path not containing '..'")
			}
			args = append(args, opts[i])
		}
	}
	return args, nil
}

// BuildImage runs a build image step from <root>/workspace, followed by
// `image prune -f` when the spec asks for dangling images to be removed.
func (d *Docker) BuildImage(ctx context.Context, spec BuildImageSpec, root string, logger tasklog.Logger) error {
	args, err := BuildImageArgs(spec, root)
	if err != nil {
		return err
	}
	dir := filepath.Join(root, workspace.WorkspaceDir)
	if err := d.run(ctx, dir, infoSink(logger), warnSink(logger), args...); err != nil {
		return fmt.Errorf("building image: %w", err)
	}
	if spec.RemoveDanglingImages {
		if err := d.run(ctx, dir, infoSink(logger), warnSink(logger), "image", "prune", "-f"); err != nil {
			return fmt.Errorf("removing dangling images: %w", err)
		}
	}
	return nil
}

// RunImagetools runs an imagetools step from <root>/workspace.
func (d *Docker) RunImagetools(ctx context.Context, spec ImageToolsSpec, root string, logger tasklog.Logger) error {
	args, err := ImagetoolsArgs(spec, root)
	if err != nil {
		return err
	}
	dir := filepath.Join(root, workspace.WorkspaceDir)
	if err := d.run(ctx, dir, infoSink(logger), warnSink(logger), args...); err != nil {
		return fmt.Errorf("running imagetools: %w", err)
	}
	return nil
}
