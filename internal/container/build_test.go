package container

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/containerd/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/majorcontext/jobdock/internal/tasklog"
)

func TestBuildImageArgs(t *testing.T) {
	root := t.TempDir()
	args, err := BuildImageArgs(BuildImageSpec{
		Tags:    `registry.example.com/app:1.0 "registry.example.com/app:latest"`,
		Publish: true,
		MoreOptions: `--build-arg=VERSION=1.0 --platform linux/amd64,linux/arm64 --pull ` +
			`--cache-to type=local,dest=.cache --cache-from type=registry,ref=example.com/cache ` +
			`--secret id=npm,src=secrets/npmrc --build-context base=contexts/base ` +
			`--iidfile out/iid --metadata-file out/meta.json -o type=local,dest=dist -q`,
		BuildPath:  "app",
		Dockerfile: "app/Dockerfile",
	}, root)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"buildx", "build", "--push",
		"-t", "registry.example.com/app:1.0",
		"-t", "registry.example.com/app:latest",
		"--build-arg", "VERSION=1.0",
		"--platform", "linux/amd64,linux/arm64",
		"--pull",
		"--cache-to", "type=local,dest=.cache",
		"--cache-from", "type=registry,ref=example.com/cache",
		"--secret", "id=npm,src=secrets/npmrc",
		"--build-context", "base=contexts/base",
		"--iidfile", "out/iid",
		"--metadata-file", "out/meta.json",
		"-o", "type=local,dest=dist",
		"-q",
		"app",
		"-f", "app/Dockerfile",
	}, args)
}

func TestBuildImageArgsDefaults(t *testing.T) {
	args, err := BuildImageArgs(BuildImageSpec{Tags: "app"}, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, []string{"buildx", "build", "-t", "app", "."}, args)
}

func TestBuildImageArgsTrailingValueFlag(t *testing.T) {
	args, err := BuildImageArgs(BuildImageSpec{MoreOptions: "--target"}, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, []string{"buildx", "build", "--target", "."}, args)
}

func TestBuildImageArgsRejects(t *testing.T) {
	tests := []struct {
		name string
		spec BuildImageSpec
		want string
	}{
		{"unsupported", BuildImageSpec{MoreOptions: "--bogus"}, "Option '--bogus' is not supported for build image step"},
		{"unsupported after hash", BuildImageSpec{MoreOptions: "--build-arg #x --bogus"}, "Option '--bogus' is not supported for build image step"},
		{"unsupported with value", BuildImageSpec{MoreOptions: "--ssh=default"}, "Option '--ssh' is not supported for build image step"},
		{"output", BuildImageSpec{MoreOptions: "--output type=local,dest=../out"}, "Output path of build image step should be a relative path not containing '..'"},
		{"short output", BuildImageSpec{MoreOptions: "-o=type=local,dest=/abs"}, "Output path of build image step"},
		{"output without dest", BuildImageSpec{MoreOptions: "-o type=local"}, "Output path of build image step"},
		{"cache", BuildImageSpec{MoreOptions: "--cache-from type=local,src=../../cache"}, "Local cache path of build image step"},
		{"secret", BuildImageSpec{MoreOptions: "--secret id=a,src=/etc/shadow"}, "Secret source path of build image step"},
		{"secret source", BuildImageSpec{MoreOptions: "--secret id=a,source=../x"}, "Secret source path of build image step"},
		{"build context", BuildImageSpec{MoreOptions: "--build-context base=../base"}, "Build context path of build image step"},
		{"iidfile", BuildImageSpec{MoreOptions: "--iidfile ../iid"}, "Image id file path of build image step"},
		{"metadata", BuildImageSpec{MoreOptions: "--metadata-file /tmp/m.json"}, "Metadata file path of build image step"},
		{"build path", BuildImageSpec{BuildPath: "../other"}, "Build path of build image step"},
		{"dockerfile", BuildImageSpec{Dockerfile: `..\Dockerfile`}, "Dockerfile of build image step"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildImageArgs(tt.spec, t.TempDir())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.True(t, errdefs.IsInvalidArgument(err))
		})
	}
}

func TestBuildImageUnsupportedOptionRunsNothing(t *testing.T) {
	f := newFakeEngine(t)
	d, _ := newTestDocker(f)
	err := d.BuildImage(context.Background(), BuildImageSpec{Tags: "app", MoreOptions: "--bogus"}, t.TempDir(), tasklog.Discard)
	require.Error(t, err)
	assert.Empty(t, f.argv())
}

func TestBuildImageRunsInWorkspaceAndPrunes(t *testing.T) {
	root := t.TempDir()
	f := newFakeEngine(t)
	f.on("buildx build", reply{stdout: []string{"#1 building"}, stderr: []string{"#2 DONE"}})
	f.on("image prune -f", reply{stdout: []string{"Total reclaimed space: 0B"}})
	d, _ := newTestDocker(f)

	rec := &tasklog.Recorder{}
	err := d.BuildImage(context.Background(), BuildImageSpec{Tags: "app", RemoveDanglingImages: true}, root, rec)
	require.NoError(t, err)

	require.Len(t, f.calls, 2)
	assert.Equal(t, filepath.Join(root, "workspace"), f.calls[0].Dir)
	assert.Equal(t, []string{"image", "prune", "-f"}, f.calls[1].Args)
	assert.Equal(t, []tasklog.Entry{
		{Level: tasklog.LevelLog, Line: "#1 building"},
		{Level: tasklog.LevelWarn, Line: "#2 DONE"},
		{Level: tasklog.LevelLog, Line: "Total reclaimed space: 0B"},
	}, rec.Entries())
}

func TestBuildImageFailureSkipsPrune(t *testing.T) {
	f := newFakeEngine(t)
	f.on("buildx build", reply{stderr: []string{"ERROR: failed to solve"}, exit: 1})
	d, _ := newTestDocker(f)

	err := d.BuildImage(context.Background(), BuildImageSpec{Tags: "app", RemoveDanglingImages: true}, t.TempDir(), tasklog.Discard)
	var ee *ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, 0, f.count("image prune"))
}

func TestBuildImageTagsFromPlaceholder(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "workspace"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "workspace", "VERSION"), []byte("2.3.4\n"), 0o644))

	args, err := BuildImageArgs(BuildImageSpec{Tags: "app:@file:VERSION@"}, root)
	require.NoError(t, err)
	assert.Equal(t, []string{"buildx", "build", "-t", "app:2.3.4", "."}, args)
}

func TestImagetoolsArgs(t *testing.T) {
	args, err := ImagetoolsArgs(ImageToolsSpec{
		Arguments: `create -t app:latest --file=descriptors/index.json app:amd64 app:arm64`,
	}, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"buildx", "imagetools", "create", "-t", "app:latest",
		"--file", "descriptors/index.json", "app:amd64", "app:arm64",
	}, args)
}

func TestImagetoolsRejectsEscapingFile(t *testing.T) {
	f := newFakeEngine(t)
	d, _ := newTestDocker(f)
	err := d.RunImagetools(context.Background(), ImageToolsSpec{Arguments: "create -f ../../desc.json"}, t.TempDir(), tasklog.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Source descriptor path of imagetools step")
	assert.Empty(t, f.argv())
}

func TestRunImagetools(t *testing.T) {
	root := t.TempDir()
	f := newFakeEngine(t)
	f.on("buildx imagetools inspect", reply{stdout: []string{"Name: app:latest"}})
	d, _ := newTestDocker(f)

	rec := &tasklog.Recorder{}
	require.NoError(t, d.RunImagetools(context.Background(), ImageToolsSpec{Arguments: "inspect app:latest"}, root, rec))
	assert.Equal(t, filepath.Join(root, "workspace"), f.calls[0].Dir)
	assert.Equal(t, []string{"Name: app:latest"}, rec.Lines())
}
