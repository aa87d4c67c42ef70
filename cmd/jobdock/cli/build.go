package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/majorcontext/jobdock/internal/config"
	"github.com/majorcontext/jobdock/internal/container"
)

var buildDir string

var buildCmd = &cobra.Command{
	Use:   "build <step.yaml>",
	Short: "Build (and optionally publish) an image",
	Long: `Runs the build section of a step file through docker buildx.

Paths in the step are relative to the workspace/ directory under --build-dir,
which is also the working directory of the build. Registry logins from the agent
config and the step are written to a temporary docker config that only exists
for the duration of the build.`,
	Args: cobra.ExactArgs(1),
	RunE: runBuild,
}

var imagetoolsCmd = &cobra.Command{
	Use:   "imagetools <step.yaml>",
	Short: "Run docker buildx imagetools",
	Args:  cobra.ExactArgs(1),
	RunE:  runImagetools,
}

func init() {
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(imagetoolsCmd)
	for _, c := range []*cobra.Command{buildCmd, imagetoolsCmd} {
		c.Flags().StringVar(&buildDir, "build-dir", ".", "job build directory containing workspace/")
	}
}

func runBuild(cmd *cobra.Command, args []string) error {
	step, root, err := loadStepIn(args)
	if err != nil {
		return err
	}
	if step.Build == nil {
		return errors.New("step file has no build section")
	}
	// Fail on bad options before touching credentials.
	if _, err := container.BuildImageArgs(*step.Build, root); err != nil {
		return err
	}

	d, err := newEngine(globalCfg)
	if err != nil {
		return err
	}
	logger := jobLogger(cmd)
	return d.WithAuth(registryLogins(step, globalCfg), globalCfg.BuiltinLogin, func(d *container.Docker) error {
		return d.BuildImage(cmd.Context(), *step.Build, root, logger)
	})
}

func runImagetools(cmd *cobra.Command, args []string) error {
	step, root, err := loadStepIn(args)
	if err != nil {
		return err
	}
	if step.Imagetools == nil {
		return errors.New("step file has no imagetools section")
	}

	d, err := newEngine(globalCfg)
	if err != nil {
		return err
	}
	logger := jobLogger(cmd)
	return d.WithAuth(registryLogins(step, globalCfg), globalCfg.BuiltinLogin, func(d *container.Docker) error {
		return d.RunImagetools(cmd.Context(), *step.Imagetools, root, logger)
	})
}

func loadStepIn(args []string) (*config.Step, string, error) {
	root, err := resolveBuildDir(buildDir)
	if err != nil {
		return nil, "", err
	}
	step, err := config.LoadStep(args[0])
	if err != nil {
		return nil, "", fmt.Errorf("loading step: %w", err)
	}
	return step, root, nil
}
