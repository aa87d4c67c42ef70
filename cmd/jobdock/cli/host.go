package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/majorcontext/jobdock/internal/container"
)

var (
	osinfoPull  bool
	rmdirDocker bool
)

var osinfoCmd = &cobra.Command{
	Use:   "osinfo <image>",
	Short: "Show the OS, version and architecture of an image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newEngine(globalCfg)
		if err != nil {
			return err
		}
		info, err := d.GetOsInfo(cmd.Context(), globalCfg.Mapper().Map(args[0]), osinfoPull, jobLogger(cmd))
		if err != nil {
			return err
		}
		return printOsInfo(cmd, info)
	},
}

var hostpathCmd = &cobra.Command{
	Use:   "hostpath <mount>",
	Short: "Find the host directory behind a path mounted into this container",
	Long: `When the agent runs inside a container, paths it hands to sibling containers
must be host paths. hostpath finds the host directory mounted at <mount> by
asking the engine which running container mounts it and, when several could,
probing each candidate with a marker file.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newEngine(globalCfg)
		if err != nil {
			return err
		}
		path, err := d.GetHostPath(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

var rmdirCmd = &cobra.Command{
	Use:   "rmdir <dir>",
	Short: "Remove a job directory, including files owned by container users",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newEngine(globalCfg)
		if err != nil {
			return err
		}
		return d.DeleteDir(cmd.Context(), args[0], rmdirDocker)
	},
}

func init() {
	rootCmd.AddCommand(osinfoCmd, hostpathCmd, rmdirCmd)
	osinfoCmd.Flags().BoolVar(&osinfoPull, "pull", false, "pull the image when it is not present locally")
	rmdirCmd.Flags().BoolVar(&rmdirDocker, "in-docker", false, "the agent runs in a container; remove directly")
}

func printOsInfo(cmd *cobra.Command, info container.OsInfo) error {
	if jsonOut {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(cmd.OutOrStdout(), info)
	if info.IsWindows() {
		if v, ok := info.WindowsVersion(); ok {
			fmt.Fprintf(cmd.OutOrStdout(), "Windows release: %s\n", v)
		}
	}
	return nil
}
