package cli

import (
	"github.com/spf13/cobra"
)

var networkOptions string

var networkCmd = &cobra.Command{
	Use:   "network",
	Short: "Manage per-job networks",
}

var networkCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a network, or empty it if it already exists",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newEngine(globalCfg)
		if err != nil {
			return err
		}
		return d.CreateNetwork(cmd.Context(), args[0], networkOptions, jobLogger(cmd))
	},
}

var networkClearCmd = &cobra.Command{
	Use:   "clear <name>",
	Short: "Stop and remove every container attached to a network",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newEngine(globalCfg)
		if err != nil {
			return err
		}
		return d.ClearNetwork(cmd.Context(), args[0], jobLogger(cmd))
	},
}

var networkDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Clear and remove a network",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newEngine(globalCfg)
		if err != nil {
			return err
		}
		return d.DeleteNetwork(cmd.Context(), args[0], jobLogger(cmd))
	},
}

func init() {
	rootCmd.AddCommand(networkCmd)
	networkCmd.AddCommand(networkCreateCmd, networkClearCmd, networkDeleteCmd)
	networkCreateCmd.Flags().StringVar(&networkOptions, "options", "", "extra `docker network create` options (quote-aware)")
}
