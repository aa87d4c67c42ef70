// Package cli implements the jobdock command-line interface using Cobra. Each
// command drives one engine operation the way a job agent would during a step.
package cli

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/majorcontext/jobdock/internal/config"
	"github.com/majorcontext/jobdock/internal/container"
	"github.com/majorcontext/jobdock/internal/id"
	"github.com/majorcontext/jobdock/internal/log"
	"github.com/majorcontext/jobdock/internal/tasklog"
	"github.com/majorcontext/jobdock/internal/ui"
)

var (
	verbose    bool
	jsonOut    bool
	configPath string
	socketPath string
	jobID      string

	globalCfg = config.DefaultGlobalConfig()
)

var rootCmd = &cobra.Command{
	Use:   "jobdock",
	Short: "jobdock - container engine driver for CI job agents",
	Long: `jobdock drives a Docker-compatible engine CLI on behalf of a CI job agent.
It builds and publishes images, manages per-job networks, starts service
containers and waits for them to become ready.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadGlobal(configPath)
		if err != nil {
			return err
		}
		globalCfg = cfg

		if err := log.Init(log.Options{
			Verbose:       verbose,
			JSONFormat:    jsonOut || !ui.IsTerminal(os.Stderr),
			DebugDir:      debugDir(),
			RetentionDays: cfg.Debug.RetentionDays,
		}); err != nil {
			// The debug log is optional; keep going with stderr only.
			cmd.PrintErrf("Warning: failed to initialize debug logging: %v\n", err)
		}

		if jobID == "" {
			jobID = id.Generate("job")
		}
		log.SetJobID(jobID)
		log.Debug("command started", "command", cmd.CommandPath(), "args", args)
		return nil
	},
}

// Execute runs the root command and prints the error, if any, to stderr.
func Execute() error {
	err := rootCmd.Execute()
	log.Close()
	if err != nil {
		ui.Errorf(rootCmd.ErrOrStderr(), "%s", container.ErrorMessage(err))
	}
	return err
}

// debugDir sits next to the config file in use.
func debugDir() string {
	if configPath != "" {
		return filepath.Join(filepath.Dir(configPath), "debug")
	}
	return config.DebugDir()
}

// newEngine builds the driver from the global config and flags. Tests replace it to
// inject a fake executor.
var newEngine = func(cfg *config.GlobalConfig) (*container.Docker, error) {
	binary, err := container.DetectBinary(cfg.Engine.Binary)
	if err != nil {
		return nil, err
	}
	d := container.NewDocker(binary, container.WithPollPolicy(cfg.Services.PollPolicy()))

	sock := socketPath
	if sock == "" {
		sock = cfg.Engine.Socket
	}
	if err := d.UseSocket(sock); err != nil {
		return nil, err
	}
	return d, nil
}

// jobLogger writes job output to the command's streams and copies it to the debug log.
func jobLogger(cmd *cobra.Command) tasklog.Logger {
	return tasklog.Tee(
		tasklog.NewWriter(cmd.OutOrStdout(), cmd.ErrOrStderr()),
		tasklog.Slog{},
	)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "JSON output; logs are JSON whenever stderr is not a terminal")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "agent config file (default ~/.jobdock/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", "", "docker daemon socket or named pipe path (env: "+config.EnvDockerSock+")")
	rootCmd.PersistentFlags().StringVar(&jobID, "job", "", "job id used to tag log records (default: generated)")
}
