package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/majorcontext/jobdock/internal/config"
	"github.com/majorcontext/jobdock/internal/container"
	"github.com/majorcontext/jobdock/internal/id"
	"github.com/majorcontext/jobdock/internal/log"
	"github.com/majorcontext/jobdock/internal/tasklog"
)

var (
	serviceNetwork string
	serviceHold    bool
)

// cleanupTimeout bounds stopping services and removing the network after the job
// context is gone.
const cleanupTimeout = 2 * time.Minute

// hostOsInfo is replaced in tests.
var hostOsInfo = container.HostOsInfo

var serviceCmd = &cobra.Command{
	Use:   "service <step.yaml>",
	Short: "Start the services of a step and wait until they are ready",
	Long: `Starts every service in the step file on a job network and polls each one
until its readiness check passes.

Without --network a fresh network is created and, like the services on it,
removed again when the command ends. With --hold the command keeps the services
running until it is interrupted; otherwise it returns once all are ready.
Ctrl-C stops every service started so far.`,
	Args: cobra.ExactArgs(1),
	RunE: runService,
}

func init() {
	rootCmd.AddCommand(serviceCmd)
	serviceCmd.Flags().StringVar(&serviceNetwork, "network", "", "existing job network (default: create a temporary one)")
	serviceCmd.Flags().BoolVar(&serviceHold, "hold", false, "keep services running until interrupted")
}

func runService(cmd *cobra.Command, args []string) error {
	step, err := config.LoadStep(args[0])
	if err != nil {
		return fmt.Errorf("loading step: %w", err)
	}
	if len(step.Services) == 0 {
		return errors.New("step file has no services section")
	}
	host, err := hostOsInfo()
	if err != nil {
		return err
	}
	d, err := newEngine(globalCfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	logger := jobLogger(cmd)
	sess := &serviceSession{docker: d, network: serviceNetwork, logger: logger}
	if sess.network == "" {
		name, err := id.NetworkName("")
		if err != nil {
			return err
		}
		if err := d.CreateNetwork(ctx, name, "", logger); err != nil {
			return err
		}
		sess.network = name
		sess.ephemeral = true
	}

	keep := false
	defer func() {
		if !keep {
			sess.cleanup()
		}
	}()

	for _, spec := range step.Services {
		req := container.ServiceRequest{
			Network: sess.network,
			Spec:    globalCfg.Services.ApplyLimits(spec),
			HostOS:  host,
			Mapper:  globalCfg.Mapper(),
		}
		svc, err := d.StartService(ctx, req, logger)
		if svc != nil {
			sess.killers = append(sess.killers, d.NewKiller(svc.ContainerName, logger))
		}
		if err != nil {
			return err
		}
		logger.Log(fmt.Sprintf("Service '%s' is ready (container: %s)", svc.Name, svc.ContainerName))
	}

	if !serviceHold {
		// Services on a temporary network go away with it.
		keep = !sess.ephemeral
		return nil
	}
	logger.Log(fmt.Sprintf("Services are running on network '%s'. Press Ctrl-C to stop.", sess.network))
	<-ctx.Done()
	return nil
}

// serviceSession tracks what runService created so it can be torn down.
type serviceSession struct {
	docker    *container.Docker
	network   string
	ephemeral bool
	killers   []container.Killer
	logger    tasklog.Logger
}

// cleanup stops services in reverse start order and removes a temporary network.
// Failures are logged; the job outcome is already decided.
func (s *serviceSession) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	for i := len(s.killers) - 1; i >= 0; i-- {
		k := s.killers[i]
		if err := k.Kill(ctx); err != nil {
			log.Warn("stopping service", "container", k.Container(), "error", err)
		}
	}
	if s.ephemeral {
		if err := s.docker.DeleteNetwork(ctx, s.network, s.logger); err != nil {
			log.Warn("removing job network", "network", s.network, "error", err)
		}
	}
}
