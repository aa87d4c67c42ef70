package container

import (
	"context"
	"fmt"

	"github.com/majorcontext/jobdock/internal/tasklog"
)

// Killer stops one container. A job supervisor holds it for each started service and
// calls Kill to interrupt the service, whether or not it ever became ready.
type Killer struct {
	docker    *Docker
	container string
	logger    tasklog.Logger
}

// NewKiller returns a Killer for containerName.
func (d *Docker) NewKiller(containerName string, logger tasklog.Logger) Killer {
	return Killer{docker: d, container: containerName, logger: logger}
}

// ServiceKiller returns the Killer for service on network.
func (d *Docker) ServiceKiller(network, service string, logger tasklog.Logger) Killer {
	return d.NewKiller(ServiceContainerName(network, service), logger)
}

// Container is the name the Killer stops.
func (k Killer) Container() string { return k.container }

// Kill issues `stop` for the container.
func (k Killer) Kill(ctx context.Context) error {
	k.logger.Log(fmt.Sprintf("Stopping container '%s'...", k.container))
	err := k.docker.run(ctx, "", debugSink("container", k.container), infoSink(k.logger), "stop", k.container)
	if err != nil {
		return fmt.Errorf("stopping container %s: %w", k.container, err)
	}
	return nil
}
