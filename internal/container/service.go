package container

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	dockercontainer "github.com/docker/docker/api/types/container"
	units "github.com/docker/go-units"

	"github.com/majorcontext/jobdock/internal/log"
	"github.com/majorcontext/jobdock/internal/tasklog"
	"github.com/majorcontext/jobdock/internal/workspace"
)

// ServiceSpec describes a sidecar service a job needs running before its steps.
type ServiceSpec struct {
	Name                  string            `yaml:"name"`
	Image                 string            `yaml:"image"`
	Env                   map[string]string `yaml:"env"`
	Arguments             string            `yaml:"arguments"`
	ReadinessCheckCommand string            `yaml:"readiness_check_command"`
	CPULimit              string            `yaml:"cpu_limit"`
	MemoryLimit           string            `yaml:"memory_limit"`
}

// serviceNamePattern is what the engine accepts as a network alias and container
// name suffix.
var serviceNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

// Validate checks the parts of the spec that would otherwise fail inside the engine.
func (s ServiceSpec) Validate() error {
	if !serviceNamePattern.MatchString(s.Name) {
		return invalidf("invalid service name %q", s.Name)
	}
	if strings.TrimSpace(s.Image) == "" {
		return invalidf("service %s: image is required", s.Name)
	}
	if s.CPULimit != "" {
		cpus, err := strconv.ParseFloat(s.CPULimit, 64)
		if err != nil || cpus <= 0 {
			return invalidf("service %s: invalid cpu limit %q", s.Name, s.CPULimit)
		}
	}
	if s.MemoryLimit != "" {
		if n, err := units.RAMInBytes(s.MemoryLimit); err != nil || n <= 0 {
			return invalidf("service %s: invalid memory limit %q", s.Name, s.MemoryLimit)
		}
	}
	return nil
}

// ServiceState is where a service is in its startup.
type ServiceState string

const (
	ServiceCreated ServiceState = "created"
	ServiceRunning ServiceState = "running"
	ServiceReady   ServiceState = "ready"
	ServiceFailed  ServiceState = "failed"
)

// ImageMapper rewrites image references, for example to a registry mirror.
type ImageMapper interface {
	Map(image string) string
}

// ServiceRequest is everything StartService needs.
type ServiceRequest struct {
	Network string
	Spec    ServiceSpec
	// HostOS decides process isolation on Windows agents.
	HostOS OsInfo
	// Mapper is optional.
	Mapper ImageMapper
}

// Service is a started sidecar.
type Service struct {
	Name          string
	ContainerName string
	Image         string
	State         ServiceState
}

// ServiceContainerName is the container name of service on network. Network names
// are unique per job, so container names are too.
func ServiceContainerName(network, service string) string {
	return network + "-service-" + service
}

// StartService runs the service container and polls it until the readiness check
// passes or the container exits. The returned Service is non-nil once the container
// was created, even on error, so the caller can kill it.
func (d *Docker) StartService(ctx context.Context, req ServiceRequest, logger tasklog.Logger) (*Service, error) {
	spec := req.Spec
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if req.Network == "" {
		return nil, invalidf("service %s: network is required", spec.Name)
	}
	args, err := workspace.ParseQuoteTokens(spec.Arguments)
	if err != nil {
		return nil, invalidf("service %s: parsing arguments: %v", spec.Name, err)
	}

	image := spec.Image
	if req.Mapper != nil {
		image = req.Mapper.Map(image)
	}
	logger.Log(fmt.Sprintf("Starting service (name: %s, image: %s)...", spec.Name, image))

	isolation, err := d.IsUseProcessIsolation(ctx, image, req.HostOS, logger)
	if err != nil {
		return nil, fmt.Errorf("service %s: %w", spec.Name, err)
	}

	logger.Log("Creating service container...")
	svc := &Service{
		Name:          spec.Name,
		ContainerName: ServiceContainerName(req.Network, spec.Name),
		Image:         image,
	}
	runArgs := serviceRunArgs(svc.ContainerName, req.Network, spec, image, isolation, args)
	if err := d.run(ctx, "", Discard, infoSink(logger), runArgs...); err != nil {
		return nil, fmt.Errorf("starting service %s: %w", spec.Name, err)
	}
	svc.State = ServiceCreated
	log.Debug("service container created", "service", spec.Name, "container", svc.ContainerName)

	logger.Log("Waiting for service to be ready...")
	if err := d.waitReady(ctx, svc, spec.ReadinessCheckCommand, logger); err != nil {
		return svc, err
	}
	return svc, nil
}

func serviceRunArgs(containerName, network string, spec ServiceSpec, image string, isolation bool, extra []string) []string {
	args := []string{
		"run", "-d",
		"--name=" + containerName,
		"--network=" + network,
		"--network-alias=" + spec.Name,
	}
	if spec.CPULimit != "" {
		args = append(args, "--cpus", spec.CPULimit)
	}
	if spec.MemoryLimit != "" {
		args = append(args, "--memory", spec.MemoryLimit)
	}
	keys := make([]string, 0, len(spec.Env))
	for k := range spec.Env {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		args = append(args, "--env", k+"="+spec.Env[k])
	}
	if isolation {
		args = append(args, "--isolation=process")
	}
	args = append(args, image)
	return append(args, extra...)
}

func (d *Docker) waitReady(ctx context.Context, svc *Service, readiness string, logger tasklog.Logger) error {
	var deadline time.Time
	if d.poll.Deadline > 0 {
		deadline = d.now().Add(d.poll.Deadline)
	}
	for {
		state, err := d.inspectState(ctx, svc.ContainerName, logger)
		if err != nil {
			return fmt.Errorf("service %s: %w", svc.Name, err)
		}
		switch string(state.Status) {
		case "running":
			svc.State = ServiceRunning
			ready, err := d.checkReady(ctx, svc.ContainerName, readiness, logger)
			if err != nil {
				return fmt.Errorf("service %s: %w", svc.Name, err)
			}
			if ready {
				svc.State = ServiceReady
				logger.Log("Service is ready")
				return nil
			}
		case "exited":
			svc.State = ServiceFailed
			return d.serviceExited(ctx, svc, state, logger)
		}

		if !deadline.IsZero() && !d.now().Before(deadline) {
			return &StateError{
				Op:     "start service",
				Reason: fmt.Sprintf("Service '%s' is not ready after %s", svc.Name, d.poll.Deadline),
			}
		}
		if err := d.sleep(ctx, d.poll.Interval); err != nil {
			return fmt.Errorf("waiting for service %s: %w", svc.Name, err)
		}
	}
}

func (d *Docker) inspectState(ctx context.Context, containerName string, logger tasklog.Logger) (*dockercontainer.State, error) {
	var out strings.Builder
	stdout := LineSinkFunc(func(line string) {
		out.WriteString(line)
		out.WriteByte('\n')
	})
	if err := d.run(ctx, "", stdout, infoSink(logger), "inspect", containerName); err != nil {
		return nil, fmt.Errorf("inspecting container %s: %w", containerName, err)
	}
	var resp []dockercontainer.InspectResponse
	if err := json.Unmarshal([]byte(out.String()), &resp); err != nil {
		return nil, fmt.Errorf("decoding inspect output of %s: %w", containerName, err)
	}
	if len(resp) == 0 || resp[0].ContainerJSONBase == nil || resp[0].State == nil {
		return nil, &StateError{
			Op:       "inspect container",
			Reason:   fmt.Sprintf("no state reported for container %s", containerName),
			NotFound: true,
		}
	}
	return resp[0].State, nil
}

// checkReady runs the readiness command in the container through the platform
// shell. An empty command means running is ready.
func (d *Docker) checkReady(ctx context.Context, containerName, command string, logger tasklog.Logger) (bool, error) {
	if strings.TrimSpace(command) == "" {
		return true, nil
	}
	args := []string{"exec", containerName}
	if d.goos == "windows" {
		args = append(args, "cmd", "/c", command)
	} else {
		args = append(args, "sh", "-c", command)
	}
	prefixed := LineSinkFunc(func(line string) { logger.Log("Service readiness check: " + line) })
	res, err := d.execute(ctx, "", prefixed, prefixed, args...)
	if err != nil {
		return false, err
	}
	return res.ExitCode == 0, nil
}

func (d *Docker) serviceExited(ctx context.Context, svc *Service, state *dockercontainer.State, logger tasklog.Logger) error {
	if state.OOMKilled {
		logger.Error("Out of memory")
	} else if state.Error != "" {
		logger.Error(state.Error)
	}

	// Both streams of `logs` are container output and share one tail.
	var (
		mu   sync.Mutex
		logs []string
	)
	sink := LineSinkFunc(func(line string) {
		logger.Log(line)
		mu.Lock()
		defer mu.Unlock()
		if len(logs) == stderrTail {
			logs = logs[1:]
		}
		logs = append(logs, line)
	})
	if err := d.run(ctx, "", sink, sink, "logs", svc.ContainerName); err != nil {
		return fmt.Errorf("fetching logs of service %s: %w", svc.Name, err)
	}
	return &StateError{
		Op:        "start service",
		Reason:    fmt.Sprintf("Service '%s' is stopped unexpectedly", svc.Name),
		OOMKilled: state.OOMKilled,
		ExitError: state.Error,
		Logs:      logs,
	}
}
