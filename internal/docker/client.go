// Package docker talks to the engine daemon over its API. The job driver itself
// goes through the CLI (internal/container); this client only backs health checks
// that need structured daemon information.
package docker

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"
)

// API is the subset of the SDK client the agent uses.
type API interface {
	Ping(ctx context.Context) (types.Ping, error)
	ServerVersion(ctx context.Context) (types.Version, error)
	DaemonHost() string
	Close() error
}

// Client wraps the SDK client.
type Client struct {
	cli API
}

// NewClient connects to host, or to the daemon named by the environment
// (DOCKER_HOST and friends) when host is empty.
func NewClient(host string) (*Client, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	return &Client{cli: cli}, nil
}

// NewClientWithAPI wraps an existing API implementation.
func NewClientWithAPI(api API) *Client { return &Client{cli: api} }

// Close releases client resources.
func (c *Client) Close() error {
	return c.cli.Close()
}

// DaemonInfo summarizes the daemon for diagnostics.
type DaemonInfo struct {
	Host          string `json:"host"`
	Version       string `json:"version"`
	APIVersion    string `json:"api_version"`
	OS            string `json:"os"`
	Arch          string `json:"arch"`
	KernelVersion string `json:"kernel_version,omitempty"`
	// BuilderVersion is "2" when BuildKit is the daemon's default builder.
	BuilderVersion string `json:"builder_version,omitempty"`
}

// Info pings the daemon and reads its version.
func (c *Client) Info(ctx context.Context) (DaemonInfo, error) {
	ping, err := c.cli.Ping(ctx)
	if err != nil {
		return DaemonInfo{}, fmt.Errorf("docker daemon not accessible at %s: %w", c.cli.DaemonHost(), err)
	}
	v, err := c.cli.ServerVersion(ctx)
	if err != nil {
		return DaemonInfo{}, fmt.Errorf("reading docker version: %w", err)
	}
	return DaemonInfo{
		Host:           c.cli.DaemonHost(),
		Version:        v.Version,
		APIVersion:     v.APIVersion,
		OS:             v.Os,
		Arch:           v.Arch,
		KernelVersion:  v.KernelVersion,
		BuilderVersion: string(ping.BuilderVersion),
	}, nil
}
