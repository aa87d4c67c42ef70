package container

import (
	"context"
	"fmt"
	"strings"

	"github.com/majorcontext/jobdock/internal/log"
	"github.com/majorcontext/jobdock/internal/tasklog"
	"github.com/majorcontext/jobdock/internal/workspace"
)

// CreateNetwork creates the job network, or resets it when a network with that name
// already exists. options are extra quote-aware `network create` arguments.
func (d *Docker) CreateNetwork(ctx context.Context, name, options string, logger tasklog.Logger) error {
	extra, err := workspace.ParseQuoteTokens(options)
	if err != nil {
		return invalidf("parsing network options: %v", err)
	}

	// The name filter matches substrings, so "ci" also lists "ci-build".
	exists := false
	found := LineSinkFunc(func(line string) {
		if strings.TrimSpace(line) == name {
			exists = true
		}
	})
	if err := d.run(ctx, "", found, infoSink(logger), "network", "ls", "--filter", "name="+name, "--format={{.Name}}"); err != nil {
		return fmt.Errorf("listing networks: %w", err)
	}
	if exists {
		log.Debug("network exists, clearing", "network", name)
		return d.ClearNetwork(ctx, name, logger)
	}

	args := []string{"network", "create"}
	if d.goos == "windows" {
		args = append(args, "-d", "nat")
	}
	args = append(args, extra...)
	args = append(args, name)
	if err := d.run(ctx, "", debugSink("network", name), infoSink(logger), args...); err != nil {
		return fmt.Errorf("creating network %s: %w", name, err)
	}
	return nil
}

// ClearNetwork stops and removes, with volumes, every container attached to the
// network in any state.
func (d *Docker) ClearNetwork(ctx context.Context, name string, logger tasklog.Logger) error {
	var ids []string
	if err := d.run(ctx, "", collect(&ids), infoSink(logger), "ps", "-a", "-q", "--filter", "network="+name); err != nil {
		return fmt.Errorf("listing containers on network %s: %w", name, err)
	}
	for _, id := range ids {
		if err := d.run(ctx, "", debugSink("container", id), infoSink(logger), "container", "stop", id); err != nil {
			return fmt.Errorf("stopping container %s: %w", id, err)
		}
		if err := d.run(ctx, "", debugSink("container", id), infoSink(logger), "container", "rm", "-v", id); err != nil {
			return fmt.Errorf("removing container %s: %w", id, err)
		}
	}
	return nil
}

// DeleteNetwork clears the network, then removes it.
func (d *Docker) DeleteNetwork(ctx context.Context, name string, logger tasklog.Logger) error {
	if err := d.ClearNetwork(ctx, name, logger); err != nil {
		return err
	}
	if err := d.run(ctx, "", debugSink("network", name), infoSink(logger), "network", "rm", name); err != nil {
		return fmt.Errorf("removing network %s: %w", name, err)
	}
	return nil
}
