package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"

	"github.com/objectfs/s3harness/pkg/errors"
)

const containerStopTimeout = 10 // seconds

// NodeCounter reports how many cluster nodes are currently running.
type NodeCounter interface {
	RunningNodes(ctx context.Context) (int, error)
}

// dockerAPI is the part of the Docker SDK client used here.
type dockerAPI interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	Close() error
}

// Node describes one cluster node container.
type Node struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	State  string `json:"state"`
	Status string `json:"status"`
}

// DockerNodes manages cluster nodes that run as containers of one image.
type DockerNodes struct {
	cli        dockerAPI
	image      string
	namePrefix string
	logger     *slog.Logger

	// SettleDelay is waited after starting or stopping a node.
	SettleDelay time.Duration
}

// NewDockerNodes connects to the Docker engine at host, or to the environment's
// engine when host is empty. Nodes are containers whose ancestor is image and
// whose names are namePrefix followed by the node index.
func NewDockerNodes(host, image, namePrefix string, logger *slog.Logger) (*DockerNodes, error) {
	opts := []client.Opt{client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	} else {
		opts = append(opts, client.FromEnv)
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeConnectionFailed, "failed to create docker client").
			WithComponent("cluster").
			WithCause(err)
	}
	return newDockerNodes(cli, image, namePrefix, logger), nil
}

func newDockerNodes(cli dockerAPI, image, namePrefix string, logger *slog.Logger) *DockerNodes {
	if logger == nil {
		logger = slog.Default()
	}
	return &DockerNodes{
		cli:         cli,
		image:       image,
		namePrefix:  namePrefix,
		logger:      logger,
		SettleDelay: 5 * time.Second,
	}
}

// NodeName returns the container name of the node with the given index.
func (d *DockerNodes) NodeName(index int) string {
	return fmt.Sprintf("%s%d", d.namePrefix, index)
}

// RunningNodes counts running containers built from the node image.
func (d *DockerNodes) RunningNodes(ctx context.Context) (int, error) {
	containers, err := d.cli.ContainerList(ctx, container.ListOptions{
		Filters: filters.NewArgs(filters.Arg("ancestor", d.image)),
	})
	if err != nil {
		return 0, errors.NewError(errors.ErrCodeClusterStatus, "failed to list running nodes").
			WithComponent("cluster").
			WithOperation("running_nodes").
			WithCause(err)
	}
	return len(containers), nil
}

// List returns every node container, running or not.
func (d *DockerNodes) List(ctx context.Context) ([]Node, error) {
	containers, err := d.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("ancestor", d.image)),
	})
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeClusterStatus, "failed to list nodes").
			WithComponent("cluster").
			WithOperation("list").
			WithCause(err)
	}

	nodes := make([]Node, 0, len(containers))
	for _, c := range containers {
		name := ""
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}
		nodes = append(nodes, Node{ID: c.ID, Name: name, State: string(c.State), Status: c.Status})
	}
	return nodes, nil
}

// Start starts the node with the given index and waits SettleDelay.
func (d *DockerNodes) Start(ctx context.Context, index int) error {
	name := d.NodeName(index)
	if err := d.cli.ContainerStart(ctx, name, container.StartOptions{}); err != nil {
		return d.nodeError("start", name, err)
	}
	d.logger.Info("Started node", "node", name)
	return sleep(ctx, d.SettleDelay)
}

// Stop stops the node with the given index and waits SettleDelay.
func (d *DockerNodes) Stop(ctx context.Context, index int) error {
	name := d.NodeName(index)
	timeout := containerStopTimeout
	if err := d.cli.ContainerStop(ctx, name, container.StopOptions{Timeout: &timeout}); err != nil {
		return d.nodeError("stop", name, err)
	}
	d.logger.Info("Stopped node", "node", name)
	return sleep(ctx, d.SettleDelay)
}

// Remove force-removes the node with the given index and its volumes.
func (d *DockerNodes) Remove(ctx context.Context, index int) error {
	name := d.NodeName(index)
	if err := d.cli.ContainerRemove(ctx, name, container.RemoveOptions{Force: true, RemoveVolumes: true}); err != nil {
		return d.nodeError("remove", name, err)
	}
	d.logger.Info("Removed node", "node", name)
	return nil
}

// RemoveAll force-removes every node container and returns how many were
// removed.
func (d *DockerNodes) RemoveAll(ctx context.Context) (int, error) {
	nodes, err := d.List(ctx)
	if err != nil {
		return 0, err
	}
	for i, n := range nodes {
		if err := d.cli.ContainerRemove(ctx, n.ID, container.RemoveOptions{Force: true, RemoveVolumes: true}); err != nil {
			return i, d.nodeError("remove", n.Name, err)
		}
		d.logger.Info("Removed node", "node", n.Name)
	}
	return len(nodes), nil
}

// Close closes the Docker client connection.
func (d *DockerNodes) Close() error {
	return d.cli.Close()
}

func (d *DockerNodes) nodeError(op, name string, err error) error {
	code := errors.ErrCodeClusterStatus
	if cerrdefs.IsNotFound(err) {
		code = errors.ErrCodeNodeNotFound
	}
	return errors.NewError(code, fmt.Sprintf("failed to %s node", op)).
		WithComponent("cluster").
		WithOperation(op).
		WithContext("node", name).
		WithCause(err)
}
