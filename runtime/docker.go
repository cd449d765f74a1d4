package runtime

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/go-connections/nat"
)

// DockerClient runs session containers on a local Docker daemon.
type DockerClient struct {
	cli *client.Client
}

func NewDockerClient() (*DockerClient, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &DockerClient{cli: cli}, nil
}

func (d *DockerClient) Create(ctx context.Context, spec Spec) (string, error) {
	port := nat.Port(spec.Port)

	containerConfig := &container.Config{
		Image:        spec.Image,
		Env:          spec.Env,
		ExposedPorts: nat.PortSet{port: struct{}{}},
		Labels:       spec.Labels,
	}

	hostConfig := &container.HostConfig{
		AutoRemove: spec.AutoRemove,
		ShmSize:    spec.ShmSize,
		PortBindings: nat.PortMap{
			port: []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: ""}},
		},
		Resources: container.Resources{
			Memory:     spec.Memory,
			MemorySwap: spec.Memory,
		},
		SecurityOpt: []string{"no-new-privileges", "seccomp=unconfined"},
		CapDrop:     []string{"ALL"},
		CapAdd:      []string{"CHOWN", "DAC_OVERRIDE", "FOWNER", "SETUID", "SETGID"},
	}

	resp, err := d.cli.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, spec.Name)
	if err != nil {
		return "", fmt.Errorf("create container: %w", err)
	}
	return resp.ID, nil
}

func (d *DockerClient) Start(ctx context.Context, containerID string) error {
	if err := d.cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return fmt.Errorf("start container: %w", err)
	}
	return nil
}

func (d *DockerClient) Stop(ctx context.Context, containerID string) error {
	if err := d.cli.ContainerStop(ctx, containerID, container.StopOptions{}); err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("stop container: %w", err)
	}
	return nil
}

func (d *DockerClient) Remove(ctx context.Context, containerID string) error {
	err := d.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
	if err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("remove container: %w", err)
	}
	return nil
}

// Inspect reports ErrGone when the container no longer exists so the
// manager can detect drift between the registry and the daemon.
func (d *DockerClient) Inspect(ctx context.Context, containerID string) (Info, error) {
	inspect, err := d.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return Info{}, ErrGone
		}
		return Info{}, fmt.Errorf("inspect container: %w", err)
	}

	info := Info{}
	if inspect.State != nil {
		info.Running = inspect.State.Running
		if t, err := parseDockerTime(inspect.State.StartedAt); err == nil {
			info.StartedAt = t
		}
	}
	return info, nil
}

func (d *DockerClient) Close() error {
	return d.cli.Close()
}
