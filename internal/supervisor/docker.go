package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/reedfamily/zomboidbot/internal/docker"
	"go.uber.org/zap"
)

// ContainerAPI is the part of docker.Client the container backend uses.
type ContainerAPI interface {
	PullImage(ctx context.Context, ref string) error
	CreateContainer(ctx context.Context, cfg docker.ContainerConfig) (string, error)
	StartContainer(ctx context.Context, id string) error
	StopContainer(ctx context.Context, id string) error
	ContainerStatus(ctx context.Context, id string) (string, error)
	ContainerLogs(ctx context.Context, id, tail string, follow bool) (io.ReadCloser, error)
	SendLine(ctx context.Context, id, line string) error
}

// DockerBackend hosts the managed process as a named container. The image's
// entrypoint starts the server, so Launch lines are not used.
type DockerBackend struct {
	api  ContainerAPI
	spec docker.ContainerConfig
	log  *zap.Logger
}

func NewDockerBackend(api ContainerAPI, spec docker.ContainerConfig, log *zap.Logger) *DockerBackend {
	if log == nil {
		log = zap.NewNop()
	}
	return &DockerBackend{api: api, spec: spec, log: log}
}

func (b *DockerBackend) Kind() string { return "container" }

func (b *DockerBackend) Exists(ctx context.Context) (bool, error) {
	status, err := b.api.ContainerStatus(ctx, b.spec.Name)
	if errors.Is(err, docker.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return status == "running", nil
}

// Spawn creates the container on first use, then starts it.
func (b *DockerBackend) Spawn(ctx context.Context, _ Launch) error {
	_, err := b.api.ContainerStatus(ctx, b.spec.Name)
	switch {
	case errors.Is(err, docker.ErrNotFound):
		if err := b.api.PullImage(ctx, b.spec.Image); err != nil {
			b.log.Warn("image pull failed, trying local image", zap.String("image", b.spec.Image), zap.Error(err))
		}
		if _, err := b.api.CreateContainer(ctx, b.spec); err != nil {
			return err
		}
	case err != nil:
		return err
	}
	if err := b.api.StartContainer(ctx, b.spec.Name); err != nil {
		return fmt.Errorf("start container: %w", err)
	}
	return nil
}

func (b *DockerBackend) Terminate(ctx context.Context) error {
	return b.api.StopContainer(ctx, b.spec.Name)
}

func (b *DockerBackend) Send(ctx context.Context, line string) error {
	return b.api.SendLine(ctx, b.spec.Name, line)
}

func (b *DockerBackend) Output(ctx context.Context) (string, error) {
	rc, err := b.api.ContainerLogs(ctx, b.spec.Name, "100", false)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

var _ Backend = (*DockerBackend)(nil)
