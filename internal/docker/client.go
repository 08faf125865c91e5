package docker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/go-connections/nat"
)

// ErrNotFound is returned when the named container does not exist.
var ErrNotFound = errors.New("container not found")

type Client struct {
	cli *client.Client
}

type ContainerConfig struct {
	Name        string
	Image       string
	Env         map[string]string
	Ports       []PortMapping
	Volumes     map[string]string
	MemoryLimit int64
	CPULimit    float64
}

type PortMapping struct {
	Host      string `json:"host"`
	Container string `json:"container"`
	Protocol  string `json:"protocol"`
}

func NewClient() (*Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	return &Client{cli: cli}, nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}

func (c *Client) PullImage(ctx context.Context, ref string) error {
	reader, err := c.cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image: %w", err)
	}
	defer reader.Close()
	_, err = io.Copy(io.Discard, reader)
	return err
}

// CreateContainer creates a stopped container. Dedicated servers read their
// console from stdin, so the container keeps a TTY and open stdin.
func (c *Client) CreateContainer(ctx context.Context, cfg ContainerConfig) (string, error) {
	env := make([]string, 0, len(cfg.Env))
	for k, v := range cfg.Env {
		env = append(env, k+"="+v)
	}

	exposedPorts := nat.PortSet{}
	portBindings := nat.PortMap{}
	for _, p := range cfg.Ports {
		port, err := nat.NewPort(p.protocol(), p.Container)
		if err != nil {
			return "", fmt.Errorf("port %s: %w", p.Container, err)
		}
		exposedPorts[port] = struct{}{}
		portBindings[port] = append(portBindings[port], nat.PortBinding{HostPort: p.Host})
	}

	mounts := make([]mount.Mount, 0, len(cfg.Volumes))
	for hostPath, containerPath := range cfg.Volumes {
		mounts = append(mounts, mount.Mount{Type: mount.TypeBind, Source: hostPath, Target: containerPath})
	}

	hostCfg := &container.HostConfig{
		PortBindings: portBindings,
		Mounts:       mounts,
	}
	if cfg.MemoryLimit > 0 {
		hostCfg.Memory = cfg.MemoryLimit
	}
	if cfg.CPULimit > 0 {
		hostCfg.NanoCPUs = int64(cfg.CPULimit * 1e9)
	}

	resp, err := c.cli.ContainerCreate(ctx, &container.Config{
		Image:        cfg.Image,
		Env:          env,
		ExposedPorts: exposedPorts,
		Tty:          true,
		OpenStdin:    true,
		AttachStdin:  true,
	}, hostCfg, nil, nil, cfg.Name)
	if err != nil {
		return "", fmt.Errorf("create container: %w", err)
	}
	return resp.ID, nil
}

func (c *Client) StartContainer(ctx context.Context, id string) error {
	return c.cli.ContainerStart(ctx, id, container.StartOptions{})
}

func (c *Client) StopContainer(ctx context.Context, id string) error {
	timeout := 30
	return c.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeout})
}

// ContainerStatus returns the docker state ("running", "exited", ...).
func (c *Client) ContainerStatus(ctx context.Context, id string) (string, error) {
	resp, err := c.cli.ContainerInspect(ctx, id)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return "", fmt.Errorf("%s: %w", id, ErrNotFound)
		}
		return "", err
	}
	return resp.State.Status, nil
}

// ContainerLogs returns the last tail lines of output. TTY containers have
// no stream headers, so the reader is plain text.
func (c *Client) ContainerLogs(ctx context.Context, id, tail string, follow bool) (io.ReadCloser, error) {
	return c.cli.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     follow,
		Tail:       tail,
	})
}

// SendLine writes line to the main process stdin.
func (c *Client) SendLine(ctx context.Context, id, line string) error {
	attach, err := c.cli.ContainerAttach(ctx, id, container.AttachOptions{Stream: true, Stdin: true})
	if err != nil {
		return fmt.Errorf("attach: %w", err)
	}
	defer attach.Close()
	if _, err := attach.Conn.Write([]byte(line + "\n")); err != nil {
		return fmt.Errorf("write stdin: %w", err)
	}
	return nil
}

func (p PortMapping) protocol() string {
	if p.Protocol == "" {
		return "tcp"
	}
	return p.Protocol
}

// ParsePortMappings parses port strings like "16261:16261/udp".
func ParsePortMappings(ports []string) ([]PortMapping, error) {
	var result []PortMapping
	for _, p := range ports {
		proto := "tcp"
		spec := p
		if idx := strings.Index(spec, "/"); idx != -1 {
			proto = spec[idx+1:]
			spec = spec[:idx]
		}
		parts := strings.SplitN(spec, ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid port mapping %q", p)
		}
		result = append(result, PortMapping{Host: parts[0], Container: parts[1], Protocol: proto})
	}
	return result, nil
}

// ParseMemory parses a memory string like "2G" or "512M" to bytes.
func ParseMemory(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	if s == "" || s == "0" {
		return 0, nil
	}
	multiplier := int64(1)
	switch {
	case strings.HasSuffix(s, "G"):
		multiplier = 1 << 30
		s = s[:len(s)-1]
	case strings.HasSuffix(s, "M"):
		multiplier = 1 << 20
		s = s[:len(s)-1]
	}
	val, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid memory %q", s)
	}
	return val * multiplier, nil
}
