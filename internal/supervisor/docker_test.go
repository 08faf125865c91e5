package supervisor

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/reedfamily/zomboidbot/internal/docker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeContainers struct {
	status  map[string]string
	created []docker.ContainerConfig
	sent    []string
	pullErr error
}

func (f *fakeContainers) PullImage(context.Context, string) error { return f.pullErr }

func (f *fakeContainers) CreateContainer(_ context.Context, cfg docker.ContainerConfig) (string, error) {
	f.created = append(f.created, cfg)
	f.status[cfg.Name] = "created"
	return "c0ffee", nil
}

func (f *fakeContainers) StartContainer(_ context.Context, id string) error {
	if _, ok := f.status[id]; !ok {
		return fmt.Errorf("no such container: %s", id)
	}
	f.status[id] = "running"
	return nil
}

func (f *fakeContainers) StopContainer(_ context.Context, id string) error {
	f.status[id] = "exited"
	return nil
}

func (f *fakeContainers) ContainerStatus(_ context.Context, id string) (string, error) {
	s, ok := f.status[id]
	if !ok {
		return "", fmt.Errorf("%s: %w", id, docker.ErrNotFound)
	}
	return s, nil
}

func (f *fakeContainers) ContainerLogs(context.Context, string, string, bool) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("LOG: Server started\n")), nil
}

func (f *fakeContainers) SendLine(_ context.Context, _ string, line string) error {
	f.sent = append(f.sent, line)
	return nil
}

func TestDockerBackend_Lifecycle(t *testing.T) {
	api := &fakeContainers{status: map[string]string{}, pullErr: fmt.Errorf("offline")}
	spec := docker.ContainerConfig{Name: "pz", Image: "pz:latest"}
	b := NewDockerBackend(api, spec, nil)
	s := New("pz", b, Launch{Label: "start-server.sh"}, WithOutput(io.Discard, io.Discard))
	ctx := context.Background()

	res, err := s.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Creating container 'pz' and running start-server.sh", res.Message)
	assert.Len(t, api.created, 1, "pull failure falls back to the local image")
	assert.Equal(t, "running", api.status["pz"])

	require.NoError(t, s.Send(ctx, "save"))
	assert.Equal(t, []string{"save"}, api.sent)

	out, err := s.Output(ctx)
	require.NoError(t, err)
	assert.Contains(t, out, "Server started")

	_, err = s.Stop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "exited", api.status["pz"])

	// A stopped container is restarted in place, not recreated.
	_, err = s.Start(ctx)
	require.NoError(t, err)
	assert.Len(t, api.created, 1)
	assert.Equal(t, "running", api.status["pz"])
}
