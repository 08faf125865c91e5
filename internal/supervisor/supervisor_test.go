package supervisor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner is an in-memory tmux.Runner.
type fakeRunner struct {
	sessions map[string][]string // name -> keys sent

	newCalls  int
	killCalls int
	hasErr    error
	newErr    error
}

func newFakeRunner(existing ...string) *fakeRunner {
	r := &fakeRunner{sessions: map[string][]string{}}
	for _, name := range existing {
		r.sessions[name] = nil
	}
	return r
}

func (r *fakeRunner) HasSession(_ context.Context, name string) (bool, error) {
	if r.hasErr != nil {
		return false, r.hasErr
	}
	_, ok := r.sessions[name]
	return ok, nil
}

func (r *fakeRunner) NewSession(_ context.Context, name, _, _ string) error {
	r.newCalls++
	if r.newErr != nil {
		return r.newErr
	}
	if _, ok := r.sessions[name]; ok {
		return fmt.Errorf("duplicate session: %s", name)
	}
	r.sessions[name] = nil
	return nil
}

func (r *fakeRunner) SendKeys(_ context.Context, name, text string) error {
	if _, ok := r.sessions[name]; !ok {
		return fmt.Errorf("can't find session: %s", name)
	}
	r.sessions[name] = append(r.sessions[name], text)
	return nil
}

func (r *fakeRunner) KillSession(_ context.Context, name string) error {
	r.killCalls++
	if _, ok := r.sessions[name]; !ok {
		return fmt.Errorf("can't find session: %s", name)
	}
	delete(r.sessions, name)
	return nil
}

func (r *fakeRunner) CapturePane(_ context.Context, name string) (string, error) {
	keys, ok := r.sessions[name]
	if !ok {
		return "", fmt.Errorf("can't find session: %s", name)
	}
	return fmt.Sprint(keys), nil
}

func (r *fakeRunner) ListSessions(context.Context) ([]string, error) {
	var names []string
	for name := range r.sessions {
		names = append(names, name)
	}
	return names, nil
}

var botLaunch = Launch{
	Setup:   "source venv/bin/activate",
	Command: "python bot.py",
	Label:   "bot.py",
}

func newTestSupervisor(runner *fakeRunner, name string) (*Supervisor, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	s := New(name, NewTmuxBackend(runner, name), botLaunch, WithOutput(&out, &errOut))
	return s, &out, &errOut
}

func TestStart_CreatesSession(t *testing.T) {
	runner := newFakeRunner()
	s, out, _ := newTestSupervisor(runner, "pz-server")

	res, err := s.Start(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Changed)
	assert.Equal(t, 1, runner.newCalls)
	assert.Equal(t, []string{"source venv/bin/activate", "python bot.py"}, runner.sessions["pz-server"])
	assert.Equal(t, "Creating tmux session 'pz-server' and running bot.py\n", out.String())
}

func TestStart_Twice(t *testing.T) {
	runner := newFakeRunner()
	s, out, _ := newTestSupervisor(runner, "pz-server")

	_, err := s.Start(context.Background())
	require.NoError(t, err)
	out.Reset()

	res, err := s.Start(context.Background())
	require.NoError(t, err)

	assert.False(t, res.Changed)
	assert.Equal(t, 1, runner.newCalls, "second start must not create another session")
	assert.Len(t, runner.sessions["pz-server"], 2, "second start must not queue more commands")
	assert.Equal(t, "Session 'pz-server' already exists.\n", out.String())
}

func TestStop_KillsSession(t *testing.T) {
	runner := newFakeRunner("pz-server")
	s, out, errOut := newTestSupervisor(runner, "pz-server")

	res, err := s.Stop(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Changed)
	assert.Equal(t, 1, runner.killCalls)
	assert.NotContains(t, runner.sessions, "pz-server")
	assert.Equal(t, "Session 'pz-server' session killed.\n", out.String())
	assert.Empty(t, errOut.String())
}

func TestStop_MissingIsBenign(t *testing.T) {
	runner := newFakeRunner("other")
	s, out, errOut := newTestSupervisor(runner, "pz-server")

	res, err := s.Stop(context.Background())
	require.NoError(t, err)

	assert.False(t, res.Changed)
	assert.Zero(t, runner.killCalls)
	assert.Contains(t, runner.sessions, "other")
	assert.Empty(t, out.String())
	assert.Equal(t, "Session 'pz-server' does not exist.\n", errOut.String())
}

func TestStartStop_Properties(t *testing.T) {
	for _, name := range []string{"pz-server", "zomboid", "a", "bot with spaces"} {
		runner := newFakeRunner()
		s, _, _ := newTestSupervisor(runner, name)

		_, err := s.Start(context.Background())
		require.NoError(t, err, name)
		status, err := s.Status(context.Background())
		require.NoError(t, err, name)
		assert.Equal(t, StatusRunning, status, name)

		_, err = s.Stop(context.Background())
		require.NoError(t, err, name)
		status, err = s.Status(context.Background())
		require.NoError(t, err, name)
		assert.Equal(t, StatusStopped, status, name)
	}
}

func TestStart_FacilityError(t *testing.T) {
	runner := newFakeRunner()
	runner.hasErr = errors.New("exec: \"tmux\": executable file not found in $PATH")
	s, _, _ := newTestSupervisor(runner, "pz-server")

	_, err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `start session "pz-server"`)
	assert.Zero(t, runner.newCalls)
}

func TestStart_CreateError(t *testing.T) {
	runner := newFakeRunner()
	runner.newErr = errors.New("server exited unexpectedly")
	s, _, _ := newTestSupervisor(runner, "pz-server")

	_, err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server exited unexpectedly")
}

func TestRestart(t *testing.T) {
	runner := newFakeRunner("zomboid")
	runner.sessions["zomboid"] = []string{"stale"}
	launch := Launch{Setup: "cd /opt/pzserver", Command: "/opt/pzserver/start-server.sh -servername aliformer"}

	var out bytes.Buffer
	s := New("zomboid", NewTmuxBackend(runner, "zomboid"), launch, WithOutput(&out, &out))

	res, err := s.Restart(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Changed)
	assert.Equal(t, 1, runner.killCalls)
	assert.Equal(t, []string{"cd /opt/pzserver", "/opt/pzserver/start-server.sh -servername aliformer"}, runner.sessions["zomboid"])
	assert.Equal(t, "Session 'zomboid' restarted.\n", out.String())
}

func TestRestart_WhenStopped(t *testing.T) {
	runner := newFakeRunner()
	s, _, _ := newTestSupervisor(runner, "zomboid")

	_, err := s.Restart(context.Background())
	require.NoError(t, err)
	assert.Zero(t, runner.killCalls)
	assert.Contains(t, runner.sessions, "zomboid")
}

func TestSend_RequiresSession(t *testing.T) {
	runner := newFakeRunner()
	s, _, _ := newTestSupervisor(runner, "zomboid")

	err := s.Send(context.Background(), "save")
	require.ErrorIs(t, err, ErrSessionNotFound)

	_, err = s.Output(context.Background())
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestObserver(t *testing.T) {
	runner := newFakeRunner()
	var seen []string
	var out bytes.Buffer
	s := New("pz-server", NewTmuxBackend(runner, "pz-server"), botLaunch,
		WithOutput(&out, &out),
		WithObserver(func(op, outcome string) { seen = append(seen, op+":"+outcome) }),
	)

	ctx := context.Background()
	_, _ = s.Start(ctx)
	_, _ = s.Start(ctx)
	_, _ = s.Stop(ctx)
	_, _ = s.Stop(ctx)

	assert.Equal(t, []string{"start:created", "start:noop", "stop:killed", "stop:noop"}, seen)
}
