package tmux

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cmdRecorder records every tmux invocation and substitutes a harmless shell
// command that prints output and exits with the configured status.
type cmdRecorder struct {
	calls  [][]string
	output string
	fail   bool
}

func (r *cmdRecorder) makeCmd(ctx context.Context, name string, args ...string) *exec.Cmd {
	r.calls = append(r.calls, append([]string{name}, args...))
	if r.fail {
		return exec.CommandContext(ctx, "sh", "-c", fmt.Sprintf("echo %q >&2; exit 1", r.output))
	}
	if r.output != "" {
		return exec.CommandContext(ctx, "printf", "%s", r.output)
	}
	return exec.CommandContext(ctx, "true")
}

func (r *cmdRecorder) last() string {
	return strings.Join(r.calls[len(r.calls)-1], " ")
}

func TestCLI_HasSession(t *testing.T) {
	rec := &cmdRecorder{}
	cli := NewCLIWithCmd(rec.makeCmd)

	ok, err := cli.HasSession(context.Background(), "pz-server")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tmux has-session -t =pz-server", rec.last())
}

func TestCLI_HasSession_Missing(t *testing.T) {
	rec := &cmdRecorder{fail: true, output: "can't find session: pz-server"}
	cli := NewCLIWithCmd(rec.makeCmd)

	ok, err := cli.HasSession(context.Background(), "pz-server")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCLI_HasSession_BinaryMissing(t *testing.T) {
	cli := NewCLIWithCmd(func(ctx context.Context, name string, args ...string) *exec.Cmd {
		return exec.CommandContext(ctx, "/nonexistent/tmux-binary")
	})

	_, err := cli.HasSession(context.Background(), "pz-server")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tmux has-session")
}

func TestCLI_NewSession(t *testing.T) {
	rec := &cmdRecorder{}
	cli := NewCLIWithCmd(rec.makeCmd)

	require.NoError(t, cli.NewSession(context.Background(), "pz-server", "", ""))
	assert.Equal(t, "tmux new-session -d -s pz-server", rec.last())

	require.NoError(t, cli.NewSession(context.Background(), "pz-server", "bash", "/srv"))
	assert.Equal(t, "tmux new-session -d -s pz-server -c /srv bash", rec.last())
}

func TestCLI_NewSession_Error(t *testing.T) {
	rec := &cmdRecorder{fail: true, output: "duplicate session: pz-server"}
	cli := NewCLIWithCmd(rec.makeCmd)

	err := cli.NewSession(context.Background(), "pz-server", "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tmux new-session")
	assert.Contains(t, err.Error(), "duplicate session")
}

func TestCLI_SendKeys(t *testing.T) {
	rec := &cmdRecorder{}
	cli := NewCLIWithCmd(rec.makeCmd)

	require.NoError(t, cli.SendKeys(context.Background(), "pz-server", "python bot.py"))
	assert.Equal(t, []string{"tmux", "send-keys", "-t", "=pz-server:", "python bot.py", "Enter"}, rec.calls[0])
}

func TestCLI_KillSession(t *testing.T) {
	rec := &cmdRecorder{}
	cli := NewCLIWithCmd(rec.makeCmd)

	require.NoError(t, cli.KillSession(context.Background(), "pz-server"))
	assert.Equal(t, "tmux kill-session -t =pz-server", rec.last())
}

func TestCLI_CapturePane(t *testing.T) {
	rec := &cmdRecorder{output: "SERVER STARTED"}
	cli := NewCLIWithCmd(rec.makeCmd)

	out, err := cli.CapturePane(context.Background(), "pz-server")
	require.NoError(t, err)
	assert.Equal(t, "SERVER STARTED", out)
}

func TestCLI_ListSessions(t *testing.T) {
	rec := &cmdRecorder{output: "pz-server\npz-bot\n"}
	cli := NewCLIWithCmd(rec.makeCmd)

	sessions, err := cli.ListSessions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"pz-server", "pz-bot"}, sessions)
}

func TestCLI_ListSessions_NoServer(t *testing.T) {
	rec := &cmdRecorder{fail: true, output: "no server running on /tmp/tmux-0/default"}
	cli := NewCLIWithCmd(rec.makeCmd)

	sessions, err := cli.ListSessions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sessions)
}
