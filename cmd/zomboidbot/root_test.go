package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("ZOMBOID_DATA_DIR", t.TempDir())
	t.Setenv("ZOMBOID_LOG_LEVEL", "error")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	err := rootCmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, logsDir string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
server:
  name: aliformer
  config_dirpath: ` + t.TempDir() + `
  logs_dir_path: ` + logsDir + `
  tmux_session_name: zomboid
telegram_bot:
  tmux_session_name: pz-server
`)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestMissingConfig(t *testing.T) {
	_, err := runCLI(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"), "players")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config")
}

func TestSessionUnknownTarget(t *testing.T) {
	cfg := writeConfig(t, t.TempDir())
	_, err := runCLI(t, "--config", cfg, "session", "status", "--target", "world")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown target "world"`)
}

func TestPlayersFromLogs(t *testing.T) {
	logs := t.TempDir()
	userLog := `[14-10-26 20:00:05.000] 765611980001 "alice" fully connected (100,200,0).
[14-10-26 20:01:05.000] 765611980002 "bob" fully connected (100,200,0).
[14-10-26 20:09:05.000] 765611980001 "alice" disconnected player (100,200,0).
`
	require.NoError(t, os.WriteFile(filepath.Join(logs, "14-10-26_20-00-00_user.txt"), []byte(userLog), 0644))

	out, err := runCLI(t, "--config", writeConfig(t, logs), "players", "--rcon=false")
	require.NoError(t, err)
	assert.Equal(t, "1 player(s) online\nbob\n", out)
}

func TestPlayersNoLogs(t *testing.T) {
	out, err := runCLI(t, "--config", writeConfig(t, t.TempDir()), "players", "--rcon=false")
	require.NoError(t, err)
	assert.Equal(t, "0 player(s) online\n", out)
}
