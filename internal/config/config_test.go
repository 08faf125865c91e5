package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testConfigYAML = []byte(`
server:
  name: aliformer
  config_dirpath: /home/pzuser/Zomboid/Server
  logs_dir_path: /home/pzuser/Zomboid/Logs
  start_server_filepath: /opt/pzserver
  tmux_session_name: zomboid
telegram_bot:
  tmux_session_name: pz-server
other:
  mod_manager_timeout: 7
  minimum_agree_members_for_mod: 2
  poll_duration: 15m
`)

func TestParse(t *testing.T) {
	cfg, err := Parse(testConfigYAML)
	require.NoError(t, err)

	assert.Equal(t, "aliformer", cfg.Server.Name)
	assert.Equal(t, "pz-server", cfg.TelegramBot.TmuxSessionName)
	assert.Equal(t, "tmux", cfg.Server.Backend)
	assert.Equal(t, 7*time.Second, cfg.Other.ModManagerTimeout.Duration())
	assert.Equal(t, 15*time.Minute, cfg.Other.PollDuration.Duration())
	assert.Equal(t, 2, cfg.Other.MinimumAgreeMembersForMod)

	// Defaults survive a partial file.
	assert.Equal(t, "bot.py", cfg.TelegramBot.LaunchLabel)
	assert.Equal(t, 5, cfg.Other.PollMaxAnswers)
	assert.Equal(t, "127.0.0.1:27015", cfg.RCONAddr())
}

func TestDerivedPaths(t *testing.T) {
	cfg, err := Parse(testConfigYAML)
	require.NoError(t, err)

	assert.Equal(t, "/home/pzuser/Zomboid/Server/aliformer.ini", cfg.ServerIniPath())
	assert.Equal(t, "/opt/pzserver/start-server.sh", cfg.StartServerScript())
}

func TestParse_MissingSessionName(t *testing.T) {
	_, err := Parse([]byte(`
server:
  name: aliformer
  tmux_session_name: zomboid
telegram_bot: {}
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram_bot.tmux_session_name")
}

func TestParse_Malformed(t *testing.T) {
	_, err := Parse([]byte("server: [unterminated"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config")
}

func TestParse_DockerBackendNeedsImage(t *testing.T) {
	_, err := Parse([]byte(`
server:
  name: aliformer
  tmux_session_name: zomboid
  backend: docker
telegram_bot:
  tmux_session_name: pz-server
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "docker backend")
}

func TestLoad_EnvOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, testConfigYAML, 0644))

	t.Setenv("ZOMBOID_DATA_DIR", dir)
	t.Setenv("ZOMBOID_TELEGRAM_TOKEN", "")
	t.Setenv("TELEGRAM_BOT_TOKEN", "legacy-token")
	t.Setenv("ZOMBOID_LISTEN", ":9999")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "legacy-token", cfg.Env.TelegramToken)
	assert.Equal(t, ":9999", cfg.Env.ListenAddr)
	assert.Equal(t, filepath.Join(dir, "zomboidbot.db"), cfg.Env.DatabasePath)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config")
}
