package logs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/reedfamily/zomboidbot/internal/game/zomboid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLog(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestParseStamp(t *testing.T) {
	got, ok := ParseStamp("/logs/14-10-26_21-05-09_user.txt")
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 10, 14, 21, 5, 9, 0, time.UTC), got)

	got, ok = ParseStamp("logs_14-10-26")
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC), got)

	_, ok = ParseStamp("console.txt")
	assert.False(t, ok)

	_, ok = ParseStamp("99-99-99_user.txt")
	assert.False(t, ok)
}

func TestGroupOf(t *testing.T) {
	tests := map[string]string{
		"/l/14-10-26_21-05-09_user.txt":           GroupUser,
		"/l/14-10-26_21-05-09_chat.txt":           GroupChat,
		"/l/14-10-26_21-05-09_client chat.txt":    GroupClientChat,
		"/l/14-10-26_21-05-09_DebugLog.txt":       GroupDebug,
		"/l/14-10-26_21-05-09_PerkLog.txt":        "PerkLog",
		"/l/14-10-26_21-05-09_item spawn log.txt": "item spawn",
	}
	for path, want := range tests {
		assert.Equal(t, want, groupOf(path), path)
	}
}

func TestLatestAcrossSources(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, filepath.Join(dir, "13-10-26_08-00-00_user.txt"), "")
	writeLog(t, filepath.Join(dir, "logs_14-10-26", "14-10-26_21-05-09_user.txt"), "")
	writeLog(t, filepath.Join(dir, "logs_14-10-26", "14-10-26_09-00-00_user.txt"), "")
	writeLog(t, filepath.Join(dir, "logs_12-10-26", "12-10-26_23-00-00_user.txt"), "")
	writeLog(t, filepath.Join(dir, "console.txt"), "")
	writeLog(t, filepath.Join(dir, "14-10-26_21-05-09_PerkLog.txt"), "")

	a, err := New(dir, nil, nil)
	require.NoError(t, err)

	f, ok := a.Latest(GroupUser)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "logs_14-10-26", "14-10-26_21-05-09_user.txt"), f.Path)
	assert.Equal(t, SourceSubdir, f.Source)

	f, ok = a.Latest("Perk")
	require.True(t, ok, "partial group names fall back to a containing group")
	assert.Equal(t, "PerkLog", f.Group)

	_, ok = a.Latest(GroupDebug)
	assert.False(t, ok)

	assert.Equal(t, []string{"PerkLog", GroupUser}, a.Groups())
}

func TestRefreshPicksUpNewFiles(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, filepath.Join(dir, "14-10-26_08-00-00_user.txt"), "")

	a, err := New(dir, nil, nil)
	require.NoError(t, err)

	writeLog(t, filepath.Join(dir, "14-10-26_20-00-00_user.txt"), "")
	f, _ := a.Latest(GroupUser)
	assert.Contains(t, f.Path, "08-00-00")

	require.NoError(t, a.Refresh())
	f, _ = a.Latest(GroupUser)
	assert.Contains(t, f.Path, "20-00-00")
}

const userLog = `[14-10-26 20:00:01.000] 765611980001 "alice" attempting to join.
[14-10-26 20:00:05.000] 765611980001 "alice" fully connected (100,200,0).
[14-10-26 20:01:05.000] 765611980002 "bob" fully connected (100,200,0).
[14-10-26 20:09:05.000] 765611980001 "alice" disconnected player (100,200,0).
[14-10-26 20:10:05.000] 765611980003 "carol" fully connected (100,200,0).
`

func TestActivePlayers(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, filepath.Join(dir, "14-10-26_20-00-00_user.txt"), userLog)

	a, err := New(dir, &zomboid.Adapter{}, nil)
	require.NoError(t, err)

	n, err := a.ActivePlayers()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	players, err := a.Players()
	require.NoError(t, err)
	assert.Equal(t, []string{"bob", "carol"}, players)
}

func TestActivePlayers_NoLog(t *testing.T) {
	a, err := New(t.TempDir(), nil, nil)
	require.NoError(t, err)

	n, err := a.ActivePlayers()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestActivePlayers_NeverNegative(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, filepath.Join(dir, "14-10-26_20-00-00_user.txt"),
		`765611980001 "alice" disconnected player (1,2,0).`+"\n")

	a, err := New(dir, nil, nil)
	require.NoError(t, err)
	n, err := a.ActivePlayers()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNew_MissingDir(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "nope"), nil, nil)
	assert.Error(t, err)
}
