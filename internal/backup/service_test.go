package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/reedfamily/zomboidbot/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func newTestService(t *testing.T) (*Service, string, string) {
	t.Helper()
	root := t.TempDir()
	conn, err := db.OpenAndMigrate(filepath.Join(root, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	saves := filepath.Join(root, "Saves", "Multiplayer", "aliformer")
	ini := filepath.Join(root, "Server", "aliformer.ini")
	writeFile(t, filepath.Join(saves, "map_t.bin"), "world")
	writeFile(t, filepath.Join(saves, "chunkdata", "0_0.bin"), "chunk")
	writeFile(t, ini, "PVP=true\n")

	return NewService(conn, filepath.Join(root, "backups"), saves, ini, nil), saves, ini
}

func TestCreateRestore(t *testing.T) {
	svc, saves, ini := newTestService(t)
	ctx := context.Background()

	b, err := svc.Create(ctx)
	require.NoError(t, err)
	assert.Len(t, b.ID, 8)
	assert.Positive(t, b.SizeBytes)

	// Damage the world and the ini, then roll back.
	writeFile(t, filepath.Join(saves, "map_t.bin"), "griefed")
	writeFile(t, filepath.Join(saves, "junk.bin"), "junk")
	writeFile(t, ini, "PVP=false\n")

	require.NoError(t, svc.Restore(ctx, b.ID))
	assert.Equal(t, "world", readFile(t, filepath.Join(saves, "map_t.bin")))
	assert.Equal(t, "chunk", readFile(t, filepath.Join(saves, "chunkdata", "0_0.bin")))
	assert.NoFileExists(t, filepath.Join(saves, "junk.bin"))
	assert.Equal(t, "PVP=true\n", readFile(t, ini))
}

func TestListDelete(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	svc.now = func() time.Time { return time.Date(2026, 10, 14, 3, 0, 0, 0, time.UTC) }
	older, err := svc.Create(ctx)
	require.NoError(t, err)
	svc.now = func() time.Time { return time.Date(2026, 10, 15, 3, 0, 0, 0, time.UTC) }
	newer, err := svc.Create(ctx)
	require.NoError(t, err)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)
	assert.Equal(t, older.ID, list[1].ID)

	path, err := svc.FilePath(ctx, older.ID)
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, older.ID))
	assert.NoFileExists(t, path)

	_, err = svc.FilePath(ctx, older.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, svc.Restore(ctx, "missing"), ErrNotFound)
}

func TestCreate_MissingSaves(t *testing.T) {
	svc, saves, _ := newTestService(t)
	require.NoError(t, os.RemoveAll(saves))

	_, err := svc.Create(context.Background())
	assert.Error(t, err)
}
