package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrate_Idempotent(t *testing.T) {
	conn, err := OpenAndMigrate(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, Migrate(conn))

	var n int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`).Scan(&n))
	assert.Equal(t, 9, n)
}

func TestForeignKeysEnforced(t *testing.T) {
	conn, err := OpenAndMigrate(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Exec(`INSERT INTO mod_requirements (workshop_id, required_id) VALUES ('1', '2')`)
	assert.Error(t, err)

	_, err = conn.Exec(`INSERT INTO mods (workshop_id) VALUES ('1')`)
	require.NoError(t, err)
	_, err = conn.Exec(`INSERT INTO mod_requirements (workshop_id, required_id) VALUES ('1', '2')`)
	require.NoError(t, err)

	_, err = conn.Exec(`DELETE FROM mods WHERE workshop_id = '1'`)
	require.NoError(t, err)
	var n int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM mod_requirements`).Scan(&n))
	assert.Zero(t, n)
}
