package serverini

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `# Players can hurt and kill other players
PVP=true
# Workshop items to download
WorkshopItems=2392709985;2169435993
Mods=tsarslib;ModManager
PublicName=Aliformer
`

func newIni(t *testing.T, content string) *File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "aliformer.ini")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	f, err := Open(path)
	require.NoError(t, err)
	return f
}

func TestGet(t *testing.T) {
	f := newIni(t, sample)

	v, ok, err := f.Get("PublicName")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Aliformer", v)

	_, ok, err = f.Get("Password")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSet_PreservesOtherLines(t *testing.T) {
	f := newIni(t, sample)
	require.NoError(t, f.Set("PVP", "false"))

	data, err := os.ReadFile(f.Path())
	require.NoError(t, err)
	assert.Equal(t, `# Players can hurt and kill other players
PVP=false
# Workshop items to download
WorkshopItems=2392709985;2169435993
Mods=tsarslib;ModManager
PublicName=Aliformer
`, string(data))
}

func TestSet_EmptyValueAndMissingKey(t *testing.T) {
	f := newIni(t, "Mods=\n")
	require.NoError(t, f.Set("Mods", "tsarslib"))
	require.NoError(t, f.Set("Map", "Muldraugh, KY"))

	data, err := os.ReadFile(f.Path())
	require.NoError(t, err)
	assert.Equal(t, "Mods=tsarslib\nMap=Muldraugh, KY\n", string(data))
}

func TestListMutations(t *testing.T) {
	f := newIni(t, sample)

	require.NoError(t, f.Insert("WorkshopItems", 0, "111"))
	require.NoError(t, f.Append("WorkshopItems", "222"))
	require.NoError(t, f.Extend("WorkshopItems", "333", "444"))
	require.NoError(t, f.Insert("WorkshopItems", 99, "555"))

	got, err := f.List("WorkshopItems")
	require.NoError(t, err)
	assert.Equal(t, []string{"111", "2392709985", "2169435993", "222", "333", "444", "555"}, got)

	got, err = f.List("Missing")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestUpdate(t *testing.T) {
	f := newIni(t, sample)
	require.NoError(t, f.Update("Mods", func(l []string) []string { return l[1:] }))

	v, _, err := f.Get("Mods")
	require.NoError(t, err)
	assert.Equal(t, "ModManager", v)
}

func TestSnapshot(t *testing.T) {
	f := newIni(t, sample)
	dst, err := f.Snapshot(time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, f.Path()+".20261015-093000.bak", dst)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, sample, string(data))
}

func TestOpen_Missing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.ini"))
	assert.Error(t, err)
}
