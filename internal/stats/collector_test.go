package stats

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/reedfamily/zomboidbot/internal/db"
	"github.com/reedfamily/zomboidbot/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePlayers struct {
	n   int
	err error
}

func (f *fakePlayers) Refresh() error               { return f.err }
func (f *fakePlayers) ActivePlayers() (int, error) { return f.n, nil }

func newTestCollector(t *testing.T, players *fakePlayers) (*Collector, *metrics.Metrics) {
	t.Helper()
	conn, err := db.OpenAndMigrate(filepath.Join(t.TempDir(), "stats.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	m := metrics.New()
	return NewCollector(conn, players, m, time.Minute, nil), m
}

func TestCollect_RecordsAndNotifies(t *testing.T) {
	players := &fakePlayers{n: 4}
	c, m := newTestCollector(t, players)
	base := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }
	ctx := context.Background()

	ch := c.Subscribe()
	c.Collect(ctx)

	got := <-ch
	assert.Equal(t, 4, got.Players)
	assert.Equal(t, 4.0, testutil.ToFloat64(m.ActivePlayers))
	require.NotNil(t, c.Latest())
	assert.Equal(t, 4, c.Latest().Players)

	history, err := c.History(ctx, base.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].RecordedAt.Equal(base))

	c.Unsubscribe(ch)
	_, open := <-ch
	assert.False(t, open)
}

func TestCollect_PrunesOldSamples(t *testing.T) {
	players := &fakePlayers{n: 1}
	c, _ := newTestCollector(t, players)
	ctx := context.Background()
	base := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

	c.now = func() time.Time { return base }
	c.Collect(ctx)
	c.now = func() time.Time { return base.Add(Retention + time.Minute) }
	players.n = 2
	c.Collect(ctx)

	history, err := c.History(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 2, history[0].Players)
}

func TestCollect_SkipsWithoutLogs(t *testing.T) {
	c, _ := newTestCollector(t, &fakePlayers{err: errors.New("no logs")})
	c.Collect(context.Background())

	assert.Nil(t, c.Latest())
	history, err := c.History(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Empty(t, history)
}
