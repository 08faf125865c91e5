package scheduler

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/reedfamily/zomboidbot/internal/backup"
	"github.com/reedfamily/zomboidbot/internal/db"
	"github.com/reedfamily/zomboidbot/internal/supervisor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct{ calls []string }

func (f *fakeSession) Start(context.Context) (supervisor.Result, error) {
	f.calls = append(f.calls, ActionStart)
	return supervisor.Result{}, nil
}

func (f *fakeSession) Stop(context.Context) (supervisor.Result, error) {
	f.calls = append(f.calls, ActionStop)
	return supervisor.Result{}, nil
}

func (f *fakeSession) Restart(context.Context) (supervisor.Result, error) {
	f.calls = append(f.calls, ActionRestart)
	return supervisor.Result{}, nil
}

type fakePlayers struct{ n int }

func (f *fakePlayers) Refresh() error               { return nil }
func (f *fakePlayers) ActivePlayers() (int, error) { return f.n, nil }

type fakeBackups struct{ n int }

func (f *fakeBackups) Create(context.Context) (*backup.Backup, error) {
	f.n++
	return &backup.Backup{ID: "b"}, nil
}

func newTestScheduler(t *testing.T) (*Scheduler, *fakeSession, *fakePlayers, *fakeBackups) {
	t.Helper()
	conn, err := db.OpenAndMigrate(filepath.Join(t.TempDir(), "sched.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	session, players, backups := &fakeSession{}, &fakePlayers{}, &fakeBackups{}
	s := New(conn, session, players, backups, nil)
	s.now = func() time.Time { return at("2026-10-15 04:00") }
	return s, session, players, backups
}

func TestScheduleCRUD(t *testing.T) {
	s, _, _, _ := newTestScheduler(t)
	ctx := context.Background()

	sc, err := s.Create(ctx, "nightly restart", "0 5 * * *", ActionRestart)
	require.NoError(t, err)
	assert.True(t, sc.Enabled)
	assert.Nil(t, sc.LastRun)
	require.NotNil(t, sc.NextRun)
	assert.Equal(t, at("2026-10-15 05:00"), *sc.NextRun)

	_, err = s.Create(ctx, "bad", "not cron", ActionRestart)
	assert.Error(t, err)
	_, err = s.Create(ctx, "bad", "0 5 * * *", "reboot")
	assert.ErrorIs(t, err, ErrInvalidAction)

	off := false
	expr := "0 6 * * *"
	sc, err = s.Update(ctx, sc.ID, Patch{Enabled: &off, CronExpr: &expr})
	require.NoError(t, err)
	assert.False(t, sc.Enabled)
	assert.Equal(t, expr, sc.CronExpr)
	assert.Nil(t, sc.NextRun, "disabled schedules never run")

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, s.Delete(ctx, sc.ID))
	assert.ErrorIs(t, s.Delete(ctx, sc.ID), ErrNotFound)
	_, err = s.Update(ctx, sc.ID, Patch{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTick_RunsMatchingSchedules(t *testing.T) {
	s, session, _, backups := newTestScheduler(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "restart", "0 4 * * *", ActionRestart)
	require.NoError(t, err)
	_, err = s.Create(ctx, "backup", "*/30 * * * *", ActionBackup)
	require.NoError(t, err)
	_, err = s.Create(ctx, "later", "0 5 * * *", ActionStop)
	require.NoError(t, err)

	s.Tick(ctx)

	assert.Equal(t, []string{ActionRestart}, session.calls)
	assert.Equal(t, 1, backups.n)

	list, err := s.List(ctx)
	require.NoError(t, err)
	ran := 0
	for _, sc := range list {
		if sc.LastRun != nil {
			ran++
		}
	}
	assert.Equal(t, 2, ran)
}

func TestExecute_SkipsRestartWithPlayers(t *testing.T) {
	s, session, players, _ := newTestScheduler(t)
	players.n = 2

	err := s.Execute(context.Background(), ActionRestart)
	assert.ErrorIs(t, err, ErrPlayersOnline)
	err = s.Execute(context.Background(), ActionStop)
	assert.ErrorIs(t, err, ErrPlayersOnline)

	require.NoError(t, s.Execute(context.Background(), ActionStart))
	assert.Equal(t, []string{ActionStart}, session.calls)
}
