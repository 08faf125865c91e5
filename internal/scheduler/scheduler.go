// Package scheduler runs cron schedules against the server session.
package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/reedfamily/zomboidbot/internal/backup"
	"github.com/reedfamily/zomboidbot/internal/supervisor"
	"go.uber.org/zap"
)

// Schedule actions.
const (
	ActionStart   = "start"
	ActionStop    = "stop"
	ActionRestart = "restart"
	ActionBackup  = "backup"
)

var (
	ErrNotFound      = errors.New("schedule not found")
	ErrInvalidAction = errors.New("action must be one of: start, stop, restart, backup")

	// ErrPlayersOnline skips a scheduled restart or stop.
	ErrPlayersOnline = errors.New("players are online")
)

type Schedule struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	CronExpr  string     `json:"cron_expr"`
	Action    string     `json:"action"`
	Enabled   bool       `json:"enabled"`
	LastRun   *time.Time `json:"last_run,omitempty"`
	NextRun   *time.Time `json:"next_run,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Patch holds the fields of an update; nil leaves a field unchanged.
type Patch struct {
	Name     *string `json:"name"`
	CronExpr *string `json:"cron_expr"`
	Action   *string `json:"action"`
	Enabled  *bool   `json:"enabled"`
}

// Session is the managed server.
type Session interface {
	Start(ctx context.Context) (supervisor.Result, error)
	Stop(ctx context.Context) (supervisor.Result, error)
	Restart(ctx context.Context) (supervisor.Result, error)
}

type PlayerCounter interface {
	Refresh() error
	ActivePlayers() (int, error)
}

// Backuper is satisfied by *backup.Service.
type Backuper interface {
	Create(ctx context.Context) (*backup.Backup, error)
}

func ValidAction(action string) bool {
	switch action {
	case ActionStart, ActionStop, ActionRestart, ActionBackup:
		return true
	}
	return false
}

type Scheduler struct {
	db      *sql.DB
	session Session
	players PlayerCounter
	backup  Backuper
	log     *zap.Logger
	now     func() time.Time
	cancel  context.CancelFunc
}

func New(db *sql.DB, session Session, players PlayerCounter, backups Backuper, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		db:      db,
		session: session,
		players: players,
		backup:  backups,
		log:     log,
		now:     time.Now,
	}
}

func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	go func() {
		// Wake on each minute boundary.
		for {
			now := time.Now()
			wait := time.Until(now.Truncate(time.Minute).Add(time.Minute))

			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
				s.Tick(ctx)
			}
		}
	}()

	s.log.Info("scheduler started")
}

func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Tick runs every enabled schedule that matches the current minute.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.now()
	schedules, err := s.List(ctx)
	if err != nil {
		s.log.Error("list schedules", zap.Error(err))
		return
	}

	for _, sc := range schedules {
		if !sc.Enabled {
			continue
		}
		cron, err := ParseCron(sc.CronExpr)
		if err != nil {
			s.log.Warn("invalid cron", zap.String("schedule", sc.ID), zap.String("expr", sc.CronExpr), zap.Error(err))
			continue
		}
		if !cron.Matches(now) {
			continue
		}

		log := s.log.With(zap.String("schedule", sc.ID), zap.String("action", sc.Action))
		log.Info("running schedule")
		if err := s.Execute(ctx, sc.Action); err != nil {
			if errors.Is(err, ErrPlayersOnline) {
				log.Info("schedule skipped", zap.Error(err))
			} else {
				log.Error("schedule failed", zap.Error(err))
			}
		}
		if _, err := s.db.ExecContext(ctx, `UPDATE schedules SET last_run = ? WHERE id = ?`, now.UTC(), sc.ID); err != nil {
			log.Warn("record last run", zap.Error(err))
		}
	}
}

// Execute performs one action now.
func (s *Scheduler) Execute(ctx context.Context, action string) error {
	switch action {
	case ActionStart:
		_, err := s.session.Start(ctx)
		return err
	case ActionStop, ActionRestart:
		if err := s.requireEmpty(); err != nil {
			return err
		}
		var err error
		if action == ActionStop {
			_, err = s.session.Stop(ctx)
		} else {
			_, err = s.session.Restart(ctx)
		}
		return err
	case ActionBackup:
		if s.backup == nil {
			return errors.New("backups are not configured")
		}
		_, err := s.backup.Create(ctx)
		return err
	}
	return fmt.Errorf("%q: %w", action, ErrInvalidAction)
}

func (s *Scheduler) requireEmpty() error {
	if s.players == nil {
		return nil
	}
	if err := s.players.Refresh(); err != nil {
		// No logs yet means nobody has joined.
		return nil
	}
	n, err := s.players.ActivePlayers()
	if err != nil {
		return nil
	}
	if n > 0 {
		return fmt.Errorf("%d %w", n, ErrPlayersOnline)
	}
	return nil
}

const selectSchedule = `SELECT id, name, cron_expr, action, enabled, last_run, created_at FROM schedules`

// List returns every schedule, newest first.
func (s *Scheduler) List(ctx context.Context) ([]Schedule, error) {
	rows, err := s.db.QueryContext(ctx, selectSchedule+` ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	schedules := []Schedule{}
	for rows.Next() {
		sc, err := s.scan(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, sc)
	}
	return schedules, rows.Err()
}

func (s *Scheduler) Get(ctx context.Context, id string) (Schedule, error) {
	sc, err := s.scan(s.db.QueryRowContext(ctx, selectSchedule+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Schedule{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return sc, err
}

func (s *Scheduler) Create(ctx context.Context, name, expr, action string) (Schedule, error) {
	if name == "" || expr == "" || action == "" {
		return Schedule{}, errors.New("name, cron_expr, and action required")
	}
	if err := validate(expr, action); err != nil {
		return Schedule{}, err
	}

	id := uuid.New().String()[:8]
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO schedules (id, name, cron_expr, action, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, name, expr, action, s.now().UTC(),
	); err != nil {
		return Schedule{}, fmt.Errorf("create schedule: %w", err)
	}
	return s.Get(ctx, id)
}

func (s *Scheduler) Update(ctx context.Context, id string, p Patch) (Schedule, error) {
	sc, err := s.Get(ctx, id)
	if err != nil {
		return Schedule{}, err
	}
	if p.Name != nil {
		sc.Name = *p.Name
	}
	if p.CronExpr != nil {
		sc.CronExpr = *p.CronExpr
	}
	if p.Action != nil {
		sc.Action = *p.Action
	}
	if p.Enabled != nil {
		sc.Enabled = *p.Enabled
	}
	if err := validate(sc.CronExpr, sc.Action); err != nil {
		return Schedule{}, err
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE schedules SET name = ?, cron_expr = ?, action = ?, enabled = ? WHERE id = ?`,
		sc.Name, sc.CronExpr, sc.Action, sc.Enabled, id,
	); err != nil {
		return Schedule{}, fmt.Errorf("update schedule: %w", err)
	}
	return s.Get(ctx, id)
}

func (s *Scheduler) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return nil
}

func validate(expr, action string) error {
	if _, err := ParseCron(expr); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	if !ValidAction(action) {
		return ErrInvalidAction
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *Scheduler) scan(row scanner) (Schedule, error) {
	var sc Schedule
	var lastRun sql.NullTime
	if err := row.Scan(&sc.ID, &sc.Name, &sc.CronExpr, &sc.Action, &sc.Enabled, &lastRun, &sc.CreatedAt); err != nil {
		return Schedule{}, err
	}
	if lastRun.Valid {
		t := lastRun.Time
		sc.LastRun = &t
	}
	if cron, err := ParseCron(sc.CronExpr); err == nil && sc.Enabled {
		if next := cron.Next(s.now()); !next.IsZero() {
			sc.NextRun = &next
		}
	}
	return sc, nil
}
