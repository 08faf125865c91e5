// Package stats samples the number of players on the server.
package stats

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/reedfamily/zomboidbot/internal/metrics"
	"go.uber.org/zap"
)

// Retention is how long samples are kept.
const Retention = 24 * time.Hour

type Sample struct {
	Players    int       `json:"players"`
	RecordedAt time.Time `json:"recorded_at"`
}

// PlayerCounter is satisfied by *logs.Accessor.
type PlayerCounter interface {
	Refresh() error
	ActivePlayers() (int, error)
}

type Collector struct {
	db       *sql.DB
	players  PlayerCounter
	metrics  *metrics.Metrics
	interval time.Duration
	log      *zap.Logger
	now      func() time.Time

	mu        sync.RWMutex
	latest    *Sample
	listeners []chan Sample

	cancel context.CancelFunc
}

func NewCollector(db *sql.DB, players PlayerCounter, m *metrics.Metrics, interval time.Duration, log *zap.Logger) *Collector {
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Collector{
		db:       db,
		players:  players,
		metrics:  m,
		interval: interval,
		log:      log,
		now:      time.Now,
	}
}

func (c *Collector) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	go func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		c.Collect(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Collect(ctx)
			}
		}
	}()

	c.log.Info("player sampler started", zap.Duration("interval", c.interval))
}

func (c *Collector) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
}

// Collect takes one sample, stores it and prunes expired rows.
func (c *Collector) Collect(ctx context.Context) {
	if err := c.players.Refresh(); err != nil {
		c.log.Debug("refresh logs", zap.Error(err))
		return
	}
	n, err := c.players.ActivePlayers()
	if err != nil {
		c.log.Debug("count players", zap.Error(err))
		return
	}
	s := Sample{Players: n, RecordedAt: c.now().UTC()}

	if _, err := c.db.ExecContext(ctx,
		`INSERT INTO player_samples (players, recorded_at) VALUES (?, ?)`, s.Players, s.RecordedAt,
	); err != nil {
		c.log.Warn("insert player sample", zap.Error(err))
	}
	if c.metrics != nil {
		c.metrics.ActivePlayers.Set(float64(n))
	}

	c.mu.Lock()
	c.latest = &s
	listeners := append([]chan Sample(nil), c.listeners...)
	c.mu.Unlock()

	for _, ch := range listeners {
		select {
		case ch <- s:
		default:
			// slow listener
		}
	}

	if _, err := c.db.ExecContext(ctx,
		`DELETE FROM player_samples WHERE recorded_at < ?`, s.RecordedAt.Add(-Retention),
	); err != nil {
		c.log.Warn("prune player samples", zap.Error(err))
	}
}

// Latest returns the most recent sample, or nil before the first one.
func (c *Collector) Latest() *Sample {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.latest
}

// History returns samples recorded at or after since, oldest first.
func (c *Collector) History(ctx context.Context, since time.Time) ([]Sample, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT players, recorded_at FROM player_samples WHERE recorded_at >= ? ORDER BY recorded_at`, since.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("query player samples: %w", err)
	}
	defer rows.Close()

	samples := []Sample{}
	for rows.Next() {
		var s Sample
		if err := rows.Scan(&s.Players, &s.RecordedAt); err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

func (c *Collector) Subscribe() chan Sample {
	ch := make(chan Sample, 1)
	c.mu.Lock()
	c.listeners = append(c.listeners, ch)
	c.mu.Unlock()
	return ch
}

func (c *Collector) Unsubscribe(ch chan Sample) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, l := range c.listeners {
		if l == ch {
			c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}
