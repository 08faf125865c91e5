package mods

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/reedfamily/zomboidbot/internal/workshop"
)

// Store persists installed mods and their requirement edges.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Save upserts mods and replaces their requirement edges.
func (s *Store) Save(ctx context.Context, mods []workshop.Mod, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, m := range mods {
		modIDs, err := json.Marshal(m.ModIDs)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO mods (workshop_id, name, url, mod_ids, installed_at) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(workshop_id) DO UPDATE SET name = excluded.name, url = excluded.url, mod_ids = excluded.mod_ids
		`, m.WorkshopID, m.Name, m.URL, string(modIDs), at.UTC())
		if err != nil {
			return fmt.Errorf("save mod %s: %w", m.WorkshopID, err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM mod_requirements WHERE workshop_id = ?", m.WorkshopID); err != nil {
			return err
		}
		for _, req := range m.Required {
			if _, err := tx.ExecContext(ctx,
				"INSERT OR IGNORE INTO mod_requirements (workshop_id, required_id) VALUES (?, ?)",
				m.WorkshopID, req,
			); err != nil {
				return fmt.Errorf("save requirement %s -> %s: %w", m.WorkshopID, req, err)
			}
		}
	}
	return tx.Commit()
}

func (s *Store) All(ctx context.Context) ([]workshop.Mod, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT workshop_id, name, url, mod_ids FROM mods ORDER BY workshop_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mods []workshop.Mod
	index := map[string]int{}
	for rows.Next() {
		var m workshop.Mod
		var modIDs string
		if err := rows.Scan(&m.WorkshopID, &m.Name, &m.URL, &modIDs); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(modIDs), &m.ModIDs); err != nil {
			return nil, fmt.Errorf("mod %s: bad mod_ids: %w", m.WorkshopID, err)
		}
		index[m.WorkshopID] = len(mods)
		mods = append(mods, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	reqs, err := s.db.QueryContext(ctx, "SELECT workshop_id, required_id FROM mod_requirements ORDER BY workshop_id, required_id")
	if err != nil {
		return nil, err
	}
	defer reqs.Close()
	for reqs.Next() {
		var from, to string
		if err := reqs.Scan(&from, &to); err != nil {
			return nil, err
		}
		if i, ok := index[from]; ok {
			mods[i].Required = append(mods[i].Required, to)
		}
	}
	return mods, reqs.Err()
}

func (s *Store) Delete(ctx context.Context, workshopID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM mods WHERE workshop_id = ?", workshopID)
	return err
}
