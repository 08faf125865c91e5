package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

func Migrate(db *sql.DB) error {
	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("migration error: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// OpenAndMigrate is the usual startup path.
func OpenAndMigrate(path string) (*sql.DB, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS operators (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS api_sessions (
		token TEXT PRIMARY KEY,
		operator_id INTEGER NOT NULL REFERENCES operators(id) ON DELETE CASCADE,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		expires_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS mods (
		workshop_id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		mod_ids TEXT NOT NULL DEFAULT '[]',
		installed_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS mod_requirements (
		workshop_id TEXT NOT NULL REFERENCES mods(workshop_id) ON DELETE CASCADE,
		required_id TEXT NOT NULL,
		PRIMARY KEY (workshop_id, required_id)
	)`,
	`CREATE TABLE IF NOT EXISTS polls (
		id TEXT PRIMARY KEY,
		chat_id INTEGER NOT NULL,
		message_id INTEGER NOT NULL,
		workshop_id TEXT NOT NULL,
		requested_by TEXT NOT NULL DEFAULT '',
		closes_at DATETIME NOT NULL,
		closed INTEGER NOT NULL DEFAULT 0,
		outcome TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_polls_open ON polls(closed, closes_at)`,
	`CREATE TABLE IF NOT EXISTS poll_votes (
		poll_id TEXT NOT NULL REFERENCES polls(id) ON DELETE CASCADE,
		user_id INTEGER NOT NULL,
		username TEXT NOT NULL DEFAULT '',
		option INTEGER NOT NULL,
		voted_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (poll_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS player_samples (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		players INTEGER NOT NULL,
		recorded_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_player_samples_time ON player_samples(recorded_at)`,
	`CREATE TABLE IF NOT EXISTS backups (
		id TEXT PRIMARY KEY,
		filename TEXT NOT NULL,
		size_bytes INTEGER,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS schedules (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		cron_expr TEXT NOT NULL,
		action TEXT NOT NULL,
		enabled INTEGER DEFAULT 1,
		last_run DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
}
