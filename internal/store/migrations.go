package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "status_entries: bounded per-user history",
		SQL: `
CREATE TABLE status_entries (
    id               INTEGER PRIMARY KEY,
    entry_id         TEXT NOT NULL UNIQUE,
    user_id          TEXT NOT NULL,
    timestamp        TEXT NOT NULL,
    raw_input        TEXT NOT NULL,
    processed_status TEXT NOT NULL,
    created_at       INTEGER NOT NULL
);

CREATE INDEX idx_entries_user ON status_entries(user_id, id);
`,
	},
	{
		Version:     2,
		Description: "latest_status: independent copy of each user's newest entry",
		SQL: `
CREATE TABLE latest_status (
    user_id          TEXT PRIMARY KEY,
    entry_id         TEXT NOT NULL,
    timestamp        TEXT NOT NULL,
    raw_input        TEXT NOT NULL,
    processed_status TEXT NOT NULL,
    version          INTEGER NOT NULL DEFAULT 1,
    updated_at       INTEGER NOT NULL
);
`,
	},
	{
		Version:     3,
		Description: "user_profiles: display preferences",
		SQL: `
CREATE TABLE user_profiles (
    user_id     TEXT PRIMARY KEY,
    preferences TEXT NOT NULL,
    updated_at  INTEGER NOT NULL
);
`,
	},
}

func (db *DB) migrate() error {
	// Create schema_versions table if it doesn't exist
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
