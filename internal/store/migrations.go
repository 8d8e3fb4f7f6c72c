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
		Description: "sleep_cycles: one row per consolidation",
		SQL: `
CREATE TABLE sleep_cycles (
    id               TEXT PRIMARY KEY,
    started_at       INTEGER NOT NULL,
    finished_at      INTEGER NOT NULL,
    samples          INTEGER NOT NULL DEFAULT 0,
    event_count      INTEGER NOT NULL DEFAULT 0,
    baselines_before TEXT NOT NULL,
    baselines_after  TEXT NOT NULL,
    summary          TEXT NOT NULL
);

CREATE INDEX idx_sleep_finished ON sleep_cycles(finished_at DESC);
`,
	},
	{
		Version:     2,
		Description: "journal_entries: reflections recorded during sleep",
		SQL: `
CREATE TABLE journal_entries (
    id          INTEGER PRIMARY KEY,
    sleep_id    TEXT NOT NULL,
    date        TEXT NOT NULL,
    content     TEXT NOT NULL,
    baselines   TEXT NOT NULL,
    created_at  INTEGER NOT NULL,

    FOREIGN KEY (sleep_id) REFERENCES sleep_cycles(id) ON DELETE CASCADE
);

CREATE INDEX idx_journal_created ON journal_entries(created_at DESC);
`,
	},
	{
		Version:     3,
		Description: "archived_events: event log cleared by consolidation",
		SQL: `
CREATE TABLE archived_events (
    id          INTEGER PRIMARY KEY,
    sleep_id    TEXT NOT NULL,
    timestamp   REAL NOT NULL,
    kind        TEXT NOT NULL,
    payload     TEXT,

    FOREIGN KEY (sleep_id) REFERENCES sleep_cycles(id) ON DELETE CASCADE
);

CREATE INDEX idx_archived_sleep ON archived_events(sleep_id);
CREATE INDEX idx_archived_kind  ON archived_events(kind);
`,
	},
}

func (db *DB) migrate() error {
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
