package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const memoryDSN = ":memory:"

// DB is the sleep ledger: an append-only SQLite history of consolidation
// cycles, their journal entries and the events each cycle cleared. The
// live affective state never lives here; it stays in the snapshot file.
type DB struct {
	*sql.DB
	Path string
}

// Open opens the ledger at path, creating its directory and file on first
// use, and brings the schema up to date. The file runs in WAL mode so the
// CLI can read history while the daemon writes.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}
	return open(path, "PRAGMA journal_mode=WAL", "PRAGMA synchronous=NORMAL")
}

// OpenMemory opens a throwaway ledger held in memory.
func OpenMemory() (*DB, error) {
	return open(memoryDSN)
}

func open(dsn string, pragmas ...string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", dsn, err)
	}
	if dsn == memoryDSN {
		// A second connection would see a different, empty database.
		sqlDB.SetMaxOpenConns(1)
	}

	db := &DB{DB: sqlDB, Path: dsn}
	pragmas = append(pragmas, "PRAGMA foreign_keys=ON", "PRAGMA busy_timeout=5000")
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("pragma %q: %w", p, err)
		}
	}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate ledger: %w", err)
	}
	return db, nil
}
