package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SleepRecord is one consolidation as kept in the ledger.
type SleepRecord struct {
	ID              string
	StartedAt       time.Time
	FinishedAt      time.Time
	Samples         int
	EventCount      int
	BaselinesBefore map[string]float64
	BaselinesAfter  map[string]float64
	Summary         string
	// Reflection is the journal text, empty when no reflection was produced.
	Reflection string
	Date       string
	// JournalBaselines are the baselines the journal entry was written
	// against. Nil falls back to BaselinesBefore.
	JournalBaselines map[string]float64
}

// JournalRecord is a journal row joined to its sleep cycle.
type JournalRecord struct {
	ID        int64              `json:"id"`
	SleepID   string             `json:"sleep_id"`
	Date      string             `json:"date"`
	Text      string             `json:"text"`
	Baselines map[string]float64 `json:"baselines"`
	CreatedAt time.Time          `json:"created_at"`
}

// RecordSleep inserts a sleep cycle and, when it carries a reflection, its
// journal entry. An empty ID is assigned a new UUID.
func (db *DB) RecordSleep(rec *SleepRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	before, err := json.Marshal(rec.BaselinesBefore)
	if err != nil {
		return fmt.Errorf("marshal baselines: %w", err)
	}
	after, err := json.Marshal(rec.BaselinesAfter)
	if err != nil {
		return fmt.Errorf("marshal baselines: %w", err)
	}
	journalBaselines := before
	if rec.JournalBaselines != nil {
		if journalBaselines, err = json.Marshal(rec.JournalBaselines); err != nil {
			return fmt.Errorf("marshal journal baselines: %w", err)
		}
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin sleep record: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO sleep_cycles (id, started_at, finished_at, samples, event_count, baselines_before, baselines_after, summary)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.StartedAt.UnixMilli(), rec.FinishedAt.UnixMilli(), rec.Samples, rec.EventCount,
		string(before), string(after), rec.Summary); err != nil {
		return fmt.Errorf("insert sleep cycle: %w", err)
	}

	if rec.Reflection != "" {
		date := rec.Date
		if date == "" {
			date = rec.FinishedAt.Format("2006-01-02 15:04")
		}
		if _, err := tx.Exec(`
			INSERT INTO journal_entries (sleep_id, date, content, baselines, created_at)
			VALUES (?, ?, ?, ?, ?)
		`, rec.ID, date, rec.Reflection, string(journalBaselines), rec.FinishedAt.UnixMilli()); err != nil {
			return fmt.Errorf("insert journal entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit sleep record: %w", err)
	}
	return nil
}

// ListSleeps returns the most recent sleep cycles, newest first.
func (db *DB) ListSleeps(limit int) ([]SleepRecord, error) {
	rows, err := db.Query(`
		SELECT s.id, s.started_at, s.finished_at, s.samples, s.event_count,
		       s.baselines_before, s.baselines_after, s.summary, COALESCE(j.content, '')
		FROM sleep_cycles s
		LEFT JOIN journal_entries j ON j.sleep_id = s.id
		ORDER BY s.finished_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sleeps: %w", err)
	}
	defer rows.Close()

	var out []SleepRecord
	for rows.Next() {
		var (
			r              SleepRecord
			started, ended int64
			before, after  string
		)
		if err := rows.Scan(&r.ID, &started, &ended, &r.Samples, &r.EventCount,
			&before, &after, &r.Summary, &r.Reflection); err != nil {
			return nil, fmt.Errorf("scan sleep: %w", err)
		}
		r.StartedAt = time.UnixMilli(started)
		r.FinishedAt = time.UnixMilli(ended)
		if err := json.Unmarshal([]byte(before), &r.BaselinesBefore); err != nil {
			return nil, fmt.Errorf("decode baselines for %s: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(after), &r.BaselinesAfter); err != nil {
			return nil, fmt.Errorf("decode baselines for %s: %w", r.ID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListJournal returns journal entries, newest first.
func (db *DB) ListJournal(limit int) ([]JournalRecord, error) {
	rows, err := db.Query(`
		SELECT id, sleep_id, date, content, baselines, created_at
		FROM journal_entries ORDER BY created_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list journal: %w", err)
	}
	defer rows.Close()

	var out []JournalRecord
	for rows.Next() {
		var (
			j         JournalRecord
			baselines string
			created   int64
		)
		if err := rows.Scan(&j.ID, &j.SleepID, &j.Date, &j.Text, &baselines, &created); err != nil {
			return nil, fmt.Errorf("scan journal: %w", err)
		}
		if err := json.Unmarshal([]byte(baselines), &j.Baselines); err != nil {
			return nil, fmt.Errorf("decode journal baselines: %w", err)
		}
		j.CreatedAt = time.UnixMilli(created)
		out = append(out, j)
	}
	return out, rows.Err()
}

// ArchiveEvents stores events cleared by the given sleep cycle and returns
// how many rows were written.
func (db *DB) ArchiveEvents(sleepID string, events []Event) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin archive: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO archived_events (sleep_id, timestamp, kind, payload) VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare archive: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		var payload any
		if len(ev.Payload) > 0 {
			data, err := json.Marshal(ev.Payload)
			if err != nil {
				return 0, fmt.Errorf("marshal payload for %s: %w", ev.Kind, err)
			}
			payload = string(data)
		}
		if _, err := stmt.Exec(sleepID, ev.Timestamp, ev.Kind, payload); err != nil {
			return 0, fmt.Errorf("archive event: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit archive: %w", err)
	}
	return len(events), nil
}

// ArchivedEvents returns the events archived by one sleep cycle in the
// order they were logged.
func (db *DB) ArchivedEvents(sleepID string) ([]Event, error) {
	rows, err := db.Query(`
		SELECT timestamp, kind, payload FROM archived_events
		WHERE sleep_id = ? ORDER BY id
	`, sleepID)
	if err != nil {
		return nil, fmt.Errorf("list archived events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			ev      Event
			payload *string
		)
		if err := rows.Scan(&ev.Timestamp, &ev.Kind, &payload); err != nil {
			return nil, fmt.Errorf("scan archived event: %w", err)
		}
		if payload != nil {
			if err := json.Unmarshal([]byte(*payload), &ev.Payload); err != nil {
				return nil, fmt.Errorf("decode archived payload: %w", err)
			}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
