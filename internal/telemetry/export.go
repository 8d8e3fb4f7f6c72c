package telemetry

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/lazypower/homeostat/internal/store"
)

// PlasticityRow is one plasticity sample.
type PlasticityRow struct {
	Index          int     `csv:"index"`
	Dopamine       float64 `csv:"dopamine"`
	Serotonin      float64 `csv:"serotonin"`
	Norepinephrine float64 `csv:"norepinephrine"`
	Cortisol       float64 `csv:"cortisol"`
	Oxytocin       float64 `csv:"oxytocin"`
	Endorphin      float64 `csv:"endorphin"`
}

// EventRow is one event log entry.
type EventRow struct {
	Time    string `csv:"time"`
	Kind    string `csv:"kind"`
	Payload string `csv:"payload"`
}

// JournalRow is one journal entry.
type JournalRow struct {
	Date           string  `csv:"date"`
	Text           string  `csv:"text"`
	Dopamine       float64 `csv:"dopamine"`
	Serotonin      float64 `csv:"serotonin"`
	Norepinephrine float64 `csv:"norepinephrine"`
	Cortisol       float64 `csv:"cortisol"`
	Oxytocin       float64 `csv:"oxytocin"`
	Endorphin      float64 `csv:"endorphin"`
}

// WritePlasticity writes the snapshot's plasticity buffer as CSV.
func WritePlasticity(w io.Writer, snap *store.Snapshot) error {
	rows := make([]*PlasticityRow, len(snap.PlasticityBuffer))
	for i, s := range snap.PlasticityBuffer {
		rows[i] = &PlasticityRow{
			Index:          i,
			Dopamine:       s["dopamine"],
			Serotonin:      s["serotonin"],
			Norepinephrine: s["norepinephrine"],
			Cortisol:       s["cortisol"],
			Oxytocin:       s["oxytocin"],
			Endorphin:      s["endorphin"],
		}
	}
	return marshal(w, rows)
}

// WriteEvents writes the snapshot's event log as CSV.
func WriteEvents(w io.Writer, snap *store.Snapshot) error {
	rows := make([]*EventRow, len(snap.EventLog))
	for i, ev := range snap.EventLog {
		payload := ""
		if len(ev.Payload) > 0 {
			data, err := json.Marshal(ev.Payload)
			if err != nil {
				return fmt.Errorf("encode payload: %w", err)
			}
			payload = string(data)
		}
		rows[i] = &EventRow{
			Time:    epochTime(ev.Timestamp).UTC().Format(time.RFC3339Nano),
			Kind:    ev.Kind,
			Payload: payload,
		}
	}
	return marshal(w, rows)
}

// WriteJournal writes journal entries as CSV.
func WriteJournal(w io.Writer, entries []store.JournalEntry) error {
	rows := make([]*JournalRow, len(entries))
	for i, j := range entries {
		b := j.Baselines
		rows[i] = &JournalRow{
			Date:           j.Date,
			Text:           j.Text,
			Dopamine:       b["dopamine"],
			Serotonin:      b["serotonin"],
			Norepinephrine: b["norepinephrine"],
			Cortisol:       b["cortisol"],
			Oxytocin:       b["oxytocin"],
			Endorphin:      b["endorphin"],
		}
	}
	return marshal(w, rows)
}

func marshal(w io.Writer, rows any) error {
	if err := gocsv.Marshal(rows, w); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

func epochTime(sec float64) time.Time {
	return time.UnixMilli(int64(sec * 1000))
}
