package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// SnapshotVersion is written into every saved snapshot.
// Version 1 is the flat layout with atp_energy/adenosine/pain_level keys.
const SnapshotVersion = 2

var (
	// ErrNoSnapshot means nothing has been persisted yet.
	ErrNoSnapshot = errors.New("no snapshot")
	// ErrCorruptSnapshot means the persisted bytes could not be decoded.
	ErrCorruptSnapshot = errors.New("corrupt snapshot")
)

// Snapshot is the persisted form of the affective state.
// Drive-keyed maps use drive names so that snapshots written by a build
// with more (or fewer) drives still load.
type Snapshot struct {
	Version          int                  `json:"version"`
	Baselines        map[string]float64   `json:"baselines"`
	Chemicals        map[string]float64   `json:"chemicals"`
	Energy           float64              `json:"energy"`
	Fatigue          float64              `json:"fatigue"`
	Pain             float64              `json:"pain"`
	LastUpdate       float64              `json:"last_update"` // epoch seconds
	PlasticityBuffer []map[string]float64 `json:"plasticity_buffer"`
	EventLog         []Event              `json:"event_log"`
	Journal          []JournalEntry       `json:"journal"`
	Skills           map[string]float64   `json:"skills"`
}

// Event is one entry of the persisted event log.
type Event struct {
	Timestamp float64        `json:"timestamp"`
	Kind      string         `json:"kind"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// UnmarshalJSON accepts both the current {timestamp, kind, payload} shape
// and the version 1 {time, type, ...} shape, where any extra top-level
// keys were the payload.
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	for _, key := range []string{"timestamp", "time"} {
		if v, ok := raw[key]; ok {
			if err := json.Unmarshal(v, &e.Timestamp); err != nil {
				return fmt.Errorf("event %s: %w", key, err)
			}
			delete(raw, key)
			break
		}
	}
	for _, key := range []string{"kind", "type"} {
		if v, ok := raw[key]; ok {
			if err := json.Unmarshal(v, &e.Kind); err != nil {
				return fmt.Errorf("event %s: %w", key, err)
			}
			delete(raw, key)
			break
		}
	}
	if v, ok := raw["payload"]; ok {
		if err := json.Unmarshal(v, &e.Payload); err != nil {
			return fmt.Errorf("event payload: %w", err)
		}
		delete(raw, "payload")
	}

	// Leftovers are v1 payload fields (intensity, metadata, detail).
	for k, v := range raw {
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			continue
		}
		if e.Payload == nil {
			e.Payload = make(map[string]any, len(raw))
		}
		e.Payload[k] = val
	}
	return nil
}

// JournalEntry is one consolidation reflection.
type JournalEntry struct {
	Date      string             `json:"date"`
	Text      string             `json:"text"`
	Baselines map[string]float64 `json:"baselines"`
}

// UnmarshalJSON also accepts the v1 content/biological_summary keys.
func (j *JournalEntry) UnmarshalJSON(data []byte) error {
	var raw struct {
		Date              string             `json:"date"`
		Text              string             `json:"text"`
		Baselines         map[string]float64 `json:"baselines"`
		Content           string             `json:"content"`
		BiologicalSummary map[string]float64 `json:"biological_summary"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	j.Date = raw.Date
	j.Text = raw.Text
	if j.Text == "" {
		j.Text = raw.Content
	}
	j.Baselines = raw.Baselines
	if j.Baselines == nil {
		j.Baselines = raw.BiologicalSummary
	}
	return nil
}

// legacyFields are the v1 top-level keys that were renamed in v2.
type legacyFields struct {
	ATPEnergy    *float64 `json:"atp_energy"`
	Adenosine    *float64 `json:"adenosine"`
	PainLevel    *float64 `json:"pain_level"`
	EventsBuffer []Event  `json:"events_buffer"`
}

// Decode unmarshals data over dst. Fields absent from data keep whatever
// dst already holds, so callers pass a snapshot pre-filled with defaults.
// Map fields are merged key by key.
func Decode(data []byte, dst *Snapshot) error {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}

	var legacy legacyFields
	if err := json.Unmarshal(data, &legacy); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	if _, ok := keys["energy"]; !ok && legacy.ATPEnergy != nil {
		dst.Energy = *legacy.ATPEnergy
	}
	if _, ok := keys["fatigue"]; !ok && legacy.Adenosine != nil {
		dst.Fatigue = *legacy.Adenosine
	}
	if _, ok := keys["pain"]; !ok && legacy.PainLevel != nil {
		dst.Pain = *legacy.PainLevel
	}
	if _, ok := keys["event_log"]; !ok && legacy.EventsBuffer != nil {
		dst.EventLog = legacy.EventsBuffer
	}
	if _, ok := keys["version"]; !ok {
		dst.Version = 1
	}
	return nil
}

// Encode renders the snapshot as indented JSON at the current version.
func Encode(s *Snapshot) ([]byte, error) {
	out := *s
	out.Version = SnapshotVersion
	data, err := json.MarshalIndent(&out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return data, nil
}

// Sanitize clamps every numeric field into its legal range and trims the
// plasticity buffer to the newest plasticityCap samples. Persisted data is
// treated as untrusted input.
func (s *Snapshot) Sanitize(plasticityCap int) {
	clampMap(s.Baselines)
	clampMap(s.Chemicals)
	clampMap(s.Skills)

	s.Energy = clamp(s.Energy, 0, 100)
	s.Pain = clamp(s.Pain, 0, 1)
	if math.IsNaN(s.Fatigue) || s.Fatigue < 0 {
		s.Fatigue = 0
	}
	if math.IsInf(s.Fatigue, 1) {
		s.Fatigue = math.MaxFloat64
	}
	if math.IsNaN(s.LastUpdate) || math.IsInf(s.LastUpdate, 0) || s.LastUpdate < 0 {
		s.LastUpdate = 0
	}

	if plasticityCap > 0 && len(s.PlasticityBuffer) > plasticityCap {
		s.PlasticityBuffer = s.PlasticityBuffer[len(s.PlasticityBuffer)-plasticityCap:]
	}
	for _, sample := range s.PlasticityBuffer {
		clampMap(sample)
	}
	for _, j := range s.Journal {
		clampMap(j.Baselines)
	}
}

func clampMap(m map[string]float64) {
	for k, v := range m {
		m[k] = clamp(v, 0, 1)
	}
}

// clamp bounds v to [lo, hi]; NaN maps to lo.
func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
