package store

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func defaults() *Snapshot {
	return &Snapshot{
		Baselines: map[string]float64{"dopamine": 0.5, "serotonin": 0.6},
		Chemicals: map[string]float64{"dopamine": 0.5, "serotonin": 0.6},
		Energy:    100,
		Skills:    map[string]float64{},
	}
}

func TestFileStoreMissing(t *testing.T) {
	fs := NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	snap := defaults()
	if err := fs.Load(snap); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("Load = %v, want ErrNoSnapshot", err)
	}
	if snap.Energy != 100 {
		t.Error("missing file should leave defaults untouched")
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	fs := NewFileStore(path)

	snap := defaults()
	snap.Chemicals["dopamine"] = 0.9
	snap.Energy = 42.5
	snap.LastUpdate = 1_700_000_000.25
	snap.EventLog = []Event{{Timestamp: 1, Kind: "stimulus", Payload: map[string]any{"kind": "pain"}}}
	if err := fs.Save(snap); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got := defaults()
	if err := fs.Load(got); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Version != SnapshotVersion {
		t.Errorf("Version = %d", got.Version)
	}
	if got.Chemicals["dopamine"] != 0.9 || got.Energy != 42.5 || got.LastUpdate != 1_700_000_000.25 {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if len(got.EventLog) != 1 || got.EventLog[0].Payload["kind"] != "pain" {
		t.Errorf("event log = %+v", got.EventLog)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestFileStoreCorruptMovedAside(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	fs := NewFileStore(path)
	fs.now = func() time.Time { return time.Unix(1234, 0) }
	if err := fs.Load(defaults()); !errors.Is(err, ErrCorruptSnapshot) {
		t.Fatalf("Load = %v, want ErrCorruptSnapshot", err)
	}
	if _, err := os.Stat(path + ".corrupt-1234"); err != nil {
		t.Errorf("corrupt file not moved aside: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("original path should be gone, stat err = %v", err)
	}
}

func TestFileStoreBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	fs := NewFileStore(path)
	fs.BackupEvery = 3

	for i := 0; i < 2; i++ {
		if err := fs.Save(defaults()); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := os.Stat(path + ".bak"); !os.IsNotExist(err) {
		t.Fatal("backup written too early")
	}
	if err := fs.Save(defaults()); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path + ".bak"); err != nil {
		t.Errorf("expected backup after 3rd save: %v", err)
	}
}

func TestDecodeLegacy(t *testing.T) {
	legacy := `{
		"chemicals": {"dopamine": 0.7, "cortisol": 0.3, "norepinephrine": 0.4},
		"baselines": {"dopamine": 0.5},
		"atp_energy": 61.5,
		"adenosine": 0.8,
		"pain_level": 0.25,
		"last_update": 1700000000.5,
		"events_buffer": [{"time": 1700000000.1, "type": "stimulus_pain", "intensity": 0.6}],
		"journal": [{"date": "2024-01-01 10:00", "content": "slept", "biological_summary": {"dopamine": 0.52}}],
		"skills": {"python_coding": 0.55}
	}`

	snap := defaults()
	if err := Decode([]byte(legacy), snap); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if snap.Version != 1 {
		t.Errorf("Version = %d, want 1", snap.Version)
	}
	if snap.Energy != 61.5 || snap.Fatigue != 0.8 || snap.Pain != 0.25 {
		t.Errorf("somatic = %v %v %v", snap.Energy, snap.Fatigue, snap.Pain)
	}
	if snap.Baselines["serotonin"] != 0.6 {
		t.Error("missing baseline key should keep default")
	}
	if len(snap.EventLog) != 1 {
		t.Fatalf("event log = %+v", snap.EventLog)
	}
	ev := snap.EventLog[0]
	if ev.Kind != "stimulus_pain" || ev.Timestamp != 1700000000.1 || ev.Payload["intensity"] != 0.6 {
		t.Errorf("event = %+v", ev)
	}
	if len(snap.Journal) != 1 || snap.Journal[0].Text != "slept" || snap.Journal[0].Baselines["dopamine"] != 0.52 {
		t.Errorf("journal = %+v", snap.Journal)
	}
}

func TestDecodeRejectsNonObject(t *testing.T) {
	if err := Decode([]byte(`[1,2,3]`), defaults()); !errors.Is(err, ErrCorruptSnapshot) {
		t.Errorf("Decode = %v, want ErrCorruptSnapshot", err)
	}
}

func TestSanitize(t *testing.T) {
	snap := &Snapshot{
		Baselines:  map[string]float64{"dopamine": 1.7},
		Chemicals:  map[string]float64{"dopamine": -0.2, "cortisol": math.NaN()},
		Skills:     map[string]float64{"x": 3},
		Energy:     250,
		Fatigue:    -4,
		Pain:       2,
		LastUpdate: -1,
		PlasticityBuffer: []map[string]float64{
			{"dopamine": 0.1}, {"dopamine": 0.2}, {"dopamine": 9},
		},
	}
	snap.Sanitize(2)

	if snap.Baselines["dopamine"] != 1 || snap.Chemicals["dopamine"] != 0 || snap.Chemicals["cortisol"] != 0 {
		t.Errorf("drives not clamped: %v %v", snap.Baselines, snap.Chemicals)
	}
	if snap.Skills["x"] != 1 {
		t.Errorf("skill = %v", snap.Skills["x"])
	}
	if snap.Energy != 100 || snap.Fatigue != 0 || snap.Pain != 1 || snap.LastUpdate != 0 {
		t.Errorf("somatic = %v %v %v %v", snap.Energy, snap.Fatigue, snap.Pain, snap.LastUpdate)
	}
	if len(snap.PlasticityBuffer) != 2 {
		t.Fatalf("buffer len = %d, want 2", len(snap.PlasticityBuffer))
	}
	if snap.PlasticityBuffer[0]["dopamine"] != 0.2 || snap.PlasticityBuffer[1]["dopamine"] != 1 {
		t.Errorf("buffer = %v", snap.PlasticityBuffer)
	}
}

func TestMemoryStore(t *testing.T) {
	m := NewMemoryStore(nil)
	if err := m.Load(defaults()); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("Load = %v", err)
	}
	s := defaults()
	s.Energy = 7
	if err := m.Save(s); err != nil {
		t.Fatal(err)
	}
	got := defaults()
	if err := m.Load(got); err != nil {
		t.Fatal(err)
	}
	if got.Energy != 7 || m.Saves() != 1 {
		t.Errorf("energy=%v saves=%d", got.Energy, m.Saves())
	}

	m.Err = errors.New("disk full")
	if err := m.Save(s); err == nil {
		t.Error("expected injected error")
	}
}
