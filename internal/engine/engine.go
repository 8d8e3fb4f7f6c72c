package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lazypower/homeostat/internal/store"
)

// ErrInsufficientEnergy is returned when an action costs more energy than
// is available. No state is changed.
var ErrInsufficientEnergy = errors.New("insufficient energy")

// Persister loads and saves snapshots. store.FileStore and
// store.MemoryStore satisfy it.
type Persister interface {
	Load(dst *store.Snapshot) error
	Save(s *store.Snapshot) error
}

// Event is one entry in the engine's event log.
type Event struct {
	Time    time.Time      `json:"time"`
	Kind    string         `json:"kind"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Record converts the event to its persisted form.
func (ev Event) Record() store.Event {
	return store.Event{Timestamp: epochSeconds(ev.Time), Kind: ev.Kind, Payload: ev.Payload}
}

// JournalEntry is a reflection written during consolidation.
type JournalEntry struct {
	Date      string             `json:"date"`
	Text      string             `json:"text"`
	Baselines map[string]float64 `json:"baselines"`
}

// State is a point-in-time copy of the engine for diagnostics.
type State struct {
	Baselines         Vector             `json:"baselines"`
	Chemicals         Vector             `json:"chemicals"`
	Energy            float64            `json:"energy"`
	Fatigue           float64            `json:"fatigue"`
	Pain              float64            `json:"pain"`
	LastUpdate        time.Time          `json:"last_update"`
	PlasticitySamples int                `json:"plasticity_samples"`
	EventCount        int                `json:"event_count"`
	Journal           []JournalEntry     `json:"journal"`
	Skills            map[string]float64 `json:"skills"`
}

// Stats are monotonically increasing counters since construction.
type Stats struct {
	Mutations       uint64 `json:"mutations"`
	Persists        uint64 `json:"persists"`
	PersistFailures uint64 `json:"persist_failures"`
	EnergyDenied    uint64 `json:"energy_denied"`
	Reflexes        uint64 `json:"reflexes"`
	Consolidations  uint64 `json:"consolidations"`
	IgnoredDeltas   uint64 `json:"ignored_deltas"`
}

type counters struct {
	mutations       atomic.Uint64
	persists        atomic.Uint64
	persistFailures atomic.Uint64
	energyDenied    atomic.Uint64
	reflexes        atomic.Uint64
	consolidations  atomic.Uint64
	ignoredDeltas   atomic.Uint64
}

// Engine owns the affective state. All mutations serialize on mu; the
// snapshot is copied under mu and written after it is released.
type Engine struct {
	params Params
	now    func() time.Time
	store  Persister

	mu             sync.Mutex
	baselines      Vector
	chemicals      Vector
	extraBaselines map[string]float64
	extraChemicals map[string]float64
	energy         float64
	fatigue        float64
	pain           float64
	lastUpdate     time.Time
	plasticity     []Vector
	events         []Event
	journal        []JournalEntry
	skills         map[string]float64
	seq            uint64

	persistMu    sync.Mutex
	persistedSeq uint64

	stats counters
}

// Option configures an Engine.
type Option func(*Engine)

// WithParams overrides the default physiology.
func WithParams(p Params) Option {
	return func(e *Engine) { e.params = p }
}

// WithClock sets the clock used for event timestamps and load-time
// defaults. Tick always takes its time explicitly.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New builds an engine and loads its state from st. A missing or corrupt
// snapshot falls back to defaults; other load failures are returned.
// A nil st disables persistence.
func New(st Persister, opts ...Option) (*Engine, error) {
	e := &Engine{
		params: DefaultParams(),
		now:    time.Now,
		store:  st,
	}
	for _, opt := range opts {
		opt(e)
	}

	snap := e.defaultSnapshot()
	if st != nil {
		err := st.Load(snap)
		switch {
		case err == nil:
		case errors.Is(err, store.ErrNoSnapshot):
			slog.Info("no saved state, starting from defaults")
			snap = e.defaultSnapshot()
		case errors.Is(err, store.ErrCorruptSnapshot):
			slog.Warn("saved state unreadable, starting from defaults", "err", err)
			snap = e.defaultSnapshot()
		default:
			return nil, fmt.Errorf("load state: %w", err)
		}
	}
	snap.Sanitize(e.params.PlasticityCap)
	e.restore(snap)
	return e, nil
}

// Params returns the physiology the engine runs with.
func (e *Engine) Params() Params {
	return e.params
}

func (e *Engine) defaultSnapshot() *store.Snapshot {
	b := DefaultBaselines()
	return &store.Snapshot{
		Version:   store.SnapshotVersion,
		Baselines: b.Map(),
		Chemicals: b.Map(),
		Energy:    maxEnergy,
		Skills:    DefaultSkills(),
	}
}

func (e *Engine) restore(snap *store.Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.baselines = DefaultBaselines()
	e.extraBaselines = e.baselines.splitMap(snap.Baselines)
	e.chemicals = e.baselines
	e.extraChemicals = e.chemicals.splitMap(snap.Chemicals)
	if len(e.extraBaselines) > 0 || len(e.extraChemicals) > 0 {
		unknown := make(map[string]float64)
		maps.Copy(unknown, e.extraChemicals)
		maps.Copy(unknown, e.extraBaselines)
		slog.Warn("saved state has unknown drives, carrying them through", "keys", slices.Sorted(maps.Keys(unknown)))
	}

	e.energy = snap.Energy
	e.fatigue = snap.Fatigue
	e.pain = snap.Pain

	now := e.now()
	e.lastUpdate = fromEpoch(snap.LastUpdate)
	switch {
	case snap.LastUpdate == 0:
		e.lastUpdate = now
	case e.lastUpdate.After(now):
		slog.Warn("saved last_update is in the future, resetting", "last_update", e.lastUpdate)
		e.lastUpdate = now
	}

	e.plasticity = make([]Vector, 0, len(snap.PlasticityBuffer))
	for _, sample := range snap.PlasticityBuffer {
		v := e.baselines
		v.splitMap(sample)
		e.plasticity = append(e.plasticity, v)
	}

	e.events = make([]Event, 0, len(snap.EventLog))
	for _, ev := range snap.EventLog {
		e.events = append(e.events, Event{Time: fromEpoch(ev.Timestamp), Kind: ev.Kind, Payload: ev.Payload})
	}
	e.trimEventsLocked()

	e.journal = make([]JournalEntry, 0, len(snap.Journal))
	for _, j := range snap.Journal {
		e.journal = append(e.journal, JournalEntry{Date: j.Date, Text: j.Text, Baselines: j.Baselines})
	}

	e.skills = make(map[string]float64, len(snap.Skills))
	maps.Copy(e.skills, snap.Skills)
}

// snapshotLocked copies the full state into its persisted form.
func (e *Engine) snapshotLocked() *store.Snapshot {
	baselines := e.baselines.Map()
	chemicals := e.chemicals.Map()
	for k, v := range e.extraBaselines {
		baselines[k] = v
	}
	for k, v := range e.extraChemicals {
		chemicals[k] = v
	}

	snap := &store.Snapshot{
		Version:          store.SnapshotVersion,
		Baselines:        baselines,
		Chemicals:        chemicals,
		Energy:           e.energy,
		Fatigue:          e.fatigue,
		Pain:             e.pain,
		LastUpdate:       epochSeconds(e.lastUpdate),
		PlasticityBuffer: make([]map[string]float64, len(e.plasticity)),
		EventLog:         make([]store.Event, len(e.events)),
		Journal:          make([]store.JournalEntry, len(e.journal)),
		Skills:           maps.Clone(e.skills),
	}
	for i, v := range e.plasticity {
		snap.PlasticityBuffer[i] = v.Map()
	}
	for i, ev := range e.events {
		snap.EventLog[i] = ev.Record()
	}
	for i, j := range e.journal {
		snap.Journal[i] = store.JournalEntry{Date: j.Date, Text: j.Text, Baselines: maps.Clone(j.Baselines)}
	}
	return snap
}

type pendingSave struct {
	seq  uint64
	snap *store.Snapshot
}

// commitLocked clamps, counts the mutation and captures a snapshot for
// persist. Callers release mu before calling persist.
func (e *Engine) commitLocked() pendingSave {
	e.clampLocked()
	e.stats.mutations.Add(1)
	e.seq++
	return pendingSave{seq: e.seq, snap: e.snapshotLocked()}
}

// persist writes p unless a newer snapshot has already been written.
func (e *Engine) persist(p pendingSave) error {
	if e.store == nil {
		return nil
	}
	e.persistMu.Lock()
	defer e.persistMu.Unlock()

	if p.seq <= e.persistedSeq {
		return nil
	}
	if err := e.store.Save(p.snap); err != nil {
		e.stats.persistFailures.Add(1)
		slog.Warn("persist state failed", "err", err)
		return err
	}
	e.persistedSeq = p.seq
	e.stats.persists.Add(1)
	return nil
}

func (e *Engine) clampLocked() {
	e.chemicals.clamp()
	e.baselines.clamp()
	e.pain = clamp01(e.pain)
	e.energy = clampRange(e.energy, 0, maxEnergy)
	if math.IsNaN(e.fatigue) || e.fatigue < 0 {
		e.fatigue = 0
	}
}

func (e *Engine) logEventLocked(kind string, payload map[string]any) {
	e.events = append(e.events, Event{Time: e.now(), Kind: kind, Payload: payload})
	e.trimEventsLocked()
}

func (e *Engine) trimEventsLocked() {
	if limit := e.params.EventLogCap; limit > 0 && len(e.events) > limit {
		e.events = slices.Delete(e.events, 0, len(e.events)-limit)
	}
}

// Flush persists the current state immediately.
func (e *Engine) Flush() error {
	e.mu.Lock()
	e.seq++
	p := pendingSave{seq: e.seq, snap: e.snapshotLocked()}
	e.mu.Unlock()
	return e.persist(p)
}

// Reset returns chemicals to their baselines and the body to its rested
// defaults. Baselines, skills and the journal are kept.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.chemicals = e.baselines
	e.energy = maxEnergy
	e.fatigue = 0
	e.pain = 0
	e.plasticity = e.plasticity[:0]
	e.events = e.events[:0]
	e.logEventLocked("reset", nil)
	p := e.commitLocked()
	e.mu.Unlock()
	e.persist(p)
}

// State returns a copy of the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	journal := make([]JournalEntry, len(e.journal))
	for i, j := range e.journal {
		journal[i] = JournalEntry{Date: j.Date, Text: j.Text, Baselines: maps.Clone(j.Baselines)}
	}
	return State{
		Baselines:         e.baselines,
		Chemicals:         e.chemicals,
		Energy:            e.energy,
		Fatigue:           e.fatigue,
		Pain:              e.pain,
		LastUpdate:        e.lastUpdate,
		PlasticitySamples: len(e.plasticity),
		EventCount:        len(e.events),
		Journal:           journal,
		Skills:            maps.Clone(e.skills),
	}
}

// Mastery reports the mastery of a skill; unknown skills report the
// starting mastery.
func (e *Engine) Mastery(skill string) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if m, ok := e.skills[skill]; ok {
		return m
	}
	return initialMastery
}

// Stats returns a copy of the engine's counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Mutations:       e.stats.mutations.Load(),
		Persists:        e.stats.persists.Load(),
		PersistFailures: e.stats.persistFailures.Load(),
		EnergyDenied:    e.stats.energyDenied.Load(),
		Reflexes:        e.stats.reflexes.Load(),
		Consolidations:  e.stats.consolidations.Load(),
		IgnoredDeltas:   e.stats.ignoredDeltas.Load(),
	}
}

func epochSeconds(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixNano()) / 1e9
}

func fromEpoch(sec float64) time.Time {
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(frac*1e9))
}
