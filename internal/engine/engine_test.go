package engine

import (
	"errors"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/lazypower/homeostat/internal/store"
)

var t0 = time.Unix(1_700_000_000, 0)

// testEngine returns an engine backed by a memory store with a fixed clock.
func testEngine(t *testing.T) (*Engine, *store.MemoryStore) {
	t.Helper()
	ms := store.NewMemoryStore(nil)
	e, err := New(ms, WithClock(func() time.Time { return t0 }))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e, ms
}

func assertInRange(t *testing.T, s State) {
	t.Helper()
	for i, v := range s.Chemicals {
		if v < 0 || v > 1 || math.IsNaN(v) {
			t.Fatalf("%s = %v out of range", Chemical(i), v)
		}
	}
	if s.Pain < 0 || s.Pain > 1 {
		t.Fatalf("pain = %v out of range", s.Pain)
	}
	if s.Energy < 0 || s.Energy > 100 {
		t.Fatalf("energy = %v out of range", s.Energy)
	}
	if s.Fatigue < 0 {
		t.Fatalf("fatigue = %v negative", s.Fatigue)
	}
}

func TestNewDefaults(t *testing.T) {
	e, _ := testEngine(t)
	s := e.State()

	if s.Chemicals != DefaultBaselines() {
		t.Errorf("chemicals = %v, want baselines", s.Chemicals)
	}
	if s.Energy != 100 || s.Fatigue != 0 || s.Pain != 0 {
		t.Errorf("soma = %v/%v/%v", s.Energy, s.Fatigue, s.Pain)
	}
	if !s.LastUpdate.Equal(t0) {
		t.Errorf("last_update = %v, want %v", s.LastUpdate, t0)
	}
	if e.Mastery("python_coding") != 0.5 {
		t.Errorf("python_coding mastery = %v", e.Mastery("python_coding"))
	}
	if e.Mastery("never_seen") != 0.1 {
		t.Errorf("unknown mastery = %v", e.Mastery("never_seen"))
	}
}

func TestNewCorruptFallsBack(t *testing.T) {
	ms := store.NewMemoryStore([]byte("{{{"))
	e, err := New(ms)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if e.State().Chemicals != DefaultBaselines() {
		t.Error("corrupt snapshot should fall back to defaults")
	}
}

type failingLoader struct{ store.MemoryStore }

func (f *failingLoader) Load(*store.Snapshot) error { return errors.New("permission denied") }

func TestNewIOErrorPropagates(t *testing.T) {
	if _, err := New(&failingLoader{}); err == nil {
		t.Fatal("expected load error")
	}
}

func TestClampInvariant(t *testing.T) {
	e, _ := testEngine(t)
	rng := rand.New(rand.NewSource(42))
	kinds := []Stimulus{Comfort, Hostile, Achievement, Pain, Adrenaline}
	now := t0

	for i := 0; i < 2000; i++ {
		switch rng.Intn(4) {
		case 0:
			k := kinds[rng.Intn(len(kinds))]
			if _, err := e.Stimulate(k, rng.Float64()*20-10); err != nil {
				t.Fatalf("Stimulate: %v", err)
			}
		case 1:
			e.ApplyDeltas([]Delta{
				{Drive: "cortisol", Value: rng.Float64()*10 - 5},
				{Drive: "dopamine", Value: rng.Float64()*10 - 5, Mode: Absolute},
				{Drive: "serotonin", Value: math.NaN()},
				{Drive: "oxytocin", Value: math.Inf(1)},
			})
		case 2:
			now = now.Add(time.Duration(rng.Intn(7200)-1000) * time.Second)
			e.Tick(now)
		case 3:
			e.PerceiveVisual(VisualInput{Warmth: rng.Float64() * 3, Complexity: rng.Float64() * 100, Threat: rng.Float64()})
		}
		assertInRange(t, e.State())
	}
}

func TestDecayConvergence(t *testing.T) {
	e, _ := testEngine(t)
	e.ApplyDeltas([]Delta{
		{Drive: "dopamine", Value: 1, Mode: Absolute},
		{Drive: "cortisol", Value: 0.9, Mode: Absolute},
		{Drive: "serotonin", Value: 0, Mode: Absolute},
	})

	now := t0
	var prevGap [NumChemicals]float64
	base := e.State().Baselines
	for i, v := range e.State().Chemicals {
		prevGap[i] = math.Abs(v - base[i])
	}
	for step := 0; step < 20; step++ {
		now = now.Add(time.Hour)
		e.Tick(now)
		s := e.State()
		for i, v := range s.Chemicals {
			gap := math.Abs(v - base[i])
			if gap > prevGap[i]+1e-12 {
				t.Fatalf("step %d: %s moved away from baseline (%v > %v)", step, Chemical(i), gap, prevGap[i])
			}
			prevGap[i] = gap
		}
	}
	for i, g := range prevGap {
		if g > 1e-6 {
			t.Errorf("%s did not converge, gap %v", Chemical(i), g)
		}
	}
}

func TestTickElapsedClamped(t *testing.T) {
	e, _ := testEngine(t)
	e.ApplyDeltas([]Delta{{Drive: "dopamine", Value: 1, Mode: Absolute}})

	if got := e.Tick(t0.Add(48 * time.Hour)); got != 3600 {
		t.Errorf("elapsed = %v, want 3600", got)
	}
	want := 0.5 + 0.5*math.Exp(-0.01*3600)
	if got := e.State().Chemicals[Dopamine]; math.Abs(got-want) > 1e-9 {
		t.Errorf("dopamine = %v, want %v", got, want)
	}
}

func TestTickBackwardsClock(t *testing.T) {
	e, _ := testEngine(t)
	e.Tick(t0.Add(time.Minute))
	before := e.State()

	if got := e.Tick(t0); got != 0 {
		t.Errorf("elapsed = %v, want 0", got)
	}
	after := e.State()
	if !after.LastUpdate.Equal(before.LastUpdate) {
		t.Errorf("last_update moved backwards: %v -> %v", before.LastUpdate, after.LastUpdate)
	}
	if after.Chemicals != before.Chemicals {
		t.Error("zero elapsed should not change chemicals")
	}
}

func TestOxytocinFastDecay(t *testing.T) {
	e, _ := testEngine(t)
	e.ApplyDeltas([]Delta{{Drive: "oxytocin", Value: 0.9, Mode: Absolute}})
	e.Tick(t0.Add(10 * time.Second))

	b := DefaultBaselines()[Oxytocin]
	fast := b + (0.9-b)*math.Exp(-0.01*2*10)
	if got := e.State().Chemicals[Oxytocin]; math.Abs(got-fast) > 1e-9 {
		t.Errorf("oxytocin above threshold = %v, want %v", got, fast)
	}

	e2, _ := testEngine(t)
	e2.ApplyDeltas([]Delta{{Drive: "oxytocin", Value: 0.6, Mode: Absolute}})
	e2.Tick(t0.Add(10 * time.Second))
	slow := b + (0.6-b)*math.Exp(-0.01*10)
	if got := e2.State().Chemicals[Oxytocin]; math.Abs(got-slow) > 1e-9 {
		t.Errorf("oxytocin below threshold = %v, want %v", got, slow)
	}
}

func TestPainHealsAndSnaps(t *testing.T) {
	e, _ := testEngine(t)
	if _, err := e.Stimulate(Pain, 0.5); err != nil {
		t.Fatal(err)
	}
	e.Tick(t0.Add(10 * time.Second))
	want := 0.5 * math.Exp(-0.01*2*10)
	if got := e.State().Pain; math.Abs(got-want) > 1e-9 {
		t.Errorf("pain = %v, want %v", got, want)
	}
	e.Tick(t0.Add(time.Hour))
	if got := e.State().Pain; got != 0 {
		t.Errorf("pain = %v, want snap to 0", got)
	}
}

func TestTickFatigueAndRecharge(t *testing.T) {
	e, _ := testEngine(t)
	if _, err := e.UseResource(ResourceCoder); err != nil {
		t.Fatal(err)
	}
	e.Tick(t0.Add(2 * time.Second))
	s := e.State()
	if math.Abs(s.Energy-95) > 1e-9 {
		t.Errorf("energy = %v, want 95", s.Energy)
	}
	if want := 8.0/500 + 0.002; math.Abs(s.Fatigue-want) > 1e-9 {
		t.Errorf("fatigue = %v, want %v", s.Fatigue, want)
	}
}

func TestStimulateEffects(t *testing.T) {
	tests := []struct {
		kind  Stimulus
		check func(t *testing.T, before, after State)
	}{
		{Comfort, func(t *testing.T, b, a State) {
			if d := a.Chemicals[Oxytocin] - b.Chemicals[Oxytocin]; math.Abs(d-0.1) > 1e-9 {
				t.Errorf("oxytocin delta = %v", d)
			}
			if d := a.Chemicals[Endorphin] - b.Chemicals[Endorphin]; math.Abs(d-0.05) > 1e-9 {
				t.Errorf("endorphin delta = %v", d)
			}
		}},
		{Hostile, func(t *testing.T, b, a State) {
			if d := a.Chemicals[Cortisol] - b.Chemicals[Cortisol]; math.Abs(d-0.3) > 1e-9 {
				t.Errorf("cortisol delta = %v", d)
			}
			if d := a.Chemicals[Dopamine] - b.Chemicals[Dopamine]; math.Abs(d+0.1) > 1e-9 {
				t.Errorf("dopamine delta = %v", d)
			}
		}},
		{Achievement, func(t *testing.T, b, a State) {
			if d := a.Chemicals[Dopamine] - b.Chemicals[Dopamine]; math.Abs(d-0.25) > 1e-9 {
				t.Errorf("dopamine delta = %v", d)
			}
		}},
		{Pain, func(t *testing.T, b, a State) {
			if a.Pain != 0.5 {
				t.Errorf("pain = %v", a.Pain)
			}
			if a.Energy != 95 {
				t.Errorf("energy = %v", a.Energy)
			}
		}},
		{Adrenaline, func(t *testing.T, b, a State) {
			if d := a.Chemicals[Norepinephrine] - b.Chemicals[Norepinephrine]; math.Abs(d-0.25) > 1e-9 {
				t.Errorf("norepinephrine delta = %v", d)
			}
		}},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			e, _ := testEngine(t)
			before := e.State()
			res, err := e.Stimulate(tt.kind, 0.5)
			if err != nil {
				t.Fatal(err)
			}
			if res.Intensity != 0.5 {
				t.Errorf("intensity = %v", res.Intensity)
			}
			after := e.State()
			tt.check(t, before, after)
			if after.EventCount != before.EventCount+1 {
				t.Errorf("events %d -> %d, want exactly one appended", before.EventCount, after.EventCount)
			}
		})
	}
}

func TestStimulateUnknownKind(t *testing.T) {
	e, _ := testEngine(t)
	if _, err := e.Stimulate("tickle", 1); err == nil {
		t.Fatal("expected error for unknown stimulus")
	}
	if _, err := ParseStimulus("tickle"); err == nil {
		t.Fatal("ParseStimulus accepted unknown kind")
	}
	if s, err := ParseStimulus("touch_comforting"); err != nil || s != Comfort {
		t.Errorf("alias = %v, %v", s, err)
	}
}

func TestReflexAdvisory(t *testing.T) {
	e, _ := testEngine(t)
	res, err := e.Stimulate(Hostile, 1)
	if err != nil {
		t.Fatal(err)
	}
	if res.Reflex {
		t.Error("cortisol 0.8 should not trip reflex")
	}
	res, _ = e.Stimulate(Hostile, 1)
	if !res.Reflex {
		t.Error("cortisol 1.0 should trip reflex")
	}
	if e.State().Chemicals[Cortisol] != 1 {
		t.Error("reflex must not alter the state")
	}
	if e.Stats().Reflexes != 1 {
		t.Errorf("reflexes = %d", e.Stats().Reflexes)
	}
}

func TestApplyDeltasUnknown(t *testing.T) {
	e, _ := testEngine(t)
	res := e.ApplyDeltas([]Delta{
		{Drive: "Dopamine", Value: 0.1},
		{Drive: "melatonin", Value: 0.5},
	})
	if len(res.Applied) != 1 || res.Applied[0] != "dopamine" {
		t.Errorf("applied = %v", res.Applied)
	}
	if len(res.Ignored) != 1 || res.Ignored[0] != "melatonin" {
		t.Errorf("ignored = %v", res.Ignored)
	}
	if math.Abs(e.State().Chemicals[Dopamine]-0.6) > 1e-9 {
		t.Errorf("dopamine = %v", e.State().Chemicals[Dopamine])
	}
	if e.Stats().IgnoredDeltas != 1 {
		t.Errorf("ignored counter = %d", e.Stats().IgnoredDeltas)
	}
}

func TestIntervene(t *testing.T) {
	e, _ := testEngine(t)
	e.Stimulate(Pain, 1)
	before := e.State().Baselines

	if err := e.Intervene(EmergencyAnaesthesia); err != nil {
		t.Fatal(err)
	}
	s := e.State()
	if s.Pain != 0 || s.Chemicals[Cortisol] != 0 {
		t.Errorf("anaesthesia left pain=%v cortisol=%v", s.Pain, s.Chemicals[Cortisol])
	}
	if err := e.Intervene(ATPInfusion); err != nil {
		t.Fatal(err)
	}
	if s := e.State(); s.Energy != 100 || s.Fatigue != 0 {
		t.Errorf("infusion left energy=%v fatigue=%v", s.Energy, s.Fatigue)
	}
	if e.State().Baselines != before {
		t.Error("interventions must not touch baselines")
	}
	if _, err := ParseIntervention("leeches"); err == nil {
		t.Error("expected unknown intervention error")
	}
}

func TestVisualSurge(t *testing.T) {
	e, _ := testEngine(t)
	calm := e.PerceiveVisual(VisualInput{Warmth: 1, Complexity: 0.5, Threat: 0.2})
	if calm.Surge {
		t.Error("low threat should not surge")
	}
	if s := e.State(); math.Abs(s.Energy-99) > 1e-9 || math.Abs(s.Chemicals[Serotonin]-0.8) > 1e-9 {
		t.Errorf("energy=%v serotonin=%v", s.Energy, s.Chemicals[Serotonin])
	}
	hot := e.PerceiveVisual(VisualInput{Threat: 0.9})
	if !hot.Surge {
		t.Error("high threat should surge")
	}
}

func TestEnergyGating(t *testing.T) {
	e, _ := testEngine(t)
	for i := 0; i < 10; i++ {
		e.Stimulate(Pain, 1) // -10 energy each
	}
	e.Intervene(EmergencyAnaesthesia)
	if got := e.State().Energy; got != 0 {
		t.Fatalf("energy = %v, want 0", got)
	}

	before := e.State()
	_, err := e.UseSkill("python_coding", 10)
	if !errors.Is(err, ErrInsufficientEnergy) {
		t.Fatalf("UseSkill err = %v", err)
	}
	_, err = e.UseResource(ResourceCoder)
	if !errors.Is(err, ErrInsufficientEnergy) {
		t.Fatalf("UseResource err = %v", err)
	}
	after := e.State()
	if after.Energy != before.Energy || after.Fatigue != before.Fatigue || after.EventCount != before.EventCount {
		t.Error("denied actions must not mutate state")
	}
	if e.Mastery("python_coding") != 0.5 {
		t.Error("denied skill must not gain mastery")
	}
	if e.Stats().EnergyDenied != 2 {
		t.Errorf("energy denied = %d", e.Stats().EnergyDenied)
	}
}

func TestMasteryDiscount(t *testing.T) {
	e, _ := testEngine(t)
	hi, err := e.UseSkill("sentiment_analysis", 10)
	if err != nil {
		t.Fatal(err)
	}
	lo, err := e.UseSkill("web_navigation", 10)
	if err != nil {
		t.Fatal(err)
	}
	if hi.Cost >= lo.Cost {
		t.Errorf("higher mastery cost %v should be below %v", hi.Cost, lo.Cost)
	}
	if math.Abs(hi.Cost-4) > 1e-9 || math.Abs(lo.Cost-9) > 1e-9 {
		t.Errorf("costs = %v, %v", hi.Cost, lo.Cost)
	}
	if math.Abs(hi.Mastery-0.805) > 1e-9 {
		t.Errorf("mastery = %v", hi.Mastery)
	}
	if math.Abs(e.State().Fatigue-0.1) > 1e-9 {
		t.Errorf("fatigue = %v, want 0.1", e.State().Fatigue)
	}
}

func TestMasteryCapped(t *testing.T) {
	e, _ := testEngine(t)
	for i := 0; i < 100; i++ {
		e.Intervene(ATPInfusion)
		if _, err := e.UseSkill("sentiment_analysis", 1); err != nil {
			t.Fatal(err)
		}
	}
	if got := e.Mastery("sentiment_analysis"); got != 1 {
		t.Errorf("mastery = %v, want 1", got)
	}
}

func TestResourceCosts(t *testing.T) {
	if ResourceCost("agile") != 0.5 || ResourceCost("coder") != 8 || ResourceCost("cloud") != 1 {
		t.Error("resource table mismatch")
	}
	if ResourceCost("quantum") != ResourceCost(ResourceBase) {
		t.Error("unknown class should cost base price")
	}
}

func TestManifest(t *testing.T) {
	e, _ := testEngine(t)
	m := e.Manifest()
	if m.Soma.State != "Stable" || m.Instruction != instructionHealthy {
		t.Errorf("manifest = %+v", m)
	}
	if m.Level(Serotonin) != 0.6 {
		t.Errorf("serotonin = %v", m.Level(Serotonin))
	}

	e.Stimulate(Pain, 0.5)
	m = e.Manifest()
	if m.Soma.State != "Healing/Recovering" || m.Instruction != instructionStrained {
		t.Errorf("manifest under pain = %+v", m.Soma)
	}
	if m.Soma.PainVividness != 0.5 || m.Soma.ATP != 95 {
		t.Errorf("soma = %+v", m.Soma)
	}
	if got := e.State().PlasticitySamples; got != 2 {
		t.Errorf("plasticity samples = %d, want 2", got)
	}
}

func TestPlasticityCap(t *testing.T) {
	p := DefaultParams()
	p.PlasticityCap = 5
	e, err := New(nil, WithParams(p))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 12; i++ {
		e.Manifest()
	}
	if got := e.State().PlasticitySamples; got != 5 {
		t.Errorf("samples = %d, want 5", got)
	}
}

func TestEventLogCap(t *testing.T) {
	p := DefaultParams()
	p.EventLogCap = 3
	e, _ := New(nil, WithParams(p))
	for i := 0; i < 10; i++ {
		e.Stimulate(Achievement, 0.1)
	}
	if got := e.State().EventCount; got != 3 {
		t.Errorf("events = %d, want 3", got)
	}
}

func TestConsolidationResets(t *testing.T) {
	e, _ := testEngine(t)
	e.ApplyDeltas([]Delta{{Drive: "dopamine", Value: 1, Mode: Absolute}})
	e.Manifest()
	e.ApplyDeltas([]Delta{{Drive: "dopamine", Value: 0.8, Mode: Absolute}})
	e.Manifest()
	e.Stimulate(Pain, 0.7)
	e.UseResource(ResourceCoder)

	before := e.State().Baselines
	rep := e.Consolidate("I felt sharp today.")

	s := e.State()
	if s.Energy != 100 || s.Fatigue != 0 || s.Pain != 0 {
		t.Errorf("soma = %v/%v/%v", s.Energy, s.Fatigue, s.Pain)
	}
	if s.Chemicals[Cortisol] != 0.1 {
		t.Errorf("cortisol = %v, want 0.1", s.Chemicals[Cortisol])
	}
	if s.EventCount != 0 || s.PlasticitySamples != 0 {
		t.Errorf("buffers not cleared: events=%d samples=%d", s.EventCount, s.PlasticitySamples)
	}
	wantDopamine := before[Dopamine] + (0.9-before[Dopamine])*0.1
	if math.Abs(s.Baselines[Dopamine]-wantDopamine) > 1e-9 {
		t.Errorf("dopamine baseline = %v, want %v", s.Baselines[Dopamine], wantDopamine)
	}
	if rep.Samples != 2 || rep.Journal == nil || rep.Summary == "" {
		t.Errorf("report = %+v", rep)
	}
	if len(s.Journal) != 1 || s.Journal[0].Text != "I felt sharp today." {
		t.Errorf("journal = %+v", s.Journal)
	}
	if s.Journal[0].Baselines["dopamine"] != before[Dopamine] {
		t.Error("journal should carry pre-shift baselines")
	}
	if len(rep.Cleared) == 0 {
		t.Error("report should carry the cleared events")
	}
}

func TestConsolidateNoEventsNoJournal(t *testing.T) {
	e, _ := testEngine(t)
	rep := e.Consolidate("nothing happened")
	if rep.Journal != nil || len(e.State().Journal) != 0 {
		t.Error("empty event log should not write a journal entry")
	}
	if e.State().Baselines != DefaultBaselines() {
		t.Error("no samples should leave baselines unchanged")
	}
}

func TestDreamMaterialWindow(t *testing.T) {
	e, _ := testEngine(t)
	for i := 0; i < 30; i++ {
		e.Stimulate(Achievement, 0.01)
	}
	dm := e.DreamMaterial()
	if len(dm.Events) != 20 {
		t.Errorf("events = %d, want 20", len(dm.Events))
	}
	if e.State().EventCount != 30 {
		t.Error("DreamMaterial must not mutate")
	}
}

func TestRoundTripPersistence(t *testing.T) {
	e, ms := testEngine(t)
	e.Stimulate(Hostile, 0.7)
	e.Stimulate(Pain, 0.3)
	e.UseSkill("python_coding", 10)
	e.Tick(t0.Add(30 * time.Second))
	want := e.Manifest()

	e2, err := New(store.NewMemoryStore(ms.Bytes()), WithClock(func() time.Time { return t0 }))
	if err != nil {
		t.Fatal(err)
	}
	got := e2.Manifest()

	for k, v := range want.Neuro {
		if math.Abs(got.Neuro[k]-v) > 0.005 {
			t.Errorf("%s = %v, want %v", k, got.Neuro[k], v)
		}
	}
	if got.Soma != want.Soma {
		t.Errorf("soma = %+v, want %+v", got.Soma, want.Soma)
	}
	if math.Abs(e2.Mastery("python_coding")-0.505) > 1e-9 {
		t.Errorf("mastery = %v", e2.Mastery("python_coding"))
	}
}

func TestUnknownDrivesCarriedThrough(t *testing.T) {
	seed := []byte(`{"version":2,"chemicals":{"dopamine":0.7,"melatonin":0.4},"baselines":{"melatonin":0.3},"energy":50}`)
	ms := store.NewMemoryStore(seed)
	e, err := New(ms)
	if err != nil {
		t.Fatal(err)
	}
	if e.State().Chemicals[Dopamine] != 0.7 {
		t.Errorf("dopamine = %v", e.State().Chemicals[Dopamine])
	}
	if _, ok := e.Manifest().Neuro["melatonin"]; ok {
		t.Error("unknown drive leaked into manifest")
	}

	var snap store.Snapshot
	if err := store.Decode(ms.Bytes(), &snap); err != nil {
		t.Fatal(err)
	}
	if snap.Chemicals["melatonin"] != 0.4 || snap.Baselines["melatonin"] != 0.3 {
		t.Errorf("unknown keys not preserved: %v / %v", snap.Chemicals, snap.Baselines)
	}
}

func TestPersistFailureCounted(t *testing.T) {
	ms := store.NewMemoryStore(nil)
	e, _ := New(ms)
	ms.Err = errors.New("disk full")

	if _, err := e.Stimulate(Achievement, 1); err != nil {
		t.Fatalf("persist failure must not fail the operation: %v", err)
	}
	if e.Stats().PersistFailures != 1 {
		t.Errorf("persist failures = %d", e.Stats().PersistFailures)
	}
	if err := e.Flush(); err == nil {
		t.Error("Flush should surface the error")
	}
}

func TestReset(t *testing.T) {
	e, _ := testEngine(t)
	e.Stimulate(Pain, 1)
	e.Consolidate("ouch")
	e.Stimulate(Hostile, 1)
	e.Reset()

	s := e.State()
	if s.Chemicals != s.Baselines {
		t.Error("chemicals should equal baselines after reset")
	}
	if len(s.Journal) != 1 {
		t.Error("reset must keep the journal")
	}
	if s.EventCount != 1 {
		t.Errorf("events = %d, want just the reset marker", s.EventCount)
	}
}

func TestConcurrentMutations(t *testing.T) {
	e, ms := testEngine(t)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				switch i % 4 {
				case 0:
					e.Stimulate(Hostile, 0.3)
				case 1:
					e.Tick(t0.Add(time.Duration(g*100+i) * time.Second))
				case 2:
					e.Manifest()
				case 3:
					e.UseResource(ResourceAgile)
				}
			}
		}(g)
	}
	wg.Wait()
	assertInRange(t, e.State())

	// The last write to the store must be the newest state.
	if err := e.Flush(); err != nil {
		t.Fatal(err)
	}
	var snap store.Snapshot
	if err := store.Decode(ms.Bytes(), &snap); err != nil {
		t.Fatal(err)
	}
	if snap.Energy != e.State().Energy {
		t.Errorf("persisted energy %v != live %v", snap.Energy, e.State().Energy)
	}
}
