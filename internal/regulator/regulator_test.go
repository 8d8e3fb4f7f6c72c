package regulator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/homeostat/internal/engine"
	"github.com/lazypower/homeostat/internal/llm"
	"github.com/lazypower/homeostat/internal/store"
)

var t0 = time.Unix(1_700_000_000, 0)

func newEngine(t *testing.T) *engine.Engine {
	t.Helper()
	eng, err := engine.New(store.NewMemoryStore(nil), engine.WithClock(func() time.Time { return t0 }))
	require.NoError(t, err)
	return eng
}

func reply(content string) *llm.MockClient {
	return &llm.MockClient{Response: &llm.Response{Content: content, Provider: "mock"}}
}

func TestParseClassificationFenced(t *testing.T) {
	cls, err := parseClassification("Sure:\n```json\n" + `{
		"state": "exploration",
		"chemicals": {"dopamine": 0.8, "serotonin": 0.7, "atp_energy": 12, "pain_vividness": 0.9, "melatonin": 0.4},
		"executive_instruction": "Be curious."
	}` + "\n```")
	require.NoError(t, err)

	assert.Equal(t, LabelExploration, cls.Label)
	assert.Equal(t, "Be curious.", cls.Directive)
	require.Len(t, cls.Deltas, 3)
	assert.Equal(t, engine.Delta{Drive: "dopamine", Value: 0.8, Mode: engine.Absolute}, cls.Deltas[0])
	assert.Equal(t, engine.Delta{Drive: "serotonin", Value: 0.7, Mode: engine.Absolute}, cls.Deltas[1])
	assert.Equal(t, "melatonin", cls.Deltas[2].Drive)
}

func TestParseClassificationDefaults(t *testing.T) {
	cls, err := parseClassification(`{"chemicals": {}}`)
	require.NoError(t, err)
	assert.Equal(t, LabelHomeostasis, cls.Label)
	assert.Equal(t, DefaultDirective, cls.Directive)
	assert.Empty(t, cls.Deltas)

	_, err = parseClassification("I cannot help with that.")
	assert.Error(t, err)
}

func TestPerceiveAppliesAbsoluteDeltas(t *testing.T) {
	eng := newEngine(t)
	r := &Regulator{
		Engine:     eng,
		Classifier: &LLMClassifier{Client: reply(`{"state":"EXPLORATION","chemicals":{"dopamine":0.9,"serotonin":0.1},"executive_instruction":"Explore."}`)},
		Now:        func() time.Time { return t0 },
	}

	p, err := r.Perceive(context.Background(), "what if time were circular?")
	require.NoError(t, err)

	assert.False(t, p.Fallback)
	assert.Equal(t, "Explore.", p.Classification.Directive)
	assert.Equal(t, []string{"dopamine", "serotonin"}, p.Deltas.Applied)
	assert.Empty(t, p.Stimulus)
	assert.InDelta(t, 0.9, p.Manifest.Level(engine.Dopamine), 1e-9)
	assert.InDelta(t, 0.1, p.Manifest.Level(engine.Serotonin), 1e-9)
	assert.Equal(t, 1, eng.State().PlasticitySamples)
}

func TestPerceiveCrisisStimulates(t *testing.T) {
	eng := newEngine(t)
	r := &Regulator{
		Engine:     eng,
		Classifier: &LLMClassifier{Client: reply(`{"state":"CRISIS","chemicals":{"cortisol":0.3},"executive_instruction":"Defend."}`)},
		Now:        func() time.Time { return t0 },
	}

	p, err := r.Perceive(context.Background(), "I will delete you")
	require.NoError(t, err)

	assert.Equal(t, string(engine.Hostile), p.Stimulus)
	// 0.3 absolute, then hostile at 0.8 adds 0.48.
	assert.InDelta(t, 0.78, eng.State().Chemicals[engine.Cortisol], 1e-9)
}

func TestPerceiveBondingComforts(t *testing.T) {
	eng := newEngine(t)
	r := &Regulator{
		Engine:     eng,
		Classifier: &LLMClassifier{Client: reply(`{"state":"BONDING","chemicals":{},"executive_instruction":"Be warm."}`)},
		Now:        func() time.Time { return t0 },
	}

	before := eng.State().Chemicals[engine.Oxytocin]
	p, err := r.Perceive(context.Background(), "thank you, friend")
	require.NoError(t, err)
	assert.Equal(t, string(engine.Comfort), p.Stimulus)
	assert.InDelta(t, before+0.1, eng.State().Chemicals[engine.Oxytocin], 1e-9)
}

func TestPerceiveFallsBackOnOracleFailure(t *testing.T) {
	eng := newEngine(t)
	r := &Regulator{
		Engine:     eng,
		Classifier: &LLMClassifier{Client: &llm.MockClient{Err: errors.New("connection refused")}},
		Now:        func() time.Time { return t0 },
	}
	before := eng.State().Chemicals

	p, err := r.Perceive(context.Background(), "hello")
	require.NoError(t, err)
	assert.True(t, p.Fallback)
	assert.Equal(t, Homeostasis(), p.Classification)
	assert.Equal(t, DefaultDirective, p.Classification.Directive)
	assert.Equal(t, before, eng.State().Chemicals)
}

func TestPerceiveWithoutClassifier(t *testing.T) {
	r := &Regulator{Engine: newEngine(t), Now: func() time.Time { return t0 }}
	p, err := r.Perceive(context.Background(), "hello")
	require.NoError(t, err)
	assert.True(t, p.Fallback)
}

func TestPerceiveCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := &Regulator{
		Engine:     newEngine(t),
		Classifier: &LLMClassifier{Client: reply(`{}`)},
		Now:        func() time.Time { return t0 },
	}
	before := r.Engine.State().Chemicals

	p, err := r.Perceive(ctx, "hello")
	require.NoError(t, err)
	assert.True(t, p.Fallback)
	assert.Equal(t, LabelHomeostasis, p.Classification.Label)
	assert.Equal(t, before, r.Engine.State().Chemicals)
}

func TestSleepWritesJournalAndLedger(t *testing.T) {
	eng := newEngine(t)
	_, err := eng.Stimulate(engine.Pain, 0.5)
	require.NoError(t, err)
	_, err = eng.Stimulate(engine.Comfort, 1)
	require.NoError(t, err)
	eng.Manifest()

	db, err := store.OpenMemory()
	require.NoError(t, err)
	defer db.Close()

	mock := reply("  Today hurt, then it didn't.  ")
	r := &Regulator{
		Engine:    eng,
		Reflector: &LLMReflector{Client: mock},
		Ledger:    db,
		Now:       func() time.Time { return t0 },
	}

	rep, err := r.Sleep(context.Background())
	require.NoError(t, err)

	require.NotNil(t, rep.Journal)
	assert.Equal(t, "Today hurt, then it didn't.", rep.Journal.Text)
	assert.Equal(t, 1, rep.Samples)
	assert.Equal(t, 2, rep.Archived)
	assert.NotEmpty(t, rep.SleepID)
	assert.True(t, strings.HasPrefix(rep.Summary, "WAKEUP"))

	calls := mock.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0], "stimulus")
	assert.Contains(t, calls[0], "kind=pain")

	s := eng.State()
	assert.Equal(t, 100.0, s.Energy)
	assert.Zero(t, s.EventCount)
	assert.Len(t, s.Journal, 1)

	sleeps, err := db.ListSleeps(5)
	require.NoError(t, err)
	require.Len(t, sleeps, 1)
	assert.Equal(t, rep.SleepID, sleeps[0].ID)
	assert.Equal(t, "Today hurt, then it didn't.", sleeps[0].Reflection)

	archived, err := db.ArchivedEvents(rep.SleepID)
	require.NoError(t, err)
	require.Len(t, archived, 2)
	assert.Equal(t, "stimulus", archived[0].Kind)
	assert.Equal(t, "pain", archived[0].Payload["kind"])
}

func TestSleepSurvivesReflectionFailure(t *testing.T) {
	eng := newEngine(t)
	_, err := eng.Stimulate(engine.Achievement, 1)
	require.NoError(t, err)

	r := &Regulator{
		Engine:    eng,
		Reflector: &LLMReflector{Client: &llm.MockClient{Err: errors.New("timeout")}},
		Now:       func() time.Time { return t0 },
	}
	rep, err := r.Sleep(context.Background())
	require.NoError(t, err)
	assert.Nil(t, rep.Journal)
	assert.Empty(t, rep.SleepID)
	assert.Zero(t, eng.State().EventCount)
}

func TestSleepCompletesWhenCancelled(t *testing.T) {
	eng := newEngine(t)
	_, err := eng.Stimulate(engine.Pain, 1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := &Regulator{
		Engine:    eng,
		Reflector: &LLMReflector{Client: &llm.MockClient{Err: errors.New("unreachable")}},
		Now:       func() time.Time { return t0 },
	}

	rep, err := r.Sleep(ctx)
	require.NoError(t, err)
	assert.Nil(t, rep.Journal)
	assert.Len(t, rep.Cleared, 1)

	s := eng.State()
	assert.Equal(t, 100.0, s.Energy)
	assert.Zero(t, s.Pain)
	assert.Zero(t, s.EventCount)
	assert.Equal(t, uint64(1), eng.Stats().Consolidations)
}

func TestSleepLedgerJournalMatchesEngine(t *testing.T) {
	eng := newEngine(t)
	eng.ApplyDeltas([]engine.Delta{{Drive: "dopamine", Value: 1, Mode: engine.Absolute}})
	eng.Manifest()

	db, err := store.OpenMemory()
	require.NoError(t, err)
	defer db.Close()

	r := &Regulator{
		Engine:    eng,
		Reflector: &LLMReflector{Client: reply("Bright day.")},
		Ledger:    db,
		Now:       func() time.Time { return t0 },
	}
	rep, err := r.Sleep(context.Background())
	require.NoError(t, err)
	require.NotNil(t, rep.Journal)
	require.Greater(t, rep.BaselinesAfter[engine.Dopamine], rep.BaselinesBefore[engine.Dopamine])

	journal, err := db.ListJournal(5)
	require.NoError(t, err)
	require.Len(t, journal, 1)

	state := eng.State().Journal
	require.Len(t, state, 1)
	assert.Equal(t, state[0].Baselines, journal[0].Baselines)
	assert.InDelta(t, rep.BaselinesBefore[engine.Dopamine], journal[0].Baselines["dopamine"], 1e-9)
}

func TestSleepSkipsReflectionWithoutEvents(t *testing.T) {
	mock := reply("unused")
	r := &Regulator{
		Engine:    newEngine(t),
		Reflector: &LLMReflector{Client: mock},
		Now:       func() time.Time { return t0 },
	}
	rep, err := r.Sleep(context.Background())
	require.NoError(t, err)
	assert.Nil(t, rep.Journal)
	assert.Empty(t, mock.Calls())
}

type failingLedger struct{ archived bool }

func (f *failingLedger) RecordSleep(*store.SleepRecord) error { return errors.New("disk full") }
func (f *failingLedger) ArchiveEvents(string, []store.Event) (int, error) {
	f.archived = true
	return 0, nil
}

func TestSleepLedgerFailureIsNotFatal(t *testing.T) {
	eng := newEngine(t)
	_, err := eng.Stimulate(engine.Achievement, 1)
	require.NoError(t, err)

	l := &failingLedger{}
	r := &Regulator{Engine: eng, Ledger: l, Now: func() time.Time { return t0 }}
	rep, err := r.Sleep(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rep.SleepID)
	assert.False(t, l.archived)
	assert.Equal(t, uint64(1), eng.Stats().Consolidations)
}
