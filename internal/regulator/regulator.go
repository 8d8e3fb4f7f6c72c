// Package regulator connects the language-model oracles to the engine.
// Oracle calls never run while the engine is locked; their results are
// applied as ordinary engine operations afterwards.
package regulator

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/lazypower/homeostat/internal/engine"
	"github.com/lazypower/homeostat/internal/store"
	"github.com/lazypower/homeostat/internal/telemetry"
)

// Ledger keeps sleep history. *store.DB satisfies it.
type Ledger interface {
	RecordSleep(rec *store.SleepRecord) error
	ArchiveEvents(sleepID string, events []store.Event) (int, error)
}

// Regulator runs perception and sleep against one engine. Classifier,
// Reflector and Ledger are optional.
type Regulator struct {
	Engine     *engine.Engine
	Classifier Classifier
	Reflector  Reflector
	Ledger     Ledger
	Now        func() time.Time
}

// Perception is the outcome of one Perceive call.
type Perception struct {
	Classification Classification     `json:"classification"`
	Deltas         engine.DeltaResult `json:"deltas"`
	Stimulus       string             `json:"stimulus,omitempty"`
	Manifest       engine.Manifest    `json:"manifest"`
	// Fallback is set when the classifier was unavailable or failed.
	Fallback bool `json:"fallback"`
}

// labelStimuli maps classifier labels to the stimulus they imply.
var labelStimuli = map[string]struct {
	kind      engine.Stimulus
	intensity float64
}{
	LabelCrisis:  {engine.Hostile, 0.8},
	LabelBonding: {engine.Comfort, 0.5},
}

func (r *Regulator) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Perceive reads text through the classifier and lets it move the drives.
// A failed or cancelled classification holds homeostasis.
func (r *Regulator) Perceive(ctx context.Context, text string) (Perception, error) {
	r.Engine.Tick(r.now())

	var p Perception
	cls, err := r.classify(ctx, text)
	if err != nil {
		slog.Warn("classifier unavailable, holding homeostasis", "err", err)
		cls = Homeostasis()
		p.Fallback = true
	}
	p.Classification = cls

	if len(cls.Deltas) > 0 {
		p.Deltas = r.Engine.ApplyDeltas(cls.Deltas)
	}
	if s, ok := labelStimuli[cls.Label]; ok {
		if _, err := r.Engine.Stimulate(s.kind, s.intensity); err != nil {
			return Perception{}, fmt.Errorf("apply %s: %w", cls.Label, err)
		}
		p.Stimulus = string(s.kind)
	}
	p.Manifest = r.Engine.Manifest()
	return p, nil
}

func (r *Regulator) classify(ctx context.Context, text string) (Classification, error) {
	if r.Classifier == nil {
		return Classification{}, fmt.Errorf("no classifier configured")
	}
	cls, err := r.Classifier.Classify(ctx, text)
	telemetry.RecordOracle("classify", err)
	return cls, err
}

// SleepReport is the outcome of one Sleep call.
type SleepReport struct {
	engine.ConsolidationReport
	SleepID  string `json:"sleep_id,omitempty"`
	Archived int    `json:"archived"`
}

// Sleep runs a full consolidation: reflect on recent events, consolidate,
// then record the cycle in the ledger. Reflection and ledger failures are
// logged and do not stop the cycle, including when ctx is cancelled
// mid-reflection.
func (r *Regulator) Sleep(ctx context.Context) (SleepReport, error) {
	started := r.now()
	material := r.Engine.DreamMaterial()

	reflection := ""
	if r.Reflector != nil && len(material.Events) > 0 {
		lines := make([]string, len(material.Events))
		for i, ev := range material.Events {
			lines[i] = describe(ev)
		}
		text, err := r.Reflector.Reflect(ctx, lines, material.Baselines.Map())
		telemetry.RecordOracle("reflect", err)
		if err != nil {
			slog.Warn("reflection failed, sleeping without a journal entry", "err", err)
		} else {
			reflection = text
		}
	}

	rep := SleepReport{ConsolidationReport: r.Engine.Consolidate(reflection)}
	slog.Info("consolidated", "samples", rep.Samples, "cleared", len(rep.Cleared), "journal", rep.Journal != nil)

	if r.Ledger == nil {
		return rep, nil
	}
	rec := &store.SleepRecord{
		StartedAt:       started,
		FinishedAt:      rep.At,
		Samples:         rep.Samples,
		EventCount:      len(rep.Cleared),
		BaselinesBefore: rep.BaselinesBefore.Map(),
		BaselinesAfter:  rep.BaselinesAfter.Map(),
		Summary:         rep.Summary,
	}
	if rep.Journal != nil {
		rec.Reflection = rep.Journal.Text
		rec.Date = rep.Journal.Date
		rec.JournalBaselines = rep.Journal.Baselines
	}
	if err := r.Ledger.RecordSleep(rec); err != nil {
		slog.Error("record sleep failed", "err", err)
		return rep, nil
	}
	rep.SleepID = rec.ID

	events := make([]store.Event, len(rep.Cleared))
	for i, ev := range rep.Cleared {
		events[i] = ev.Record()
	}
	n, err := r.Ledger.ArchiveEvents(rec.ID, events)
	if err != nil {
		slog.Error("archive events failed", "sleep", rec.ID, "err", err)
	}
	rep.Archived = n
	return rep, nil
}

// describe renders an event as one reflection line.
func describe(ev engine.Event) string {
	var b strings.Builder
	b.WriteString(ev.Time.Format("15:04:05"))
	b.WriteByte(' ')
	b.WriteString(ev.Kind)
	for _, k := range slices.Sorted(maps.Keys(ev.Payload)) {
		fmt.Fprintf(&b, " %s=%v", k, ev.Payload[k])
	}
	return b.String()
}
