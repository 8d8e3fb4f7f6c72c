package engine

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"gonum.org/v1/gonum/stat"
)

// DreamMaterial is what the reflection oracle sees before a sleep.
type DreamMaterial struct {
	Events    []Event `json:"events"`
	Baselines Vector  `json:"baselines"`
}

// DreamMaterial returns the newest events (up to the reflection window)
// and the current baselines without changing anything.
func (e *Engine) DreamMaterial() DreamMaterial {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := max(0, len(e.events)-e.params.ReflectionWindow)
	return DreamMaterial{
		Events:    slices.Clone(e.events[start:]),
		Baselines: e.baselines,
	}
}

// ConsolidationReport summarises one sleep cycle.
type ConsolidationReport struct {
	At              time.Time     `json:"at"`
	Samples         int           `json:"samples"`
	BaselinesBefore Vector        `json:"baselines_before"`
	BaselinesAfter  Vector        `json:"baselines_after"`
	Journal         *JournalEntry `json:"journal,omitempty"`
	// Cleared holds the events removed from the log.
	Cleared []Event `json:"-"`
	Summary string  `json:"summary"`
}

// Consolidate runs a sleep cycle. A journal entry is written when
// reflection is non-empty and there were events to reflect on. Baselines
// shift toward the mean of the plasticity samples, the body is rested,
// and the event log and plasticity buffer are cleared.
func (e *Engine) Consolidate(reflection string) ConsolidationReport {
	e.mu.Lock()
	now := e.now()
	rep := ConsolidationReport{
		At:              now,
		Samples:         len(e.plasticity),
		BaselinesBefore: e.baselines,
		Cleared:         slices.Clone(e.events),
	}

	if reflection != "" && len(e.events) > 0 {
		entry := JournalEntry{
			Date:      now.Format("2006-01-02"),
			Text:      reflection,
			Baselines: e.baselines.Map(),
		}
		e.journal = append(e.journal, entry)
		entry.Baselines = maps.Clone(entry.Baselines)
		rep.Journal = &entry
	}

	if len(e.plasticity) > 0 {
		samples := make([]float64, len(e.plasticity))
		for c := range e.baselines {
			for i, v := range e.plasticity {
				samples[i] = v[c]
			}
			mean := stat.Mean(samples, nil)
			e.baselines[c] += (mean - e.baselines[c]) * e.params.PlasticityRate
		}
	}

	e.energy = maxEnergy
	e.fatigue = 0
	e.pain = 0
	e.chemicals[Cortisol] = e.params.CortisolResidual

	e.events = e.events[:0]
	e.plasticity = e.plasticity[:0]

	p := e.commitLocked()
	rep.BaselinesAfter = e.baselines
	e.mu.Unlock()
	e.persist(p)
	e.stats.consolidations.Add(1)

	rep.Summary = summarize(rep)
	return rep
}

func summarize(rep ConsolidationReport) string {
	journal := "No journal entry."
	if rep.Journal != nil {
		journal = "Journal entry recorded."
	}
	shift := "Baselines unchanged."
	if rep.Samples > 0 {
		shift = fmt.Sprintf("Baselines shifted over %d samples.", rep.Samples)
	}
	return fmt.Sprintf("WAKEUP: System refreshed. %s %s", shift, journal)
}
