package engine

import "math"

// Manifest is the observable snapshot handed to the agent's prompt.
type Manifest struct {
	Neuro       map[string]float64 `json:"neuro"`
	Soma        Soma               `json:"soma"`
	Plasticity  string             `json:"plasticity"`
	Instruction string             `json:"biological_instruction"`
}

// Soma is the body half of the manifest.
type Soma struct {
	ATP           float64 `json:"atp"`
	SleepPressure float64 `json:"sleep_pressure"`
	PainVividness float64 `json:"pain_vividness"`
	State         string  `json:"state"`
}

// Level returns a rounded drive level from the manifest.
func (m Manifest) Level(c Chemical) float64 {
	return m.Neuro[c.String()]
}

const (
	stateHealing = "Healing/Recovering"
	stateStable  = "Stable"

	instructionHealthy  = "You are healthy."
	instructionStrained = "You are experiencing pain. Your tone should be strained, guarded, and focused on recovery."

	// painStrain is the pain level above which the strained instruction is used.
	painStrain = 0.4
)

// Manifest records a plasticity sample and returns the rounded view of the
// current state. The sample is what later consolidation averages over.
func (e *Engine) Manifest() Manifest {
	e.mu.Lock()
	e.plasticity = append(e.plasticity, e.chemicals)
	if over := len(e.plasticity) - e.params.PlasticityCap; over > 0 {
		e.plasticity = e.plasticity[over:]
	}

	neuro := make(map[string]float64, NumChemicals)
	for i, v := range e.chemicals {
		neuro[Chemical(i).String()] = round(v, 2)
	}
	m := Manifest{
		Neuro: neuro,
		Soma: Soma{
			ATP:           round(e.energy, 1),
			SleepPressure: round(e.fatigue, 2),
			PainVividness: round(e.pain, 2),
			State:         stateStable,
		},
		Plasticity:  "Learning active",
		Instruction: instructionHealthy,
	}
	if e.pain > 0 {
		m.Soma.State = stateHealing
	}
	if e.pain > painStrain {
		m.Instruction = instructionStrained
	}

	p := e.commitLocked()
	e.mu.Unlock()
	e.persist(p)
	return m
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
