package engine

import (
	"fmt"
	"math"
	"strings"
)

// Stimulus is a discrete external event kind.
type Stimulus string

const (
	Comfort     Stimulus = "comfort"
	Hostile     Stimulus = "hostile"
	Achievement Stimulus = "achievement"
	Pain        Stimulus = "pain"
	Adrenaline  Stimulus = "adrenaline"
)

// effect is the per-unit-intensity response to a stimulus.
type effect struct {
	drives Vector
	pain   float64
	energy float64
}

var stimulusEffects = map[Stimulus]effect{
	Comfort: {
		drives: Vector{Oxytocin: 0.2, Serotonin: 0.2, Endorphin: 0.1},
		pain:   -1,
	},
	Hostile: {
		drives: Vector{Cortisol: 0.6, Dopamine: -0.2},
	},
	Achievement: {
		drives: Vector{Dopamine: 0.5},
	},
	Pain: {
		drives: Vector{Cortisol: 0.7, Serotonin: -0.4, Endorphin: 0.3},
		pain:   1,
		energy: -10,
	},
	Adrenaline: {
		drives: Vector{Cortisol: 0.4, Dopamine: 0.3, Norepinephrine: 0.5},
	},
}

var stimulusAliases = map[string]Stimulus{
	"touch_comforting": Comfort,
	"hostile_input":    Hostile,
	"adrenaline_surge": Adrenaline,
}

// ParseStimulus maps a wire name to a Stimulus. Unknown names are an error.
func ParseStimulus(name string) (Stimulus, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if s, ok := stimulusAliases[n]; ok {
		return s, nil
	}
	if _, ok := stimulusEffects[Stimulus(n)]; ok {
		return Stimulus(n), nil
	}
	return "", fmt.Errorf("unknown stimulus %q", name)
}

// StimulusResult reports what a stimulus did.
type StimulusResult struct {
	Kind      Stimulus `json:"kind"`
	Intensity float64  `json:"intensity"`
	// Reflex is set when cortisol ends above the reflex threshold. It is
	// advisory: nothing is blocked.
	Reflex bool `json:"reflex"`
}

// Stimulate applies kind at the given intensity, clamped to [0,1].
func (e *Engine) Stimulate(kind Stimulus, intensity float64) (StimulusResult, error) {
	eff, ok := stimulusEffects[kind]
	if !ok {
		return StimulusResult{}, fmt.Errorf("unknown stimulus %q", kind)
	}
	i := clamp01(intensity)

	e.mu.Lock()
	e.applyEffectLocked(eff, i)
	e.logEventLocked("stimulus", map[string]any{"kind": string(kind), "intensity": i})
	p := e.commitLocked()
	reflex := e.reflexLocked()
	e.mu.Unlock()
	e.persist(p)

	return StimulusResult{Kind: kind, Intensity: i, Reflex: reflex}, nil
}

func (e *Engine) applyEffectLocked(eff effect, i float64) {
	for c := range e.chemicals {
		e.chemicals[c] += eff.drives[c] * i
	}
	e.pain += eff.pain * i
	e.energy += eff.energy * i
}

// reflexLocked must run after clamping.
func (e *Engine) reflexLocked() bool {
	if e.chemicals[Cortisol] > e.params.ReflexThreshold {
		e.stats.reflexes.Add(1)
		return true
	}
	return false
}

// VisualInput describes a perceived image. Fields are in [0,1].
type VisualInput struct {
	Warmth     float64 `json:"warmth"`
	Complexity float64 `json:"complexity"`
	Threat     float64 `json:"threat"`
}

// VisualResult reports whether a visual input triggered a surge.
type VisualResult struct {
	Surge  bool `json:"surge"`
	Reflex bool `json:"reflex"`
}

// threatSurge is the threat level above which vision triggers adrenaline.
const threatSurge = 0.7

// PerceiveVisual applies the affective cost of visual input: warm scenes
// lift serotonin, complex ones cost energy, threatening ones trigger an
// adrenaline surge.
func (e *Engine) PerceiveVisual(in VisualInput) VisualResult {
	in.Warmth = clamp01(in.Warmth)
	in.Complexity = clamp01(in.Complexity)
	in.Threat = clamp01(in.Threat)

	e.mu.Lock()
	e.chemicals[Serotonin] += 0.2 * in.Warmth
	e.energy -= 2 * in.Complexity
	surge := in.Threat > threatSurge
	if surge {
		e.applyEffectLocked(stimulusEffects[Adrenaline], 1)
	}
	e.logEventLocked("visual_stimulus", map[string]any{
		"warmth":     in.Warmth,
		"complexity": in.Complexity,
		"threat":     in.Threat,
		"surge":      surge,
	})
	p := e.commitLocked()
	reflex := e.reflexLocked()
	e.mu.Unlock()
	e.persist(p)

	return VisualResult{Surge: surge, Reflex: reflex}
}

// Intervention is a direct override of the body state.
type Intervention string

const (
	OxytocinIV           Intervention = "oxytocin_iv"
	SerotoninBooster     Intervention = "serotonin_booster"
	ATPInfusion          Intervention = "atp_infusion"
	EmergencyAnaesthesia Intervention = "emergency_anaesthesia"
)

// ParseIntervention maps a wire name to an Intervention.
func ParseIntervention(name string) (Intervention, error) {
	switch iv := Intervention(strings.ToLower(strings.TrimSpace(name))); iv {
	case OxytocinIV, SerotoninBooster, ATPInfusion, EmergencyAnaesthesia:
		return iv, nil
	}
	return "", fmt.Errorf("unknown intervention %q", name)
}

// Intervene applies an intervention. Baselines are never touched.
func (e *Engine) Intervene(kind Intervention) error {
	e.mu.Lock()
	switch kind {
	case OxytocinIV:
		e.chemicals[Oxytocin] = 1
		e.chemicals[Cortisol] *= 0.2
		e.pain *= 0.1
	case SerotoninBooster:
		e.chemicals[Serotonin] = 0.9
		e.chemicals[Dopamine] = 0.5
	case ATPInfusion:
		e.energy = maxEnergy
		e.fatigue = 0
	case EmergencyAnaesthesia:
		e.pain = 0
		e.chemicals[Cortisol] = 0
	default:
		e.mu.Unlock()
		return fmt.Errorf("unknown intervention %q", kind)
	}
	e.logEventLocked("intervention", map[string]any{"kind": string(kind)})
	p := e.commitLocked()
	e.mu.Unlock()
	e.persist(p)
	return nil
}

// DeltaMode says how a Delta's value combines with the current level.
type DeltaMode int

const (
	Additive DeltaMode = iota
	Absolute
)

func (m DeltaMode) String() string {
	if m == Absolute {
		return "absolute"
	}
	return "additive"
}

// ParseDeltaMode accepts "additive" (or empty) and "absolute".
func ParseDeltaMode(s string) (DeltaMode, error) {
	switch strings.ToLower(s) {
	case "", "additive", "add":
		return Additive, nil
	case "absolute", "set":
		return Absolute, nil
	}
	return 0, fmt.Errorf("unknown delta mode %q", s)
}

func (m DeltaMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *DeltaMode) UnmarshalText(b []byte) error {
	v, err := ParseDeltaMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Delta is one requested change to a named drive.
type Delta struct {
	Drive string    `json:"drive"`
	Value float64   `json:"value"`
	Mode  DeltaMode `json:"mode"`
}

// DeltaResult lists which deltas applied and which were ignored.
type DeltaResult struct {
	Applied []string `json:"applied"`
	Ignored []string `json:"ignored,omitempty"`
	Reflex  bool     `json:"reflex"`
}

// ApplyDeltas applies each delta in order. Deltas naming unknown drives or
// carrying NaN are ignored and reported; the rest are clamped.
func (e *Engine) ApplyDeltas(deltas []Delta) DeltaResult {
	var res DeltaResult

	e.mu.Lock()
	for _, d := range deltas {
		c, ok := ParseChemical(strings.ToLower(d.Drive))
		if !ok || math.IsNaN(d.Value) {
			res.Ignored = append(res.Ignored, d.Drive)
			continue
		}
		switch d.Mode {
		case Absolute:
			e.chemicals[c] = d.Value
		default:
			e.chemicals[c] += d.Value
		}
		res.Applied = append(res.Applied, c.String())
	}
	e.logEventLocked("deltas", map[string]any{"applied": res.Applied, "ignored": res.Ignored})
	p := e.commitLocked()
	res.Reflex = e.reflexLocked()
	e.mu.Unlock()
	e.persist(p)

	if len(res.Ignored) > 0 {
		e.stats.ignoredDeltas.Add(uint64(len(res.Ignored)))
	}
	return res
}
