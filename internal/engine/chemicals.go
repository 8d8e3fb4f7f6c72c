package engine

import (
	"encoding/json"
	"math"
)

// Chemical identifies one drive in the affective vector.
type Chemical int

const (
	Dopamine Chemical = iota
	Serotonin
	Norepinephrine
	Cortisol
	Oxytocin
	Endorphin

	NumChemicals
)

var chemicalNames = [NumChemicals]string{
	Dopamine:       "dopamine",
	Serotonin:      "serotonin",
	Norepinephrine: "norepinephrine",
	Cortisol:       "cortisol",
	Oxytocin:       "oxytocin",
	Endorphin:      "endorphin",
}

func (c Chemical) String() string {
	if c < 0 || c >= NumChemicals {
		return "unknown"
	}
	return chemicalNames[c]
}

// ParseChemical maps a drive name to its enum value.
func ParseChemical(name string) (Chemical, bool) {
	for i, n := range chemicalNames {
		if n == name {
			return Chemical(i), true
		}
	}
	return 0, false
}

// Chemicals lists every drive in enum order.
func Chemicals() []Chemical {
	out := make([]Chemical, NumChemicals)
	for i := range out {
		out[i] = Chemical(i)
	}
	return out
}

// Vector holds one value per drive.
type Vector [NumChemicals]float64

// DefaultBaselines returns the compiled-in resting levels.
func DefaultBaselines() Vector {
	return Vector{
		Dopamine:       0.5,
		Serotonin:      0.6,
		Norepinephrine: 0.2,
		Cortisol:       0.2,
		Oxytocin:       0.3,
		Endorphin:      0.2,
	}
}

// Map returns the vector keyed by drive name.
func (v Vector) Map() map[string]float64 {
	m := make(map[string]float64, NumChemicals)
	for i, val := range v {
		m[chemicalNames[i]] = val
	}
	return m
}

// splitMap copies known drives from m into v and returns the keys it did
// not recognise.
func (v *Vector) splitMap(m map[string]float64) map[string]float64 {
	var unknown map[string]float64
	for k, val := range m {
		if c, ok := ParseChemical(k); ok {
			v[c] = val
			continue
		}
		if unknown == nil {
			unknown = make(map[string]float64)
		}
		unknown[k] = val
	}
	return unknown
}

func (v Vector) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Map())
}

func (v *Vector) UnmarshalJSON(data []byte) error {
	var m map[string]float64
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	v.splitMap(m)
	return nil
}

func (v *Vector) clamp() {
	for i := range v {
		v[i] = clamp01(v[i])
	}
}

// clamp01 bounds x to [0,1]; NaN maps to 0.
func clamp01(x float64) float64 {
	return clampRange(x, 0, 1)
}

func clampRange(x, lo, hi float64) float64 {
	if math.IsNaN(x) || x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
