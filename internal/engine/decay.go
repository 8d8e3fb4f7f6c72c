package engine

import (
	"math"
	"time"
)

// Homeostasis:
//   - each drive relaxes exponentially toward its baseline:
//     v' = b + (v - b) * exp(-k * m * elapsed)
//   - m is 2 for oxytocin above the fast threshold, 1 otherwise
//   - pain fades toward zero at twice the base rate and snaps to 0 under the floor
//   - fatigue accrues linearly while awake; energy recharges up to 100
//   - elapsed is clamped to [0, MaxElapsed] so a long downtime is one bounded step

// Tick advances the physiology to now and returns the elapsed seconds that
// were applied. A clock that moves backwards applies zero elapsed time and
// never moves last_update backwards.
func (e *Engine) Tick(now time.Time) float64 {
	e.mu.Lock()
	elapsed := e.advanceLocked(now)
	p := e.commitLocked()
	e.mu.Unlock()
	e.persist(p)
	return elapsed
}

func (e *Engine) advanceLocked(now time.Time) float64 {
	elapsed := clampRange(now.Sub(e.lastUpdate).Seconds(), 0, e.params.MaxElapsed)
	k := e.params.DecayRate

	e.pain *= math.Exp(-k * e.params.PainDecayMultiplier * elapsed)
	if e.pain < e.params.PainFloor {
		e.pain = 0
	}

	for i := range e.chemicals {
		m := 1.0
		if Chemical(i) == Oxytocin && e.chemicals[i] > e.params.OxytocinFastThreshold {
			m = e.params.OxytocinFastMultiplier
		}
		b := e.baselines[i]
		e.chemicals[i] = b + (e.chemicals[i]-b)*math.Exp(-k*m*elapsed)
	}

	e.fatigue += e.params.FatigueRate * elapsed
	e.energy = math.Min(maxEnergy, e.energy+e.params.RechargeRate*elapsed)

	if now.After(e.lastUpdate) {
		e.lastUpdate = now
	}
	return elapsed
}
