package engine

import (
	"fmt"
	"math"
)

// DefaultSkillCost is the base energy cost of a skill when none is given.
const DefaultSkillCost = 10.0

// Resource cost classes.
const (
	ResourceAgile = "agile"
	ResourceBase  = "base"
	ResourceCoder = "coder"
	ResourceCloud = "cloud"
)

var resourceCosts = map[string]float64{
	ResourceAgile: 0.5,
	ResourceBase:  2.0,
	ResourceCoder: 8.0,
	ResourceCloud: 1.0,
}

// ResourceCost returns the energy price of a resource class. Unknown
// classes cost the base price.
func ResourceCost(class string) float64 {
	if c, ok := resourceCosts[class]; ok {
		return c
	}
	return resourceCosts[ResourceBase]
}

// SkillCost is base discounted by mastery: base * (1.2 - mastery).
func SkillCost(base, mastery float64) float64 {
	return base * (1.2 - mastery)
}

// SkillOutcome describes a successful skill use.
type SkillOutcome struct {
	Skill   string  `json:"skill"`
	Cost    float64 `json:"cost"`
	Mastery float64 `json:"mastery"`
	Energy  float64 `json:"energy"`
}

// UseSkill spends energy on a skill and improves its mastery. It returns
// ErrInsufficientEnergy, changing nothing, if the cost exceeds the energy
// available.
func (e *Engine) UseSkill(skill string, baseCost float64) (SkillOutcome, error) {
	if math.IsNaN(baseCost) || baseCost < 0 {
		baseCost = 0
	}

	e.mu.Lock()
	mastery, ok := e.skills[skill]
	if !ok {
		mastery = initialMastery
	}
	cost := SkillCost(baseCost, mastery)
	if e.energy < cost {
		energy := e.energy
		e.mu.Unlock()
		e.stats.energyDenied.Add(1)
		return SkillOutcome{Skill: skill, Cost: cost, Mastery: mastery, Energy: energy},
			fmt.Errorf("skill %s needs %.2f: %w", skill, cost, ErrInsufficientEnergy)
	}

	e.energy -= cost
	e.fatigue += baseCost / 200
	mastery = math.Min(1, mastery+e.params.MasteryStep)
	e.skills[skill] = mastery
	e.logEventLocked("skill", map[string]any{"skill": skill, "cost": cost, "mastery": mastery})
	p := e.commitLocked()
	out := SkillOutcome{Skill: skill, Cost: cost, Mastery: mastery, Energy: e.energy}
	e.mu.Unlock()
	e.persist(p)
	return out, nil
}

// ResourceOutcome describes a successful resource charge.
type ResourceOutcome struct {
	Class  string  `json:"class"`
	Cost   float64 `json:"cost"`
	Energy float64 `json:"energy"`
}

// UseResource charges the energy price of a resource class.
func (e *Engine) UseResource(class string) (ResourceOutcome, error) {
	cost := ResourceCost(class)

	e.mu.Lock()
	if e.energy < cost {
		energy := e.energy
		e.mu.Unlock()
		e.stats.energyDenied.Add(1)
		return ResourceOutcome{Class: class, Cost: cost, Energy: energy}, ErrInsufficientEnergy
	}
	e.energy -= cost
	e.fatigue += cost / 500
	e.logEventLocked("resource", map[string]any{"class": class, "cost": cost})
	p := e.commitLocked()
	out := ResourceOutcome{Class: class, Cost: cost, Energy: e.energy}
	e.mu.Unlock()
	e.persist(p)
	return out, nil
}
