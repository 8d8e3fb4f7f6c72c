package engine

// Params are the tunable physiology constants.
type Params struct {
	DecayRate              float64 `yaml:"decay_rate" validate:"gt=0"`
	OxytocinFastThreshold  float64 `yaml:"oxytocin_fast_threshold" validate:"gte=0,lte=1"`
	OxytocinFastMultiplier float64 `yaml:"oxytocin_fast_multiplier" validate:"gt=0"`
	PainDecayMultiplier    float64 `yaml:"pain_decay_multiplier" validate:"gt=0"`
	PainFloor              float64 `yaml:"pain_floor" validate:"gte=0,lte=1"`
	FatigueRate            float64 `yaml:"fatigue_rate" validate:"gte=0"`
	RechargeRate           float64 `yaml:"recharge_rate" validate:"gte=0"`
	MaxElapsed             float64 `yaml:"max_elapsed" validate:"gt=0"`
	PlasticityRate         float64 `yaml:"plasticity_rate" validate:"gte=0,lte=1"`
	CortisolResidual       float64 `yaml:"cortisol_residual" validate:"gte=0,lte=1"`
	ReflexThreshold        float64 `yaml:"reflex_threshold" validate:"gte=0,lte=1"`
	MasteryStep            float64 `yaml:"mastery_step" validate:"gte=0,lte=1"`
	PlasticityCap          int     `yaml:"plasticity_cap" validate:"gte=1"`
	EventLogCap            int     `yaml:"event_log_cap" validate:"gte=1"`
	ReflectionWindow       int     `yaml:"reflection_window" validate:"gte=1"`
}

// DefaultParams returns the stock physiology.
func DefaultParams() Params {
	return Params{
		DecayRate:              0.01,
		OxytocinFastThreshold:  0.7,
		OxytocinFastMultiplier: 2.0,
		PainDecayMultiplier:    2.0,
		PainFloor:              0.01,
		FatigueRate:            0.001,
		RechargeRate:           1.5,
		MaxElapsed:             3600,
		PlasticityRate:         0.1,
		CortisolResidual:       0.1,
		ReflexThreshold:        0.9,
		MasteryStep:            0.005,
		PlasticityCap:          100,
		EventLogCap:            500,
		ReflectionWindow:       20,
	}
}

// DefaultSkills is the mastery table a fresh engine starts with.
func DefaultSkills() map[string]float64 {
	return map[string]float64{
		"python_coding":      0.5,
		"web_navigation":     0.3,
		"sentiment_analysis": 0.8,
		"system_regulation":  0.6,
		"vocal_synth":        0.7,
	}
}

const (
	maxEnergy      = 100.0
	initialMastery = 0.1
)
