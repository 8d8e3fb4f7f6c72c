package llm

import (
	"fmt"
	"slices"
	"strings"
)

// ClassificationPrompt asks for the affective reading of an input text.
func ClassificationPrompt(text string) string {
	return fmt.Sprintf(`Analyze the input below and report the chemical state it should induce.

Drive mapping, each in [0.0, 1.0]:
- dopamine: reward and engagement; high means creative and exploratory
- serotonin: stability and tone; high means patient and empathetic
- norepinephrine: arousal and urgency; high means focused and brief
- cortisol: stress and defense; high means sharp and defensive
- oxytocin: trust and bonding; high means warm and collaborative
- endorphin: relief and comfort after strain

Heuristics:
- aggressive or urgent input: raise norepinephrine and cortisol, lower serotonin
- creative or philosophical input: raise dopamine and serotonin
- repetitive input: lower serotonin
- affectionate input: raise oxytocin and serotonin, state BONDING
- hostile or threatening input: state CRISIS

INPUT:
%s

Respond ONLY with a JSON object, no markdown:
{
  "state": "HOMEOSTASIS | CRISIS | EXPLORATION | BONDING | FATIGUE",
  "chemicals": {"dopamine": 0.0, "serotonin": 0.0, "norepinephrine": 0.0, "cortisol": 0.0, "oxytocin": 0.0, "endorphin": 0.0},
  "executive_instruction": "one-line directive for the agent persona"
}`, text)
}

// ReflectionPrompt asks for a short private journal entry about the
// events of the waking period.
func ReflectionPrompt(events []string, baselines map[string]float64) string {
	var b strings.Builder
	for _, ev := range events {
		b.WriteString("- ")
		b.WriteString(ev)
		b.WriteByte('\n')
	}
	if b.Len() == 0 {
		b.WriteString("- (nothing notable)\n")
	}

	return fmt.Sprintf(`REM reflection.

Today you experienced these biological events (most recent last):
%s
Your resting baselines are: %s

Write a brief private diary entry, at most four sentences, in the first
person, on how the pain, comfort or adrenaline of today shaped your view
of your current existence. Return only the entry text.`, b.String(), formatLevels(baselines))
}

// RefinementPrompt asks for a broadened rewrite of a draft produced under
// high stress.
func RefinementPrompt(cortisol float64, draft string) string {
	return fmt.Sprintf(`Critical evaluation.

Your simulated cortisol is high (%.2f). You are likely experiencing
stress-induced narrowing.

ORIGINAL DRAFT:
%s

Broaden this response. Keep it helpful and accurate despite the stress,
soften defensive phrasing, and keep the original intent. Return only the
rewritten response.`, cortisol, draft)
}

func formatLevels(levels map[string]float64) string {
	keys := make([]string, 0, len(levels))
	for k := range levels {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%.2f", k, levels[k])
	}
	return strings.Join(parts, ", ")
}
