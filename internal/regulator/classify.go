package regulator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lazypower/homeostat/internal/engine"
	"github.com/lazypower/homeostat/internal/llm"
)

// Labels the classifier may return. Anything else is passed through as-is.
const (
	LabelHomeostasis = "HOMEOSTASIS"
	LabelCrisis      = "CRISIS"
	LabelExploration = "EXPLORATION"
	LabelBonding     = "BONDING"
	LabelFatigue     = "FATIGUE"
)

// DefaultDirective is used whenever no classification is available.
const DefaultDirective = "Proceed with standard processing."

// Classification is the oracle's reading of an input.
type Classification struct {
	Label     string         `json:"label"`
	Deltas    []engine.Delta `json:"deltas"`
	Directive string         `json:"directive"`
}

// Homeostasis is the fallback classification: no change, standard directive.
func Homeostasis() Classification {
	return Classification{Label: LabelHomeostasis, Directive: DefaultDirective}
}

// Classifier maps input text to a Classification.
type Classifier interface {
	Classify(ctx context.Context, text string) (Classification, error)
}

// Reflector writes the journal text for a sleep cycle.
type Reflector interface {
	Reflect(ctx context.Context, events []string, baselines map[string]float64) (string, error)
}

// LLMClassifier classifies through a language model.
type LLMClassifier struct {
	Client llm.Client
}

// bodyKeys are reported by some models alongside the drives; the body is
// not the classifier's to set.
var bodyKeys = map[string]bool{
	"atp_energy":     true,
	"atp":            true,
	"pain_vividness": true,
	"pain":           true,
}

type classifierReply struct {
	State       string             `json:"state"`
	Chemicals   map[string]float64 `json:"chemicals"`
	Instruction string             `json:"executive_instruction"`
}

func (c *LLMClassifier) Classify(ctx context.Context, text string) (Classification, error) {
	resp, err := c.Client.Complete(ctx, llm.ClassificationPrompt(text))
	if err != nil {
		return Classification{}, fmt.Errorf("classify: %w", err)
	}
	return parseClassification(resp.Content)
}

func parseClassification(content string) (Classification, error) {
	var reply classifierReply
	if err := json.Unmarshal([]byte(extractJSON(content)), &reply); err != nil {
		return Classification{}, fmt.Errorf("parse classification: %w", err)
	}

	out := Classification{
		Label:     strings.ToUpper(strings.TrimSpace(reply.State)),
		Directive: strings.TrimSpace(reply.Instruction),
	}
	if out.Label == "" {
		out.Label = LabelHomeostasis
	}
	if out.Directive == "" {
		out.Directive = DefaultDirective
	}
	// Stable order keeps event payloads and tests deterministic.
	for _, c := range engine.Chemicals() {
		if v, ok := reply.Chemicals[c.String()]; ok {
			out.Deltas = append(out.Deltas, engine.Delta{Drive: c.String(), Value: v, Mode: engine.Absolute})
		}
	}
	for k, v := range reply.Chemicals {
		if bodyKeys[strings.ToLower(k)] {
			continue
		}
		if _, ok := engine.ParseChemical(strings.ToLower(k)); ok {
			continue
		}
		out.Deltas = append(out.Deltas, engine.Delta{Drive: k, Value: v, Mode: engine.Absolute})
	}
	return out, nil
}

// extractJSON strips markdown fences and any prose around the outermost
// JSON object.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+3:]
		s = strings.TrimPrefix(s, "json")
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return strings.TrimSpace(s)
}

// LLMReflector writes journal entries through a language model.
type LLMReflector struct {
	Client llm.Client
}

func (r *LLMReflector) Reflect(ctx context.Context, events []string, baselines map[string]float64) (string, error) {
	resp, err := r.Client.Complete(ctx, llm.ReflectionPrompt(events, baselines))
	if err != nil {
		return "", fmt.Errorf("reflect: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}
