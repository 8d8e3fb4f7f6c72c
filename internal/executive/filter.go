// Package executive rewrites drafts produced under high stress.
package executive

import (
	"context"
	"log/slog"
	"strings"

	"github.com/lazypower/homeostat/internal/engine"
	"github.com/lazypower/homeostat/internal/llm"
	"github.com/lazypower/homeostat/internal/telemetry"
)

// DefaultThreshold is the cortisol level above which drafts are refined.
const DefaultThreshold = 0.7

// Filter broadens drafts when cortisol is high. A nil Client passes every
// draft through unchanged.
type Filter struct {
	Client    llm.Client
	Threshold float64
}

// New returns a filter with the given threshold, or DefaultThreshold when
// threshold is not positive.
func New(client llm.Client, threshold float64) *Filter {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Filter{Client: client, Threshold: threshold}
}

// Result is the outcome of one Refine call.
type Result struct {
	Text     string  `json:"text"`
	Refined  bool    `json:"refined"`
	Cortisol float64 `json:"cortisol"`
}

// Refine returns the draft unchanged unless the manifest's cortisol is above
// the threshold, in which case the oracle is asked once for a broadened
// rewrite. An empty or failed rewrite falls back to the draft.
//
// The gate reads the manifest's two-decimal cortisol, the same figure the
// agent and the refinement prompt see: a raw 0.704 reads 0.70 and passes
// through at the default threshold.
func (f *Filter) Refine(ctx context.Context, draft string, m engine.Manifest) Result {
	cortisol := m.Level(engine.Cortisol)
	res := Result{Text: draft, Cortisol: cortisol}
	if f.Client == nil || cortisol <= f.Threshold {
		return res
	}

	resp, err := f.Client.Complete(ctx, llm.RefinementPrompt(cortisol, draft))
	telemetry.RecordOracle("refine", err)
	if err != nil {
		slog.Warn("refinement failed, keeping draft", "err", err)
		return res
	}
	if text := strings.TrimSpace(resp.Content); text != "" {
		res.Text = text
		res.Refined = true
	}
	return res
}
