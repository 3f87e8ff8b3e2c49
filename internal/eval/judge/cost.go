package judge

import (
	"github.com/agent-replay/tracecore/internal/summarize"
	"github.com/agent-replay/tracecore/internal/types"
)

// Rate is a model's per-million-token pricing.
type Rate struct {
	InputUSDPer1M  float64
	OutputUSDPer1M float64
}

// rateTable is a fixed registry of known judge model prices (spec.md
// §4.6.2's estimateAiEvalCost). Figures are illustrative list prices, not
// live-fetched.
var rateTable = map[string]Rate{
	"claude-opus-4-5":    {InputUSDPer1M: 5.00, OutputUSDPer1M: 25.00},
	"claude-sonnet-4-5":  {InputUSDPer1M: 3.00, OutputUSDPer1M: 15.00},
	"claude-haiku-4-5":   {InputUSDPer1M: 1.00, OutputUSDPer1M: 5.00},
	"claude-3-5-sonnet":  {InputUSDPer1M: 3.00, OutputUSDPer1M: 15.00},
	"claude-3-5-haiku":   {InputUSDPer1M: 0.80, OutputUSDPer1M: 4.00},
}

// defaultRate is used for a model name absent from rateTable, so cost
// estimation degrades rather than fails on an unrecognized model.
var defaultRate = Rate{InputUSDPer1M: 3.00, OutputUSDPer1M: 15.00}

func rateFor(model string) Rate {
	if r, ok := rateTable[model]; ok {
		return r
	}
	return defaultRate
}

// PriceTokens prices an actual (rather than estimated) token count against
// model's rate, the same table estimateAiEvalCost uses, so a LanguageJudge
// adapter can report a real cost comparable to the pre-call estimate.
func PriceTokens(model string, inputTokens, outputTokens int64) float64 {
	rate := rateFor(model)
	return float64(inputTokens)/1_000_000*rate.InputUSDPer1M + float64(outputTokens)/1_000_000*rate.OutputUSDPer1M
}

// CostBreakdown is one preset's estimated cost within an EstimateResult.
type CostBreakdown struct {
	Preset          string
	InputTokens     int64
	OutputTokens    int64
	EstimatedUSD    float64
}

// EstimateResult is estimateAiEvalCost's return value.
type EstimateResult struct {
	TotalEstimatedUSD float64
	Breakdown         []CostBreakdown
}

// EstimateCost implements estimateAiEvalCost(trace, presets, model)
// (spec.md §4.6.2): for each preset, input_tokens = summarized token
// estimate + 200, output_tokens = 1024, priced against model's rate.
func EstimateCost(trace *types.ResolvedTrace, presetNames []string, model string) EstimateResult {
	summary := summarize.Trace(trace, 0)
	rate := rateFor(model)

	var total float64
	breakdown := make([]CostBreakdown, 0, len(presetNames))
	for _, name := range presetNames {
		inputTokens := int64(summary.EstimatedTokens) + 200
		outputTokens := int64(1024)
		cost := float64(inputTokens)/1_000_000*rate.InputUSDPer1M + float64(outputTokens)/1_000_000*rate.OutputUSDPer1M
		total += cost
		breakdown = append(breakdown, CostBreakdown{
			Preset:       name,
			InputTokens:  inputTokens,
			OutputTokens: outputTokens,
			EstimatedUSD: cost,
		})
	}

	return EstimateResult{TotalEstimatedUSD: total, Breakdown: breakdown}
}
