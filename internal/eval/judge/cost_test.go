package judge

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agent-replay/tracecore/internal/types"
)

func TestEstimateCostUsesOutputBudgetOf1024(t *testing.T) {
	trace := &types.ResolvedTrace{Trace: types.Trace{AgentName: "a", Input: "{}"}}

	result := EstimateCost(trace, []string{"ai-root-cause", "ai-quality-review"}, "claude-3-5-haiku")
	require.Len(t, result.Breakdown, 2)
	for _, b := range result.Breakdown {
		require.Equal(t, int64(1024), b.OutputTokens)
	}
	require.Greater(t, result.TotalEstimatedUSD, 0.0)
}

func TestEstimateCostFallsBackToDefaultRate(t *testing.T) {
	trace := &types.ResolvedTrace{Trace: types.Trace{AgentName: "a", Input: "{}"}}
	result := EstimateCost(trace, []string{"ai-optimization"}, "unknown-model")
	require.Len(t, result.Breakdown, 1)
	require.Greater(t, result.Breakdown[0].EstimatedUSD, 0.0)
}

func TestPriceTokensMatchesKnownRate(t *testing.T) {
	got := PriceTokens("claude-3-5-haiku", 1_000_000, 1_000_000)
	require.InDelta(t, 0.80+4.00, got, 1e-9)
}

func TestPriceTokensFallsBackToDefaultRate(t *testing.T) {
	got := PriceTokens("unknown-model", 1_000_000, 0)
	require.InDelta(t, defaultRate.InputUSDPer1M, got, 1e-9)
}
