package diff

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agent-replay/tracecore/internal/types"
)

func step(n int, stepType types.StepType, name, output string) types.Step {
	return types.Step{StepNumber: n, StepType: stepType, Name: name, Input: "{}", Output: types.JSON(output)}
}

func TestCompareIdenticalTraces(t *testing.T) {
	steps := []types.Step{
		step(1, types.StepThought, "think", ""),
		step(2, types.StepToolCall, "call", `{"x":1}`),
	}
	left := &types.ResolvedTrace{Steps: steps}
	right := &types.ResolvedTrace{Steps: append([]types.Step{}, steps...)}

	d := Compare(left, right, ByteEqual)
	require.Nil(t, d.DivergenceStep)
	require.Empty(t, d.Diffs)
}

func TestCompareDivergesOnStepType(t *testing.T) {
	left := &types.ResolvedTrace{Steps: []types.Step{
		step(1, types.StepThought, "think", ""),
		step(2, types.StepToolCall, "call", ""),
	}}
	right := &types.ResolvedTrace{Steps: []types.Step{
		step(1, types.StepThought, "think", ""),
		step(2, types.StepLLMCall, "call", ""),
	}}

	d := Compare(left, right, ByteEqual)
	require.NotNil(t, d.DivergenceStep)
	require.Equal(t, 2, *d.DivergenceStep)
	require.Equal(t, "step_type", d.Diffs[0].Field)
}

func TestCompareMissingSteps(t *testing.T) {
	left := &types.ResolvedTrace{Steps: []types.Step{step(1, types.StepThought, "think", "")}}
	right := &types.ResolvedTrace{Steps: []types.Step{
		step(1, types.StepThought, "think", ""),
		step(2, types.StepOutput, "done", ""),
	}}

	d := Compare(left, right, ByteEqual)
	require.Len(t, d.Diffs, 1)
	require.Equal(t, "missing_left", d.Diffs[0].Field)
}

func TestCompareCanonicalEquality(t *testing.T) {
	left := &types.ResolvedTrace{Steps: []types.Step{
		step(1, types.StepOutput, "done", `{"a":1,"b":2}`),
	}}
	right := &types.ResolvedTrace{Steps: []types.Step{
		step(1, types.StepOutput, "done", `{"b":2,"a":1}`),
	}}

	byteDiff := Compare(left, right, ByteEqual)
	require.NotEmpty(t, byteDiff.Diffs)

	canonicalDiff := Compare(left, right, CanonicalEqual)
	require.Empty(t, canonicalDiff.Diffs)
}
