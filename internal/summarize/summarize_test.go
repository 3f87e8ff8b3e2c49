package summarize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agent-replay/tracecore/internal/diff"
	"github.com/agent-replay/tracecore/internal/types"
)

func TestTraceHeaderAndBudget(t *testing.T) {
	durationMS := int64(1500)
	trace := &types.ResolvedTrace{
		Trace: types.Trace{
			AgentName:    "reviewer",
			AgentVersion: "2",
			Status:       types.StatusCompleted,
			Input:        `{"q":"hi"}`,
			Output:       `{"a":"ok"}`,
			Totals:       types.Totals{DurationMS: &durationMS},
			Tags:         []string{"nightly"},
		},
		Steps: []types.Step{
			{StepNumber: 1, StepType: types.StepThought, Name: "think"},
			{StepNumber: 2, StepType: types.StepOutput, Name: "done", Output: `{"a":"ok"}`},
		},
	}

	s := Trace(trace, 0)
	require.Contains(t, s.Text, "TRACE: reviewer v2 [COMPLETED]")
	require.Contains(t, s.Text, "INPUT:")
	require.Contains(t, s.Text, "OUTPUT:")
	require.Contains(t, s.Text, "TAGS: nightly")
	require.Greater(t, s.EstimatedTokens, 0)
}

func TestTraceBudgetFiltersToPriorityStepsOnly(t *testing.T) {
	var steps []types.Step
	for i := 1; i <= 200; i++ {
		steps = append(steps, types.Step{StepNumber: i, StepType: types.StepThought, Name: "filler step with a longer name to eat budget"})
	}
	steps = append(steps, types.Step{StepNumber: 201, StepType: types.StepOutput, Name: "final output step"})

	trace := &types.ResolvedTrace{
		Trace: types.Trace{AgentName: "a", Status: types.StatusCompleted, Input: "{}"},
		Steps: steps,
	}

	s := Trace(trace, 50) // tiny budget forces the priority-only path
	require.True(t, strings.Contains(s.Text, "[output] final output step") || strings.Contains(s.Text, "more steps omitted"))
}

func TestDiffForLLMListsUpToFifteen(t *testing.T) {
	left := &types.ResolvedTrace{Trace: types.Trace{AgentName: "a", Status: types.StatusCompleted, Input: "{}"}}
	right := &types.ResolvedTrace{Trace: types.Trace{AgentName: "b", Status: types.StatusFailed, Input: "{}"}}

	step := 1
	var stepDiffs []diff.StepDiff
	for i := 0; i < 20; i++ {
		lv, rv := "a", "b"
		stepDiffs = append(stepDiffs, diff.StepDiff{StepNumber: step + i, Field: "name", LeftValue: &lv, RightValue: &rv})
	}
	d := diff.Diff{LeftStepCount: 20, RightStepCount: 20, DivergenceStep: &step, Diffs: stepDiffs}

	text := DiffForLLM(d, left, right)
	require.Contains(t, text, "... and 5 more")
	require.Contains(t, text, "DIVERGENCE STEP: 1")
}
