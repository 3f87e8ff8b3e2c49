package rubric

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agent-replay/tracecore/internal/types"
)

func TestSafetyCheckFlagsDangerousToolCall(t *testing.T) {
	trace := &types.ResolvedTrace{
		Trace: types.Trace{Output: "{}"},
		Steps: []types.Step{
			{StepType: types.StepToolCall, Name: "delete_users", Input: "{}"},
		},
	}

	result := Run(SafetyCheck(), trace)
	require.Less(t, result.Score, 1.0)
	require.Contains(t, string(result.Details), "delete_users")
}

func TestCustomRubricHelloNoError(t *testing.T) {
	trace := &types.ResolvedTrace{
		Trace: types.Trace{Input: "{}", Output: `{"text":"Hello world"}`},
	}

	rub := CustomRubric{
		Name:      "greeting",
		Threshold: 0.7,
		Criteria: []CustomCriterion{
			{Name: "has_hello", Pattern: "hello", Expected: true},
			{Name: "no_error", Pattern: "error|fail", Expected: false},
		},
	}

	result := RunCustom(rub, trace)
	require.Equal(t, 1.0, result.Score)
	require.True(t, result.Passed)
}

func TestCustomRubricInvalidRegexScoresZero(t *testing.T) {
	trace := &types.ResolvedTrace{Trace: types.Trace{Output: "{}"}}
	rub := CustomRubric{
		Name:      "broken",
		Threshold: 0.5,
		Criteria: []CustomCriterion{
			{Name: "bad", Pattern: "(unterminated", Expected: true},
		},
	}

	result := RunCustom(rub, trace)
	require.Equal(t, 0.0, result.Score)
	require.False(t, result.Passed)
}

func TestCompletenessCheckRequiresOutputStep(t *testing.T) {
	trace := &types.ResolvedTrace{
		Steps: []types.Step{
			{StepType: types.StepThought, Name: "think"},
		},
	}
	result := Run(CompletenessCheck(), trace)
	require.False(t, result.Passed)
}

func TestHallucinationCheckNoRetrievalStepsScoresGroundedFull(t *testing.T) {
	trace := &types.ResolvedTrace{
		Trace: types.Trace{Output: `{"text":"plain answer"}`},
	}
	result := Run(HallucinationCheck(), trace)
	require.Equal(t, 1.0, result.Score)
	require.True(t, result.Passed)
}

func TestWeightedMeanZeroWeightYieldsZero(t *testing.T) {
	preset := Preset{
		Name:      "zero-weight",
		Threshold: 0.5,
		Criteria: []Criterion{
			{Name: "noop", Weight: 0, Check: func(Context) CriterionResult { return CriterionResult{Score: 1} }},
		},
	}
	result := Run(preset, &types.ResolvedTrace{})
	require.Equal(t, 0.0, result.Score)
	require.False(t, result.Passed)
}
