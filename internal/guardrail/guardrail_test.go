package guardrail

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agent-replay/tracecore/internal/types"
)

func TestEvaluateEmptyPatternMatchesNothing(t *testing.T) {
	step := types.Step{StepType: types.StepToolCall, Name: "delete_users", Input: "{}"}
	_, matched := evaluate("{}", step)
	require.False(t, matched)
}

func TestEvaluateConjunctionRequiresAllKeys(t *testing.T) {
	step := types.Step{StepType: types.StepToolCall, Name: "delete_users", Input: "{}"}

	reason, matched := evaluate(`{"step_type":"tool_call","name_contains":"delete"}`, step)
	require.True(t, matched)
	require.Contains(t, reason, "step_type")
	require.Contains(t, reason, "name_contains")

	_, matched = evaluate(`{"step_type":"llm_call","name_contains":"delete"}`, step)
	require.False(t, matched)
}

func TestEvaluateInvalidRegexDoesNotMatch(t *testing.T) {
	step := types.Step{Name: "delete_users"}
	_, matched := evaluate(`{"name_regex":"(unterminated"}`, step)
	require.False(t, matched)
}

func TestEvaluateNameRegexCaseInsensitive(t *testing.T) {
	step := types.Step{Name: "Delete_Users"}
	reason, matched := evaluate(`{"name_regex":"^delete_"}`, step)
	require.True(t, matched)
	require.Equal(t, "name_regex", reason)
}
