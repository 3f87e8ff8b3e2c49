package repo

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agent-replay/tracecore/internal/store"
	"github.com/agent-replay/tracecore/internal/types"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "traces.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return New(st)
}

func TestIngestTraceMinimalDefaults(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	trace, err := r.IngestTrace(ctx, TraceInput{AgentName: "a"})
	require.NoError(t, err)
	require.Equal(t, types.StatusRunning, trace.Status)
	require.Equal(t, types.TriggerManual, trace.Trigger)
	require.Empty(t, trace.Tags)
	require.Equal(t, types.JSON("{}"), trace.Metadata)
	require.Regexp(t, `^trc_`, trace.ID)

	loaded, err := r.GetTrace(ctx, trace.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Empty(t, loaded.Steps)
	require.Empty(t, loaded.Verdicts)
}

func TestIngestTraceRejectsMissingAgentName(t *testing.T) {
	r := newTestRepo(t)
	_, err := r.IngestTrace(context.Background(), TraceInput{})
	require.Error(t, err)
}

func TestIngestTraceWithStepsAndSnapshot(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	trace, err := r.IngestTrace(ctx, TraceInput{
		AgentName: "a",
		Steps: []StepInput{
			{StepNumber: 1, StepType: types.StepThought, Name: "think"},
			{StepNumber: 2, StepType: types.StepToolCall, Name: "call", Snapshot: &SnapshotInput{TokenCount: 300}},
			{StepNumber: 3, StepType: types.StepOutput, Name: "done"},
		},
	})
	require.NoError(t, err)

	snap, err := r.GetStepSnapshot(ctx, trace.ID, 2)
	require.NoError(t, err)
	require.NotNil(t, snap)
	require.Equal(t, int64(300), snap.TokenCount)

	none, err := r.GetStepSnapshot(ctx, trace.ID, 1)
	require.NoError(t, err)
	require.Nil(t, none)
}

func TestGetTraceByPrefix(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	trace, err := r.IngestTrace(ctx, TraceInput{AgentName: "a"})
	require.NoError(t, err)

	loaded, err := r.GetTrace(ctx, trace.ID[:8])
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, trace.ID, loaded.Trace.ID)
}

func TestAppendStepRejectsNonRunning(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	trace, err := r.IngestTrace(ctx, TraceInput{AgentName: "a"})
	require.NoError(t, err)

	status := types.StatusCompleted
	_, err = r.UpdateTrace(ctx, trace.ID, Patch{Status: &status})
	require.NoError(t, err)

	_, err = r.AppendStep(ctx, trace.ID, StepInput{StepNumber: 1, StepType: types.StepThought, Name: "x"})
	require.Error(t, err)
}

func TestDeleteTraceCascades(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	trace, err := r.IngestTrace(ctx, TraceInput{
		AgentName: "a",
		Steps:     []StepInput{{StepNumber: 1, StepType: types.StepThought, Name: "x"}},
	})
	require.NoError(t, err)

	require.NoError(t, r.DeleteTrace(ctx, trace.ID))

	loaded, err := r.GetTrace(ctx, trace.ID)
	require.NoError(t, err)
	require.Nil(t, loaded)
}

func TestListTracesFilterAndPaginate(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := r.IngestTrace(ctx, TraceInput{AgentName: "agent-a"})
		require.NoError(t, err)
	}
	_, err := r.IngestTrace(ctx, TraceInput{AgentName: "agent-b"})
	require.NoError(t, err)

	items, total, err := r.ListTraces(ctx, Filter{AgentName: "agent-a", Limit: 2})
	require.NoError(t, err)
	require.Equal(t, 3, total)
	require.Len(t, items, 2)
}

func TestListTracesParsesSinceFilter(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	_, err := r.IngestTrace(ctx, TraceInput{AgentName: "a"})
	require.NoError(t, err)

	_, _, err = r.ListTraces(ctx, Filter{Since: "2000-01-01T00:00:00Z"})
	require.NoError(t, err)

	_, _, err = r.ListTraces(ctx, Filter{Since: "not a date"})
	require.Error(t, err)
}

func TestAddPolicyRejectsEmptyPattern(t *testing.T) {
	r := newTestRepo(t)
	_, err := r.AddPolicy(context.Background(), types.Policy{
		Name:         "p1",
		Action:       types.ActionDeny,
		MatchPattern: "{}",
	})
	require.Error(t, err)
}

func TestPolicyCRUD(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	p, err := r.AddPolicy(ctx, types.Policy{
		Name:         "no-deletes",
		Action:       types.ActionDeny,
		MatchPattern: `{"name_contains":"delete"}`,
	})
	require.NoError(t, err)
	require.Regexp(t, `^pol_`, p.ID)

	list, err := r.ListPolicies(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, r.RemovePolicy(ctx, "no-deletes"))

	list, err = r.ListPolicies(ctx)
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestCreateEvalClampsScore(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	trace, err := r.IngestTrace(ctx, TraceInput{AgentName: "a"})
	require.NoError(t, err)

	v, err := r.CreateEval(ctx, trace.ID, EvalInput{
		EvaluatorType: types.EvaluatorRubric,
		EvaluatorName: "custom",
		Score:         1.5,
		Passed:        true,
	})
	require.NoError(t, err)
	require.Equal(t, 1.0, v.Score)
}
