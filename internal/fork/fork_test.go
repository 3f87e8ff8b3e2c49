package fork

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agent-replay/tracecore/internal/repo"
	"github.com/agent-replay/tracecore/internal/resolver"
	"github.com/agent-replay/tracecore/internal/store"
	"github.com/agent-replay/tracecore/internal/types"
)

func newTestFixture(t *testing.T) (*Service, *repo.Repository) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "traces.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	rp := repo.New(st)
	rs := resolver.New(rp)
	return New(st, rs), rp
}

func seedThreeStepTrace(t *testing.T, rp *repo.Repository) *types.Trace {
	t.Helper()
	trace, err := rp.IngestTrace(context.Background(), repo.TraceInput{
		AgentName: "a",
		Steps: []repo.StepInput{
			{StepNumber: 1, StepType: types.StepThought, Name: "one"},
			{StepNumber: 2, StepType: types.StepToolCall, Name: "two", Snapshot: &repo.SnapshotInput{
				Environment: `{"region":"us"}`, TokenCount: 42,
			}},
			{StepNumber: 3, StepType: types.StepOutput, Name: "three"},
		},
	})
	require.NoError(t, err)
	return trace
}

func TestForkCopiesPrefixAndIsRunning(t *testing.T) {
	svc, rp := newTestFixture(t)
	ctx := context.Background()
	trace := seedThreeStepTrace(t, rp)

	result, err := svc.Fork(ctx, trace.ID, 2, nil, nil)
	require.NoError(t, err)
	require.Equal(t, trace.ID, result.OriginalTraceID)
	require.Equal(t, 2, result.ForkedFromStep)
	require.Equal(t, 2, result.StepsCopied)

	forked, err := rp.GetTrace(ctx, result.ForkedTraceID)
	require.NoError(t, err)
	require.Equal(t, types.StatusRunning, forked.Trace.Status)
	require.Equal(t, trace.ID, forked.Trace.ParentTraceID)
	require.Len(t, forked.Steps, 2)
}

func TestForkAppliesEnvironmentOverrideOnlyAtForkPoint(t *testing.T) {
	svc, rp := newTestFixture(t)
	ctx := context.Background()
	trace := seedThreeStepTrace(t, rp)

	env := types.JSON(`{"region":"eu"}`)
	result, err := svc.Fork(ctx, trace.ID, 2, nil, &env)
	require.NoError(t, err)

	snap, err := rp.GetStepSnapshot(ctx, result.ForkedTraceID, 2)
	require.NoError(t, err)
	require.NotNil(t, snap)
	require.Equal(t, env, snap.Environment)
	require.Equal(t, int64(42), snap.TokenCount)
}

func TestForkRejectsStepBeyondMax(t *testing.T) {
	svc, rp := newTestFixture(t)
	ctx := context.Background()
	trace := seedThreeStepTrace(t, rp)

	_, err := svc.Fork(ctx, trace.ID, 10, nil, nil)
	require.Error(t, err)
}

func TestForkRejectsTraceWithNoSteps(t *testing.T) {
	svc, rp := newTestFixture(t)
	ctx := context.Background()

	trace, err := rp.IngestTrace(ctx, repo.TraceInput{AgentName: "a"})
	require.NoError(t, err)

	_, err = svc.Fork(ctx, trace.ID, 1, nil, nil)
	require.Error(t, err)
}
