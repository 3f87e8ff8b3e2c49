package judge

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

type fakeJudge struct {
	reply Reply
	err   error
	calls int
}

func (f *fakeJudge) Call(ctx context.Context, req Request) (Reply, error) {
	f.calls++
	return f.reply, f.err
}

func newTestFixture(t *testing.T) (*repo.Repository, *resolver.Resolver) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "traces.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	rp := repo.New(st)
	return rp, resolver.New(rp)
}

func TestRunAiEvalSkipsWhenNotApplicable(t *testing.T) {
	rp, rs := newTestFixture(t)
	ctx := context.Background()

	trace, err := rp.IngestTrace(ctx, repo.TraceInput{AgentName: "a"})
	require.NoError(t, err)

	fj := &fakeJudge{}
	svc := New(rs, rp, fj)

	verdict, err := svc.RunAiEval(ctx, trace.ID, RootCause(), Options{})
	require.NoError(t, err)
	require.Equal(t, 1.0, verdict.Score)
	require.True(t, verdict.Passed)
	require.Equal(t, 0, fj.calls)
}

func TestRunAiEvalInvokesJudgeWhenApplicable(t *testing.T) {
	rp, rs := newTestFixture(t)
	ctx := context.Background()

	trace, err := rp.IngestTrace(ctx, repo.TraceInput{
		AgentName: "a",
		Error:     "boom",
		Steps:     []repo.StepInput{{StepNumber: 1, StepType: types.StepError, Name: "fail"}},
	})
	require.NoError(t, err)

	fj := &fakeJudge{reply: Reply{
		Text:         `{"root_cause":"timeout","confidence":0.9,"severity":"high"}`,
		Model:        "claude-3-5-haiku-20241022",
		Provider:     "anthropic",
		InputTokens:  100,
		OutputTokens: 50,
	}}
	svc := New(rs, rp, fj)

	verdict, err := svc.RunAiEval(ctx, trace.ID, RootCause(), Options{})
	require.NoError(t, err)
	require.Equal(t, 1, fj.calls)
	require.Equal(t, 0.9, verdict.Score)
	require.True(t, verdict.Passed)
	require.Contains(t, string(verdict.Details), "anthropic")
}

func TestRunAiEvalParseFailureProducesZeroVerdict(t *testing.T) {
	rp, rs := newTestFixture(t)
	ctx := context.Background()

	trace, err := rp.IngestTrace(ctx, repo.TraceInput{
		AgentName: "a",
		Error:     "boom",
	})
	require.NoError(t, err)

	fj := &fakeJudge{reply: Reply{Text: "not json"}}
	svc := New(rs, rp, fj)

	verdict, err := svc.RunAiEval(ctx, trace.ID, RootCause(), Options{})
	require.NoError(t, err)
	require.Equal(t, 0.0, verdict.Score)
	require.False(t, verdict.Passed)
	require.Contains(t, string(verdict.Details), "parse_error")
}
