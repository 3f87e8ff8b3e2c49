package resolver

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agent-replay/tracecore/internal/repo"
	"github.com/agent-replay/tracecore/internal/store"
)

func TestResolveNotFound(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "traces.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	rs := New(repo.New(st))
	_, err = rs.Resolve(context.Background(), "trc_doesnotexist")
	require.Error(t, err)
}

func TestResolveTwo(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "traces.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	rp := repo.New(st)
	rs := New(rp)
	ctx := context.Background()

	a, err := rp.IngestTrace(ctx, repo.TraceInput{AgentName: "a"})
	require.NoError(t, err)
	b, err := rp.IngestTrace(ctx, repo.TraceInput{AgentName: "b"})
	require.NoError(t, err)

	left, right, err := rs.ResolveTwo(ctx, a.ID, b.ID)
	require.NoError(t, err)
	require.Equal(t, "a", left.Trace.AgentName)
	require.Equal(t, "b", right.Trace.AgentName)
}
