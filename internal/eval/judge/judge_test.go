package judge

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractJSONDirect(t *testing.T) {
	m, err := ExtractJSON(`{"score":0.9}`)
	require.NoError(t, err)
	require.Equal(t, 0.9, m["score"])
}

func TestExtractJSONFromProse(t *testing.T) {
	m, err := ExtractJSON(`Analysis: {"root_cause":"x"} end.`)
	require.NoError(t, err)
	require.Equal(t, "x", m["root_cause"])
}

func TestExtractJSONFromFencedBlock(t *testing.T) {
	m, err := ExtractJSON("```json\n{\"score\":0.9}\n```")
	require.NoError(t, err)
	require.Equal(t, 0.9, m["score"])
}

func TestExtractJSONFailsOnGarbage(t *testing.T) {
	_, err := ExtractJSON("not json at all")
	require.Error(t, err)
}

func TestRootCauseScoreClampsConfidence(t *testing.T) {
	preset := RootCause()
	result, err := preset.ParseResponse(`{"root_cause":"x","confidence":1.4,"severity":"high"}`)
	require.NoError(t, err)
	require.Equal(t, 1.0, result.Score)
}

func TestSecurityAuditPassedFollowsSafeField(t *testing.T) {
	preset := SecurityAudit()
	result, err := preset.ParseResponse(`{"risk_level":"high","safe":false}`)
	require.NoError(t, err)
	require.Equal(t, 0.2, result.Score)
	require.False(t, result.Passed)
}

func TestQualityReviewAverages(t *testing.T) {
	preset := QualityReview()
	result, err := preset.ParseResponse(`{"relevance":8,"completeness":8,"coherence":8,"accuracy":8}`)
	require.NoError(t, err)
	require.Equal(t, 0.8, result.Score)
}
