package queryfilter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseSinceStrictRFC3339(t *testing.T) {
	got, err := ParseSince("2026-01-15T00:00:00Z")
	require.NoError(t, err)
	require.Equal(t, 2026, got.Year())
}

func TestParseSinceRelative(t *testing.T) {
	got, err := ParseSince("yesterday")
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().AddDate(0, 0, -1), got, 36*time.Hour)
}

func TestParseSinceRejectsEmpty(t *testing.T) {
	_, err := ParseSince("")
	require.Error(t, err)
}
