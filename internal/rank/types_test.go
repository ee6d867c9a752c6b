package rank

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSortedHistory_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	history := []HistoryPoint{
		{CheckedAt: base.Add(2 * time.Hour), Position: Position(1)},
		{CheckedAt: base, Position: nil},
		{CheckedAt: base.Add(time.Hour), Position: Position(7)},
	}

	sorted := SortedHistory(history)

	require.Equal(t, base, sorted[0].CheckedAt)
	require.Equal(t, base.Add(2*time.Hour), sorted[2].CheckedAt)
	// Original order preserved.
	require.Equal(t, base.Add(2*time.Hour), history[0].CheckedAt)
}

func TestValidCountry(t *testing.T) {
	t.Parallel()

	require.True(t, ValidCountry("USA"))
	require.True(t, ValidCountry("Türkiye"))
	require.False(t, ValidCountry("usa"))
	require.False(t, ValidCountry("Mars"))
	require.False(t, ValidCountry(""))
}
