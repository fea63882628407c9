package prover_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spacemeshos/puzzle-prover/prover"
)

func TestRateHistoryBack(t *testing.T) {
	h := prover.NewRateHistory()
	_, ok := h.Back(1)
	require.False(t, ok)

	h.Record(10)
	h.Record(20)
	h.Record(30)
	require.Equal(t, 3, h.Len())

	v, ok := h.Back(1)
	require.True(t, ok)
	require.Equal(t, uint64(30), v)

	v, ok = h.Back(3)
	require.True(t, ok)
	require.Equal(t, uint64(10), v)

	_, ok = h.Back(4)
	require.False(t, ok)
	_, ok = h.Back(0)
	require.False(t, ok)
}

func TestRateHistoryEvictsOldest(t *testing.T) {
	h := prover.NewRateHistory()
	for i := 1; i <= prover.HistorySize+5; i++ {
		h.Record(uint64(i))
	}
	require.Equal(t, prover.HistorySize, h.Len())

	newest, ok := h.Back(1)
	require.True(t, ok)
	require.Equal(t, uint64(prover.HistorySize+5), newest)

	oldest, ok := h.Back(prover.HistorySize)
	require.True(t, ok)
	require.Equal(t, uint64(6), oldest)

	_, ok = h.Back(prover.HistorySize + 1)
	require.False(t, ok)
}
