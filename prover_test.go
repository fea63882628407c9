package main

import (
	"os"
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spacemeshos/puzzle-prover/prover"
)

func TestStartupRejectsTinyStackSize(t *testing.T) {
	const limit = 512 << 20
	orig := debug.SetMaxStack(limit)
	t.Cleanup(func() { debug.SetMaxStack(orig) })

	args := os.Args
	t.Cleanup(func() { os.Args = args })
	os.Args = []string{"prover", "--proverdir", t.TempDir(), "--stack-size", "1KB"}

	err := proverMain()
	require.ErrorIs(t, err, prover.ErrStackTooSmall)
	require.Equal(t, limit, debug.SetMaxStack(limit))
}
