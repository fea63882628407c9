// Package puzzle defines the proving capability the prover invokes on every attempt.
package puzzle

import (
	"github.com/spacemeshos/puzzle-prover/shared"
)

//go:generate mockgen -package mocks -destination mocks/puzzle.go . Puzzle

// Puzzle is a puzzle instance shared by every worker.
// Implementations must be safe for concurrent use.
type Puzzle interface {
	// Prove runs a single proving attempt for the given nonce.
	Prove(epoch shared.EpochHash, address shared.Address, nonce uint64) (*Solution, error)
}
