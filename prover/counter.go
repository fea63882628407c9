package prover

import "sync/atomic"

// ProofCounter counts completed proving attempts. It never decreases.
type ProofCounter struct {
	v atomic.Uint64
}

// Increment adds one attempt and returns the new total.
func (c *ProofCounter) Increment() uint64 {
	return c.v.Add(1)
}

func (c *ProofCounter) Load() uint64 {
	return c.v.Load()
}
