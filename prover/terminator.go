package prover

import "sync/atomic"

// TerminationFlag tells every worker to stop. Once set it stays set.
type TerminationFlag struct {
	set  atomic.Bool
	done chan struct{}
}

func NewTerminationFlag() *TerminationFlag {
	return &TerminationFlag{done: make(chan struct{})}
}

// Set raises the flag. It reports whether this call was the one that raised it.
func (f *TerminationFlag) Set() bool {
	if !f.set.CompareAndSwap(false, true) {
		return false
	}
	close(f.done)
	return true
}

func (f *TerminationFlag) IsSet() bool {
	return f.set.Load()
}

// Done is closed once the flag is raised.
func (f *TerminationFlag) Done() <-chan struct{} {
	return f.done
}

// State is shared by the orchestrator and every proving loop.
type State struct {
	Proofs     *ProofCounter
	Terminator *TerminationFlag
}

func NewState() *State {
	return &State{
		Proofs:     new(ProofCounter),
		Terminator: NewTerminationFlag(),
	}
}
