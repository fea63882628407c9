package puzzle

import (
	"fmt"
	"sync"

	"github.com/spacemeshos/puzzle-prover/shared"
)

// powPuzzle proves by hashing epoch || address || nonce.
// Hashers are not thread-safe, so every attempt borrows one from a pool.
type powPuzzle struct {
	algo    shared.HashAlgo
	hashers sync.Pool
}

type pooledHasher struct {
	epoch   shared.EpochHash
	address shared.Address
	hasher  *shared.PowHasher
}

func NewPowPuzzle(algo shared.HashAlgo) (Puzzle, error) {
	if err := algo.Validate(); err != nil {
		return nil, err
	}
	return &powPuzzle{algo: algo}, nil
}

func (p *powPuzzle) String() string {
	return fmt.Sprintf("pow(%s)", p.algo)
}

func (p *powPuzzle) hasher(epoch shared.EpochHash, address shared.Address) (*pooledHasher, error) {
	if h, ok := p.hashers.Get().(*pooledHasher); ok && h.epoch == epoch && h.address == address {
		return h, nil
	}
	hasher, err := shared.NewPowHasher(p.algo, epoch[:], address[:])
	if err != nil {
		return nil, err
	}
	return &pooledHasher{epoch: epoch, address: address, hasher: hasher}, nil
}

func (p *powPuzzle) Prove(epoch shared.EpochHash, address shared.Address, nonce uint64) (*Solution, error) {
	h, err := p.hasher(epoch, address)
	if err != nil {
		return nil, fmt.Errorf("preparing hasher: %w", err)
	}
	defer p.hashers.Put(h)

	digest, err := h.hasher.Hash(nonce, nil)
	if err != nil {
		return nil, fmt.Errorf("hashing nonce %d: %w", nonce, err)
	}
	return &Solution{
		Epoch:   epoch,
		Address: address,
		Nonce:   nonce,
		Digest:  digest,
	}, nil
}
