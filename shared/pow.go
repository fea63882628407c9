package shared

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"math"

	"github.com/c0mm4nd/go-ripemd"
	"github.com/spacemeshos/sha256-simd"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/scrypt"
)

var ErrUnknownHash = errors.New("unknown puzzle hash")

// HashAlgo names the digest used to evaluate a puzzle attempt.
type HashAlgo string

const (
	Ripemd256 HashAlgo = "ripemd256"
	Blake3    HashAlgo = "blake3"
	Sha256    HashAlgo = "sha256"
	Scrypt    HashAlgo = "scrypt"
)

// HashAlgos lists every supported algorithm.
var HashAlgos = []HashAlgo{Ripemd256, Blake3, Sha256, Scrypt}

const ( // scrypt params
	scryptN = 1024
	scryptR = 1
	scryptP = 1
	scryptK = 32
)

// UnmarshalFlag implements flags.Unmarshaler.
func (a *HashAlgo) UnmarshalFlag(value string) error {
	algo := HashAlgo(value)
	if err := algo.Validate(); err != nil {
		return err
	}
	*a = algo
	return nil
}

func (a HashAlgo) Validate() error {
	for _, known := range HashAlgos {
		if a == known {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownHash, string(a))
}

type digestFunc func(input, output []byte) ([]byte, error)

func streamDigest(h hash.Hash) digestFunc {
	return func(input, output []byte) ([]byte, error) {
		h.Reset()
		h.Write(input)
		return h.Sum(output), nil
	}
}

func scryptDigest(prefixLen int) digestFunc {
	return func(input, output []byte) ([]byte, error) {
		key, err := scrypt.Key(input, input[:prefixLen], scryptN, scryptR, scryptP, scryptK)
		if err != nil {
			return nil, err
		}
		return append(output, key...), nil
	}
}

// PowHasher evaluates H(inputs || nonce) for a fixed set of inputs.
//
// ⚠️ A PowHasher is NOT thread-safe; every worker needs its own instance.
type PowHasher struct {
	digest digestFunc
	input  []byte
}

func NewPowHasher(algo HashAlgo, inputs ...[]byte) (*PowHasher, error) {
	p := &PowHasher{input: []byte{}}
	for _, in := range inputs {
		p.input = append(p.input, in...)
	}
	prefixLen := len(p.input)
	p.input = append(p.input, make([]byte, 8)...) // placeholder for nonce

	switch algo {
	case Ripemd256:
		p.digest = streamDigest(ripemd.New256())
	case Blake3:
		p.digest = streamDigest(blake3.New())
	case Sha256:
		p.digest = streamDigest(sha256.New())
	case Scrypt:
		p.digest = scryptDigest(prefixLen)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownHash, string(algo))
	}
	return p, nil
}

// Hash appends the digest for the given nonce to output.
func (p *PowHasher) Hash(nonce uint64, output []byte) ([]byte, error) {
	nonceBytes := p.input[len(p.input)-8:]
	binary.LittleEndian.PutUint64(nonceBytes, nonce)
	return p.digest(p.input, output)
}

// ProofTarget converts a digest into the target it achieves.
// Smaller digests achieve higher targets; a zero prefix achieves the maximum.
func ProofTarget(digest []byte) uint64 {
	if len(digest) < 8 {
		return 0
	}
	v := binary.BigEndian.Uint64(digest[:8])
	if v == 0 {
		return math.MaxUint64
	}
	return math.MaxUint64 / v
}
