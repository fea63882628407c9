package signing

import (
	"bytes"
	"crypto"
	"crypto/ed25519"
	"errors"
	"fmt"
	"io"

	"github.com/spacemeshos/go-scale"

	"github.com/spacemeshos/puzzle-prover/shared"
)

var (
	ErrSigningFailed    = errors.New("couldn't sign")
	ErrSignatureInvalid = errors.New("signature is invalid")
	ErrInvalidPubkeyLen = errors.New("pubkey has invalid length")
)

// Identity is the key pair a prover solves under.
// It is generated at startup and never stored.
type Identity struct {
	privKey ed25519.PrivateKey
}

// NewEphemeral generates a fresh identity from the given entropy source.
// A nil reader uses crypto/rand.
func NewEphemeral(rand io.Reader) (*Identity, error) {
	_, priv, err := ed25519.GenerateKey(rand)
	if err != nil {
		return nil, fmt.Errorf("generating private key: %w", err)
	}
	return &Identity{privKey: priv}, nil
}

func (i *Identity) PublicKey() ed25519.PublicKey {
	return i.privKey.Public().(ed25519.PublicKey)
}

// Address derives the solver address from the public key.
func (i *Identity) Address() shared.Address {
	var addr shared.Address
	copy(addr[:], i.PublicKey())
	return addr
}

// Signed represents a signed T data.
// It provides a read-only access to it.
type Signed[T any] interface {
	// Data retrieves the underlying data.
	// The received data is READ ONLY.
	Data() *T
	PubKey() []byte
	Signature() []byte
}

type signedData[T any] struct {
	data      T
	pubkey    []byte
	signature []byte
}

func (d *signedData[T]) Data() *T {
	return &d.data
}

func (d *signedData[T]) PubKey() []byte {
	return d.pubkey
}

func (d *signedData[T]) Signature() []byte {
	return d.signature
}

type notHashed struct{}

func (notHashed) HashFunc() crypto.Hash { return crypto.Hash(0) }

type encodable[P any] interface {
	scale.Encodable
	*P
}

func encode[T any, Encodable encodable[T]](data *T) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := Encodable(data).EncodeScale(scale.NewEncoder(&buf)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Sign signs data with the identity key.
// *T must implement scale.Encodable which is constrained by Encodable.
func Sign[T any, Encodable encodable[T]](data T, id *Identity) (Signed[T], error) {
	msg, err := encode[T, Encodable](&data)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize data (%w)", err)
	}
	signature, err := id.privKey.Sign(nil, msg, notHashed{})
	if err != nil {
		return nil, fmt.Errorf("%w (%v)", ErrSigningFailed, err)
	}
	return &signedData[T]{
		data:      data,
		pubkey:    id.PublicKey(),
		signature: signature,
	}, nil
}

// Verify checks the signature of data against pubkey and wraps it into Signed[T].
func Verify[T any, Encodable encodable[T]](data T, signature, pubkey []byte) (Signed[T], error) {
	msg, err := encode[T, Encodable](&data)
	if err != nil {
		return nil, err
	}
	if l := len(pubkey); l != ed25519.PublicKeySize {
		return nil, ErrInvalidPubkeyLen
	}
	if !ed25519.Verify(pubkey, msg, signature) {
		return nil, ErrSignatureInvalid
	}
	return &signedData[T]{
		data:      data,
		pubkey:    pubkey,
		signature: signature,
	}, nil
}
