package shared

import (
	"encoding/hex"
	"fmt"
)

const (
	EpochHashSize = 32
	AddressSize   = 32
)

// EpochHash identifies the round of work a solution applies to.
type EpochHash [EpochHashSize]byte

func (h EpochHash) String() string {
	return hex.EncodeToString(h[:])
}

// UnmarshalFlag implements flags.Unmarshaler.
func (h *EpochHash) UnmarshalFlag(value string) error {
	b, err := hex.DecodeString(value)
	if err != nil {
		return fmt.Errorf("decoding epoch hash: %w", err)
	}
	if len(b) != EpochHashSize {
		return fmt.Errorf("epoch hash must be %d bytes, got %d", EpochHashSize, len(b))
	}
	copy(h[:], b)
	return nil
}

// Address identifies the solver credited with a solution.
type Address [AddressSize]byte

func (a Address) String() string {
	return "ap" + hex.EncodeToString(a[:])
}
