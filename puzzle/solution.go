package puzzle

import (
	"github.com/spacemeshos/go-scale"
	"go.uber.org/zap/zapcore"

	"github.com/spacemeshos/puzzle-prover/shared"
)

// Solution is the outcome of one successful proving attempt.
// Scale encoding is implemented by hand, the layout is: epoch || address || compact(nonce) || digest.
type Solution struct {
	Epoch   shared.EpochHash
	Address shared.Address
	Nonce   uint64
	Digest  []byte `scale:"max=64"`
}

// Target is the proof target this solution achieves.
func (s *Solution) Target() uint64 {
	return shared.ProofTarget(s.Digest)
}

func (s *Solution) EncodeScale(enc *scale.Encoder) (total int, err error) {
	{
		n, err := scale.EncodeByteArray(enc, s.Epoch[:])
		if err != nil {
			return total, err
		}
		total += n
	}
	{
		n, err := scale.EncodeByteArray(enc, s.Address[:])
		if err != nil {
			return total, err
		}
		total += n
	}
	{
		n, err := scale.EncodeCompact64(enc, s.Nonce)
		if err != nil {
			return total, err
		}
		total += n
	}
	{
		n, err := scale.EncodeByteSliceWithLimit(enc, s.Digest, 64)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (s *Solution) DecodeScale(dec *scale.Decoder) (total int, err error) {
	{
		n, err := scale.DecodeByteArray(dec, s.Epoch[:])
		if err != nil {
			return total, err
		}
		total += n
	}
	{
		n, err := scale.DecodeByteArray(dec, s.Address[:])
		if err != nil {
			return total, err
		}
		total += n
	}
	{
		field, n, err := scale.DecodeCompact64(dec)
		if err != nil {
			return total, err
		}
		total += n
		s.Nonce = field
	}
	{
		field, n, err := scale.DecodeByteSliceWithLimit(dec, 64)
		if err != nil {
			return total, err
		}
		total += n
		s.Digest = field
	}
	return total, nil
}

// implement zap.ObjectMarshaler interface.
func (s *Solution) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("epoch", s.Epoch.String())
	enc.AddString("address", s.Address.String())
	enc.AddUint64("nonce", s.Nonce)
	enc.AddUint64("target", s.Target())
	enc.AddBinary("digest", s.Digest)
	return nil
}
