// codec.go - Groth16 proof encoding into the verifier's ABI layout.
//
// The verifier contract takes the proof as the ABI tuple
// (uint256[2], uint256[2][2], uint256[2]), 256 bytes of big-endian field
// coordinates. The G2 element pi_B lives in Fq2: the prover emits each
// coordinate as [c0, c1] while the pairing precompile wants [c1, c0], so the
// codec swaps the inner pair on both components. Omitting that swap yields
// proofs that verify against the prover's own library and nothing else.

package witness

import (
	"errors"
	"math/big"

	bn254 "github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fp"
	"github.com/consensys/gnark/backend/groth16"
	groth16bn254 "github.com/consensys/gnark/backend/groth16/bn254"
)

// ProofBytes is the exact encoded proof length.
const ProofBytes = 256

// ErrProofEncodeMalformed is returned when proof pieces are not the expected
// field shape.
var ErrProofEncodeMalformed = errors.New("witness: malformed proof encoding")

// Proof is the three-point Groth16 proof over BN254.
type Proof struct {
	A bn254.G1Affine
	B bn254.G2Affine
	C bn254.G1Affine
}

// FromGroth16 extracts the curve points from a prover-returned proof. Only
// the BN254 backend is supported; anything else is a wiring bug surfaced as
// ErrProofEncodeMalformed.
func FromGroth16(p groth16.Proof) (Proof, error) {
	bp, ok := p.(*groth16bn254.Proof)
	if !ok {
		return Proof{}, ErrProofEncodeMalformed
	}
	return Proof{A: bp.Ar, B: bp.Bs, C: bp.Krs}, nil
}

// Encode emits the 256-byte ABI tuple with the G2 inner-pair swap applied.
func (p Proof) Encode() [ProofBytes]byte {
	var out [ProofBytes]byte
	words := [8]fp.Element{
		p.A.X, p.A.Y,
		p.B.X.A1, p.B.X.A0,
		p.B.Y.A1, p.B.Y.A0,
		p.C.X, p.C.Y,
	}
	for i, w := range words {
		b := w.Bytes()
		copy(out[i*32:], b[:])
	}
	return out
}

// Decode parses a 256-byte encoding back into proof points, undoing the
// inner-pair swap. Each coordinate must be a canonical field element.
func Decode(data []byte) (Proof, error) {
	if len(data) != ProofBytes {
		return Proof{}, ErrProofEncodeMalformed
	}
	mod := fp.Modulus()
	var words [8]fp.Element
	for i := range words {
		v := new(big.Int).SetBytes(data[i*32 : (i+1)*32])
		if v.Cmp(mod) >= 0 {
			return Proof{}, ErrProofEncodeMalformed
		}
		words[i].SetBigInt(v)
	}
	var p Proof
	p.A.X, p.A.Y = words[0], words[1]
	p.B.X.A1, p.B.X.A0 = words[2], words[3]
	p.B.Y.A1, p.B.Y.A0 = words[4], words[5]
	p.C.X, p.C.Y = words[6], words[7]
	return p, nil
}
