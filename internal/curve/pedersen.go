// pedersen.go - Derivation of the independent Pedersen base H.
//
// H is obtained by try-and-increment hash-to-curve from a fixed ASCII seed,
// then cleared of its cofactor. Nobody knows log_G(H), which is what makes
// amount*G + blinding*H binding.

package curve

import (
	"encoding/binary"
	"math/big"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/ethereum/go-ethereum/crypto"
)

// PedersenSeed is the domain-separation seed for the H derivation.
const PedersenSeed = "zktoken_pedersen_h"

var (
	pedersenOnce sync.Once
	pedersenBase Point
)

// PedersenH returns the Pedersen base H. The derivation is deterministic:
// keccak256(seed || counter) is reduced into the field and treated as a
// candidate x-coordinate; the first candidate whose curve equation has a
// square root yields a point, which is multiplied by the cofactor 8 into the
// prime-order subgroup.
func PedersenH() Point {
	pedersenOnce.Do(func() {
		cp := getParams()
		fieldMod := fr.Modulus()
		var ctr uint32
		for {
			buf := make([]byte, len(PedersenSeed)+4)
			copy(buf, PedersenSeed)
			binary.BigEndian.PutUint32(buf[len(PedersenSeed):], ctr)
			digest := crypto.Keccak256(buf)
			xBig := new(big.Int).SetBytes(digest)
			xBig.Mod(xBig, fieldMod)

			var x fr.Element
			x.SetBigInt(xBig)
			y, ok := solveForY(cp, x)
			if ok {
				cand := Point{X: x, Y: y}
				// Clear the cofactor: H = 8 * cand.
				for i := 0; i < 3; i++ {
					cand = cp.mustAdd(cand, cand)
				}
				if !cand.IsIdentity() && InSubgroup(cand) {
					pedersenBase = cand
					return
				}
			}
			ctr++
		}
	})
	return pedersenBase
}

// solveForY solves a*x^2 + y^2 = 1 + d*x^2*y^2 for y, returning the
// numerically smaller of the two roots so the derivation is canonical. The
// square root under the hood is gnark-crypto's Tonelli-Shanks (the field has
// p = 1 mod 4, so no Atkin shortcut applies); it returns no root for
// non-residues.
func solveForY(cp *params, x fr.Element) (fr.Element, bool) {
	var x2, ax2, one, num, dx2, den fr.Element
	x2.Square(&x)
	ax2.Mul(&cp.a, &x2)
	one.SetOne()
	num.Sub(&one, &ax2)
	dx2.Mul(&cp.d, &x2)
	den.Sub(&one, &dx2)
	if den.IsZero() {
		return fr.Element{}, false
	}

	var y2, y fr.Element
	den.Inverse(&den)
	y2.Mul(&num, &den)
	if y.Sqrt(&y2) == nil {
		return fr.Element{}, false
	}

	var yNeg fr.Element
	yNeg.Neg(&y)
	yBig := y.BigInt(new(big.Int))
	yNegBig := yNeg.BigInt(new(big.Int))
	if yNegBig.Cmp(yBig) < 0 {
		return yNeg, true
	}
	return y, true
}
