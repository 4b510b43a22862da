// zkhash.go - Poseidon hashing with bit-exact parity to the on-chain hash.
//
// The verifier contract and the compiled circuits both use the canonical
// circomlib Poseidon parameters (x^5 S-box, 8 full rounds, width-dependent
// partial rounds, canonical round constants and MDS matrix). go-iden3-crypto
// is the reference Go port of exactly those parameters, so every hash below
// is byte-identical to what the chain computes. Any deviation here silently
// invalidates every proof, which is why the conformance vectors in the test
// suite are non-negotiable.

package zkhash

import (
	"errors"
	"math/big"

	"github.com/iden3/go-iden3-crypto/poseidon"
)

// ErrInputNotInField is returned when an input is negative or >= the BN254
// scalar field modulus.
var ErrInputNotInField = errors.New("zkhash: input outside the scalar field")

// Hash reduces the given field elements through the canonical Poseidon
// permutation for len(inputs)+1 state width.
func Hash(inputs []*big.Int) (*big.Int, error) {
	for _, in := range inputs {
		if in == nil || in.Sign() < 0 || in.Cmp(Modulus()) >= 0 {
			return nil, ErrInputNotInField
		}
	}
	out, err := poseidon.Hash(inputs)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Poseidon3 hashes three field elements. Used for nullifiers
// (preimage, secret, leaf_index) and, with a zero third input, for Merkle
// tree nodes.
func Poseidon3(a, b, c *big.Int) (*big.Int, error) {
	return Hash([]*big.Int{a, b, c})
}

// Poseidon5 hashes five field elements. Used for note commitments
// (pedersen.x, pedersen.y, secret, nullifier_preimage, owner_pub.x).
func Poseidon5(a, b, c, d, e *big.Int) (*big.Int, error) {
	return Hash([]*big.Int{a, b, c, d, e})
}

// TreeNode hashes two children with a zero capacity input, the node function
// of the on-chain incremental tree.
func TreeNode(left, right *big.Int) (*big.Int, error) {
	return Poseidon3(left, right, big.NewInt(0))
}

// Modulus returns the BN254 scalar field prime.
func Modulus() *big.Int {
	return new(big.Int).Set(modulus)
}

var modulus, _ = new(big.Int).SetString(
	"21888242871839275222246405745257275088548364400416034343698204186575808495617", 10)
