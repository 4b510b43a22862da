// keys.go - Baby Jubjub keypairs and the host-signature key derivation.
//
// Keys live on Base8 = 8*G, the prime-order base. A user without stored key
// material recovers the same keypair on any client by signing a fixed message
// with their host-chain wallet: the signature bytes are the only KDF input,
// so the derivation must stay bit-for-bit stable across implementations.

package keys

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"zktoken/internal/curve"
)

// DerivationPrefix is the ASCII prefix of the message a host wallet signs to
// derive its shielded keypair.
const DerivationPrefix = "zktoken-shielded-key-v1:"

// ErrInvalidScalar is returned for private scalars outside [1, L-1].
var ErrInvalidScalar = errors.New("keys: scalar outside [1, L-1]")

// KeyPair is a Baby Jubjub keypair with Pub = Priv * Base8.
type KeyPair struct {
	Priv *big.Int
	Pub  curve.Point
}

// Generate samples a private scalar uniformly in [1, L-1] from the given
// CSPRNG and derives the public point. Pass crypto/rand.Reader outside tests.
func Generate(rng io.Reader) (KeyPair, error) {
	max := new(big.Int).Sub(curve.Order(), big.NewInt(1))
	k, err := rand.Int(rng, max)
	if err != nil {
		return KeyPair{}, fmt.Errorf("keys: sampling scalar: %w", err)
	}
	k.Add(k, big.NewInt(1))
	return FromPrivate(k)
}

// FromPrivate validates priv and computes the public point.
func FromPrivate(priv *big.Int) (KeyPair, error) {
	if priv == nil || priv.Sign() <= 0 || priv.Cmp(curve.Order()) >= 0 {
		return KeyPair{}, ErrInvalidScalar
	}
	pub, err := curve.ScalarMul(priv, curve.Base8())
	if err != nil {
		return KeyPair{}, fmt.Errorf("keys: deriving public key: %w", err)
	}
	return KeyPair{Priv: new(big.Int).Set(priv), Pub: pub}, nil
}

// DerivationMessage returns the exact ASCII message the host wallet must sign
// for the given address.
func DerivationMessage(address common.Address) string {
	return DerivationPrefix + strings.ToLower(address.Hex())
}

// FromHostSignature deterministically derives a keypair from a host-chain
// signature over DerivationMessage(address). The signature is hashed with
// keccak256 and reduced mod the subgroup order; a zero result maps to 1 so
// the scalar is always valid. Idempotent: the same wallet always lands on the
// same keypair.
func FromHostSignature(address common.Address, signature []byte) (KeyPair, error) {
	if len(signature) == 0 {
		return KeyPair{}, fmt.Errorf("keys: empty signature for %s", strings.ToLower(address.Hex()))
	}
	priv := new(big.Int).SetBytes(crypto.Keccak256(signature))
	priv.Mod(priv, curve.Order())
	if priv.Sign() == 0 {
		priv.SetInt64(1)
	}
	return FromPrivate(priv)
}

// ECDH computes the shared point myPriv * theirPub. Both sides of a channel
// obtain the same point. The peer key is validated before use.
func ECDH(myPriv *big.Int, theirPub curve.Point) (curve.Point, error) {
	if myPriv == nil || myPriv.Sign() <= 0 || myPriv.Cmp(curve.Order()) >= 0 {
		return curve.Point{}, ErrInvalidScalar
	}
	if err := curve.Validate(theirPub); err != nil {
		return curve.Point{}, err
	}
	return curve.ScalarMul(myPriv, theirPub)
}

// Zeroize wipes the private scalar's backing words. Call on session teardown.
func (kp *KeyPair) Zeroize() {
	if kp.Priv == nil {
		return
	}
	words := kp.Priv.Bits()
	for i := range words {
		words[i] = 0
	}
	kp.Priv.SetInt64(0)
}
