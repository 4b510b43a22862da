// note.go - Note lifecycle: creation, Pedersen commitment, note commitment,
// finalization, nullifier.
//
// A note is the primary client-side secret. On-chain it exists only as its
// Poseidon commitment in the tree; off-chain it carries everything needed to
// later prove ownership and spend it. Notes are value objects: finalization
// returns a new note rather than mutating the pending one.

package note

import (
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"zktoken/internal/curve"
	"zktoken/internal/zkhash"
)

// LeafIndexUnset marks a note whose commitment has not been inserted into the
// on-chain tree yet. The index is assigned by the chain, never invented
// locally.
const LeafIndexUnset int64 = -1

// ErrAmountOutOfRange is returned for amounts outside [1, 2^64).
var ErrAmountOutOfRange = errors.New("note: amount out of range")

// ErrNotFinalized names the state of a note whose leaf index the chain has
// not assigned yet. No function in this package returns it; the witness
// builders report an unfinalized input as witness.ErrInputNotFinalized.
var ErrNotFinalized = errors.New("note: leaf index not assigned yet")

// secretBytes is the width of sampled secrets: 31 bytes keeps them uniform
// below the field modulus without reduction bias.
const secretBytes = 31

// Note is a shielded-pool note.
type Note struct {
	Amount            uint64
	Blinding          *big.Int
	Secret            *big.Int
	NullifierPreimage *big.Int
	OwnerPub          curve.Point
	TokenAddress      common.Address

	LeafIndex int64
	Nullifier *big.Int
	Spent     bool
}

// New mints a fresh unfinalized note for the given owner. Blinding, secret
// and nullifier preimage are sampled as uniform 31-byte integers from rng.
func New(rng io.Reader, amount uint64, owner curve.Point, token common.Address) (*Note, error) {
	if amount == 0 {
		return nil, ErrAmountOutOfRange
	}
	if err := curve.Validate(owner); err != nil {
		return nil, fmt.Errorf("note: owner key: %w", err)
	}
	blinding, err := randomSecret(rng)
	if err != nil {
		return nil, err
	}
	secret, err := randomSecret(rng)
	if err != nil {
		return nil, err
	}
	preimage, err := randomSecret(rng)
	if err != nil {
		return nil, err
	}
	return &Note{
		Amount:            amount,
		Blinding:          blinding,
		Secret:            secret,
		NullifierPreimage: preimage,
		OwnerPub:          owner,
		TokenAddress:      token,
		LeafIndex:         LeafIndexUnset,
	}, nil
}

// FromSecrets rebuilds a note from recovered secrets, e.g. after decrypting a
// memo. The caller supplies the owner key and the leaf index reported by the
// event log.
func FromSecrets(amount uint64, blinding, secret, preimage *big.Int, owner curve.Point,
	token common.Address, leafIndex int64) (*Note, error) {
	if amount == 0 {
		return nil, ErrAmountOutOfRange
	}
	if err := curve.Validate(owner); err != nil {
		return nil, fmt.Errorf("note: owner key: %w", err)
	}
	n := &Note{
		Amount:            amount,
		Blinding:          new(big.Int).Set(blinding),
		Secret:            new(big.Int).Set(secret),
		NullifierPreimage: new(big.Int).Set(preimage),
		OwnerPub:          owner,
		TokenAddress:      token,
		LeafIndex:         LeafIndexUnset,
	}
	if leafIndex >= 0 {
		return n.Finalize(uint64(leafIndex))
	}
	return n, nil
}

// Pedersen computes amount*G + blinding*H. The amount side uses a 64-bit
// scalar decomposition and the blinding side a full-width one, matching the
// in-circuit algorithm so witness shapes stay aligned.
func (n *Note) Pedersen() (curve.Point, error) {
	amountG, err := curve.ScalarMulBits(new(big.Int).SetUint64(n.Amount), curve.Generator(), 64)
	if err != nil {
		return curve.Point{}, fmt.Errorf("note: amount term: %w", err)
	}
	blindingH, err := curve.ScalarMulBits(n.Blinding, curve.PedersenH(), 254)
	if err != nil {
		return curve.Point{}, fmt.Errorf("note: blinding term: %w", err)
	}
	return curve.Add(amountG, blindingH)
}

// Commitment computes the Poseidon note commitment
// Poseidon5(ped.x, ped.y, secret, nullifier_preimage, owner_pub.x).
func (n *Note) Commitment() (*big.Int, error) {
	ped, err := n.Pedersen()
	if err != nil {
		return nil, err
	}
	return zkhash.Poseidon5(ped.XBig(), ped.YBig(), n.Secret, n.NullifierPreimage, n.OwnerPub.XBig())
}

// Finalize returns a copy of n with the chain-assigned leaf index and the
// derived nullifier Poseidon3(preimage, secret, leaf_index). The original
// note is left untouched.
func (n *Note) Finalize(leafIndex uint64) (*Note, error) {
	nullifier, err := zkhash.Poseidon3(n.NullifierPreimage, n.Secret, new(big.Int).SetUint64(leafIndex))
	if err != nil {
		return nil, fmt.Errorf("note: nullifier: %w", err)
	}
	out := n.clone()
	out.LeafIndex = int64(leafIndex)
	out.Nullifier = nullifier
	return out, nil
}

func (n *Note) clone() *Note {
	out := &Note{
		Amount:            n.Amount,
		OwnerPub:          n.OwnerPub,
		TokenAddress:      n.TokenAddress,
		LeafIndex:         n.LeafIndex,
		Spent:             n.Spent,
		Blinding:          new(big.Int).Set(n.Blinding),
		Secret:            new(big.Int).Set(n.Secret),
		NullifierPreimage: new(big.Int).Set(n.NullifierPreimage),
	}
	if n.Nullifier != nil {
		out.Nullifier = new(big.Int).Set(n.Nullifier)
	}
	return out
}

// randomSecret samples a uniform 31-byte integer.
func randomSecret(rng io.Reader) (*big.Int, error) {
	buf := make([]byte, secretBytes)
	if _, err := io.ReadFull(rng, buf); err != nil {
		return nil, fmt.Errorf("note: sampling secret: %w", err)
	}
	return new(big.Int).SetBytes(buf), nil
}

// NewSecret samples a uniform 31-byte integer from rng. The witness
// assembler uses it for output note material; pass crypto/rand.Reader
// outside tests.
func NewSecret(rng io.Reader) (*big.Int, error) {
	return randomSecret(rng)
}
