// transfer.go - Witness assembly for the two-output transfer statement.
//
// The assembler is the last stop before the external prover: it samples the
// output note material, enforces every algebraic precondition the circuit
// will check, and lays the values out in exactly the field order the compiled
// circuit consumes. Failing here is cheap; failing inside the prover is
// opaque.

package witness

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"zktoken/internal/curve"
	"zktoken/internal/keys"
	"zktoken/internal/merkle"
	"zktoken/internal/note"
	"zktoken/internal/zkhash"
)

var (
	// ErrConservationViolation signals an amount or blinding sum mismatch.
	// Unreachable if the builder is correct, but checked explicitly before
	// every prove call.
	ErrConservationViolation = errors.New("witness: conservation violation")
	// ErrMerklePathInvalid signals that the input note's path does not fold
	// to the supplied root.
	ErrMerklePathInvalid = errors.New("witness: merkle path invalid")
	// ErrOwnerMismatch signals that the supplied private scalar does not own
	// the input note.
	ErrOwnerMismatch = errors.New("witness: private key does not own input note")
	// ErrOutputKeyInvalid signals an output owner key that is off-curve,
	// outside the subgroup, the identity, or has a zero y-coordinate. The
	// commitment hash binds only x, so a degenerate key must be refused at
	// this boundary.
	ErrOutputKeyInvalid = errors.New("witness: output owner key invalid")
	// ErrInputNotFinalized signals an input note without a chain-assigned
	// leaf index.
	ErrInputNotFinalized = errors.New("witness: input note not finalized")
	// ErrInsufficientAmount signals a send amount exceeding the input note,
	// or a zero withdrawal amount.
	ErrInsufficientAmount = errors.New("witness: amount exceeds input note or is zero")
)

// Output is one output slot of a spend statement: the sampled note material
// plus its derived Pedersen and note commitments.
type Output struct {
	Amount            uint64
	Blinding          *big.Int
	Secret            *big.Int
	NullifierPreimage *big.Int
	OwnerPub          curve.Point

	Pedersen   curve.Point
	Commitment *big.Int
}

// TransferWitness carries every prover input for the transfer statement, in
// circuit field order.
type TransferWitness struct {
	// Public signals.
	MerkleRoot     *big.Int
	NullifierHash  *big.Int
	NewCommitment1 *big.Int
	NewCommitment2 *big.Int

	// Private: input note.
	AmountIn          uint64
	BlindingIn        *big.Int
	Secret            *big.Int
	NullifierPreimage *big.Int
	OwnerPriv         *big.Int
	LeafIndex         uint64
	MerklePath        []*big.Int
	PathIndices       []int

	// Private: outputs. Index 0 is the recipient, index 1 the change.
	Outputs [2]Output
}

// PublicSignals returns the on-chain signal ordering
// [merkle_root, nullifier_hash, new_commitment_1, new_commitment_2].
func (w *TransferWitness) PublicSignals() []*big.Int {
	return []*big.Int{w.MerkleRoot, w.NullifierHash, w.NewCommitment1, w.NewCommitment2}
}

// BuildTransfer assembles a transfer witness spending input into a recipient
// output of sendAmount and a change output back to the sender. The recipient
// blinding is sampled uniformly in [0, blinding_in) so the integer split
// blinding_in = b_recipient + b_change holds without any modular reduction;
// the circuit checks that identity in GF(p), and reducing by the subgroup
// order here would silently break it.
func BuildTransfer(rng io.Reader, input *note.Note, ownerPriv *big.Int,
	recipientPub curve.Point, sendAmount uint64, path merkle.Path) (*TransferWitness, error) {

	if err := checkOwnership(input, ownerPriv); err != nil {
		return nil, err
	}
	if input.LeafIndex < 0 || input.Nullifier == nil {
		return nil, ErrInputNotFinalized
	}
	if sendAmount > input.Amount {
		return nil, ErrInsufficientAmount
	}
	if err := checkOutputKey(recipientPub); err != nil {
		return nil, err
	}
	changeAmount := input.Amount - sendAmount

	// Integer blinding split. blinding_in is a uniform 248-bit integer, so
	// the zero case is unreachable in practice but still well-defined.
	recipientBlinding := big.NewInt(0)
	if input.Blinding.Sign() > 0 {
		var err error
		recipientBlinding, err = rand.Int(rng, input.Blinding)
		if err != nil {
			return nil, fmt.Errorf("witness: sampling blinding: %w", err)
		}
	}
	changeBlinding := new(big.Int).Sub(input.Blinding, recipientBlinding)

	senderPub, err := curve.ScalarMul(ownerPriv, curve.Base8())
	if err != nil {
		return nil, fmt.Errorf("witness: sender key: %w", err)
	}
	recipientOut, err := buildOutput(rng, sendAmount, recipientBlinding, recipientPub)
	if err != nil {
		return nil, err
	}
	changeOut, err := buildOutput(rng, changeAmount, changeBlinding, senderPub)
	if err != nil {
		return nil, err
	}

	leaf, err := input.Commitment()
	if err != nil {
		return nil, fmt.Errorf("witness: input commitment: %w", err)
	}
	if path.LeafIndex != uint64(input.LeafIndex) || !merkle.Verify(leaf, path, path.Root) {
		return nil, ErrMerklePathInvalid
	}

	nullifier, err := zkhash.Poseidon3(input.NullifierPreimage, input.Secret,
		new(big.Int).SetUint64(uint64(input.LeafIndex)))
	if err != nil {
		return nil, fmt.Errorf("witness: nullifier: %w", err)
	}
	if nullifier.Cmp(input.Nullifier) != 0 {
		return nil, ErrInputNotFinalized
	}

	w := &TransferWitness{
		MerkleRoot:        path.Root,
		NullifierHash:     nullifier,
		NewCommitment1:    recipientOut.Commitment,
		NewCommitment2:    changeOut.Commitment,
		AmountIn:          input.Amount,
		BlindingIn:        new(big.Int).Set(input.Blinding),
		Secret:            new(big.Int).Set(input.Secret),
		NullifierPreimage: new(big.Int).Set(input.NullifierPreimage),
		OwnerPriv:         new(big.Int).Set(ownerPriv),
		LeafIndex:         uint64(input.LeafIndex),
		MerklePath:        path.Elements,
		PathIndices:       path.Indices,
		Outputs:           [2]Output{*recipientOut, *changeOut},
	}
	if err := w.checkConservation(); err != nil {
		return nil, err
	}
	return w, nil
}

// checkConservation re-verifies the integer sums the circuit will enforce.
func (w *TransferWitness) checkConservation() error {
	if w.AmountIn != w.Outputs[0].Amount+w.Outputs[1].Amount {
		return ErrConservationViolation
	}
	sum := new(big.Int).Add(w.Outputs[0].Blinding, w.Outputs[1].Blinding)
	if sum.Cmp(w.BlindingIn) != 0 {
		return ErrConservationViolation
	}
	return nil
}

// OutputNotes materializes the two output notes for delivery: index 0 for
// the recipient, index 1 for the sender's change. Leaf indices stay unset
// until the chain confirms the spend.
func (w *TransferWitness) OutputNotes(token common.Address) [2]*note.Note {
	var out [2]*note.Note
	for i, o := range w.Outputs {
		out[i] = &note.Note{
			Amount:            o.Amount,
			Blinding:          new(big.Int).Set(o.Blinding),
			Secret:            new(big.Int).Set(o.Secret),
			NullifierPreimage: new(big.Int).Set(o.NullifierPreimage),
			OwnerPub:          o.OwnerPub,
			TokenAddress:      token,
			LeafIndex:         note.LeafIndexUnset,
		}
	}
	return out
}

// buildOutput samples fresh secret material for one output slot and derives
// its commitments.
func buildOutput(rng io.Reader, amount uint64, blinding *big.Int, owner curve.Point) (*Output, error) {
	secret, err := note.NewSecret(rng)
	if err != nil {
		return nil, err
	}
	preimage, err := note.NewSecret(rng)
	if err != nil {
		return nil, err
	}
	o := &Output{
		Amount:            amount,
		Blinding:          new(big.Int).Set(blinding),
		Secret:            secret,
		NullifierPreimage: preimage,
		OwnerPub:          owner,
	}
	if err := o.derive(); err != nil {
		return nil, err
	}
	return o, nil
}

// derive computes the output's Pedersen and note commitments.
func (o *Output) derive() error {
	amountG, err := curve.ScalarMulBits(new(big.Int).SetUint64(o.Amount), curve.Generator(), 64)
	if err != nil {
		return fmt.Errorf("witness: output amount term: %w", err)
	}
	blindingH, err := curve.ScalarMulBits(o.Blinding, curve.PedersenH(), 254)
	if err != nil {
		return fmt.Errorf("witness: output blinding term: %w", err)
	}
	ped, err := curve.Add(amountG, blindingH)
	if err != nil {
		return fmt.Errorf("witness: output pedersen: %w", err)
	}
	cm, err := zkhash.Poseidon5(ped.XBig(), ped.YBig(), o.Secret, o.NullifierPreimage, o.OwnerPub.XBig())
	if err != nil {
		return fmt.Errorf("witness: output commitment: %w", err)
	}
	o.Pedersen = ped
	o.Commitment = cm
	return nil
}

func checkOwnership(input *note.Note, ownerPriv *big.Int) error {
	if ownerPriv == nil || ownerPriv.Sign() <= 0 || ownerPriv.Cmp(curve.Order()) >= 0 {
		return keys.ErrInvalidScalar
	}
	pub, err := curve.ScalarMul(ownerPriv, curve.Base8())
	if err != nil {
		return fmt.Errorf("witness: owner key: %w", err)
	}
	if !pub.Equal(input.OwnerPub) {
		return ErrOwnerMismatch
	}
	return nil
}

// checkOutputKey validates an output owner key. Only the x-coordinate binds
// the owner inside the commitment hash, so the identity point and a zero or
// non-subgroup y must be refused here.
func checkOutputKey(pub curve.Point) error {
	if err := curve.Validate(pub); err != nil {
		return ErrOutputKeyInvalid
	}
	if pub.IsIdentity() || pub.YBig().Sign() == 0 {
		return ErrOutputKeyInvalid
	}
	return nil
}
