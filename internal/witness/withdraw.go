// withdraw.go - Witness assembly for the withdraw statement.
//
// Withdraw reveals the amount leaving the pool as a public signal. The
// withdrawn portion therefore carries no blinding; the full input blinding
// rides on the change commitment, and the circuit enforces
// blinding_in == change_blinding. A full withdrawal degenerates to a zero
// change commitment.

package witness

import (
	"fmt"
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"zktoken/internal/curve"
	"zktoken/internal/merkle"
	"zktoken/internal/note"
	"zktoken/internal/zkhash"
)

// WithdrawWitness carries every prover input for the withdraw statement.
type WithdrawWitness struct {
	// Public signals.
	MerkleRoot       *big.Int
	NullifierHash    *big.Int
	Amount           uint64 // revealed withdrawal amount
	ChangeCommitment *big.Int

	// Private: input note.
	AmountIn          uint64
	BlindingIn        *big.Int
	Secret            *big.Int
	NullifierPreimage *big.Int
	OwnerPriv         *big.Int
	LeafIndex         uint64
	MerklePath        []*big.Int
	PathIndices       []int

	// Private: change output. Nil Change means a full withdrawal.
	Change *Output
}

// PublicSignals returns the on-chain signal ordering
// [merkle_root, nullifier_hash, amount, change_commitment].
func (w *WithdrawWitness) PublicSignals() []*big.Int {
	return []*big.Int{w.MerkleRoot, w.NullifierHash,
		new(big.Int).SetUint64(w.Amount), w.ChangeCommitment}
}

// BuildWithdraw assembles a withdraw witness revealing withdrawAmount and
// returning the remainder (if any) to the sender as a change note carrying
// the entire input blinding.
func BuildWithdraw(rng io.Reader, input *note.Note, ownerPriv *big.Int,
	withdrawAmount uint64, path merkle.Path) (*WithdrawWitness, error) {

	if err := checkOwnership(input, ownerPriv); err != nil {
		return nil, err
	}
	if input.LeafIndex < 0 || input.Nullifier == nil {
		return nil, ErrInputNotFinalized
	}
	if withdrawAmount == 0 || withdrawAmount > input.Amount {
		return nil, ErrInsufficientAmount
	}
	changeAmount := input.Amount - withdrawAmount

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

	w := &WithdrawWitness{
		MerkleRoot:        path.Root,
		NullifierHash:     nullifier,
		Amount:            withdrawAmount,
		ChangeCommitment:  big.NewInt(0),
		AmountIn:          input.Amount,
		BlindingIn:        new(big.Int).Set(input.Blinding),
		Secret:            new(big.Int).Set(input.Secret),
		NullifierPreimage: new(big.Int).Set(input.NullifierPreimage),
		OwnerPriv:         new(big.Int).Set(ownerPriv),
		LeafIndex:         uint64(input.LeafIndex),
		MerklePath:        path.Elements,
		PathIndices:       path.Indices,
	}

	if changeAmount > 0 {
		senderPub, err := curve.ScalarMul(ownerPriv, curve.Base8())
		if err != nil {
			return nil, fmt.Errorf("witness: sender key: %w", err)
		}
		change, err := buildOutput(rng, changeAmount, input.Blinding, senderPub)
		if err != nil {
			return nil, err
		}
		w.Change = change
		w.ChangeCommitment = change.Commitment
	}

	if err := w.checkConservation(); err != nil {
		return nil, err
	}
	return w, nil
}

// checkConservation re-verifies amount_in = amount + change_amount and that
// the change carries exactly the input blinding.
func (w *WithdrawWitness) checkConservation() error {
	var changeAmount uint64
	if w.Change != nil {
		changeAmount = w.Change.Amount
		if w.Change.Blinding.Cmp(w.BlindingIn) != 0 {
			return ErrConservationViolation
		}
	}
	if w.AmountIn != w.Amount+changeAmount {
		return ErrConservationViolation
	}
	return nil
}

// ChangeNote materializes the change note, or nil for a full withdrawal.
func (w *WithdrawWitness) ChangeNote(token common.Address) *note.Note {
	if w.Change == nil {
		return nil
	}
	return &note.Note{
		Amount:            w.Change.Amount,
		Blinding:          new(big.Int).Set(w.Change.Blinding),
		Secret:            new(big.Int).Set(w.Change.Secret),
		NullifierPreimage: new(big.Int).Set(w.Change.NullifierPreimage),
		OwnerPub:          w.Change.OwnerPub,
		TokenAddress:      token,
		LeafIndex:         note.LeafIndexUnset,
	}
}
