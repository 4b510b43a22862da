package witness

import (
	"crypto/rand"
	"math/big"
	mrand "math/rand"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"zktoken/internal/curve"
	"zktoken/internal/keys"
	"zktoken/internal/merkle"
	"zktoken/internal/note"
)

var testToken = common.HexToAddress("0x00000000000000000000000000000000000000dd")

// setupInput mints a finalized input note whose commitment sits in a fresh
// tree, returning everything a builder needs.
func setupInput(t *testing.T, amount uint64) (*note.Note, keys.KeyPair, *merkle.Tree, merkle.Path) {
	t.Helper()
	owner, err := keys.Generate(rand.Reader)
	require.NoError(t, err)
	n, err := note.New(rand.Reader, amount, owner.Pub, testToken)
	require.NoError(t, err)
	cm, err := n.Commitment()
	require.NoError(t, err)

	tree, err := merkle.NewTree()
	require.NoError(t, err)
	idx, _, err := tree.Insert(cm)
	require.NoError(t, err)
	fin, err := n.Finalize(idx)
	require.NoError(t, err)
	path, err := tree.GetPath(idx)
	require.NoError(t, err)
	return fin, owner, tree, path
}

func freshRecipient(t *testing.T) keys.KeyPair {
	t.Helper()
	kp, err := keys.Generate(rand.Reader)
	require.NoError(t, err)
	return kp
}

// TestTransferConservation runs randomized builds and checks the integer
// sums the circuit enforces: amounts over the integers, blindings over the
// integers with no reduction by the subgroup order.
func TestTransferConservation(t *testing.T) {
	input, owner, _, path := setupInput(t, 1_000_000)
	recipient := freshRecipient(t)
	rnd := mrand.New(mrand.NewSource(42))

	for i := 0; i < 500; i++ {
		sendAmount := uint64(rnd.Int63n(1_000_001))
		w, err := BuildTransfer(rand.Reader, input, owner.Priv, recipient.Pub, sendAmount, path)
		require.NoError(t, err, "iteration %d", i)

		require.Equal(t, input.Amount, w.Outputs[0].Amount+w.Outputs[1].Amount)
		blindingSum := new(big.Int).Add(w.Outputs[0].Blinding, w.Outputs[1].Blinding)
		require.Equal(t, 0, blindingSum.Cmp(input.Blinding), "blinding split must be integer-exact")
		require.True(t, w.Outputs[0].Blinding.Cmp(input.Blinding) < 0 || input.Blinding.Sign() == 0)
		require.True(t, w.Outputs[0].Blinding.Sign() >= 0 && w.Outputs[1].Blinding.Sign() >= 0)
	}
}

func TestTransferWitnessShape(t *testing.T) {
	input, owner, tree, path := setupInput(t, 1_000_000)
	recipient := freshRecipient(t)

	w, err := BuildTransfer(rand.Reader, input, owner.Priv, recipient.Pub, 700_000, path)
	require.NoError(t, err)

	require.Equal(t, tree.Root(), w.MerkleRoot)
	require.Equal(t, input.Nullifier, w.NullifierHash)
	require.Equal(t, w.Outputs[0].Commitment, w.NewCommitment1)
	require.Equal(t, w.Outputs[1].Commitment, w.NewCommitment2)
	require.Len(t, w.MerklePath, merkle.Depth)
	require.Len(t, w.PathIndices, merkle.Depth)
	require.True(t, w.Outputs[0].OwnerPub.Equal(recipient.Pub))
	require.True(t, w.Outputs[1].OwnerPub.Equal(owner.Pub), "change returns to sender")
	require.Equal(t, uint64(700_000), w.Outputs[0].Amount)
	require.Equal(t, uint64(300_000), w.Outputs[1].Amount)

	signals := w.PublicSignals()
	require.Equal(t, []*big.Int{w.MerkleRoot, w.NullifierHash, w.NewCommitment1, w.NewCommitment2}, signals)

	// Output commitments recompute from the output notes.
	outs := w.OutputNotes(testToken)
	cm0, err := outs[0].Commitment()
	require.NoError(t, err)
	require.Equal(t, w.NewCommitment1, cm0)
	cm1, err := outs[1].Commitment()
	require.NoError(t, err)
	require.Equal(t, w.NewCommitment2, cm1)
}

func TestTransferRejectsForeignKey(t *testing.T) {
	input, _, _, path := setupInput(t, 1000)
	thief := freshRecipient(t)
	_, err := BuildTransfer(rand.Reader, input, thief.Priv, thief.Pub, 100, path)
	require.ErrorIs(t, err, ErrOwnerMismatch)
}

func TestTransferRejectsUnfinalizedInput(t *testing.T) {
	owner := freshRecipient(t)
	n, err := note.New(rand.Reader, 1000, owner.Pub, testToken)
	require.NoError(t, err)
	_, err = BuildTransfer(rand.Reader, n, owner.Priv, owner.Pub, 100, merkle.Path{})
	require.ErrorIs(t, err, ErrInputNotFinalized)
}

func TestTransferRejectsOverdraw(t *testing.T) {
	input, owner, _, path := setupInput(t, 1000)
	recipient := freshRecipient(t)
	_, err := BuildTransfer(rand.Reader, input, owner.Priv, recipient.Pub, 1001, path)
	require.ErrorIs(t, err, ErrInsufficientAmount)
}

func TestTransferRejectsBadRecipientKey(t *testing.T) {
	input, owner, _, path := setupInput(t, 1000)

	offCurve := curve.FromBig(big.NewInt(5), big.NewInt(6))
	_, err := BuildTransfer(rand.Reader, input, owner.Priv, offCurve, 100, path)
	require.ErrorIs(t, err, ErrOutputKeyInvalid)

	// (0, 1) is the identity: in-subgroup but a degenerate owner key.
	_, err = BuildTransfer(rand.Reader, input, owner.Priv, curve.Identity(), 100, path)
	require.ErrorIs(t, err, ErrOutputKeyInvalid)
}

func TestTransferRejectsTamperedPath(t *testing.T) {
	input, owner, _, path := setupInput(t, 1000)
	recipient := freshRecipient(t)

	tampered := path
	tampered.Elements = append([]*big.Int(nil), path.Elements...)
	tampered.Elements[0] = new(big.Int).Add(path.Elements[0], big.NewInt(1))
	_, err := BuildTransfer(rand.Reader, input, owner.Priv, recipient.Pub, 100, tampered)
	require.ErrorIs(t, err, ErrMerklePathInvalid)

	wrongIndex := path
	wrongIndex.LeafIndex = path.LeafIndex + 1
	_, err = BuildTransfer(rand.Reader, input, owner.Priv, recipient.Pub, 100, wrongIndex)
	require.ErrorIs(t, err, ErrMerklePathInvalid)
}

func TestWithdrawFull(t *testing.T) {
	input, owner, tree, path := setupInput(t, 5000)

	w, err := BuildWithdraw(rand.Reader, input, owner.Priv, 5000, path)
	require.NoError(t, err)
	require.Nil(t, w.Change, "full withdrawal has no change note")
	require.Equal(t, 0, w.ChangeCommitment.Sign())
	require.Nil(t, w.ChangeNote(testToken))

	signals := w.PublicSignals()
	require.Equal(t, tree.Root(), signals[0])
	require.Equal(t, input.Nullifier, signals[1])
	require.Equal(t, uint64(5000), signals[2].Uint64())
	require.Equal(t, 0, signals[3].Sign())
}

func TestWithdrawPartial(t *testing.T) {
	input, owner, _, path := setupInput(t, 5000)

	w, err := BuildWithdraw(rand.Reader, input, owner.Priv, 2000, path)
	require.NoError(t, err)
	require.NotNil(t, w.Change)
	require.Equal(t, uint64(3000), w.Change.Amount)
	// The change carries the entire input blinding: the revealed portion has
	// none.
	require.Equal(t, 0, w.Change.Blinding.Cmp(input.Blinding))
	require.Equal(t, w.Change.Commitment, w.ChangeCommitment)
	require.True(t, w.Change.OwnerPub.Equal(owner.Pub))

	change := w.ChangeNote(testToken)
	require.NotNil(t, change)
	cm, err := change.Commitment()
	require.NoError(t, err)
	require.Equal(t, w.ChangeCommitment, cm)
}

func TestWithdrawRejects(t *testing.T) {
	input, owner, _, path := setupInput(t, 5000)

	_, err := BuildWithdraw(rand.Reader, input, owner.Priv, 0, path)
	require.ErrorIs(t, err, ErrInsufficientAmount)
	_, err = BuildWithdraw(rand.Reader, input, owner.Priv, 5001, path)
	require.ErrorIs(t, err, ErrInsufficientAmount)

	thief := freshRecipient(t)
	_, err = BuildWithdraw(rand.Reader, input, thief.Priv, 100, path)
	require.ErrorIs(t, err, ErrOwnerMismatch)
}
