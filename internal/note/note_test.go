package note

import (
	"crypto/rand"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"zktoken/internal/curve"
	"zktoken/internal/keys"
	"zktoken/internal/zkhash"
)

var testToken = common.HexToAddress("0x00000000000000000000000000000000000000aa")

func newOwner(t *testing.T) keys.KeyPair {
	t.Helper()
	kp, err := keys.Generate(rand.Reader)
	require.NoError(t, err)
	return kp
}

func TestNewNote(t *testing.T) {
	owner := newOwner(t)
	n, err := New(rand.Reader, 42, owner.Pub, testToken)
	require.NoError(t, err)
	require.Equal(t, LeafIndexUnset, n.LeafIndex)
	require.Nil(t, n.Nullifier)
	require.False(t, n.Spent)
	require.True(t, n.Blinding.BitLen() <= 248)
	require.True(t, n.Secret.BitLen() <= 248)
	require.True(t, n.NullifierPreimage.BitLen() <= 248)

	_, err = New(rand.Reader, 0, owner.Pub, testToken)
	require.ErrorIs(t, err, ErrAmountOutOfRange)
}

func TestNewNoteRejectsBadOwner(t *testing.T) {
	bogus := curve.FromBig(big.NewInt(3), big.NewInt(4))
	_, err := New(rand.Reader, 1, bogus, testToken)
	require.ErrorIs(t, err, curve.ErrPointNotOnCurve)
}

func TestCommitmentShape(t *testing.T) {
	owner := newOwner(t)
	n, err := New(rand.Reader, 1_000_000, owner.Pub, testToken)
	require.NoError(t, err)

	ped, err := n.Pedersen()
	require.NoError(t, err)
	require.NoError(t, curve.Validate(ped))

	cm, err := n.Commitment()
	require.NoError(t, err)
	want, err := zkhash.Poseidon5(ped.XBig(), ped.YBig(), n.Secret, n.NullifierPreimage, owner.Pub.XBig())
	require.NoError(t, err)
	require.Equal(t, want, cm)

	// Deterministic for fixed material.
	cm2, err := n.Commitment()
	require.NoError(t, err)
	require.Equal(t, cm, cm2)
}

// TestPedersenHomomorphism checks the additive structure the transfer circuit
// relies on: commit(a1+a2, b1+b2) == commit(a1,b1) + commit(a2,b2).
func TestPedersenHomomorphism(t *testing.T) {
	owner := newOwner(t)
	n1, err := New(rand.Reader, 300, owner.Pub, testToken)
	require.NoError(t, err)
	n2, err := New(rand.Reader, 700, owner.Pub, testToken)
	require.NoError(t, err)

	sum := &Note{
		Amount:            1000,
		Blinding:          new(big.Int).Add(n1.Blinding, n2.Blinding),
		Secret:            n1.Secret,
		NullifierPreimage: n1.NullifierPreimage,
		OwnerPub:          owner.Pub,
	}

	p1, err := n1.Pedersen()
	require.NoError(t, err)
	p2, err := n2.Pedersen()
	require.NoError(t, err)
	pointSum, err := curve.Add(p1, p2)
	require.NoError(t, err)

	pSum, err := sum.Pedersen()
	require.NoError(t, err)
	require.True(t, pSum.Equal(pointSum))
}

func TestFinalizeDoesNotMutate(t *testing.T) {
	owner := newOwner(t)
	n, err := New(rand.Reader, 5, owner.Pub, testToken)
	require.NoError(t, err)

	fin, err := n.Finalize(7)
	require.NoError(t, err)
	require.Equal(t, int64(7), fin.LeafIndex)
	require.NotNil(t, fin.Nullifier)

	// Original untouched.
	require.Equal(t, LeafIndexUnset, n.LeafIndex)
	require.Nil(t, n.Nullifier)

	want, err := zkhash.Poseidon3(n.NullifierPreimage, n.Secret, big.NewInt(7))
	require.NoError(t, err)
	require.Equal(t, want, fin.Nullifier)
}

// TestNullifierBindsLeafIndex: identical secrets at two indices yield
// distinct nullifiers.
func TestNullifierBindsLeafIndex(t *testing.T) {
	owner := newOwner(t)
	n, err := New(rand.Reader, 5, owner.Pub, testToken)
	require.NoError(t, err)

	f0, err := n.Finalize(0)
	require.NoError(t, err)
	f1, err := n.Finalize(1)
	require.NoError(t, err)
	require.NotEqual(t, 0, f0.Nullifier.Cmp(f1.Nullifier))
}

func TestFromSecretsRoundTrip(t *testing.T) {
	owner := newOwner(t)
	n, err := New(rand.Reader, 123, owner.Pub, testToken)
	require.NoError(t, err)
	fin, err := n.Finalize(9)
	require.NoError(t, err)

	rebuilt, err := FromSecrets(n.Amount, n.Blinding, n.Secret, n.NullifierPreimage,
		owner.Pub, testToken, 9)
	require.NoError(t, err)

	cmA, err := fin.Commitment()
	require.NoError(t, err)
	cmB, err := rebuilt.Commitment()
	require.NoError(t, err)
	require.Equal(t, cmA, cmB)
	require.Equal(t, fin.Nullifier, rebuilt.Nullifier)
}

func TestStore(t *testing.T) {
	owner := newOwner(t)
	s := NewStore()

	otherToken := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	var finalized []*Note
	for i := 0; i < 3; i++ {
		n, err := New(rand.Reader, uint64(i+1), owner.Pub, testToken)
		require.NoError(t, err)
		fin, err := n.Finalize(uint64(i))
		require.NoError(t, err)
		s.Save(fin)
		finalized = append(finalized, fin)
	}
	other, err := New(rand.Reader, 99, owner.Pub, otherToken)
	require.NoError(t, err)
	s.Save(other)

	require.Len(t, s.GetAll(&testToken), 3)
	require.Len(t, s.GetAll(nil), 4)
	require.Len(t, s.GetUnspent(&testToken), 3)

	nf := finalized[1].Nullifier.String()
	require.True(t, s.MarkSpent(nf))
	require.Len(t, s.GetUnspent(&testToken), 2)
	require.Len(t, s.GetAll(&testToken), 3, "spent notes are retained")

	require.False(t, s.MarkSpent("12345"), "unknown nullifier")

	require.True(t, s.MarkUnspent(nf))
	require.Len(t, s.GetUnspent(&testToken), 3)
}
