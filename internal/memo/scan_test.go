package memo

import (
	"crypto/rand"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"zktoken/internal/curve"
	"zktoken/internal/keys"
	"zktoken/internal/note"
)

func curvePointFromInts(t *testing.T, x, y int64) curve.Point {
	t.Helper()
	return curve.FromBig(big.NewInt(x), big.NewInt(y))
}

// sealNoteFor mints a note to the recipient, seals its secrets, and returns
// the event the chain would emit for it.
func sealNoteFor(t *testing.T, recipient keys.KeyPair, amount uint64, leafIndex uint64,
	token common.Address) Event {
	t.Helper()
	n, err := note.New(rand.Reader, amount, recipient.Pub, token)
	require.NoError(t, err)
	cm, err := n.Commitment()
	require.NoError(t, err)
	sealed, err := Encrypt(rand.Reader, Secrets{
		Amount:            n.Amount,
		Blinding:          n.Blinding,
		Secret:            n.Secret,
		NullifierPreimage: n.NullifierPreimage,
	}, recipient.Pub)
	require.NoError(t, err)
	return Event{Memo: sealed, Commitment: cm, LeafIndex: leafIndex, Token: token}
}

// TestScanMixedStream: of 10 events, 3 are addressed to A and 7 to B; a scan
// with A's key returns exactly the 3 with matching commitments.
func TestScanMixedStream(t *testing.T) {
	token := common.HexToAddress("0x00000000000000000000000000000000000000cc")
	a, err := keys.Generate(rand.Reader)
	require.NoError(t, err)
	b, err := keys.Generate(rand.Reader)
	require.NoError(t, err)

	var events []Event
	aLeaves := map[uint64]bool{0: true, 4: true, 8: true}
	for i := uint64(0); i < 10; i++ {
		if aLeaves[i] {
			events = append(events, sealNoteFor(t, a, 100+i, i, token))
		} else {
			events = append(events, sealNoteFor(t, b, 200+i, i, token))
		}
	}

	found := Scan(events, a)
	require.Len(t, found, 3)
	for _, n := range found {
		require.True(t, aLeaves[uint64(n.LeafIndex)])
		require.True(t, n.OwnerPub.Equal(a.Pub))
		require.NotNil(t, n.Nullifier, "scanned notes arrive finalized")
	}

	require.Len(t, Scan(events, b), 7)
}

// TestScanDiscardsCommitmentMismatch: a decryptable memo whose event carries
// a different commitment is dropped.
func TestScanDiscardsCommitmentMismatch(t *testing.T) {
	token := common.HexToAddress("0x00000000000000000000000000000000000000cc")
	a, err := keys.Generate(rand.Reader)
	require.NoError(t, err)

	ev := sealNoteFor(t, a, 500, 0, token)
	ev.Commitment = new(big.Int).Add(ev.Commitment, big.NewInt(1))
	require.Empty(t, Scan([]Event{ev}, a))
}

func TestScanIgnoresGarbageMemos(t *testing.T) {
	a, err := keys.Generate(rand.Reader)
	require.NoError(t, err)
	events := []Event{
		{Memo: []byte("short"), Commitment: big.NewInt(1), LeafIndex: 0},
		{Memo: make([]byte, MemoBytes), Commitment: big.NewInt(2), LeafIndex: 1},
	}
	require.Empty(t, Scan(events, a))
}
