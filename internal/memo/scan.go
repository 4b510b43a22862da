// scan.go - Recipient-side scan over the public event stream.

package memo

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"zktoken/internal/keys"
	"zktoken/internal/note"
)

// Event is one output-note event as emitted by the pool contract: the sealed
// memo, the note commitment, and the leaf index the tree assigned to it.
type Event struct {
	Memo       []byte
	Commitment *big.Int
	LeafIndex  uint64
	Block      uint64
	Token      common.Address
}

// Scan attempts to open every event's memo with the recipient key. Each
// successful decryption is rebuilt into a finalized note owned by kp.Pub; the
// note is kept only if its recomputed commitment equals the commitment the
// event carried, which weeds out both garbage and memos sealed to a colliding
// key. Failures are silent per event.
func Scan(events []Event, kp keys.KeyPair) []*note.Note {
	var found []*note.Note
	for _, ev := range events {
		s, err := Decrypt(ev.Memo, kp.Priv)
		if err != nil {
			continue
		}
		n, err := note.FromSecrets(s.Amount, s.Blinding, s.Secret, s.NullifierPreimage,
			kp.Pub, ev.Token, int64(ev.LeafIndex))
		if err != nil {
			continue
		}
		cm, err := n.Commitment()
		if err != nil || ev.Commitment == nil || cm.Cmp(ev.Commitment) != 0 {
			continue
		}
		found = append(found, n)
	}
	return found
}
