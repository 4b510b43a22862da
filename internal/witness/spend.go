// spend.go - Spend state machine and the external prover seam.
//
// A spend walks idle -> building_witness -> proving -> encoding_proof ->
// submitted -> confirmed | rejected. Until it is submitted the spend is
// purely local and cancellable; once submitted it owns a pending record until
// the chain resolves it. A Spend tracks one attempt only; it does not order
// attempts, so two spends of the same note can be built concurrently.

package witness

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/consensys/gnark/backend/groth16"

	"zktoken/internal/note"
)

// Prover is the externally-supplied Groth16 routine. The engine only defines
// the witness it consumes and the proof bytes it emits.
type Prover interface {
	ProveTransfer(ctx context.Context, w *TransferWitness) (groth16.Proof, error)
	ProveWithdraw(ctx context.Context, w *WithdrawWitness) (groth16.Proof, error)
}

// State is a spend's position in its lifecycle.
type State int

const (
	StateIdle State = iota
	StateBuildingWitness
	StateProving
	StateEncodingProof
	StateSubmitted
	StateConfirmed
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBuildingWitness:
		return "building_witness"
	case StateProving:
		return "proving"
	case StateEncodingProof:
		return "encoding_proof"
	case StateSubmitted:
		return "submitted"
	case StateConfirmed:
		return "confirmed"
	case StateRejected:
		return "rejected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	// ErrBadTransition is returned for out-of-order lifecycle moves.
	ErrBadTransition = errors.New("witness: invalid spend state transition")
	// ErrNotCancellable is returned when cancelling a spend that already
	// left the local phase.
	ErrNotCancellable = errors.New("witness: spend already submitted")
)

// Spend is the pending record of one spend attempt.
type Spend struct {
	mu    sync.Mutex
	state State

	// Nullifier of the input note, recorded at witness build time.
	Nullifier *big.Int
	// PendingOutputs are the output notes awaiting leaf indices from the
	// confirmation event.
	PendingOutputs []*note.Note
	// EncodedProof and Signals are set once encoding completes.
	EncodedProof [ProofBytes]byte
	Signals      []*big.Int
}

// NewSpend returns a spend in the idle state.
func NewSpend() *Spend {
	return &Spend{state: StateIdle}
}

// State returns the current lifecycle state.
func (s *Spend) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Advance moves the spend to next, enforcing the forward-only order and the
// submitted -> confirmed|rejected fork.
func (s *Spend) Advance(next State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok := false
	switch s.state {
	case StateIdle:
		ok = next == StateBuildingWitness
	case StateBuildingWitness:
		ok = next == StateProving
	case StateProving:
		ok = next == StateEncodingProof
	case StateEncodingProof:
		ok = next == StateSubmitted
	case StateSubmitted:
		ok = next == StateConfirmed || next == StateRejected
	}
	if !ok {
		return fmt.Errorf("%w: %s -> %s", ErrBadTransition, s.state, next)
	}
	s.state = next
	return nil
}

// Cancel abandons a spend that has not been submitted. The sampled output
// secrets are dropped with the record; there is no on-chain side effect.
func (s *Spend) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateIdle, StateBuildingWitness, StateProving, StateEncodingProof:
		s.state = StateRejected
		s.PendingOutputs = nil
		return nil
	default:
		return ErrNotCancellable
	}
}
