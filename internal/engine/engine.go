// engine.go - Client engine: note lifecycle, spend orchestration, event
// ingestion.
//
// The engine owns the two long-lived pieces of mutable state (note store and
// tree mirror) and serializes everything that touches them. Spends follow the
// witness state machine; deposits skip the prover entirely. Chain I/O and
// proving happen through injected interfaces and may block for real time;
// the engine awaits them cooperatively and holds no locks across either.

package engine

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"zktoken/internal/curve"
	"zktoken/internal/keys"
	"zktoken/internal/memo"
	"zktoken/internal/merkle"
	"zktoken/internal/note"
	"zktoken/internal/witness"
)

// ErrChainReject is surfaced when the verifier returned false or the pool
// contract reverted (unknown root, spent nullifier). Local note state is
// rolled back before this is returned.
var ErrChainReject = errors.New("engine: chain rejected submission")

// ErrOutOfOrderEvent is returned when a block arrives below the ingestion
// high-water mark; replaying out of order would corrupt the tree mirror.
var ErrOutOfOrderEvent = errors.New("engine: event below ingestion high-water mark")

// OutputRecord is one freshly minted commitment inside a chain event.
type OutputRecord struct {
	Commitment *big.Int
	LeafIndex  uint64
	Memo       []byte
}

// ChainEvent is the pool contract's event payload: the consumed nullifier (if
// any) plus every new output with its assigned leaf index and sealed memo.
type ChainEvent struct {
	Block     uint64
	Token     common.Address
	Nullifier *big.Int
	Outputs   []OutputRecord
}

// Chain is the transport boundary. Submissions return ErrChainReject (or a
// wrapped form of it) when the verifier refuses the payload.
type Chain interface {
	SubmitDeposit(ctx context.Context, token common.Address, commitment *big.Int, sealedMemo []byte) error
	SubmitTransfer(ctx context.Context, token common.Address, proof [witness.ProofBytes]byte,
		signals []*big.Int, memos [2][]byte) error
	SubmitWithdraw(ctx context.Context, token common.Address, proof [witness.ProofBytes]byte,
		signals []*big.Int, changeMemo []byte) error
}

// Engine is one wallet's view of the shielded pool.
type Engine struct {
	log    zerolog.Logger
	wallet keys.KeyPair
	store  *note.Store
	tree   *merkle.Tree
	prover witness.Prover
	chain  Chain

	mu              sync.Mutex
	ingestedBlock   uint64
	pendingSpends   map[string]*witness.Spend // keyed by input nullifier
	pendingDeposits map[string]*note.Note     // keyed by commitment
}

// New wires an engine for the given wallet key.
func New(log zerolog.Logger, wallet keys.KeyPair, prover witness.Prover, chain Chain) (*Engine, error) {
	tree, err := merkle.NewTree()
	if err != nil {
		return nil, err
	}
	return &Engine{
		log:             log.With().Str("component", "engine").Logger(),
		wallet:          wallet,
		store:           note.NewStore(),
		tree:            tree,
		prover:          prover,
		chain:           chain,
		pendingSpends:   make(map[string]*witness.Spend),
		pendingDeposits: make(map[string]*note.Note),
	}, nil
}

// Store exposes the note store for read access.
func (e *Engine) Store() *note.Store { return e.store }

// Tree exposes the tree mirror for read access.
func (e *Engine) Tree() *merkle.Tree { return e.tree }

// Deposit mints a note for amount, seals its secrets to the wallet's own key
// for recovery, and submits the commitment. The note stays pending until the
// chain reports its leaf index through the event stream.
func (e *Engine) Deposit(ctx context.Context, token common.Address, amount uint64) (*note.Note, error) {
	n, err := note.New(rand.Reader, amount, e.wallet.Pub, token)
	if err != nil {
		return nil, err
	}
	cm, err := n.Commitment()
	if err != nil {
		return nil, err
	}
	sealed, err := memo.Encrypt(rand.Reader, memo.Secrets{
		Amount:            n.Amount,
		Blinding:          n.Blinding,
		Secret:            n.Secret,
		NullifierPreimage: n.NullifierPreimage,
	}, e.wallet.Pub)
	if err != nil {
		return nil, err
	}
	if err := e.chain.SubmitDeposit(ctx, token, cm, sealed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChainReject, err)
	}
	e.mu.Lock()
	e.pendingDeposits[cm.String()] = n
	e.mu.Unlock()
	e.log.Info().Str("commitment", cm.String()).Uint64("amount", amount).Msg("deposit submitted")
	return n, nil
}

// Transfer spends input into sendAmount for the recipient plus change back to
// the wallet, driving the full witness -> prove -> encode -> submit pipeline.
// On chain rejection the input note is restored to unspent and ErrChainReject
// returned.
func (e *Engine) Transfer(ctx context.Context, input *note.Note, recipientPub curve.Point,
	sendAmount uint64) (*witness.Spend, error) {

	spend := witness.NewSpend()
	if err := spend.Advance(witness.StateBuildingWitness); err != nil {
		return nil, err
	}
	path, err := e.tree.GetPath(uint64(input.LeafIndex))
	if err != nil {
		return nil, fmt.Errorf("engine: path for leaf %d: %w", input.LeafIndex, err)
	}
	w, err := witness.BuildTransfer(rand.Reader, input, e.wallet.Priv, recipientPub, sendAmount, path)
	if err != nil {
		return nil, err
	}
	spend.Nullifier = w.NullifierHash
	outs := w.OutputNotes(input.TokenAddress)
	spend.PendingOutputs = outs[:]

	if err := spend.Advance(witness.StateProving); err != nil {
		return nil, err
	}
	proof, err := e.prover.ProveTransfer(ctx, w)
	if err != nil {
		return nil, fmt.Errorf("engine: prover: %w", err)
	}

	if err := spend.Advance(witness.StateEncodingProof); err != nil {
		return nil, err
	}
	pp, err := witness.FromGroth16(proof)
	if err != nil {
		return nil, err
	}
	spend.EncodedProof = pp.Encode()
	spend.Signals = w.PublicSignals()

	memos, err := e.sealTransferMemos(w, recipientPub)
	if err != nil {
		return nil, err
	}

	if err := spend.Advance(witness.StateSubmitted); err != nil {
		return nil, err
	}
	e.trackSpend(spend)

	if err := e.chain.SubmitTransfer(ctx, input.TokenAddress, spend.EncodedProof, spend.Signals, memos); err != nil {
		e.rejectSpend(spend)
		return spend, fmt.Errorf("%w: %v", ErrChainReject, err)
	}
	e.log.Info().Str("nullifier", spend.Nullifier.String()).Msg("transfer submitted")
	return spend, nil
}

// Withdraw reveals withdrawAmount publicly and returns any remainder as a
// change note to the wallet.
func (e *Engine) Withdraw(ctx context.Context, input *note.Note, withdrawAmount uint64) (*witness.Spend, error) {
	spend := witness.NewSpend()
	if err := spend.Advance(witness.StateBuildingWitness); err != nil {
		return nil, err
	}
	path, err := e.tree.GetPath(uint64(input.LeafIndex))
	if err != nil {
		return nil, fmt.Errorf("engine: path for leaf %d: %w", input.LeafIndex, err)
	}
	w, err := witness.BuildWithdraw(rand.Reader, input, e.wallet.Priv, withdrawAmount, path)
	if err != nil {
		return nil, err
	}
	spend.Nullifier = w.NullifierHash
	if change := w.ChangeNote(input.TokenAddress); change != nil {
		spend.PendingOutputs = []*note.Note{change}
	}

	if err := spend.Advance(witness.StateProving); err != nil {
		return nil, err
	}
	proof, err := e.prover.ProveWithdraw(ctx, w)
	if err != nil {
		return nil, fmt.Errorf("engine: prover: %w", err)
	}

	if err := spend.Advance(witness.StateEncodingProof); err != nil {
		return nil, err
	}
	pp, err := witness.FromGroth16(proof)
	if err != nil {
		return nil, err
	}
	spend.EncodedProof = pp.Encode()
	spend.Signals = w.PublicSignals()

	var changeMemo []byte
	if w.Change != nil {
		changeMemo, err = memo.Encrypt(rand.Reader, memo.Secrets{
			Amount:            w.Change.Amount,
			Blinding:          w.Change.Blinding,
			Secret:            w.Change.Secret,
			NullifierPreimage: w.Change.NullifierPreimage,
		}, e.wallet.Pub)
		if err != nil {
			return nil, err
		}
	}

	if err := spend.Advance(witness.StateSubmitted); err != nil {
		return nil, err
	}
	e.trackSpend(spend)

	if err := e.chain.SubmitWithdraw(ctx, input.TokenAddress, spend.EncodedProof, spend.Signals, changeMemo); err != nil {
		e.rejectSpend(spend)
		return spend, fmt.Errorf("%w: %v", ErrChainReject, err)
	}
	e.log.Info().Str("nullifier", spend.Nullifier.String()).Uint64("amount", withdrawAmount).Msg("withdraw submitted")
	return spend, nil
}

// sealTransferMemos seals output secrets for the recipient and for the
// wallet's own change note.
func (e *Engine) sealTransferMemos(w *witness.TransferWitness, recipientPub curve.Point) ([2][]byte, error) {
	var memos [2][]byte
	targets := [2]curve.Point{recipientPub, e.wallet.Pub}
	for i, o := range w.Outputs {
		sealed, err := memo.Encrypt(rand.Reader, memo.Secrets{
			Amount:            o.Amount,
			Blinding:          o.Blinding,
			Secret:            o.Secret,
			NullifierPreimage: o.NullifierPreimage,
		}, targets[i])
		if err != nil {
			return memos, err
		}
		memos[i] = sealed
	}
	return memos, nil
}

// trackSpend records the pending spend. The input note stays unspent in the
// store until its nullifier is observed during ingestion; rejection drops the
// pending record.
func (e *Engine) trackSpend(spend *witness.Spend) {
	e.mu.Lock()
	e.pendingSpends[spend.Nullifier.String()] = spend
	e.mu.Unlock()
}

func (e *Engine) rejectSpend(spend *witness.Spend) {
	e.mu.Lock()
	delete(e.pendingSpends, spend.Nullifier.String())
	e.mu.Unlock()
	e.store.MarkUnspent(spend.Nullifier.String())
	if err := spend.Advance(witness.StateRejected); err != nil {
		e.log.Warn().Err(err).Msg("reject transition")
	}
	e.log.Warn().Str("nullifier", spend.Nullifier.String()).Msg("spend rejected, note restored")
}

// IngestEvent applies one chain event in block order: insert new commitments
// into the tree mirror, mark consumed nullifiers spent, resolve pending
// deposits and spends, and scan memos for notes addressed to this wallet.
func (e *Engine) IngestEvent(ev ChainEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if ev.Block < e.ingestedBlock {
		return fmt.Errorf("%w: block %d < %d", ErrOutOfOrderEvent, ev.Block, e.ingestedBlock)
	}
	e.ingestedBlock = ev.Block

	var scanEvents []memo.Event
	for _, out := range ev.Outputs {
		idx, _, err := e.tree.Insert(out.Commitment)
		if err != nil {
			return fmt.Errorf("engine: tree insert: %w", err)
		}
		if idx != out.LeafIndex {
			return fmt.Errorf("engine: leaf index drift: chain says %d, mirror assigned %d", out.LeafIndex, idx)
		}

		if pending, ok := e.pendingDeposits[out.Commitment.String()]; ok {
			finalized, err := pending.Finalize(out.LeafIndex)
			if err != nil {
				return err
			}
			e.store.Save(finalized)
			delete(e.pendingDeposits, out.Commitment.String())
			e.log.Info().Uint64("leaf", out.LeafIndex).Msg("deposit finalized")
			continue
		}
		if len(out.Memo) > 0 {
			scanEvents = append(scanEvents, memo.Event{
				Memo:       out.Memo,
				Commitment: out.Commitment,
				LeafIndex:  out.LeafIndex,
				Block:      ev.Block,
				Token:      ev.Token,
			})
		}
	}

	if ev.Nullifier != nil {
		key := ev.Nullifier.String()
		e.store.MarkSpent(key)
		if spend, ok := e.pendingSpends[key]; ok {
			if err := spend.Advance(witness.StateConfirmed); err != nil {
				e.log.Warn().Err(err).Msg("confirm transition")
			}
			delete(e.pendingSpends, key)
			e.log.Info().Str("nullifier", key).Msg("spend confirmed")
		}
	}

	for _, n := range memo.Scan(scanEvents, e.wallet) {
		e.store.Save(n)
		e.log.Info().Int64("leaf", n.LeafIndex).Uint64("amount", n.Amount).Msg("note unlocked from memo")
	}
	return nil
}

// IngestBlock applies a batch of events from one block in order.
func (e *Engine) IngestBlock(events []ChainEvent) error {
	for _, ev := range events {
		if err := e.IngestEvent(ev); err != nil {
			return err
		}
	}
	return nil
}
