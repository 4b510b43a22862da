// main.go - Two-wallet demo scenario against an in-process loopback chain.
//
// This demonstrates the full client lifecycle without a deployed contract:
//   - wallet A deposits into the pool and finalizes the note from the event
//   - wallet A transfers most of it to wallet B, keeping change
//   - wallet B unlocks its note by scanning the event memos
//   - wallet A withdraws from its change note, revealing the amount
//
// The loopback chain assigns leaf indices and echoes events exactly like the
// pool contract; the prover seam is stubbed with an empty Groth16 proof since
// the compiled circuit artifacts live outside this repository.
//
// Usage:
//
//	go run ./cmd/zktokend
package main

import (
	"context"
	"crypto/rand"
	"errors"
	"log"
	"math/big"
	"sync"
	"time"

	"github.com/consensys/gnark/backend/groth16"
	groth16bn254 "github.com/consensys/gnark/backend/groth16/bn254"
	"github.com/ethereum/go-ethereum/common"

	"zktoken/internal/engine"
	"zktoken/internal/keys"
	"zktoken/internal/witness"
)

// stubProver stands in for the externally-supplied Groth16 routine. It
// returns a zero proof, which exercises the witness and codec paths; a real
// deployment wires the compiled circuit prover here.
type stubProver struct{}

func (stubProver) ProveTransfer(_ context.Context, _ *witness.TransferWitness) (groth16.Proof, error) {
	return &groth16bn254.Proof{}, nil
}

func (stubProver) ProveWithdraw(_ context.Context, _ *witness.WithdrawWitness) (groth16.Proof, error) {
	return &groth16bn254.Proof{}, nil
}

// loopbackChain mimics the pool contract: it assigns leaf indices in arrival
// order and records events for clients to ingest.
type loopbackChain struct {
	mu        sync.Mutex
	nextIndex uint64
	block     uint64
	events    []engine.ChainEvent
}

func (c *loopbackChain) SubmitDeposit(_ context.Context, token common.Address, commitment *big.Int, sealedMemo []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.block++
	c.events = append(c.events, engine.ChainEvent{
		Block: c.block,
		Token: token,
		Outputs: []engine.OutputRecord{
			{Commitment: commitment, LeafIndex: c.next(), Memo: sealedMemo},
		},
	})
	return nil
}

func (c *loopbackChain) SubmitTransfer(_ context.Context, token common.Address, _ [witness.ProofBytes]byte,
	signals []*big.Int, memos [2][]byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.block++
	c.events = append(c.events, engine.ChainEvent{
		Block:     c.block,
		Token:     token,
		Nullifier: signals[1],
		Outputs: []engine.OutputRecord{
			{Commitment: signals[2], LeafIndex: c.next(), Memo: memos[0]},
			{Commitment: signals[3], LeafIndex: c.next(), Memo: memos[1]},
		},
	})
	return nil
}

func (c *loopbackChain) SubmitWithdraw(_ context.Context, token common.Address, _ [witness.ProofBytes]byte,
	signals []*big.Int, changeMemo []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.block++
	ev := engine.ChainEvent{Block: c.block, Token: token, Nullifier: signals[1]}
	if signals[3].Sign() != 0 {
		ev.Outputs = append(ev.Outputs, engine.OutputRecord{
			Commitment: signals[3], LeafIndex: c.next(), Memo: changeMemo,
		})
	}
	c.events = append(c.events, ev)
	return nil
}

func (c *loopbackChain) next() uint64 {
	idx := c.nextIndex
	c.nextIndex++
	return idx
}

// Drain returns and clears the recorded events.
func (c *loopbackChain) Drain() []engine.ChainEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.events
	c.events = nil
	return out
}

func main() {
	cfg, err := LoadConfig("zktokend.json")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, closeLog, err := NewLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer closeLog()

	metrics := NewMetricsCollector()
	limiter := NewSubmitThrottle(cfg.MaxSubmitsPerMinute, time.Minute)
	token := common.HexToAddress(cfg.TokenAddress)

	walletA, err := keys.Generate(rand.Reader)
	if err != nil {
		logger.Fatal().Err(err).Msg("wallet A keygen")
	}
	walletB, err := keys.Generate(rand.Reader)
	if err != nil {
		logger.Fatal().Err(err).Msg("wallet B keygen")
	}
	defer walletA.Zeroize()
	defer walletB.Zeroize()

	chain := &loopbackChain{}
	engA, err := engine.New(logger.With().Str("wallet", "A").Logger(), walletA, stubProver{}, chain)
	if err != nil {
		logger.Fatal().Err(err).Msg("engine A")
	}
	engB, err := engine.New(logger.With().Str("wallet", "B").Logger(), walletB, stubProver{}, chain)
	if err != nil {
		logger.Fatal().Err(err).Msg("engine B")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.TimeoutSeconds)*time.Second)
	defer cancel()

	settle := func() {
		for _, ev := range chain.Drain() {
			if err := engA.IngestEvent(ev); err != nil {
				logger.Fatal().Err(err).Msg("ingest A")
			}
			if err := engB.IngestEvent(ev); err != nil {
				logger.Fatal().Err(err).Msg("ingest B")
			}
			metrics.IncCounter("events_ingested")
		}
	}

	// Deposit 1,000,000 into the pool for wallet A.
	limiter.Wait()
	if _, err := engA.Deposit(ctx, token, 1_000_000); err != nil {
		logger.Fatal().Err(err).Msg("deposit")
	}
	metrics.IncCounter("deposits_submitted")
	settle()

	// Transfer 700,000 to wallet B; 300,000 comes back as change.
	input := engA.Store().GetUnspent(&token)[0]
	limiter.Wait()
	start := time.Now()
	if _, err := engA.Transfer(ctx, input, walletB.Pub, 700_000); err != nil {
		logger.Fatal().Err(err).Msg("transfer")
	}
	metrics.ObserveDuration("transfer_seconds", time.Since(start))
	metrics.IncCounter("transfers_submitted")
	settle()

	for _, n := range engB.Store().GetUnspent(&token) {
		logger.Info().Uint64("amount", n.Amount).Int64("leaf", n.LeafIndex).Msg("wallet B holds")
	}

	// Withdraw 100,000 from wallet A's change note, revealing the amount.
	change := engA.Store().GetUnspent(&token)[0]
	limiter.Wait()
	if _, err := engA.Withdraw(ctx, change, 100_000); err != nil {
		logger.Fatal().Err(err).Msg("withdraw")
	}
	metrics.IncCounter("withdraws_submitted")
	settle()

	health := NewHealthChecker()
	health.Register("tree_mirror", func() error {
		if engA.Tree().Root().Cmp(engB.Tree().Root()) != 0 {
			return errMirrorDiverged
		}
		return nil
	})
	health.RunChecks()

	metrics.SetGauge("tree_leaves", float64(engA.Tree().NextIndex()))
	logger.Info().
		Str("health", string(health.Overall())).
		Dur("uptime", health.Uptime()).
		Msg("scenario complete")
	log.Print("\n" + metrics.Report())
}

var errMirrorDiverged = errors.New("wallet tree mirrors diverged")
