// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/feebump"
	"github.com/btcsuite/feebump/broadcast"
	"github.com/btcsuite/feebump/fees"
	"github.com/btcsuite/feebump/node"
	"github.com/btcsuite/feebump/signer"
	"github.com/btcsuite/feebump/txbuilder"
	"github.com/btcsuite/feebump/utxo"
)

const (
	// DefaultStuckFeeRate is the rate originals pay: the default minimum
	// relay fee, low enough to be outbid by any accelerant.
	DefaultStuckFeeRate = fees.DefaultMinRelayFee

	// DefaultObserveTimeout bounds every wait on the node.
	DefaultObserveTimeout = 30 * time.Second

	// DefaultMinInputAmount is the smallest wallet output a strategy
	// spends.  It leaves room for every fee a strategy pays.
	DefaultMinInputAmount btcutil.Amount = 100_000
)

// Env holds what a strategy works with.  The runner hands each strategy a
// copy with Inputs filled in.
type Env struct {
	Node        node.Node
	Keys        signer.KeySource
	Key         *signer.Key
	Calculator  *fees.Calculator
	Broadcaster *broadcast.Broadcaster
	Monitor     *broadcast.Monitor

	// StuckFeeRate is the rate RBF originals and CPFP parents pay.
	StuckFeeRate fees.SatPerKVByte

	// ObserveTimeout bounds each wait for a transaction condition.
	ObserveTimeout time.Duration

	// MinInputAmount is the smallest wallet output selected.
	MinInputAmount btcutil.Amount

	// Constraint restricts the wallet outputs the runner selects.
	Constraint utxo.Constraint

	// Inputs are the wallet outputs selected for the current run.
	Inputs []utxo.UnspentOutput
}

// deadline returns the deadline of a wait starting now.
func (e *Env) deadline() time.Time {
	timeout := e.ObserveTimeout
	if timeout <= 0 {
		timeout = DefaultObserveTimeout
	}
	return time.Now().Add(timeout)
}

// build builds and signs req, then checks its fee against the relay policy.
func (e *Env) build(req *txbuilder.Request, prior fees.Prior) (*signer.SignedTx,
	error) {

	unsigned, err := txbuilder.Build(req)
	if err != nil {
		return nil, err
	}
	signed, err := signer.Sign(unsigned, e.Keys)
	if err != nil {
		return nil, err
	}
	err = e.Calculator.Check(signed.Tx, signed.Fee, req.Strategy, req.Role,
		prior)
	if err != nil {
		return nil, err
	}

	log.Debugf("Built %v %v transaction %v: fee %v, %d vbytes (%v)",
		signed.Strategy, signed.Role, signed.TxID, signed.Fee, signed.VSize,
		fees.RateOf(signed.Fee, signed.VSize))

	return signed, nil
}

// buildAtRequired builds req paying the fee the calculator requires for its
// estimated size, and never less than the target rate for RBF.  The request
// is built twice: once to learn its size, once with the final fee.
func (e *Env) buildAtRequired(req *txbuilder.Request,
	prior fees.Prior) (*signer.SignedTx, error) {

	estimate, err := txbuilder.Build(req)
	if err != nil {
		return nil, err
	}

	vsize := estimate.EstimatedVSize
	required := e.Calculator.Required(vsize, req.Strategy, req.Role, prior)
	fee := required.MinFee
	if req.Strategy == txbuilder.RBF {
		target := e.Calculator.Policy().TargetFeeRate.FeeForVSize(vsize)
		if target > fee {
			fee = target
		}
	}

	log.Debugf("%v %v requires %v (%v) at %d estimated vbytes, paying %v",
		req.Strategy, req.Role, required.MinFee, required.MinFeeRate,
		vsize, fee)

	req.FeeRate = 0
	req.Fee = fee
	return e.build(req, prior)
}

// mine confirms the mempool by mining one block to the demo key.
func (e *Env) mine(ctx context.Context) error {
	hashes, err := e.Node.GenerateToAddress(ctx, 1, e.Key.Address)
	if err != nil {
		return err
	}
	if len(hashes) != 1 {
		return feebump.Errorf(feebump.Unknown, "mined %d blocks, "+
			"expected 1", len(hashes))
	}
	log.Infof("Mined block %v", hashes[0])
	return nil
}

// Strategy is one way of accelerating a stuck transaction.  A run builds
// the original, makes sure it is stuck, then builds and submits the
// accelerant and checks the node's reaction.
type Strategy interface {
	// Kind returns the strategy implemented.
	Kind() txbuilder.Strategy

	// InputCount returns the number of wallet outputs a run spends.
	InputCount() int

	// BuildOriginal builds the transaction that gets stuck.
	BuildOriginal(ctx context.Context, env *Env) (*signer.SignedTx, error)

	// SubmitOriginal submits the original, if it can be submitted alone.
	SubmitOriginal(ctx context.Context, env *Env,
		original *signer.SignedTx) error

	// ConfirmStuck verifies that the original is not confirming by itself.
	ConfirmStuck(ctx context.Context, env *Env,
		original *signer.SignedTx) error

	// BuildAccelerant builds the transaction that speeds up the original.
	BuildAccelerant(ctx context.Context, env *Env,
		original *signer.SignedTx) (*signer.SignedTx, error)

	// SubmitAccelerant submits the accelerant.
	SubmitAccelerant(ctx context.Context, env *Env,
		original, accelerant *signer.SignedTx) error

	// Expect checks that the node reacted to the accelerant as the
	// strategy predicts and returns the final observations.
	Expect(ctx context.Context, env *Env,
		original, accelerant *signer.SignedTx) ([]broadcast.Observation, error)
}

// New returns the strategy of the given kind.
func New(kind txbuilder.Strategy) (Strategy, error) {
	switch kind {
	case txbuilder.RBF:
		return &RBF{}, nil
	case txbuilder.CPFP:
		return &CPFP{}, nil
	case txbuilder.P2A:
		return &P2A{}, nil
	}
	return nil, feebump.Errorf(feebump.Unknown, "unknown strategy %v", kind)
}

// All returns every strategy in the order they are demonstrated.
func All() []Strategy {
	return []Strategy{&RBF{}, &CPFP{}, &P2A{}}
}

// relayed provides the steps shared by strategies whose original relays on
// its own.
type relayed struct{}

// SubmitOriginal sends the original to the node.
func (relayed) SubmitOriginal(ctx context.Context, env *Env,
	original *signer.SignedTx) error {

	_, err := env.Broadcaster.Submit(ctx, original)
	return err
}

// ConfirmStuck waits until the original is in the mempool.  Being there
// rather than in a block is what stuck means on a node that only mines on
// request.
func (relayed) ConfirmStuck(ctx context.Context, env *Env,
	original *signer.SignedTx) error {

	obs, err := env.Monitor.Observe(ctx, original.TxID, broadcast.InMempool,
		env.deadline())
	if err != nil {
		return err
	}
	log.Infof("Original %v is stuck in the mempool at %v",
		original.TxID, fees.RateOf(obs.Fee, obs.VSize))
	return nil
}

// SubmitAccelerant sends the accelerant to the node.
func (relayed) SubmitAccelerant(ctx context.Context, env *Env,
	_, accelerant *signer.SignedTx) error {

	_, err := env.Broadcaster.Submit(ctx, accelerant)
	return err
}

// expectPackage waits until child and its parent are in the mempool with a
// package rate of at least the target, then mines a block and checks both
// confirmed in it.
func expectPackage(ctx context.Context, env *Env,
	parent, child *signer.SignedTx) ([]broadcast.Observation, error) {

	if _, err := env.Monitor.Observe(ctx, parent.TxID, broadcast.InMempool,
		env.deadline()); err != nil {

		return nil, err
	}
	obs, err := env.Monitor.Observe(ctx, child.TxID, broadcast.InMempool,
		env.deadline())
	if err != nil {
		return nil, err
	}

	target := env.Calculator.Policy().TargetFeeRate
	if rate := obs.AncestorFeeRate(); rate < target {
		return nil, feebump.Wrap(feebump.FeeTooLow, fmt.Sprintf(
			"package of %v pays %v, below target %v", child.TxID,
			rate, target), fees.ErrPackageFeeRate)
	}
	log.Infof("Package %v+%v in mempool at %v (%d ancestors)",
		parent.TxID, child.TxID, obs.AncestorFeeRate(), obs.AncestorCount)

	if err := env.mine(ctx); err != nil {
		return nil, err
	}
	return env.Monitor.ObserveAll(ctx, []chainhash.Hash{
		parent.TxID, child.TxID,
	}, env.deadline())
}

// stuckFeeRate returns the configured stuck rate or the default.
func (e *Env) stuckFeeRate() fees.SatPerKVByte {
	if e.StuckFeeRate <= 0 {
		return DefaultStuckFeeRate
	}
	return e.StuckFeeRate
}
