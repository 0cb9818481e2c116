// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package strategy

import (
	"context"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/feebump"
	"github.com/btcsuite/feebump/broadcast"
	"github.com/btcsuite/feebump/fees"
	"github.com/btcsuite/feebump/signer"
	"github.com/btcsuite/feebump/txbuilder"
	"github.com/btcsuite/feebump/utxo"
)

// RBF accelerates a signaling transaction by replacing it with one spending
// the same input and paying a higher fee (BIP 125).
type RBF struct {
	relayed
}

// A compile-time assertion that RBF implements Strategy.
var _ Strategy = (*RBF)(nil)

// Kind returns txbuilder.RBF.
func (*RBF) Kind() txbuilder.Strategy {
	return txbuilder.RBF
}

// InputCount returns one: the original and its replacement share it.
func (*RBF) InputCount() int {
	return 1
}

// request returns the payment both transactions make: half the input to the
// demo key, the rest back as change.
func (*RBF) request(env *Env, role txbuilder.Role) *txbuilder.Request {
	input := env.Inputs[0]
	return &txbuilder.Request{
		Strategy:     txbuilder.RBF,
		Role:         role,
		Inputs:       []utxo.UnspentOutput{input},
		Destination:  env.Key.PkScript,
		Amount:       input.Amount / 2,
		ChangeScript: env.Key.PkScript,
	}
}

// BuildOriginal builds a replaceable payment at the stuck fee rate.
func (s *RBF) BuildOriginal(_ context.Context,
	env *Env) (*signer.SignedTx, error) {

	req := s.request(env, txbuilder.Original)
	req.FeeRate = btcutil.Amount(env.stuckFeeRate())
	return env.build(req, fees.Prior{})
}

// BuildAccelerant builds the same payment paying enough to replace the
// original.  The original must signal replaceability.
func (s *RBF) BuildAccelerant(_ context.Context, env *Env,
	original *signer.SignedTx) (*signer.SignedTx, error) {

	if !txbuilder.SignalsReplacement(original.Tx) {
		return nil, feebump.Errorf(feebump.NonStandard,
			"original %v does not signal replaceability",
			original.TxID)
	}

	prior := fees.Prior{Fee: original.Fee, VSize: original.VSize}
	return env.buildAtRequired(s.request(env, txbuilder.Accelerant), prior)
}

// Expect checks the original was evicted in favor of the replacement, then
// mines the replacement.
func (*RBF) Expect(ctx context.Context, env *Env,
	original, accelerant *signer.SignedTx) ([]broadcast.Observation, error) {

	evicted, err := env.Monitor.Observe(ctx, original.TxID,
		broadcast.Evicted, env.deadline())
	if err != nil {
		return nil, err
	}
	replacement, err := env.Monitor.Observe(ctx, accelerant.TxID,
		broadcast.InMempool, env.deadline())
	if err != nil {
		return nil, err
	}
	log.Infof("Replacement %v evicted %v at %v", accelerant.TxID,
		original.TxID, fees.RateOf(replacement.Fee, replacement.VSize))

	if err := env.mine(ctx); err != nil {
		return nil, err
	}
	confirmed, err := env.Monitor.Observe(ctx, accelerant.TxID,
		broadcast.Confirmed, env.deadline())
	if err != nil {
		return nil, err
	}
	return []broadcast.Observation{evicted, confirmed}, nil
}
