// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package strategy

import (
	"context"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/feebump/broadcast"
	"github.com/btcsuite/feebump/fees"
	"github.com/btcsuite/feebump/signer"
	"github.com/btcsuite/feebump/txbuilder"
	"github.com/btcsuite/feebump/utxo"
)

// CPFP accelerates a low fee parent with a child spending one of its
// outputs and paying for both.
type CPFP struct {
	relayed
}

// A compile-time assertion that CPFP implements Strategy.
var _ Strategy = (*CPFP)(nil)

// Kind returns txbuilder.CPFP.
func (*CPFP) Kind() txbuilder.Strategy {
	return txbuilder.CPFP
}

// InputCount returns one: the child only spends the parent.
func (*CPFP) InputCount() int {
	return 1
}

// BuildOriginal builds a final parent at the stuck fee rate paying half the
// input to the demo key, the rest back as change.
func (*CPFP) BuildOriginal(_ context.Context,
	env *Env) (*signer.SignedTx, error) {

	input := env.Inputs[0]
	return env.build(&txbuilder.Request{
		Strategy:     txbuilder.CPFP,
		Role:         txbuilder.Original,
		Inputs:       []utxo.UnspentOutput{input},
		Destination:  env.Key.PkScript,
		Amount:       input.Amount / 2,
		ChangeScript: env.Key.PkScript,
		FeeRate:      btcutil.Amount(env.stuckFeeRate()),
	}, fees.Prior{})
}

// BuildAccelerant sweeps the first output of the parent paying enough to
// lift the package to the target rate.
func (*CPFP) BuildAccelerant(_ context.Context, env *Env,
	original *signer.SignedTx) (*signer.SignedTx, error) {

	paid := original.Tx.TxOut[0]
	return env.buildAtRequired(&txbuilder.Request{
		Strategy: txbuilder.CPFP,
		Role:     txbuilder.Accelerant,
		Inputs: []utxo.UnspentOutput{{
			TxID:     original.TxID,
			Index:    0,
			Amount:   btcutil.Amount(paid.Value),
			PkScript: paid.PkScript,
		}},
		Destination: env.Key.PkScript,
		Parents: map[chainhash.Hash]txbuilder.Parent{
			original.TxID: {
				Version: original.Tx.Version,
				VSize:   original.VSize,
				Fee:     original.Fee,
			},
		},
	}, fees.Prior{Fee: original.Fee, VSize: original.VSize})
}

// Expect checks parent and child sit in the mempool at the target package
// rate, then mines them together.
func (*CPFP) Expect(ctx context.Context, env *Env,
	original, accelerant *signer.SignedTx) ([]broadcast.Observation, error) {

	return expectPackage(ctx, env, original, accelerant)
}
