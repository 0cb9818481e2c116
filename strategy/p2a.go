// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package strategy

import (
	"context"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/feebump"
	"github.com/btcsuite/feebump/broadcast"
	"github.com/btcsuite/feebump/fees"
	"github.com/btcsuite/feebump/signer"
	"github.com/btcsuite/feebump/txbuilder"
	"github.com/btcsuite/feebump/utxo"
)

// P2A accelerates a zero fee TRUC parent carrying a pay-to-anchor output
// with a child spending the anchor and a wallet output.  The parent only
// relays as part of the package.
type P2A struct{}

// A compile-time assertion that P2A implements Strategy.
var _ Strategy = (*P2A)(nil)

// Kind returns txbuilder.P2A.
func (*P2A) Kind() txbuilder.Strategy {
	return txbuilder.P2A
}

// InputCount returns two: one for the parent, one paying the child's fee.
func (*P2A) InputCount() int {
	return 2
}

// BuildOriginal builds the zero fee parent sweeping the first input to the
// demo key next to the anchor.
func (*P2A) BuildOriginal(_ context.Context,
	env *Env) (*signer.SignedTx, error) {

	return env.build(&txbuilder.Request{
		Strategy:    txbuilder.P2A,
		Role:        txbuilder.Original,
		Inputs:      env.Inputs[:1],
		Destination: env.Key.PkScript,
	}, fees.Prior{})
}

// SubmitOriginal does nothing: a zero fee parent cannot be relayed alone.
func (*P2A) SubmitOriginal(context.Context, *Env, *signer.SignedTx) error {
	return nil
}

// ConfirmStuck checks the node refuses the parent on its own for paying too
// little.
func (*P2A) ConfirmStuck(ctx context.Context, env *Env,
	original *signer.SignedTx) error {

	accepts, err := env.Broadcaster.TestAccept(ctx, original)
	if err != nil {
		return err
	}
	if len(accepts) != 1 {
		return feebump.Errorf(feebump.Unknown, "acceptance test of %v "+
			"returned %d results", original.TxID, len(accepts))
	}

	accept := accepts[0]
	switch {
	case accept.Allowed:
		return feebump.Errorf(feebump.Unknown, "zero fee parent %v "+
			"accepted on its own", original.TxID)

	case accept.Kind != feebump.FeeTooLow:
		return feebump.Errorf(accept.Kind, "parent %v rejected: %s",
			original.TxID, accept.RejectReason)
	}

	log.Infof("Parent %v is stuck: %s", original.TxID, accept.RejectReason)
	return nil
}

// BuildAccelerant builds the child spending the anchor and the second
// input, paying for the whole package.
func (*P2A) BuildAccelerant(_ context.Context, env *Env,
	original *signer.SignedTx) (*signer.SignedTx, error) {

	anchorIndex, ok := txbuilder.FindAnchor(original.Tx)
	if !ok {
		return nil, feebump.Errorf(feebump.Unknown, "parent %v has no "+
			"anchor output", original.TxID)
	}

	return env.buildAtRequired(&txbuilder.Request{
		Strategy: txbuilder.P2A,
		Role:     txbuilder.Accelerant,
		Inputs: []utxo.UnspentOutput{{
			TxID:     original.TxID,
			Index:    anchorIndex,
			PkScript: txbuilder.AnchorPkScript(),
		}, env.Inputs[1]},
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

// SubmitAccelerant submits parent and child as one package.
func (*P2A) SubmitAccelerant(ctx context.Context, env *Env,
	original, accelerant *signer.SignedTx) error {

	_, err := env.Broadcaster.SubmitPackage(ctx, original, accelerant)
	return err
}

// Expect checks the package sits in the mempool at the target rate, then
// mines it.
func (*P2A) Expect(ctx context.Context, env *Env,
	original, accelerant *signer.SignedTx) ([]broadcast.Observation, error) {

	return expectPackage(ctx, env, original, accelerant)
}
