// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package strategy

import (
	"context"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/feebump/node"
)

const (
	// DefaultFundBlocks is the number of blocks mined to fund the wallet.
	// The coinbase of the first one matures with the last.
	DefaultFundBlocks = 101

	// DefaultMinBalance is the trusted balance below which Bootstrap
	// funds the wallet.
	DefaultMinBalance btcutil.Amount = 10 * btcutil.SatoshiPerBitcoin
)

// MiningFunder funds a regtest wallet by mining blocks to it.
type MiningFunder struct {
	Node   node.Node
	Blocks int64
}

// A compile-time assertion that MiningFunder implements Funder.
var _ Funder = (*MiningFunder)(nil)

// Fund mines enough blocks to addr for one coinbase to mature.
func (f *MiningFunder) Fund(ctx context.Context, addr btcutil.Address) error {
	blocks := f.Blocks
	if blocks <= 0 {
		blocks = DefaultFundBlocks
	}

	log.Infof("Mining %d blocks to %v", blocks, addr)
	hashes, err := f.Node.GenerateToAddress(ctx, blocks, addr)
	if err != nil {
		return err
	}
	log.Debugf("Mined %d blocks", len(hashes))
	return nil
}

// Bootstrap loads or creates the wallet and makes it watch addr.  The wallet
// is funded when its trusted balance is below minBalance.
func Bootstrap(ctx context.Context, w node.Wallet, funder Funder,
	addr btcutil.Address, minBalance btcutil.Amount) error {

	if err := w.EnsureWallet(ctx); err != nil {
		return err
	}
	if err := w.ImportAddress(ctx, addr); err != nil {
		return err
	}

	trusted, pending, immature, err := w.Balance(ctx)
	if err != nil {
		return err
	}
	log.Infof("Wallet balance: %v trusted, %v pending, %v immature",
		trusted, pending, immature)

	if trusted >= minBalance || funder == nil {
		return nil
	}
	return funder.Fund(ctx, addr)
}
