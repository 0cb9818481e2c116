// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package node

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/feebump"
)

// EnsureWallet loads the configured wallet, creating it as a blank watch-only
// descriptor wallet when it does not exist.  Keys stay with the caller; the
// node wallet only tracks outputs paying to imported addresses.
func (b *Bitcoind) EnsureWallet(ctx context.Context) error {
	err := call(ctx, b.chain, "loadwallet", nil, b.cfg.Wallet)
	if err == nil {
		log.Infof("Loaded wallet %q", b.cfg.Wallet)
		return nil
	}

	code, ok := rpcCode(err)
	switch {
	case ok && code == rpcWalletAlreadyLoaded:
		log.Debugf("Wallet %q already loaded", b.cfg.Wallet)
		return nil

	case ok && code == rpcWalletNotFound:

	default:
		return err
	}

	// createwallet wallet_name disable_private_keys blank passphrase
	// avoid_reuse descriptors
	err = call(
		ctx, b.chain, "createwallet", nil, b.cfg.Wallet, true, true, "",
		false, true,
	)
	if err != nil {
		return err
	}

	log.Infof("Created watch-only wallet %q", b.cfg.Wallet)

	return nil
}

// ImportAddress makes the wallet track outputs paying to addr.  The whole
// chain is rescanned so outputs created before the import are found.
func (b *Bitcoind) ImportAddress(ctx context.Context,
	addr btcutil.Address) error {

	desc := fmt.Sprintf("addr(%s)", addr.EncodeAddress())

	var info getDescriptorInfoResult
	err := call(ctx, b.chain, "getdescriptorinfo", &info, desc)
	if err != nil {
		return err
	}

	requests := []importDescriptorRequest{{
		Desc:      fmt.Sprintf("%s#%s", desc, info.Checksum),
		Timestamp: 0,
		Label:     "feebump",
	}}
	var results []importDescriptorResult
	err = call(ctx, b.wallet, "importdescriptors", &results, requests)
	if err != nil {
		return err
	}

	for _, result := range results {
		if result.Success {
			continue
		}
		msg := "unknown failure"
		if result.Error != nil {
			msg = result.Error.Message
		}
		return feebump.Errorf(feebump.Unknown,
			"unable to import %v: %s", addr, msg)
	}

	log.Debugf("Imported descriptor %s", requests[0].Desc)

	return nil
}

// Balance returns the confirmed, pending and immature balance of the
// wallet.
func (b *Bitcoind) Balance(ctx context.Context) (trusted, pending,
	immature btcutil.Amount, err error) {

	var raw getBalancesResult
	if err = call(ctx, b.wallet, "getbalances", &raw); err != nil {
		return 0, 0, 0, err
	}

	if trusted, err = btcutil.NewAmount(raw.Mine.Trusted); err != nil {
		return 0, 0, 0, err
	}
	if pending, err = btcutil.NewAmount(raw.Mine.UntrustedPending); err != nil {
		return 0, 0, 0, err
	}
	if immature, err = btcutil.NewAmount(raw.Mine.Immature); err != nil {
		return 0, 0, 0, err
	}
	return trusted, pending, immature, nil
}
