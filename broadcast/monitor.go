// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package broadcast

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/feebump"
	"github.com/btcsuite/feebump/fees"
	"github.com/btcsuite/feebump/node"
	"github.com/decred/dcrd/lru"
)

const (
	// DefaultPollInterval is the default time between two observations.
	DefaultPollInterval = 500 * time.Millisecond

	// DefaultScanDepth is the default number of recent blocks searched
	// for confirmed transactions.
	DefaultScanDepth = 6
)

// Condition is a state of a transaction the monitor can wait for.
type Condition uint8

const (
	// InMempool holds while the transaction is in the mempool.
	InMempool Condition = iota

	// Evicted holds when the transaction is neither in the mempool nor
	// confirmed.
	Evicted

	// Confirmed holds when the transaction is in a block.
	Confirmed
)

// Map of Condition values back to their constant names for pretty printing.
var conditionStrings = map[Condition]string{
	InMempool: "in mempool",
	Evicted:   "evicted",
	Confirmed: "confirmed",
}

// String returns the Condition in human-readable form.
func (c Condition) String() string {
	if s, ok := conditionStrings[c]; ok {
		return s
	}
	return fmt.Sprintf("Unknown Condition (%d)", uint8(c))
}

// Observation is what the node reported about a transaction at one point in
// time.  Ancestor and descendant statistics include the transaction itself
// and are only set while it is in the mempool.
type Observation struct {
	TxID    chainhash.Hash
	Present bool

	VSize int64
	Fee   btcutil.Amount

	AncestorCount   int64
	AncestorSize    int64
	AncestorFees    btcutil.Amount
	DescendantCount int64
	DescendantSize  int64
	DescendantFees  btcutil.Amount

	// Confirmations is zero while unconfirmed.  BlockHash is set once
	// confirmed.
	Confirmations int64
	BlockHash     *chainhash.Hash
}

// AncestorFeeRate returns the fee rate of the transaction together with its
// unconfirmed ancestors, the rate a miner selecting the package sees.
func (o *Observation) AncestorFeeRate() fees.SatPerKVByte {
	return fees.RateOf(o.AncestorFees, o.AncestorSize)
}

func (o *Observation) holds(c Condition) bool {
	switch c {
	case InMempool:
		return o.Present
	case Evicted:
		return !o.Present && o.Confirmations == 0
	case Confirmed:
		return o.Confirmations > 0
	}
	return false
}

// Monitor observes transactions by polling a node.
type Monitor struct {
	node         node.Node
	pollInterval time.Duration
	scanDepth    int64

	// blocks caches fetched blocks by hash.  Only the hash at each height
	// is looked up again on every scan.
	blocks lru.KVCache
}

// NewMonitor returns a monitor polling n every pollInterval and searching
// the last scanDepth blocks for confirmations.  Non-positive values select
// the defaults.
func NewMonitor(n node.Node, pollInterval time.Duration,
	scanDepth int64) *Monitor {

	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if scanDepth <= 0 {
		scanDepth = DefaultScanDepth
	}
	return &Monitor{
		node:         n,
		pollInterval: pollInterval,
		scanDepth:    scanDepth,
		blocks:       lru.NewKVCache(uint(2 * scanDepth)),
	}
}

// block returns the block with the given hash, from the cache if possible.
func (m *Monitor) block(ctx context.Context, hash chainhash.Hash) (*node.Block,
	error) {

	if cached, ok := m.blocks.Lookup(hash); ok {
		return cached.(*node.Block), nil
	}
	block, err := m.node.GetBlock(ctx, hash)
	if err != nil {
		return nil, classify("getblock", err)
	}
	m.blocks.Add(hash, block)
	return block, nil
}

// Snapshot returns the current observation of txid without waiting.
func (m *Monitor) Snapshot(ctx context.Context,
	txid chainhash.Hash) (Observation, error) {

	obs := Observation{TxID: txid}

	entry, err := m.node.GetMempoolEntry(ctx, txid)
	switch {
	case err == nil:
		obs.Present = true
		obs.VSize = entry.VSize
		obs.Fee = entry.Fee
		obs.AncestorCount = entry.AncestorCount
		obs.AncestorSize = entry.AncestorSize
		obs.AncestorFees = entry.AncestorFees
		obs.DescendantCount = entry.DescendantCount
		obs.DescendantSize = entry.DescendantSize
		obs.DescendantFees = entry.DescendantFees
		return obs, nil

	case !errors.Is(err, node.ErrNotInMempool):
		return obs, classify("getmempoolentry", err)
	}

	tip, err := m.node.GetBlockCount(ctx)
	if err != nil {
		return obs, classify("getblockcount", err)
	}
	for height := tip; height >= 0 && height > tip-m.scanDepth; height-- {
		hash, err := m.node.GetBlockHash(ctx, height)
		if err != nil {
			return obs, classify("getblockhash", err)
		}
		block, err := m.block(ctx, *hash)
		if err != nil {
			return obs, err
		}
		for _, blockTxID := range block.TxIDs {
			if blockTxID != txid {
				continue
			}
			obs.Confirmations = tip - height + 1
			obs.BlockHash = &block.Hash
			return obs, nil
		}
	}

	// Not in a recent block, so ask the node whether it confirmed
	// deeper.
	status, err := m.node.GetTxStatus(ctx, txid)
	switch {
	case errors.Is(err, node.ErrTxNotFound):
		return obs, nil

	case err != nil:
		return obs, classify("getrawtransaction", err)
	}
	if status.Confirmations > 0 {
		obs.Confirmations = status.Confirmations
		obs.BlockHash = status.BlockHash
	}

	return obs, nil
}

// poll calls check every poll interval until it reports done, fails, or the
// deadline passes.
func (m *Monitor) poll(ctx context.Context, deadline time.Time, desc string,
	check func(context.Context) (bool, error)) error {

	pollCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		done, err := check(pollCtx)
		switch {
		case err != nil && pollCtx.Err() == nil:
			return err
		case err == nil && done:
			return nil
		}

		select {
		case <-ticker.C:

		case <-pollCtx.Done():
			if ctx.Err() != nil {
				return feebump.Wrap(feebump.Unknown, desc, ctx.Err())
			}
			return feebump.Errorf(feebump.ObservationTimeout,
				"%s: deadline %v passed", desc,
				deadline.Format(time.RFC3339))
		}
	}
}

// Observe polls until txid satisfies cond and returns the observation that
// satisfied it.  An ObservationTimeout error is returned with the last
// observation when the deadline passes first.
func (m *Monitor) Observe(ctx context.Context, txid chainhash.Hash,
	cond Condition, deadline time.Time) (Observation, error) {

	log.Debugf("Waiting for %v to be %v", txid, cond)

	var obs Observation
	err := m.poll(ctx, deadline, fmt.Sprintf("%v not %v", txid, cond),
		func(ctx context.Context) (bool, error) {
			var err error
			obs, err = m.Snapshot(ctx, txid)
			if err != nil {
				return false, err
			}
			return obs.holds(cond), nil
		},
	)
	if err != nil {
		return obs, err
	}

	log.Infof("Transaction %v is %v (confirmations %d, ancestor fee "+
		"rate %v)", txid, cond, obs.Confirmations, obs.AncestorFeeRate())

	return obs, nil
}

// ObserveAll polls until every txid is confirmed and returns their
// observations in order.  All transactions must confirm in the same block.
func (m *Monitor) ObserveAll(ctx context.Context, txids []chainhash.Hash,
	deadline time.Time) ([]Observation, error) {

	if len(txids) == 0 {
		return nil, nil
	}

	observations := make([]Observation, len(txids))
	err := m.poll(ctx, deadline, fmt.Sprintf("%d transactions not "+
		"confirmed together", len(txids)),
		func(ctx context.Context) (bool, error) {
			for i, txid := range txids {
				obs, err := m.Snapshot(ctx, txid)
				if err != nil {
					return false, err
				}
				observations[i] = obs
				if !obs.holds(Confirmed) {
					return false, nil
				}
			}

			first := observations[0].BlockHash
			for _, obs := range observations[1:] {
				if *obs.BlockHash != *first {
					return false, feebump.Errorf(
						feebump.Unknown, "%v confirmed "+
							"in block %v, %v in block %v",
						txids[0], first, obs.TxID,
						obs.BlockHash)
				}
			}
			return true, nil
		},
	)
	if err != nil {
		return observations, err
	}

	log.Infof("%d transactions confirmed together in block %v",
		len(txids), observations[0].BlockHash)

	return observations, nil
}
