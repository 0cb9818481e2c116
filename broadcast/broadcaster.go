// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package broadcast

import (
	"context"
	"errors"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/feebump"
	"github.com/btcsuite/feebump/node"
	"github.com/btcsuite/feebump/signer"
)

// packageSuccess is the package message bitcoind reports when every
// transaction of a package was accepted.
const packageSuccess = "success"

// Submission is the outcome of submitting a transaction.
type Submission struct {
	TxID chainhash.Hash

	// Duplicate is set when the node already had the transaction, in its
	// mempool or in a block, so nothing new was accepted.
	Duplicate bool
}

// Acceptance is the outcome of a mempool acceptance test of one
// transaction.
type Acceptance struct {
	node.AcceptResult

	// Kind classifies RejectReason.  It is Unknown for allowed
	// transactions.
	Kind feebump.ErrorKind
}

// Broadcaster submits signed transactions to a node.
type Broadcaster struct {
	node node.Node
}

// NewBroadcaster returns a broadcaster submitting to n.
func NewBroadcaster(n node.Node) *Broadcaster {
	return &Broadcaster{node: n}
}

// classify ensures err carries an error kind.
func classify(desc string, err error) error {
	var e feebump.Error
	if err == nil || errors.As(err, &e) {
		return err
	}
	return feebump.Wrap(feebump.Unknown, desc, err)
}

// Submit sends tx to the node.  A transaction the node already knows is
// reported as a Duplicate submission rather than a new acceptance.  Other
// rejections are returned as classified errors.
func (b *Broadcaster) Submit(ctx context.Context,
	tx *signer.SignedTx) (*Submission, error) {

	_, err := b.node.GetMempoolEntry(ctx, tx.TxID)
	switch {
	case err == nil:
		log.Infof("Transaction %v already in mempool", tx.TxID)
		return &Submission{TxID: tx.TxID, Duplicate: true}, nil

	case !errors.Is(err, node.ErrNotInMempool):
		return nil, classify("getmempoolentry", err)
	}

	txid, err := b.node.SendRawTransaction(ctx, tx.Tx)
	switch {
	case feebump.KindOf(err) == feebump.Duplicate:
		log.Infof("Transaction %v already known: %v", tx.TxID, err)
		return &Submission{TxID: tx.TxID, Duplicate: true}, nil

	case err != nil:
		log.Debugf("Transaction %v rejected: %v", tx.TxID, err)
		return nil, classify("sendrawtransaction", err)

	case *txid != tx.TxID:
		return nil, feebump.Errorf(feebump.Unknown,
			"node accepted %v as %v", tx.TxID, txid)
	}

	log.Infof("Submitted %v %v transaction %v (fee %v, %d vbytes)",
		tx.Strategy, tx.Role, tx.TxID, tx.Fee, tx.VSize)

	return &Submission{TxID: *txid}, nil
}

// SubmitPackage submits a child with its parents, parents first.  A package
// the node did not fully accept yields an error classified by the reason of
// the first failing transaction.
func (b *Broadcaster) SubmitPackage(ctx context.Context,
	txs ...*signer.SignedTx) (*node.PackageResult, error) {

	if len(txs) == 0 {
		return nil, feebump.NewError(feebump.Unknown, "empty package")
	}

	msgTxs := make([]*wire.MsgTx, 0, len(txs))
	for _, tx := range txs {
		msgTxs = append(msgTxs, tx.Tx)
	}

	result, err := b.node.SubmitPackage(ctx, msgTxs...)
	if err != nil {
		return nil, classify("submitpackage", err)
	}

	if result.Message == packageSuccess {
		log.Infof("Submitted package of %d transactions, child %v",
			len(txs), txs[len(txs)-1].TxID)
		return result, nil
	}

	for _, tx := range txs {
		txResult, ok := result.TxResults[tx.WTxID]
		if !ok || txResult.Error == "" {
			continue
		}
		return result, feebump.Errorf(
			node.ClassifyRejectReason(txResult.Error),
			"package rejected: %v %v transaction %v: %s",
			tx.Strategy, tx.Role, tx.TxID, txResult.Error,
		)
	}

	return result, feebump.Errorf(node.ClassifyRejectReason(result.Message),
		"package rejected: %s", result.Message)
}

// TestAccept asks the node whether it would accept txs without submitting
// them.
func (b *Broadcaster) TestAccept(ctx context.Context,
	txs ...*signer.SignedTx) ([]Acceptance, error) {

	msgTxs := make([]*wire.MsgTx, 0, len(txs))
	for _, tx := range txs {
		msgTxs = append(msgTxs, tx.Tx)
	}

	results, err := b.node.TestMempoolAccept(ctx, msgTxs...)
	if err != nil {
		return nil, classify("testmempoolaccept", err)
	}

	accepts := make([]Acceptance, 0, len(results))
	for _, result := range results {
		accept := Acceptance{AcceptResult: result}
		if !result.Allowed {
			accept.Kind = node.ClassifyRejectReason(result.RejectReason)
			log.Debugf("Transaction %v would be rejected: %s",
				result.TxID, strings.TrimSpace(result.RejectReason))
		}
		accepts = append(accepts, accept)
	}
	return accepts, nil
}
