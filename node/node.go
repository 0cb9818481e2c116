// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package node

import (
	"context"
	"errors"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/feebump/utxo"
)

// ErrNotInMempool is returned by GetMempoolEntry when the node does not
// hold the transaction in its mempool.
var ErrNotInMempool = errors.New("transaction not in mempool")

// ErrTxNotFound is returned by GetTxStatus when the node knows nothing of
// the transaction.
var ErrTxNotFound = errors.New("transaction not found")

// MempoolEntry is the subset of a node's mempool entry used to assert
// outcomes.
type MempoolEntry struct {
	TxID  chainhash.Hash
	WTxID chainhash.Hash
	VSize int64

	// Fee is the base fee of the transaction itself.
	Fee btcutil.Amount

	AncestorCount   int64
	AncestorSize    int64
	AncestorFees    btcutil.Amount
	DescendantCount int64
	DescendantSize  int64
	DescendantFees  btcutil.Amount

	// Depends lists unconfirmed parents, SpentBy unconfirmed children.
	Depends []chainhash.Hash
	SpentBy []chainhash.Hash

	Replaceable bool
}

// AcceptResult is the outcome of a testmempoolaccept check for one
// transaction.
type AcceptResult struct {
	TxID         chainhash.Hash
	WTxID        chainhash.Hash
	Allowed      bool
	VSize        int64
	Fee          btcutil.Amount
	RejectReason string
}

// PackageTxResult is the outcome of one transaction of a submitted
// package.
type PackageTxResult struct {
	TxID  chainhash.Hash
	VSize int64
	Fee   btcutil.Amount

	// OtherWTxID is set when a transaction with the same txid but another
	// witness was already in the mempool.
	OtherWTxID *chainhash.Hash

	// Error holds the rejection reason of this transaction, if any.
	Error string
}

// PackageResult is the outcome of a submitpackage call.
type PackageResult struct {
	// Message is "success" when every transaction was accepted.
	Message string

	// TxResults maps each transaction's wtxid to its result.
	TxResults map[chainhash.Hash]PackageTxResult

	// Replaced lists the txids evicted through package RBF.
	Replaced []chainhash.Hash
}

// Block is the subset of a block needed to check inclusion.
type Block struct {
	Hash   chainhash.Hash
	Height int64
	TxIDs  []chainhash.Hash
}

// TxStatus is where the node last saw a transaction.  Confirmations is
// zero and BlockHash nil while the transaction is unconfirmed.
type TxStatus struct {
	TxID          chainhash.Hash
	Confirmations int64
	BlockHash     *chainhash.Hash
}

// Node is the narrow view of a Bitcoin node the engine drives.  The node is
// the only source of truth for balances and mempool membership.
type Node interface {
	// ListUnspent returns the wallet outputs with at least minConf
	// confirmations.
	ListUnspent(ctx context.Context, minConf int64) ([]utxo.UnspentOutput, error)

	// SendRawTransaction submits a single transaction.
	SendRawTransaction(ctx context.Context, tx *wire.MsgTx) (*chainhash.Hash, error)

	// TestMempoolAccept checks whether the node would accept the
	// transactions without submitting them.
	TestMempoolAccept(ctx context.Context, txs ...*wire.MsgTx) ([]AcceptResult, error)

	// SubmitPackage submits a topologically sorted child-with-parents
	// package.
	SubmitPackage(ctx context.Context, txs ...*wire.MsgTx) (*PackageResult, error)

	// GetMempoolEntry returns the mempool entry of txid or
	// ErrNotInMempool.
	GetMempoolEntry(ctx context.Context, txid chainhash.Hash) (*MempoolEntry, error)

	// GetTxStatus returns the confirmation status of txid, or
	// ErrTxNotFound when neither the chain nor the wallet holds it.
	GetTxStatus(ctx context.Context, txid chainhash.Hash) (*TxStatus, error)

	// GetBlockCount returns the height of the best block.
	GetBlockCount(ctx context.Context) (int64, error)

	// GetBlockHash returns the hash of the block at height.
	GetBlockHash(ctx context.Context, height int64) (*chainhash.Hash, error)

	// GetBlock returns the block with the given hash.
	GetBlock(ctx context.Context, hash chainhash.Hash) (*Block, error)

	// GenerateToAddress mines n blocks paying the coinbase to addr.
	GenerateToAddress(ctx context.Context, n int64,
		addr btcutil.Address) ([]chainhash.Hash, error)

	// RelayFees returns the minimum and incremental relay fees in
	// satoshis per kilo-vbyte.
	RelayFees(ctx context.Context) (btcutil.Amount, btcutil.Amount, error)
}

// Wallet is implemented by nodes that manage a watch-only wallet for the
// engine's keys.
type Wallet interface {
	// EnsureWallet loads the wallet, creating it when it does not exist.
	EnsureWallet(ctx context.Context) error

	// ImportAddress makes the wallet watch addr.
	ImportAddress(ctx context.Context, addr btcutil.Address) error

	// Balance returns the trusted, untrusted pending and immature
	// balances of the wallet.
	Balance(ctx context.Context) (trusted, pending, immature btcutil.Amount,
		err error)
}
