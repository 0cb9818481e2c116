// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package nodetest

import (
	"context"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/feebump"
	"github.com/btcsuite/feebump/node"
	"github.com/stretchr/testify/require"
)

func p2wpkhScript(seed byte) []byte {
	script := make([]byte, 22)
	script[0], script[1] = 0x00, 0x14
	for i := 2; i < len(script); i++ {
		script[i] = seed
	}
	return script
}

// spend returns an unsigned transaction spending ops and paying outs.
func spend(version int32, sequence uint32, ops []wire.OutPoint,
	outs ...*wire.TxOut) *wire.MsgTx {

	tx := wire.NewMsgTx(version)
	for _, op := range ops {
		tx.AddTxIn(&wire.TxIn{PreviousOutPoint: op, Sequence: sequence})
	}
	for _, out := range outs {
		tx.AddTxOut(out)
	}
	return tx
}

func anchorOut() *wire.TxOut {
	return wire.NewTxOut(0, append([]byte(nil), anchorPkScript...))
}

func vsizeOf(t *testing.T, f *FakeNode, txid chainhash.Hash) int64 {
	t.Helper()

	entry, err := f.GetMempoolEntry(context.Background(), txid)
	require.NoError(t, err)
	return entry.VSize
}

// TestFakeNodeReplacement ensures BIP 125 replacement is enforced.
func TestFakeNodeReplacement(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := New(&chaincfg.RegressionNetParams)
	op := f.AddUTXO(p2wpkhScript(1), 1_000_000)
	ops := []wire.OutPoint{op}

	original := spend(2, 0xfffffffd, ops,
		wire.NewTxOut(999_000, p2wpkhScript(2)))
	txid, err := f.SendRawTransaction(ctx, original)
	require.NoError(t, err)
	require.True(t, f.InMempool(*txid))
	vsize := vsizeOf(t, f, *txid)

	// Paying the same fee is not enough.
	same := spend(2, 0xfffffffd, ops,
		wire.NewTxOut(999_000, p2wpkhScript(3)))
	_, err = f.SendRawTransaction(ctx, same)
	require.ErrorIs(t, err, feebump.ErrFeeTooLow)

	// Neither is a higher rate without the incremental relay fee.
	short := spend(2, 0xfffffffd, ops,
		wire.NewTxOut(999_000-vsize/2, p2wpkhScript(3)))
	_, err = f.SendRawTransaction(ctx, short)
	require.ErrorIs(t, err, feebump.ErrFeeTooLow)

	replacement := spend(2, 0xfffffffd, ops,
		wire.NewTxOut(999_000-vsize, p2wpkhScript(3)))
	newTxid, err := f.SendRawTransaction(ctx, replacement)
	require.NoError(t, err)
	require.True(t, f.InMempool(*newTxid))
	require.False(t, f.InMempool(*txid))

	_, err = f.GetMempoolEntry(ctx, *txid)
	require.ErrorIs(t, err, node.ErrNotInMempool)
}

// TestFakeNodeNonSignaling ensures a final transaction is only replaceable
// with full RBF.
func TestFakeNodeNonSignaling(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	for _, fullRBF := range []bool{false, true} {
		var opts []Option
		if fullRBF {
			opts = append(opts, WithFullRBF())
		}
		f := New(&chaincfg.RegressionNetParams, opts...)
		ops := []wire.OutPoint{f.AddUTXO(p2wpkhScript(1), 100_000)}

		_, err := f.SendRawTransaction(ctx, spend(
			2, wire.MaxTxInSequenceNum, ops,
			wire.NewTxOut(99_000, p2wpkhScript(2)),
		))
		require.NoError(t, err)

		_, err = f.SendRawTransaction(ctx, spend(
			2, wire.MaxTxInSequenceNum, ops,
			wire.NewTxOut(90_000, p2wpkhScript(2)),
		))
		if fullRBF {
			require.NoError(t, err)
			continue
		}
		require.ErrorIs(t, err, feebump.ErrConflictingTransaction)
	}
}

// TestFakeNodeDuplicate ensures resubmission matches bitcoind: success while
// in the mempool, a Duplicate error once confirmed.
func TestFakeNodeDuplicate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := New(&chaincfg.RegressionNetParams)
	ops := []wire.OutPoint{f.AddUTXO(p2wpkhScript(1), 100_000)}
	tx := spend(2, 0xfffffffd, ops, wire.NewTxOut(99_000, p2wpkhScript(2)))

	_, err := f.SendRawTransaction(ctx, tx)
	require.NoError(t, err)
	_, err = f.SendRawTransaction(ctx, tx)
	require.NoError(t, err)
	require.Len(t, f.Mempool(), 1)

	addr, err := btcutil.NewAddressWitnessPubKeyHash(
		p2wpkhScript(9)[2:], &chaincfg.RegressionNetParams,
	)
	require.NoError(t, err)
	hashes, err := f.GenerateToAddress(ctx, 1, addr)
	require.NoError(t, err)
	require.Empty(t, f.Mempool())

	block, err := f.GetBlock(ctx, hashes[0])
	require.NoError(t, err)
	require.Contains(t, block.TxIDs, tx.TxHash())

	_, err = f.SendRawTransaction(ctx, tx)
	require.ErrorIs(t, err, feebump.ErrDuplicate)
}

// TestFakeNodeAnchorPackage ensures a zero fee parent with an anchor is
// only accepted together with a child spending the anchor.
func TestFakeNodeAnchorPackage(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := New(&chaincfg.RegressionNetParams)
	parentIn := []wire.OutPoint{f.AddUTXO(p2wpkhScript(1), 100_000)}
	feeIn := f.AddUTXO(p2wpkhScript(1), 50_000)

	// An anchor transaction paying a fee is not standard.
	_, err := f.SendRawTransaction(ctx, spend(
		3, wire.MaxTxInSequenceNum, parentIn,
		wire.NewTxOut(99_000, p2wpkhScript(2)), anchorOut(),
	))
	require.ErrorIs(t, err, feebump.ErrNonStandard)

	parent := spend(3, wire.MaxTxInSequenceNum, parentIn,
		wire.NewTxOut(100_000, p2wpkhScript(2)), anchorOut())
	parentHash := parent.TxHash()

	// Alone the parent does not meet the minimum relay fee.
	_, err = f.SendRawTransaction(ctx, parent)
	require.ErrorIs(t, err, feebump.ErrFeeTooLow)

	results, err := f.TestMempoolAccept(ctx, parent)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.False(t, results[0].Allowed)
	require.Contains(t, results[0].RejectReason, "min relay fee not met")

	child := spend(3, 0xfffffffe, []wire.OutPoint{
		{Hash: parentHash, Index: 1}, feeIn,
	}, wire.NewTxOut(45_000, p2wpkhScript(3)))

	// A child not spending every parent is refused.
	_, err = f.SubmitPackage(ctx, parent, spend(
		3, 0xfffffffe, []wire.OutPoint{feeIn},
		wire.NewTxOut(45_000, p2wpkhScript(3)),
	))
	require.Error(t, err)

	result, err := f.SubmitPackage(ctx, parent, child)
	require.NoError(t, err)
	require.Equal(t, "success", result.Message)
	require.Len(t, result.TxResults, 2)
	require.True(t, f.InMempool(parentHash))
	require.True(t, f.InMempool(child.TxHash()))

	entry, err := f.GetMempoolEntry(ctx, child.TxHash())
	require.NoError(t, err)
	require.EqualValues(t, 2, entry.AncestorCount)
	require.Equal(t, btcutil.Amount(5_000), entry.AncestorFees)
	require.Equal(t, []chainhash.Hash{parentHash}, entry.Depends)

	// Resubmitting the package is idempotent.
	result, err = f.SubmitPackage(ctx, parent, child)
	require.NoError(t, err)
	require.Equal(t, "success", result.Message)
	require.Len(t, f.Mempool(), 2)
}

// TestFakeNodeEphemeralSpend ensures a package leaving the anchor unspent is
// rejected as a whole.
func TestFakeNodeEphemeralSpend(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := New(&chaincfg.RegressionNetParams)
	parentIn := []wire.OutPoint{f.AddUTXO(p2wpkhScript(1), 100_000)}

	parent := spend(3, wire.MaxTxInSequenceNum, parentIn,
		wire.NewTxOut(100_000, p2wpkhScript(2)), anchorOut())
	child := spend(3, 0xfffffffe, []wire.OutPoint{
		{Hash: parent.TxHash(), Index: 0},
	}, wire.NewTxOut(90_000, p2wpkhScript(3)))

	result, err := f.SubmitPackage(ctx, parent, child)
	require.NoError(t, err)
	require.NotEqual(t, "success", result.Message)
	require.Empty(t, f.Mempool())

	var reasons []string
	for _, r := range result.TxResults {
		reasons = append(reasons, r.Error)
	}
	require.Contains(t, reasons, "missing-ephemeral-spends")
}

// TestFakeNodeTRUC ensures version 3 topology rules are enforced.
func TestFakeNodeTRUC(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := New(&chaincfg.RegressionNetParams)
	ops := []wire.OutPoint{f.AddUTXO(p2wpkhScript(1), 100_000)}

	parent := spend(3, wire.MaxTxInSequenceNum, ops,
		wire.NewTxOut(99_000, p2wpkhScript(2)))
	_, err := f.SendRawTransaction(ctx, parent)
	require.NoError(t, err)
	parentOut := []wire.OutPoint{{Hash: parent.TxHash(), Index: 0}}

	// Version 2 may not spend an unconfirmed version 3 parent.
	_, err = f.SendRawTransaction(ctx, spend(
		2, 0xfffffffe, parentOut, wire.NewTxOut(98_000, p2wpkhScript(3)),
	))
	require.ErrorIs(t, err, feebump.ErrNonStandard)

	// A version 3 child is limited to 1000 vbytes.
	outs := make([]*wire.TxOut, 0, 40)
	for i := 0; i < 40; i++ {
		outs = append(outs, wire.NewTxOut(1_000, p2wpkhScript(byte(i))))
	}
	_, err = f.SendRawTransaction(ctx, spend(3, 0xfffffffe, parentOut,
		outs...))
	require.ErrorIs(t, err, feebump.ErrNonStandard)

	child := spend(3, 0xfffffffe, parentOut,
		wire.NewTxOut(98_000, p2wpkhScript(3)))
	_, err = f.SendRawTransaction(ctx, child)
	require.NoError(t, err)

	// A grandchild would have two unconfirmed ancestors.
	_, err = f.SendRawTransaction(ctx, spend(3, 0xfffffffe,
		[]wire.OutPoint{{Hash: child.TxHash(), Index: 0}},
		wire.NewTxOut(97_000, p2wpkhScript(4)),
	))
	require.ErrorIs(t, err, feebump.ErrNonStandard)
}

// TestFakeNodeListUnspent ensures coinbase maturity and mempool spends are
// honored.
func TestFakeNodeListUnspent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := New(&chaincfg.RegressionNetParams)
	script := p2wpkhScript(7)
	addr, err := btcutil.NewAddressWitnessPubKeyHash(
		script[2:], &chaincfg.RegressionNetParams,
	)
	require.NoError(t, err)
	require.NoError(t, f.ImportAddress(ctx, addr))

	_, err = f.GenerateToAddress(ctx, CoinbaseMaturity-1, addr)
	require.NoError(t, err)

	unspent, err := f.ListUnspent(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, unspent)

	trusted, _, immature, err := f.Balance(ctx)
	require.NoError(t, err)
	require.Zero(t, trusted)
	require.Equal(t, btcutil.Amount(
		(CoinbaseMaturity-1)*50*btcutil.SatoshiPerBitcoin), immature)

	_, err = f.GenerateToAddress(ctx, 1, addr)
	require.NoError(t, err)

	unspent, err = f.ListUnspent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, unspent, 1)
	require.EqualValues(t, CoinbaseMaturity, unspent[0].Confirmations)

	// Spending the output hides it and shows the unconfirmed change.
	_, err = f.SendRawTransaction(ctx, spend(
		2, 0xfffffffd, []wire.OutPoint{unspent[0].OutPoint()},
		wire.NewTxOut(49*btcutil.SatoshiPerBitcoin, script),
	))
	require.NoError(t, err)

	unspent, err = f.ListUnspent(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, unspent)

	unspent, err = f.ListUnspent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, unspent, 1)
	require.Zero(t, unspent[0].Confirmations)

	height, err := f.GetBlockCount(ctx)
	require.NoError(t, err)
	require.EqualValues(t, CoinbaseMaturity, height)
}

// TestFakeNodeTxStatus ensures transactions are found in the mempool and
// at any depth in the chain.
func TestFakeNodeTxStatus(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	params := &chaincfg.RegressionNetParams
	f := New(params)
	script := p2wpkhScript(9)
	addr, err := btcutil.NewAddressWitnessPubKeyHash(script[2:], params)
	require.NoError(t, err)

	op := f.AddUTXO(script, 100_000)
	status, err := f.GetTxStatus(ctx, op.Hash)
	require.NoError(t, err)
	require.EqualValues(t, 1, status.Confirmations)
	require.Equal(t, *params.GenesisHash, *status.BlockHash)

	tx := spend(2, 0xfffffffd, []wire.OutPoint{op},
		wire.NewTxOut(99_000, script))
	txid, err := f.SendRawTransaction(ctx, tx)
	require.NoError(t, err)

	status, err = f.GetTxStatus(ctx, *txid)
	require.NoError(t, err)
	require.Equal(t, *txid, status.TxID)
	require.Zero(t, status.Confirmations)
	require.Nil(t, status.BlockHash)

	hashes, err := f.GenerateToAddress(ctx, 3, addr)
	require.NoError(t, err)

	status, err = f.GetTxStatus(ctx, *txid)
	require.NoError(t, err)
	require.EqualValues(t, 3, status.Confirmations)
	require.Equal(t, hashes[0], *status.BlockHash)

	_, err = f.GetTxStatus(ctx, chainhash.Hash{0x01})
	require.ErrorIs(t, err, node.ErrTxNotFound)
	require.Equal(t, 4, f.Calls("getrawtransaction"))
}

// TestFakeNodeFailNext ensures injected failures are returned once.
func TestFakeNodeFailNext(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := New(&chaincfg.RegressionNetParams)
	f.FailNext("getblockcount", feebump.NewError(
		feebump.RpcUnavailable, "connection refused",
	))

	_, err := f.GetBlockCount(ctx)
	require.ErrorIs(t, err, feebump.ErrRpcUnavailable)

	_, err = f.GetBlockCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, f.Calls("getblockcount"))
}
