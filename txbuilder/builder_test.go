// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txbuilder

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/feebump"
	"github.com/btcsuite/feebump/utxo"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var (
	destScript   = append([]byte{0x00, 0x14}, bytes.Repeat([]byte{0xaa}, 20)...)
	changeScript = append([]byte{0x51, 0x20}, bytes.Repeat([]byte{0xbb}, 32)...)
	walletScript = append([]byte{0x00, 0x14}, bytes.Repeat([]byte{0xcc}, 20)...)
	p2pkhScript  = append(append([]byte{0x76, 0xa9, 0x14},
		bytes.Repeat([]byte{0xdd}, 20)...), 0x88, 0xac)
)

func walletOutput(seed byte, amt btcutil.Amount) utxo.UnspentOutput {
	var txid chainhash.Hash
	txid[0] = seed
	return utxo.UnspentOutput{
		TxID:          txid,
		Index:         0,
		Amount:        amt,
		PkScript:      walletScript,
		Confirmations: 6,
	}
}

func anchorInput(parent chainhash.Hash, index uint32) utxo.UnspentOutput {
	return utxo.UnspentOutput{
		TxID:     parent,
		Index:    index,
		PkScript: AnchorPkScript(),
	}
}

func sumOutputs(tx *wire.MsgTx) btcutil.Amount {
	var total btcutil.Amount
	for _, txOut := range tx.TxOut {
		total += btcutil.Amount(txOut.Value)
	}
	return total
}

func requireBalanced(t require.TestingT, u *UnsignedTx) {
	require.Equal(t, u.InputValue(), sumOutputs(u.Tx)+u.Fee)
}

// TestBuildVersionAndSequence ensures each strategy and role gets the
// expected version and sequence numbers.
func TestBuildVersionAndSequence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		strategy Strategy
		role     Role
		version  int32
		sequence uint32
	}{
		{RBF, Original, 2, 0xfffffffd},
		{RBF, Accelerant, 2, 0xfffffffd},
		{CPFP, Original, 2, 0xffffffff},
		{CPFP, Accelerant, 2, 0xfffffffe},
		{P2A, Original, 3, 0xffffffff},
	}

	for _, test := range tests {
		req := &Request{
			Strategy:     test.strategy,
			Role:         test.role,
			Inputs:       []utxo.UnspentOutput{walletOutput(1, 1_000_000)},
			Destination:  destScript,
			Amount:       500_000,
			ChangeScript: changeScript,
			FeeRate:      2000,
		}
		if test.strategy == P2A {
			req.FeeRate = 0
		}

		u, err := Build(req)
		require.NoError(t, err, "%v %v", test.strategy, test.role)
		require.Equal(t, test.version, u.Tx.Version)
		for _, txIn := range u.Tx.TxIn {
			require.Equal(t, test.sequence, txIn.Sequence)
		}
		requireBalanced(t, u)
	}
}

// TestBuildOutputOrder ensures the payment precedes the anchor which
// precedes change, and that the anchor parent pays no fee.
func TestBuildOutputOrder(t *testing.T) {
	t.Parallel()

	u, err := Build(&Request{
		Strategy:     P2A,
		Role:         Original,
		Inputs:       []utxo.UnspentOutput{walletOutput(1, 1_000_000)},
		Destination:  destScript,
		Amount:       400_000,
		ChangeScript: changeScript,
	})
	require.NoError(t, err)
	require.Len(t, u.Tx.TxOut, 3)
	require.Equal(t, destScript, u.Tx.TxOut[0].PkScript)
	require.Equal(t, []byte{0x51, 0x02, 0x4e, 0x73}, u.Tx.TxOut[1].PkScript)
	require.Zero(t, u.Tx.TxOut[1].Value)
	require.Equal(t, changeScript, u.Tx.TxOut[2].PkScript)
	require.Equal(t, int64(600_000), u.Tx.TxOut[2].Value)
	require.Zero(t, u.Fee)

	idx, ok := FindAnchor(u.Tx)
	require.True(t, ok)
	require.Equal(t, uint32(1), idx)

	// An anchor parent that pays a fee is rejected.
	_, err = Build(&Request{
		Strategy:     P2A,
		Role:         Original,
		Inputs:       []utxo.UnspentOutput{walletOutput(1, 1_000_000)},
		Destination:  destScript,
		Amount:       400_000,
		ChangeScript: changeScript,
		Fee:          200,
	})
	require.ErrorIs(t, err, feebump.ErrNonStandard)
}

// TestBuildExactFit ensures a dust remainder is paid to fees rather than to
// a change output.  One P2WPKH input paying one P2WPKH output estimates at
// 110 vbytes, 153 with a P2TR change output, and P2TR change is dust below
// 330 satoshis at the default relay fee.
func TestBuildExactFit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		amount  btcutil.Amount
		outputs int
		fee     btcutil.Amount
	}{
		{"dust change", 99_600, 1, 400},
		{"change just below dust", 99_518, 1, 482},
		{"change at dust limit", 99_517, 2, 153},
		{"change above dust", 90_000, 2, 153},
	}

	for _, test := range tests {
		u, err := Build(&Request{
			Strategy:     RBF,
			Role:         Original,
			Inputs:       []utxo.UnspentOutput{walletOutput(1, 100_000)},
			Destination:  destScript,
			Amount:       test.amount,
			ChangeScript: changeScript,
			FeeRate:      1000,
		})
		require.NoError(t, err, test.name)
		require.Len(t, u.Tx.TxOut, test.outputs, test.name)
		require.Equal(t, test.fee, u.Fee, test.name)
		requireBalanced(t, u)
	}
}

// TestBuildSweep ensures a zero amount moves everything but the fee to the
// destination.
func TestBuildSweep(t *testing.T) {
	t.Parallel()

	u, err := Build(&Request{
		Strategy:     CPFP,
		Role:         Accelerant,
		Inputs:       []utxo.UnspentOutput{walletOutput(1, 50_000)},
		Destination:  destScript,
		ChangeScript: changeScript,
		FeeRate:      10_000,
	})
	require.NoError(t, err)
	require.Len(t, u.Tx.TxOut, 1)
	require.Equal(t, destScript, u.Tx.TxOut[0].PkScript)
	require.Equal(t, btcutil.Amount(u.EstimatedVSize*10), u.Fee)
	requireBalanced(t, u)

	// The 110 vbyte sweep pays 1100 and a P2WPKH output is dust below 294
	// satoshis.
	sweep := func(amt btcutil.Amount) (*UnsignedTx, error) {
		return Build(&Request{
			Strategy:    CPFP,
			Role:        Accelerant,
			Inputs:      []utxo.UnspentOutput{walletOutput(1, amt)},
			Destination: destScript,
			FeeRate:     10_000,
		})
	}

	u, err = sweep(1_394)
	require.NoError(t, err)
	require.Equal(t, int64(294), u.Tx.TxOut[0].Value)

	_, err = sweep(1_393)
	require.ErrorIs(t, err, feebump.ErrInsufficientFunds)

	_, err = sweep(1_000)
	require.ErrorIs(t, err, feebump.ErrInsufficientFunds)
}

// TestBuildFeeRoundsUp ensures fractional fees are rounded up to the next
// satoshi.
func TestBuildFeeRoundsUp(t *testing.T) {
	t.Parallel()

	for _, rate := range []btcutil.Amount{100, 1234, 1500} {
		u, err := Build(&Request{
			Strategy:    CPFP,
			Role:        Accelerant,
			Inputs:      []utxo.UnspentOutput{walletOutput(1, 50_000)},
			Destination: destScript,
			FeeRate:     rate,
		})
		require.NoError(t, err)
		want := (int64(rate)*u.EstimatedVSize + 999) / 1000
		require.Equal(t, btcutil.Amount(want), u.Fee, "rate %v", rate)
		require.GreaterOrEqual(t, int64(u.Fee)*1000,
			int64(rate)*u.EstimatedVSize)
	}
}

// TestBuildFailures exercises the classified construction failures.
func TestBuildFailures(t *testing.T) {
	t.Parallel()

	badSequence := uint32(0xfffffff0)
	okSequence := uint32(0xfffffffe)

	tests := []struct {
		name string
		req  Request
		want error
	}{{
		name: "no inputs",
		req: Request{
			Destination: destScript,
			Amount:      1000,
		},
		want: feebump.ErrInsufficientFunds,
	}, {
		name: "inputs short of amount plus fee",
		req: Request{
			Inputs:      []utxo.UnspentOutput{walletOutput(1, 10_000)},
			Destination: destScript,
			Amount:      9_990,
			FeeRate:     1000,
		},
		want: feebump.ErrInsufficientFunds,
	}, {
		name: "p2pkh destination",
		req: Request{
			Inputs:      []utxo.UnspentOutput{walletOutput(1, 10_000)},
			Destination: p2pkhScript,
			Amount:      5_000,
		},
		want: feebump.ErrInvalidScript,
	}, {
		name: "p2pkh change",
		req: Request{
			Inputs:       []utxo.UnspentOutput{walletOutput(1, 10_000)},
			Destination:  destScript,
			Amount:       5_000,
			ChangeScript: p2pkhScript,
		},
		want: feebump.ErrInvalidScript,
	}, {
		name: "p2pkh input",
		req: Request{
			Inputs: []utxo.UnspentOutput{{
				Amount:   10_000,
				PkScript: p2pkhScript,
			}},
			Destination: destScript,
			Amount:      5_000,
		},
		want: feebump.ErrInvalidScript,
	}, {
		name: "non standard sequence",
		req: Request{
			Inputs:      []utxo.UnspentOutput{walletOutput(1, 10_000)},
			Destination: destScript,
			Amount:      5_000,
			Sequence:    &badSequence,
		},
		want: feebump.ErrNonStandard,
	}, {
		name: "dust payment",
		req: Request{
			Inputs:      []utxo.UnspentOutput{walletOutput(1, 10_000)},
			Destination: destScript,
			Amount:      100,
		},
		want: feebump.ErrNonStandard,
	}, {
		name: "allowed sequence override",
		req: Request{
			Inputs:      []utxo.UnspentOutput{walletOutput(1, 10_000)},
			Destination: destScript,
			Amount:      5_000,
			Sequence:    &okSequence,
		},
	}}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			u, err := Build(&test.req)
			if test.want == nil {
				require.NoError(t, err)
				require.Equal(t, okSequence, u.Tx.TxIn[0].Sequence)
				return
			}
			require.ErrorIs(t, err, test.want)
		})
	}
}

// TestBuildTRUCTopology ensures anchor spends respect the TRUC rules.
func TestBuildTRUCTopology(t *testing.T) {
	t.Parallel()

	var parentHash, otherHash chainhash.Hash
	parentHash[0] = 0x42
	otherHash[0] = 0x43

	childReq := func(parents map[chainhash.Hash]Parent,
		extra ...utxo.UnspentOutput) *Request {

		inputs := append([]utxo.UnspentOutput{
			anchorInput(parentHash, 1),
			walletOutput(7, 200_000),
		}, extra...)
		return &Request{
			Strategy:     P2A,
			Role:         Accelerant,
			Inputs:       inputs,
			Destination:  destScript,
			ChangeScript: changeScript,
			FeeRate:      20_000,
			Parents:      parents,
		}
	}

	// A version 3 child of a version 3 parent is fine, and spends the
	// anchor with the locktime sequence.
	u, err := Build(childReq(map[chainhash.Hash]Parent{
		parentHash: {Version: TRUCVersion, VSize: 150},
	}))
	require.NoError(t, err)
	require.Equal(t, TRUCVersion, u.Tx.Version)
	require.Equal(t, SequenceLockTime, u.Tx.TxIn[0].Sequence)
	require.Equal(t, int64(0), u.PrevOutputs[0].Value)
	require.LessOrEqual(t, u.EstimatedVSize, int64(MaxTRUCChildSize))
	requireBalanced(t, u)

	// A version 3 child may not spend a version 2 parent.
	_, err = Build(childReq(map[chainhash.Hash]Parent{
		parentHash: {Version: StandardVersion, VSize: 150},
	}))
	require.ErrorIs(t, err, feebump.ErrNonStandard)

	// Two unconfirmed parents are too many.
	other := walletOutput(9, 1000)
	other.TxID = otherHash
	other.Confirmations = 0
	_, err = Build(childReq(map[chainhash.Hash]Parent{
		parentHash: {Version: TRUCVersion, VSize: 150},
		otherHash:  {Version: TRUCVersion, VSize: 150},
	}, other))
	require.ErrorIs(t, err, feebump.ErrNonStandard)

	// A version 2 child may not spend from a version 3 parent.
	_, err = Build(&Request{
		Strategy:    CPFP,
		Role:        Accelerant,
		Inputs:      []utxo.UnspentOutput{anchorInput(parentHash, 1), walletOutput(7, 200_000)},
		Destination: destScript,
		FeeRate:     20_000,
		Parents: map[chainhash.Hash]Parent{
			parentHash: {Version: TRUCVersion, VSize: 150},
		},
	})
	require.ErrorIs(t, err, feebump.ErrNonStandard)

	// A child too big for the TRUC child limit is rejected.
	inputs := []utxo.UnspentOutput{anchorInput(parentHash, 1)}
	for i := 0; i < 20; i++ {
		inputs = append(inputs, walletOutput(byte(10+i), 10_000))
	}
	_, err = Build(&Request{
		Strategy:    P2A,
		Role:        Accelerant,
		Inputs:      inputs,
		Destination: destScript,
		FeeRate:     1000,
		Parents: map[chainhash.Hash]Parent{
			parentHash: {Version: TRUCVersion, VSize: 150},
		},
	})
	require.ErrorIs(t, err, feebump.ErrNonStandard)
}

// TestBuildBalanceProperty checks that no value is created or destroyed for
// any buildable request.
func TestBuildBalanceProperty(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		numInputs := rapid.IntRange(1, 4).Draw(t, "numInputs")
		inputs := make([]utxo.UnspentOutput, 0, numInputs)
		var total btcutil.Amount
		for i := 0; i < numInputs; i++ {
			amt := btcutil.Amount(rapid.Int64Range(
				10_000, 100_000_000,
			).Draw(t, "amount"))
			inputs = append(inputs, walletOutput(byte(i), amt))
			total += amt
		}

		var amount btcutil.Amount
		if !rapid.Bool().Draw(t, "sweep") {
			amount = btcutil.Amount(rapid.Int64Range(
				1_000, int64(total),
			).Draw(t, "payment"))
		}

		req := &Request{
			Strategy:    Strategy(rapid.IntRange(0, 1).Draw(t, "strategy")),
			Role:        Role(rapid.IntRange(0, 1).Draw(t, "role")),
			Inputs:      inputs,
			Destination: destScript,
			Amount:      amount,
			FeeRate: btcutil.Amount(rapid.Int64Range(
				0, 100_000,
			).Draw(t, "feeRate")),
			Fee: btcutil.Amount(rapid.Int64Range(
				0, 5_000,
			).Draw(t, "fee")),
		}
		if rapid.Bool().Draw(t, "change") {
			req.ChangeScript = changeScript
		}

		u, err := Build(req)
		if err != nil {
			require.ErrorIs(t, err, feebump.ErrInsufficientFunds)
			return
		}
		requireBalanced(t, u)
		require.GreaterOrEqual(t, u.Fee, req.Fee)
		for _, txOut := range u.Tx.TxOut {
			require.Positive(t, txOut.Value)
		}
	})
}
