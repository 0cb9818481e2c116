// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package utxo

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/feebump"
	"github.com/stretchr/testify/require"
)

var (
	p2wpkhScript = append([]byte{0x00, 0x14}, bytes.Repeat([]byte{0x11}, 20)...)
	p2trScript   = append([]byte{0x51, 0x20}, bytes.Repeat([]byte{0x22}, 32)...)
	p2pkhScript  = append(append([]byte{0x76, 0xa9, 0x14},
		bytes.Repeat([]byte{0x33}, 20)...), 0x88, 0xac)
)

func makeOutput(seed byte, index uint32, amt btcutil.Amount,
	script []byte, confs int64) UnspentOutput {

	var txid chainhash.Hash
	txid[0] = seed
	return UnspentOutput{
		TxID:          txid,
		Index:         index,
		Amount:        amt,
		PkScript:      script,
		Confirmations: confs,
	}
}

// TestSelect ensures outputs are picked largest first and filtered by the
// constraint.
func TestSelect(t *testing.T) {
	t.Parallel()

	candidates := []UnspentOutput{
		makeOutput(1, 0, 50_000, p2wpkhScript, 6),
		makeOutput(2, 0, 200_000, p2pkhScript, 6),
		makeOutput(3, 0, 120_000, p2trScript, 1),
		makeOutput(4, 1, 80_000, p2wpkhScript, 0),
		makeOutput(5, 0, 0, p2wpkhScript, 6),
	}

	tests := []struct {
		name      string
		target    btcutil.Amount
		c         Constraint
		wantSeeds []byte
		wantTotal btcutil.Amount
		wantErr   bool
	}{{
		name:      "single largest covers",
		target:    100_000,
		wantSeeds: []byte{3},
		wantTotal: 120_000,
	}, {
		name:      "unconfirmed allowed",
		target:    190_000,
		wantSeeds: []byte{3, 4},
		wantTotal: 200_000,
	}, {
		name:      "min conf excludes unconfirmed",
		target:    150_000,
		c:         Constraint{MinConf: 1},
		wantSeeds: []byte{3, 1},
		wantTotal: 170_000,
	}, {
		name:      "zero target picks largest",
		target:    0,
		wantSeeds: []byte{3},
		wantTotal: 120_000,
	}, {
		name:   "excluded outpoint",
		target: 150_000,
		c: Constraint{Exclude: map[wire.OutPoint]struct{}{
			candidates[2].OutPoint(): {},
		}},
		wantErr: true,
	}, {
		name:    "max inputs",
		target:  190_000,
		c:       Constraint{MaxInputs: 1},
		wantErr: true,
	}, {
		name:   "restricted to p2wpkh",
		target: 100_000,
		c: Constraint{Classes: []txscript.ScriptClass{
			txscript.WitnessV0PubKeyHashTy,
		}},
		wantSeeds: []byte{4, 1},
		wantTotal: 130_000,
	}, {
		name:    "p2pkh never eligible by default",
		target:  300_000,
		wantErr: true,
	}}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			selected, total, err := Select(
				candidates, test.target, test.c,
			)
			if test.wantErr {
				require.ErrorIs(t, err, feebump.ErrInsufficientFunds)
				return
			}
			require.NoError(t, err)
			require.Equal(t, test.wantTotal, total)

			seeds := make([]byte, 0, len(selected))
			for _, u := range selected {
				seeds = append(seeds, u.TxID[0])
			}
			require.Equal(t, test.wantSeeds, seeds)
		})
	}
}
