// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package utxo

import (
	"bytes"
	"sort"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/feebump"
)

// UnspentOutput is a read-only snapshot of a wallet output reported by the
// node.
type UnspentOutput struct {
	TxID          chainhash.Hash
	Index         uint32
	Amount        btcutil.Amount
	PkScript      []byte
	Confirmations int64
}

// OutPoint returns the outpoint referencing the output.
func (u *UnspentOutput) OutPoint() wire.OutPoint {
	return wire.OutPoint{Hash: u.TxID, Index: u.Index}
}

// TxOut returns the output as a wire.TxOut.
func (u *UnspentOutput) TxOut() *wire.TxOut {
	return wire.NewTxOut(int64(u.Amount), u.PkScript)
}

// Constraint restricts which outputs are eligible for selection.
type Constraint struct {
	// MinConf is the minimum number of confirmations an output needs.
	MinConf int64

	// Classes lists the accepted script classes.  When empty, P2WPKH and
	// P2TR outputs are accepted.
	Classes []txscript.ScriptClass

	// Exclude lists outpoints that must not be selected, typically the
	// inputs of a transaction that is still in flight.
	Exclude map[wire.OutPoint]struct{}

	// MaxInputs caps the number of selected outputs.  Zero means no cap.
	MaxInputs int
}

// defaultClasses are the script classes the signer knows how to spend.
var defaultClasses = []txscript.ScriptClass{
	txscript.WitnessV0PubKeyHashTy,
	txscript.WitnessV1TaprootTy,
}

func (c *Constraint) accepts(u *UnspentOutput) bool {
	if u.Amount <= 0 || u.Confirmations < c.MinConf {
		return false
	}
	if _, ok := c.Exclude[u.OutPoint()]; ok {
		return false
	}

	classes := c.Classes
	if len(classes) == 0 {
		classes = defaultClasses
	}
	class := txscript.GetScriptClass(u.PkScript)
	for _, want := range classes {
		if class == want {
			return true
		}
	}
	return false
}

// Eligible returns the candidates satisfying the constraint ordered largest
// first.  Ties are broken by outpoint so the order is deterministic.
func Eligible(candidates []UnspentOutput, c Constraint) []UnspentOutput {
	eligible := make([]UnspentOutput, 0, len(candidates))
	for i := range candidates {
		if c.accepts(&candidates[i]) {
			eligible = append(eligible, candidates[i])
		}
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := &eligible[i], &eligible[j]
		if a.Amount != b.Amount {
			return a.Amount > b.Amount
		}
		if cmp := bytes.Compare(a.TxID[:], b.TxID[:]); cmp != 0 {
			return cmp < 0
		}
		return a.Index < b.Index
	})

	return eligible
}

// Select picks outputs largest first until their sum reaches target.  A zero
// target selects the single largest eligible output.  It returns the
// selection and its total, or an InsufficientFunds error.
func Select(candidates []UnspentOutput, target btcutil.Amount,
	c Constraint) ([]UnspentOutput, btcutil.Amount, error) {

	eligible := Eligible(candidates, c)
	if len(eligible) == 0 {
		return nil, 0, feebump.Errorf(feebump.InsufficientFunds,
			"no eligible outputs among %d candidates", len(candidates))
	}

	var (
		selected []UnspentOutput
		total    btcutil.Amount
	)
	for _, u := range eligible {
		if c.MaxInputs > 0 && len(selected) == c.MaxInputs {
			break
		}
		selected = append(selected, u)
		total += u.Amount
		if total >= target {
			log.Debugf("Selected %d of %d eligible outputs totalling "+
				"%v for target %v", len(selected), len(eligible),
				total, target)
			return selected, total, nil
		}
	}

	return nil, 0, feebump.Errorf(feebump.InsufficientFunds,
		"selected %v from %d outputs, need %v", total, len(selected),
		target)
}
