// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txbuilder

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/btcsuite/btcwallet/wallet/txsizes"
	"github.com/btcsuite/feebump"
	"github.com/btcsuite/feebump/utxo"
	"github.com/davecgh/go-spew/spew"
)

// Parent describes an unconfirmed transaction whose outputs are spent by
// the transaction being built.
type Parent struct {
	Version int32
	VSize   int64
	Fee     btcutil.Amount
}

// Request describes the transaction to build.
type Request struct {
	Strategy Strategy
	Role     Role

	// Inputs are the outputs to spend, in order.  Anchor outputs may be
	// included; they have no value and are spent with an empty witness.
	Inputs []utxo.UnspentOutput

	// Destination receives Amount.  A zero Amount sweeps every input to
	// the destination and never creates change.
	Destination []byte
	Amount      btcutil.Amount

	// ChangeScript receives whatever is left above Amount plus the fee.
	// When nil, or when the remainder is dust, the remainder goes to the
	// fee instead.
	ChangeScript []byte

	// FeeRate is in satoshis per kilo-vbyte of estimated size.  Fee is an
	// absolute floor.  The larger of the two is paid; both zero builds a
	// zero fee transaction.
	FeeRate btcutil.Amount
	Fee     btcutil.Amount

	// Sequence overrides the default sequence of every input.
	Sequence *uint32

	// Parents holds the unconfirmed transactions spent by Inputs, keyed by
	// txid.  It drives the TRUC topology checks.
	Parents map[chainhash.Hash]Parent

	// DustRelayFee is the relay fee used for dust checks.  Zero uses the
	// default relay fee.
	DustRelayFee btcutil.Amount
}

// UnsignedTx is a transaction ready for signing together with everything
// the signer and fee calculator need to know about it.
type UnsignedTx struct {
	Strategy Strategy
	Role     Role
	Tx       *wire.MsgTx

	// PrevOutputs holds the output spent by each input, by input index.
	PrevOutputs []*wire.TxOut

	Fee            btcutil.Amount
	EstimatedVSize int64
}

// PrevOutputFetcher returns a fetcher over the spent outputs suitable for
// sighash computation.
func (u *UnsignedTx) PrevOutputFetcher() *txscript.MultiPrevOutFetcher {
	prevOuts := make(map[wire.OutPoint]*wire.TxOut, len(u.Tx.TxIn))
	for i, txIn := range u.Tx.TxIn {
		prevOuts[txIn.PreviousOutPoint] = u.PrevOutputs[i]
	}
	return txscript.NewMultiPrevOutFetcher(prevOuts)
}

// InputValue returns the sum of the spent outputs.
func (u *UnsignedTx) InputValue() btcutil.Amount {
	var total btcutil.Amount
	for _, prevOut := range u.PrevOutputs {
		total += btcutil.Amount(prevOut.Value)
	}
	return total
}

// scriptKind identifies the output templates the engine can create and
// spend.
type scriptKind uint8

const (
	kindUnknown scriptKind = iota
	kindP2WPKH
	kindP2TR
	kindAnchor
)

func classify(pkScript []byte) scriptKind {
	switch {
	case IsAnchor(pkScript):
		return kindAnchor
	case txscript.IsPayToWitnessPubKeyHash(pkScript):
		return kindP2WPKH
	case txscript.IsPayToTaproot(pkScript):
		return kindP2TR
	}
	return kindUnknown
}

// EstimateVirtualSize returns the worst case virtual size of a signed
// transaction spending inputs and paying outputs.  A non-zero
// changeScriptSize accounts for a change output of that script size.
func EstimateVirtualSize(inputs []utxo.UnspentOutput, outputs []*wire.TxOut,
	changeScriptSize int) int64 {

	var numP2WPKH, numP2TR, numAnchor int
	for i := range inputs {
		switch classify(inputs[i].PkScript) {
		case kindP2WPKH:
			numP2WPKH++
		case kindP2TR:
			numP2TR++
		case kindAnchor:
			numAnchor++
		}
	}

	vsize := txsizes.EstimateVirtualSize(
		0, numP2TR, numP2WPKH, 0, outputs, changeScriptSize,
	)
	return int64(vsize) + int64(numAnchor*AnchorInputVSize)
}

// feeFor returns the fee paid at the given size, rounded up to the next
// satoshi as the node does.
func (r *Request) feeFor(vsize int64) btcutil.Amount {
	var fee btcutil.Amount
	if scaled := int64(r.FeeRate) * vsize; scaled > 0 {
		fee = btcutil.Amount((scaled + 999) / 1000)
	}
	if fee < r.Fee {
		fee = r.Fee
	}
	return fee
}

func (r *Request) dustRelayFee() btcutil.Amount {
	if r.DustRelayFee > 0 {
		return r.DustRelayFee
	}
	return txrules.DefaultRelayFeePerKb
}

// checkScripts ensures every spent and created script is a known template.
func (r *Request) checkScripts() error {
	if classify(r.Destination) == kindUnknown {
		return feebump.Errorf(feebump.InvalidScript,
			"destination script %x is not P2WPKH, P2TR or anchor",
			r.Destination)
	}
	if r.ChangeScript != nil {
		switch classify(r.ChangeScript) {
		case kindP2WPKH, kindP2TR:
		default:
			return feebump.Errorf(feebump.InvalidScript,
				"change script %x is not P2WPKH or P2TR",
				r.ChangeScript)
		}
	}
	for i := range r.Inputs {
		if classify(r.Inputs[i].PkScript) == kindUnknown {
			return feebump.Errorf(feebump.InvalidScript,
				"input %v spends unsupported script %x",
				r.Inputs[i].OutPoint(), r.Inputs[i].PkScript)
		}
	}
	return nil
}

// Build assembles an unsigned transaction for the request.  The resulting
// transaction balances exactly: the sum of its inputs equals the sum of its
// outputs plus the returned fee.
func Build(r *Request) (*UnsignedTx, error) {
	if len(r.Inputs) == 0 {
		return nil, feebump.NewError(feebump.InsufficientFunds,
			"no inputs selected")
	}
	if err := r.checkScripts(); err != nil {
		return nil, err
	}

	sequence := Sequence(r.Strategy, r.Role)
	if r.Sequence != nil {
		if !ValidSequence(*r.Sequence) {
			return nil, feebump.Errorf(feebump.NonStandard,
				"sequence %#08x is not one of %#08x, %#08x, %#08x",
				*r.Sequence, SequenceReplaceable,
				SequenceLockTime, SequenceFinal)
		}
		sequence = *r.Sequence
	}

	tx := wire.NewMsgTx(Version(r.Strategy))
	prevOutputs := make([]*wire.TxOut, 0, len(r.Inputs))
	var totalIn btcutil.Amount
	for i := range r.Inputs {
		in := &r.Inputs[i]
		prevOut := in.OutPoint()
		tx.AddTxIn(&wire.TxIn{
			PreviousOutPoint: prevOut,
			Sequence:         sequence,
		})
		prevOutputs = append(prevOutputs, in.TxOut())
		totalIn += in.Amount
	}

	// The fixed outputs come first: the payment, then the anchor.  The
	// payment of a sweep is added once the fee is known.
	var outputs []*wire.TxOut
	if r.Amount > 0 {
		outputs = append(outputs, wire.NewTxOut(
			int64(r.Amount), r.Destination,
		))
	}
	if r.Strategy == P2A && r.Role == Original {
		outputs = append(outputs, AnchorOutput())
	}

	var (
		fee   btcutil.Amount
		vsize int64
	)
	if r.Amount == 0 {
		sweepOutputs := append(outputs, wire.NewTxOut(0, r.Destination))
		vsize = EstimateVirtualSize(r.Inputs, sweepOutputs, 0)
		fee = r.feeFor(vsize)

		value := totalIn - fee
		if value <= 0 || txrules.IsDustOutput(
			wire.NewTxOut(int64(value), r.Destination),
			r.dustRelayFee(),
		) {
			return nil, feebump.Errorf(feebump.InsufficientFunds,
				"sweeping %v leaves %v after fee %v", totalIn,
				value, fee)
		}
		outputs = append(
			[]*wire.TxOut{wire.NewTxOut(int64(value), r.Destination)},
			outputs...,
		)
	} else {
		vsize = EstimateVirtualSize(r.Inputs, outputs, 0)
		feeNoChange := r.feeFor(vsize)
		if totalIn < r.Amount+feeNoChange {
			return nil, feebump.Errorf(feebump.InsufficientFunds,
				"inputs %v cannot cover %v plus fee %v", totalIn,
				r.Amount, feeNoChange)
		}

		// Without change the remainder is paid as fee.
		fee = totalIn - r.Amount
		if r.ChangeScript != nil {
			vsizeChange := EstimateVirtualSize(
				r.Inputs, outputs, len(r.ChangeScript),
			)
			feeChange := r.feeFor(vsizeChange)
			change := totalIn - r.Amount - feeChange
			if change > 0 && !txrules.IsDustOutput(
				wire.NewTxOut(int64(change), r.ChangeScript),
				r.dustRelayFee(),
			) {
				outputs = append(outputs, wire.NewTxOut(
					int64(change), r.ChangeScript,
				))
				fee = feeChange
				vsize = vsizeChange
			}
		}
	}

	for _, txOut := range outputs {
		switch {
		case IsAnchor(txOut.PkScript):
			if txOut.Value != AnchorValue {
				return nil, feebump.Errorf(feebump.NonStandard,
					"anchor output carries %d satoshis",
					txOut.Value)
			}

		default:
			err := txrules.CheckOutput(txOut, r.dustRelayFee())
			if err != nil {
				return nil, feebump.Wrap(feebump.NonStandard,
					"invalid output", err)
			}
		}
		tx.AddTxOut(txOut)
	}

	unsigned := &UnsignedTx{
		Strategy:       r.Strategy,
		Role:           r.Role,
		Tx:             tx,
		PrevOutputs:    prevOutputs,
		Fee:            fee,
		EstimatedVSize: vsize,
	}

	if err := checkBalance(unsigned); err != nil {
		return nil, err
	}
	if err := checkTopology(unsigned, r.Parents); err != nil {
		return nil, err
	}

	log.Debugf("Built %v %v %v: %d inputs, %d outputs, fee %v, "+
		"estimated vsize %d", r.Strategy, r.Role, tx.TxHash(),
		len(tx.TxIn), len(tx.TxOut), fee, vsize)
	log.Tracef("%v", newLogClosure(func() string {
		return spew.Sdump(tx)
	}))

	return unsigned, nil
}

// checkBalance asserts that no value is created or destroyed.
func checkBalance(u *UnsignedTx) error {
	var totalOut btcutil.Amount
	for _, txOut := range u.Tx.TxOut {
		totalOut += btcutil.Amount(txOut.Value)
	}
	totalIn := u.InputValue()
	if totalIn != totalOut+u.Fee {
		return feebump.Errorf(feebump.Unknown,
			"unbalanced transaction: inputs %v, outputs %v, fee %v",
			totalIn, totalOut, u.Fee)
	}
	return nil
}

// logClosure is used to provide a closure over expensive logging operations
// so they aren't performed when the logging level doesn't warrant it.
type logClosure func() string

func (c logClosure) String() string {
	return c()
}

func newLogClosure(c func() string) logClosure {
	return logClosure(c)
}
