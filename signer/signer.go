// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package signer

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/mempool"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/feebump"
	"github.com/btcsuite/feebump/txbuilder"
)

// SignedTx is a fully signed transaction.  It must not be modified: any
// change requires building and signing a new transaction.
type SignedTx struct {
	Strategy txbuilder.Strategy
	Role     txbuilder.Role
	Tx       *wire.MsgTx
	TxID     chainhash.Hash
	WTxID    chainhash.Hash
	Fee      btcutil.Amount
	VSize    int64
}

// Sign produces the witness of every input of unsigned and returns the
// finalized transaction.  P2WPKH inputs get a BIP 143 ECDSA signature with
// SIGHASH_ALL, P2TR inputs a BIP 340 key path signature with
// SIGHASH_DEFAULT, and anchor inputs an empty witness.  Signatures are
// deterministic, so signing the same transaction twice with the same keys
// yields identical bytes.
func Sign(unsigned *txbuilder.UnsignedTx, keys KeySource) (*SignedTx, error) {
	packet, err := psbt.NewFromUnsignedTx(unsigned.Tx.Copy())
	if err != nil {
		return nil, fmt.Errorf("unable to create packet: %w", err)
	}
	updater, err := psbt.NewUpdater(packet)
	if err != nil {
		return nil, err
	}

	fetcher := unsigned.PrevOutputFetcher()
	sigHashes := txscript.NewTxSigHashes(packet.UnsignedTx, fetcher)

	for i, prevOut := range unsigned.PrevOutputs {
		if err := updater.AddInWitnessUtxo(prevOut, i); err != nil {
			return nil, err
		}

		// Anchors are anyone-can-spend and need no signature.
		if txbuilder.IsAnchor(prevOut.PkScript) {
			continue
		}

		key, err := keys.KeyForScript(prevOut.PkScript)
		if err != nil {
			return nil, err
		}

		switch {
		case txscript.IsPayToWitnessPubKeyHash(prevOut.PkScript):
			sig, err := txscript.RawTxInWitnessSignature(
				packet.UnsignedTx, sigHashes, i, prevOut.Value,
				prevOut.PkScript, txscript.SigHashAll, key,
			)
			if err != nil {
				return nil, err
			}
			_, err = updater.Sign(
				i, sig, key.PubKey().SerializeCompressed(),
				nil, nil,
			)
			if err != nil {
				return nil, fmt.Errorf("unable to add signature "+
					"for input %d: %w", i, err)
			}

		case txscript.IsPayToTaproot(prevOut.PkScript):
			sig, err := txscript.RawTxInTaprootSignature(
				packet.UnsignedTx, sigHashes, i, prevOut.Value,
				prevOut.PkScript, nil, txscript.SigHashDefault,
				key,
			)
			if err != nil {
				return nil, err
			}
			packet.Inputs[i].TaprootKeySpendSig = sig

		default:
			return nil, feebump.Errorf(feebump.InvalidScript,
				"input %d spends unsupported script %x", i,
				prevOut.PkScript)
		}

		finalized, err := psbt.MaybeFinalize(packet, i)
		if err != nil {
			return nil, fmt.Errorf("unable to finalize input %d: %w",
				i, err)
		}
		if !finalized {
			return nil, fmt.Errorf("input %d is not finalizable", i)
		}
	}

	tx, err := extractWithAnchors(packet)
	if err != nil {
		return nil, err
	}
	if err := verify(tx, unsigned.PrevOutputs, fetcher); err != nil {
		return nil, err
	}

	signed := &SignedTx{
		Strategy: unsigned.Strategy,
		Role:     unsigned.Role,
		Tx:       tx,
		TxID:     tx.TxHash(),
		WTxID:    tx.WitnessHash(),
		Fee:      unsigned.Fee,
		VSize:    mempool.GetTxVirtualSize(btcutil.NewTx(tx)),
	}

	log.Debugf("Signed %v %v tx %v (wtxid %v, %d vbytes)",
		signed.Strategy, signed.Role, signed.TxID, signed.WTxID,
		signed.VSize)

	return signed, nil
}

// extractWithAnchors extracts the final witnesses from the packet, leaving
// the witness of anchor inputs empty.
func extractWithAnchors(p *psbt.Packet) (*wire.MsgTx, error) {
	finalTx := p.UnsignedTx.Copy()

	for i, txIn := range finalTx.TxIn {
		pInput := p.Inputs[i]

		if pInput.WitnessUtxo != nil &&
			txbuilder.IsAnchor(pInput.WitnessUtxo.PkScript) {

			txIn.Witness = wire.TxWitness{}
			continue
		}

		if pInput.FinalScriptWitness == nil {
			return nil, fmt.Errorf("input %d is not finalized", i)
		}

		witnessReader := bytes.NewReader(pInput.FinalScriptWitness)
		witCount, err := wire.ReadVarInt(witnessReader, 0)
		if err != nil {
			return nil, err
		}

		txIn.Witness = make(wire.TxWitness, witCount)
		for j := uint64(0); j < witCount; j++ {
			wit, err := wire.ReadVarBytes(
				witnessReader, 0, txscript.MaxScriptSize,
				"witness",
			)
			if err != nil {
				return nil, err
			}
			txIn.Witness[j] = wit
		}
	}

	return finalTx, nil
}

// verify runs every signed input through the script engine.
func verify(tx *wire.MsgTx, prevOutputs []*wire.TxOut,
	fetcher txscript.PrevOutputFetcher) error {

	sigHashes := txscript.NewTxSigHashes(tx, fetcher)
	for i, prevOut := range prevOutputs {
		if txbuilder.IsAnchor(prevOut.PkScript) {
			continue
		}

		vm, err := txscript.NewEngine(
			prevOut.PkScript, tx, i, txscript.StandardVerifyFlags,
			nil, sigHashes, prevOut.Value, fetcher,
		)
		if err != nil {
			return err
		}
		if err := vm.Execute(); err != nil {
			return feebump.Wrap(feebump.InvalidScript,
				fmt.Sprintf("input %d failed verification", i),
				err)
		}
	}
	return nil
}
