// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txbuilder

import (
	"bytes"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// anchorPkScript is the pay-to-anchor script: OP_1 <0x4e73>.  It is a
// witness v1 program that anyone can spend with an empty witness.
var anchorPkScript = []byte{txscript.OP_1, txscript.OP_DATA_2, 0x4e, 0x73}

const (
	// AnchorValue is the value of an ephemeral anchor output.
	AnchorValue = 0

	// AnchorInputVSize is the virtual size added by spending an anchor:
	// the 41 byte input plus the witness item count, rounded up.
	AnchorInputVSize = 42
)

// AnchorPkScript returns a copy of the pay-to-anchor script.
func AnchorPkScript() []byte {
	return append([]byte(nil), anchorPkScript...)
}

// AnchorOutput returns a zero-value anchor output.
func AnchorOutput() *wire.TxOut {
	return wire.NewTxOut(AnchorValue, AnchorPkScript())
}

// IsAnchor reports whether pkScript is exactly the pay-to-anchor script.
func IsAnchor(pkScript []byte) bool {
	return bytes.Equal(pkScript, anchorPkScript)
}

// FindAnchor returns the index of the anchor output of tx.
func FindAnchor(tx *wire.MsgTx) (uint32, bool) {
	for i, txOut := range tx.TxOut {
		if IsAnchor(txOut.PkScript) {
			return uint32(i), true
		}
	}
	return 0, false
}
