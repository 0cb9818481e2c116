// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txbuilder

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/feebump"
)

// checkTopology enforces the BIP 431 TRUC restrictions and the ephemeral
// dust rule on a freshly built transaction:
//
//   - Rule 1: an unconfirmed TRUC transaction may only have TRUC parents,
//     and a non-TRUC transaction may not spend from an unconfirmed TRUC one.
//   - Rule 2: a TRUC transaction may have at most one unconfirmed parent.
//   - Rule 3: a TRUC transaction is limited to MaxTRUCParentSize, or to
//     MaxTRUCChildSize when it has an unconfirmed parent.
//   - A transaction carrying an anchor output must pay zero fee so the
//     anchor is guaranteed to be spent in the same package.
func checkTopology(u *UnsignedTx, parents map[chainhash.Hash]Parent) error {
	isTRUC := u.Tx.Version == TRUCVersion

	unconfirmed := make(map[chainhash.Hash]Parent)
	for _, txIn := range u.Tx.TxIn {
		hash := txIn.PreviousOutPoint.Hash
		if parent, ok := parents[hash]; ok {
			unconfirmed[hash] = parent
		}
	}

	for hash, parent := range unconfirmed {
		parentTRUC := parent.Version == TRUCVersion
		switch {
		case isTRUC && !parentTRUC:
			return feebump.Errorf(feebump.NonStandard,
				"TRUC-violation: version=3 tx %v cannot spend "+
					"from non-version=3 tx %v", u.Tx.TxHash(), hash)

		case !isTRUC && parentTRUC:
			return feebump.Errorf(feebump.NonStandard,
				"TRUC-violation: non-version=3 tx %v cannot spend "+
					"from version=3 tx %v", u.Tx.TxHash(), hash)
		}
	}

	if isTRUC {
		if len(unconfirmed) > 1 {
			return feebump.Errorf(feebump.NonStandard,
				"TRUC-violation: tx %v would have too many "+
					"ancestors (%d)", u.Tx.TxHash(),
				len(unconfirmed))
		}

		limit := int64(MaxTRUCParentSize)
		if len(unconfirmed) == 1 {
			limit = MaxTRUCChildSize
		}
		if u.EstimatedVSize > limit {
			return feebump.Errorf(feebump.NonStandard,
				"TRUC-violation: tx %v is too big: %d > %d "+
					"virtual bytes", u.Tx.TxHash(),
				u.EstimatedVSize, limit)
		}
	}

	if _, ok := FindAnchor(u.Tx); ok && u.Fee != 0 {
		return feebump.Errorf(feebump.NonStandard,
			"dust: tx %v with an anchor output must be 0-fee, "+
				"pays %v", u.Tx.TxHash(), u.Fee)
	}

	return nil
}
