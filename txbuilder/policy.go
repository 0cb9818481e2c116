// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txbuilder

import (
	"fmt"

	"github.com/btcsuite/btcd/wire"
)

// Strategy identifies a fee acceleration strategy.
type Strategy uint8

const (
	// RBF replaces a signaling transaction with a conflicting one that
	// pays a higher fee (BIP 125).
	RBF Strategy = iota

	// CPFP attaches a high fee child to a low fee parent.
	CPFP

	// P2A attaches a fee paying child to the zero-value anchor output of a
	// zero fee version 3 parent.
	P2A
)

var strategyStrings = map[Strategy]string{
	RBF:  "rbf",
	CPFP: "cpfp",
	P2A:  "p2a",
}

// String returns the short lowercase name of the strategy.
func (s Strategy) String() string {
	if str, ok := strategyStrings[s]; ok {
		return str
	}
	return fmt.Sprintf("Unknown Strategy (%d)", uint8(s))
}

// ParseStrategy returns the strategy with the given short name.
func ParseStrategy(name string) (Strategy, error) {
	for s, str := range strategyStrings {
		if str == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown strategy %q", name)
}

// Role tells which transaction of a strategy is being built.
type Role uint8

const (
	// Original is the transaction that gets stuck: the RBF original, the
	// CPFP parent or the P2A anchor parent.
	Original Role = iota

	// Accelerant is the transaction that speeds the original up: the RBF
	// replacement, the CPFP child or the P2A anchor spend.
	Accelerant
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case Original:
		return "original"
	case Accelerant:
		return "accelerant"
	}
	return fmt.Sprintf("Unknown Role (%d)", uint8(r))
}

const (
	// SequenceReplaceable signals BIP 125 replaceability.
	SequenceReplaceable uint32 = 0xfffffffd

	// SequenceLockTime enables locktime and is treated as replaceable.
	SequenceLockTime uint32 = 0xfffffffe

	// SequenceFinal marks the input final and non-replaceable.
	SequenceFinal uint32 = wire.MaxTxInSequenceNum

	// StandardVersion is the version used by RBF and CPFP transactions.
	StandardVersion int32 = 2

	// TRUCVersion is the transaction version that signals TRUC (BIP 431)
	// topology restrictions, required by anchor transactions.
	TRUCVersion int32 = 3

	// MaxTRUCParentSize is the maximum virtual size in vB of a TRUC
	// transaction with no unconfirmed ancestors.
	MaxTRUCParentSize = 10000

	// MaxTRUCChildSize is the maximum virtual size in vB of a TRUC
	// transaction with an unconfirmed TRUC ancestor.
	MaxTRUCChildSize = 1000
)

// Version returns the transaction version a strategy builds.
func Version(s Strategy) int32 {
	if s == P2A {
		return TRUCVersion
	}
	return StandardVersion
}

// Sequence returns the default input sequence for the given strategy and
// role.  The RBF original and its replacement both signal replaceability.
// The CPFP parent is final so the demonstration shows acceleration without
// replacement, and both accelerants use the locktime sequence since the
// child itself is not meant to be replaced.
func Sequence(s Strategy, r Role) uint32 {
	switch {
	case s == RBF:
		return SequenceReplaceable
	case r == Original:
		return SequenceFinal
	default:
		return SequenceLockTime
	}
}

// ValidSequence reports whether seq is one of the three sequence numbers
// this package emits.
func ValidSequence(seq uint32) bool {
	switch seq {
	case SequenceReplaceable, SequenceLockTime, SequenceFinal:
		return true
	}
	return false
}

// SignalsReplacement reports whether any input of tx carries a replaceable
// sequence number.
func SignalsReplacement(tx *wire.MsgTx) bool {
	for _, txIn := range tx.TxIn {
		if txIn.Sequence <= SequenceLockTime {
			return true
		}
	}
	return false
}
