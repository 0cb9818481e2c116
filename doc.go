// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package feebump implements a fee-acceleration engine for Bitcoin
transactions stuck in a node's mempool.

Three strategies are supported:

  - Replace-By-Fee (BIP 125): a conflicting transaction spending the same
    inputs with a higher fee evicts the original.
  - Child-Pays-For-Parent: a child spending an output of the stuck parent
    pays enough that the package fee rate reaches a target.
  - Pay-to-Anchor: a version 3 parent carries a zero-value anyone-can-spend
    anchor output (OP_1 <0x4e73>) and pays no fee at all; any party may
    attach a fee paying child and submit both as a package.

The work is split across the following packages:

	utxo       selection of spendable outputs reported by the node
	txbuilder  version, sequence, output and TRUC rules per strategy
	signer     deterministic P2WPKH and P2TR signatures via PSBT
	fees       virtual size and fee requirements per strategy
	node       the narrow JSON-RPC surface of bitcoind that is consumed
	broadcast  submission, reject reason classification and polling
	strategy   the RBF, CPFP and P2A orchestrators and their runner

This package holds the error kinds shared by all of them.  Every failure
returned by the engine can be classified with KindOf.

The cmd/feebump program drives the strategies against a regtest bitcoind.
*/
package feebump
