// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package fees computes the fees a transaction must pay for each acceleration
strategy so that the node accepts it instead of rejecting it.

Fee rates are expressed in satoshis per kilo-vbyte, the unit used by the
node's relay policy (minrelaytxfee, incrementalrelayfee).  Virtual size is
the transaction weight divided by four, rounded up.

Replacement (BIP 125)

A replacement must pay a higher fee rate than the transaction it replaces
and an absolute fee of at least the replaced fee plus the incremental relay
fee applied to the replacement's own size:

	fee > replacedRate * vsize / 1000
	fee >= replacedFee + incrementalRelayFee * vsize / 1000

For a 200 vbyte replacement of a transaction that paid 1000 satoshis with a
1 sat/vB incremental relay fee, that is at least 1200 satoshis.

Child pays for parent

A child must bring the combined fee rate of itself and its unconfirmed parent
up to the target:

	(parentFee + childFee) / (parentVSize + childVSize) >= target

Pay to anchor

The anchor parent pays no fee at all and is only relayed together with a
child spending its anchor, so the child carries the whole package fee using
the same formula as a CPFP child with a zero parent fee.

Every transaction besides the anchor parent must also meet the minimum relay
fee on its own.
*/
package fees
