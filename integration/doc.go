// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package integration contains tests run against a live regtest bitcoind.
// They are only built with the rpctest tag:
//
//	FEEBUMP_RPCSERVER=127.0.0.1:18443 FEEBUMP_RPCUSER=user \
//	FEEBUMP_RPCPASS=pass go test -tags rpctest ./integration
package integration
