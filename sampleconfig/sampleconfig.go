// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sampleconfig

// FileContents is a string containing the commented example config for
// feebump.
const FileContents = `[Application Options]

; ------------------------------------------------------------------------------
; Node settings
; ------------------------------------------------------------------------------

; RPC server of the bitcoind node.  The default port is 18443 on regtest and
; 18332 on testnet.
; rpcserver=127.0.0.1:18443

; RPC credentials.  When a username is given without a password, the password
; is prompted for on the terminal.
; rpcuser=
; rpcpass=

; Route RPC traffic through a SOCKS5 proxy.
; proxy=127.0.0.1:9050
; proxyuser=
; proxypass=

; Name of the node wallet that watches the demo key.  It is created as a blank
; watch-only descriptor wallet when missing.
; wallet=rbf_demo_wallet

; Use testnet instead of regtest.  Nothing is mined on testnet, so the demo key
; has to be funded beforehand.
; testnet=1

; ------------------------------------------------------------------------------
; Acceleration settings
; ------------------------------------------------------------------------------

; Strategy to demonstrate: rbf, cpfp, p2a or all.
; strategy=all

; Fee rate in sat/vB of the transactions meant to get stuck, and the rate
; accelerants lift them to.
; stuckfeerate=1
; targetfeerate=20

; Time between two mempool observations, and the time to wait for a
; transaction to reach an expected state.
; pollinterval=500ms
; observetimeout=30s

; Number of recent blocks searched for confirmed transactions.
; scandepth=6

; ------------------------------------------------------------------------------
; Wallet settings
; ------------------------------------------------------------------------------

; Blocks mined to fund the demo key, and the balance in BTC below which the
; wallet is funded before running.
; fundblocks=101
; minbalance=10

; Output type of the generated demo key: p2wpkh or p2tr.
; keytype=p2wpkh

; Use a WIF encoded private key instead of generating one.
; wif=

; ------------------------------------------------------------------------------
; Debug
; ------------------------------------------------------------------------------

; Debug logging level.
; Valid levels are {trace, debug, info, warn, error, critical}
; You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set
; log level for individual subsystems.  Use feebump --debuglevel=show to list
; available subsystems.
; debuglevel=info

; Directory to log output.
; logdir=~/.feebump/logs
`
