// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package node

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/feebump"
	"github.com/btcsuite/feebump/fees"
	"github.com/btcsuite/feebump/utxo"
)

// Config describes how to reach a bitcoind node.
type Config struct {
	// Host is the host:port of the JSON-RPC server.
	Host string

	// User and Pass are the RPC credentials.
	User string
	Pass string

	// Wallet is the name of the wallet wallet-scoped calls are sent to.
	Wallet string

	// Params are the network parameters of the node.
	Params *chaincfg.Params

	// TLS enables HTTPS.  bitcoind itself only serves plain HTTP.
	TLS bool

	// Proxy is the host:port of an optional SOCKS5 proxy the RPC traffic
	// is sent through, with its credentials.
	Proxy     string
	ProxyUser string
	ProxyPass string
}

// Bitcoind is a Node backed by bitcoind's JSON-RPC interface.  Node wide
// calls go to the root endpoint and wallet calls to /wallet/<name>.
type Bitcoind struct {
	cfg    Config
	chain  *rpcclient.Client
	wallet *rpcclient.Client
}

// Compile-time assertions that Bitcoind implements Node and Wallet.
var (
	_ Node   = (*Bitcoind)(nil)
	_ Wallet = (*Bitcoind)(nil)
)

// NewBitcoind returns an adapter for the node described by cfg.  No
// connection is made until the first call.
func NewBitcoind(cfg *Config) (*Bitcoind, error) {
	connCfg := &rpcclient.ConnConfig{
		Host:         cfg.Host,
		User:         cfg.User,
		Pass:         cfg.Pass,
		HTTPPostMode: true,
		DisableTLS:   !cfg.TLS,
		Proxy:        cfg.Proxy,
		ProxyUser:    cfg.ProxyUser,
		ProxyPass:    cfg.ProxyPass,
	}
	chain, err := rpcclient.New(connCfg, nil)
	if err != nil {
		return nil, err
	}

	walletCfg := *connCfg
	walletCfg.Host = fmt.Sprintf("%s/wallet/%s", cfg.Host, cfg.Wallet)
	wallet, err := rpcclient.New(&walletCfg, nil)
	if err != nil {
		chain.Shutdown()
		return nil, err
	}

	return &Bitcoind{
		cfg:    *cfg,
		chain:  chain,
		wallet: wallet,
	}, nil
}

// Shutdown stops both RPC clients.
func (b *Bitcoind) Shutdown() {
	b.chain.Shutdown()
	b.wallet.Shutdown()
}

// call sends method with params to the node through client and decodes the
// result into result, which may be nil.  The call is abandoned when ctx is
// done.
func call(ctx context.Context, client *rpcclient.Client, method string,
	result interface{}, params ...interface{}) error {

	rawParams := make([]json.RawMessage, 0, len(params))
	for _, param := range params {
		marshalled, err := json.Marshal(param)
		if err != nil {
			return err
		}
		rawParams = append(rawParams, marshalled)
	}

	log.Tracef("Sending %s with %d params", method, len(rawParams))

	future := client.RawRequestAsync(method, rawParams)

	type response struct {
		raw json.RawMessage
		err error
	}
	respChan := make(chan response, 1)
	go func() {
		raw, err := future.Receive()
		respChan <- response{raw, err}
	}()

	var resp response
	select {
	case <-ctx.Done():
		return feebump.Wrap(feebump.Unknown, method, ctx.Err())
	case resp = <-respChan:
	}
	if resp.err != nil {
		return classifyError(method, resp.err)
	}

	if result == nil {
		return nil
	}
	if err := json.Unmarshal(resp.raw, result); err != nil {
		return fmt.Errorf("unable to decode %s result: %w", method, err)
	}
	return nil
}

// serializeTx returns the hex encoding of tx including witness data.
func serializeTx(tx *wire.MsgTx) (string, error) {
	var buf bytes.Buffer
	buf.Grow(tx.SerializeSize())
	if err := tx.Serialize(&buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf.Bytes()), nil
}

// ListUnspent returns the wallet's outputs with at least minConf
// confirmations.
func (b *Bitcoind) ListUnspent(ctx context.Context,
	minConf int64) ([]utxo.UnspentOutput, error) {

	var results []btcjson.ListUnspentResult
	err := call(ctx, b.wallet, "listunspent", &results, minConf)
	if err != nil {
		return nil, err
	}

	unspent := make([]utxo.UnspentOutput, 0, len(results))
	for _, r := range results {
		txid, err := chainhash.NewHashFromStr(r.TxID)
		if err != nil {
			return nil, err
		}
		pkScript, err := hex.DecodeString(r.ScriptPubKey)
		if err != nil {
			return nil, err
		}
		amt, err := btcutil.NewAmount(r.Amount)
		if err != nil {
			return nil, err
		}
		unspent = append(unspent, utxo.UnspentOutput{
			TxID:          *txid,
			Index:         r.Vout,
			Amount:        amt,
			PkScript:      pkScript,
			Confirmations: r.Confirmations,
		})
	}

	log.Debugf("Node reported %d unspent outputs", len(unspent))

	return unspent, nil
}

// SendRawTransaction submits tx.  A transaction the node already knows is
// reported as a Duplicate error carrying its txid.
func (b *Bitcoind) SendRawTransaction(ctx context.Context,
	tx *wire.MsgTx) (*chainhash.Hash, error) {

	txHex, err := serializeTx(tx)
	if err != nil {
		return nil, err
	}

	var txidStr string
	err = call(ctx, b.chain, "sendrawtransaction", &txidStr, txHex)
	if err != nil {
		if code, ok := rpcCode(err); ok && code == rpcVerifyAlreadyInChain {
			return nil, feebump.Wrap(feebump.Duplicate,
				"sendrawtransaction", err)
		}
		return nil, err
	}

	return chainhash.NewHashFromStr(txidStr)
}

// TestMempoolAccept runs the node's acceptance checks on txs.
func (b *Bitcoind) TestMempoolAccept(ctx context.Context,
	txs ...*wire.MsgTx) ([]AcceptResult, error) {

	rawTxs := make([]string, 0, len(txs))
	for _, tx := range txs {
		txHex, err := serializeTx(tx)
		if err != nil {
			return nil, err
		}
		rawTxs = append(rawTxs, txHex)
	}

	var raw []testMempoolAcceptResult
	err := call(ctx, b.chain, "testmempoolaccept", &raw, rawTxs)
	if err != nil {
		return nil, err
	}

	results := make([]AcceptResult, 0, len(raw))
	for i := range raw {
		result, err := raw[i].toResult()
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

// SubmitPackage submits txs, parents first and child last.
func (b *Bitcoind) SubmitPackage(ctx context.Context,
	txs ...*wire.MsgTx) (*PackageResult, error) {

	rawTxs := make([]string, 0, len(txs))
	for _, tx := range txs {
		txHex, err := serializeTx(tx)
		if err != nil {
			return nil, err
		}
		rawTxs = append(rawTxs, txHex)
	}

	var raw submitPackageResult
	if err := call(ctx, b.chain, "submitpackage", &raw, rawTxs); err != nil {
		return nil, err
	}
	return raw.toResult()
}

// GetMempoolEntry returns the mempool entry of txid.
func (b *Bitcoind) GetMempoolEntry(ctx context.Context,
	txid chainhash.Hash) (*MempoolEntry, error) {

	var raw getMempoolEntryResult
	err := call(ctx, b.chain, "getmempoolentry", &raw, txid.String())
	if err != nil {
		if code, ok := rpcCode(err); ok && code == rpcInvalidAddressOrKey {
			return nil, ErrNotInMempool
		}
		return nil, err
	}
	return raw.toEntry(txid)
}

// GetTxStatus looks txid up with getrawtransaction, which finds mempool
// transactions and, on nodes with a transaction index, confirmed ones.  The
// wallet is asked next since it tracks the transactions of watched
// addresses at any depth.
func (b *Bitcoind) GetTxStatus(ctx context.Context,
	txid chainhash.Hash) (*TxStatus, error) {

	var raw txStatusResult
	err := call(ctx, b.chain, "getrawtransaction", &raw, txid.String(), true)
	if err == nil {
		return raw.toStatus(txid)
	}
	if code, ok := rpcCode(err); !ok || code != rpcInvalidAddressOrKey {
		return nil, err
	}

	err = call(ctx, b.wallet, "gettransaction", &raw, txid.String(), true)
	if err != nil {
		if code, ok := rpcCode(err); ok && code == rpcInvalidAddressOrKey {
			return nil, ErrTxNotFound
		}
		return nil, err
	}
	return raw.toStatus(txid)
}

// GetBlockCount returns the height of the best block.
func (b *Bitcoind) GetBlockCount(ctx context.Context) (int64, error) {
	var count int64
	err := call(ctx, b.chain, "getblockcount", &count)
	return count, err
}

// GetBlockHash returns the hash of the block at height.
func (b *Bitcoind) GetBlockHash(ctx context.Context,
	height int64) (*chainhash.Hash, error) {

	var hashStr string
	if err := call(ctx, b.chain, "getblockhash", &hashStr, height); err != nil {
		return nil, err
	}
	return chainhash.NewHashFromStr(hashStr)
}

// GetBlock returns the txids of the block with the given hash.
func (b *Bitcoind) GetBlock(ctx context.Context,
	hash chainhash.Hash) (*Block, error) {

	var raw getBlockVerboseResult
	err := call(ctx, b.chain, "getblock", &raw, hash.String(), 1)
	if err != nil {
		return nil, err
	}
	txids, err := parseHashes(raw.Tx)
	if err != nil {
		return nil, err
	}
	return &Block{Hash: hash, Height: raw.Height, TxIDs: txids}, nil
}

// GenerateToAddress mines n blocks to addr.
func (b *Bitcoind) GenerateToAddress(ctx context.Context, n int64,
	addr btcutil.Address) ([]chainhash.Hash, error) {

	var hashStrs []string
	err := call(
		ctx, b.chain, "generatetoaddress", &hashStrs, n,
		addr.EncodeAddress(),
	)
	if err != nil {
		return nil, err
	}

	log.Debugf("Mined %d blocks to %v", len(hashStrs), addr)

	return parseHashes(hashStrs)
}

// RelayFees returns the node's minimum and incremental relay fees.
func (b *Bitcoind) RelayFees(ctx context.Context) (btcutil.Amount,
	btcutil.Amount, error) {

	var info getNetworkInfoResult
	if err := call(ctx, b.chain, "getnetworkinfo", &info); err != nil {
		return 0, 0, err
	}

	minRelay, err := fees.FromBTCPerKVByte(info.RelayFee)
	if err != nil {
		return 0, 0, err
	}
	incremental, err := fees.FromBTCPerKVByte(info.IncrementalFee)
	if err != nil {
		return 0, 0, err
	}

	log.Debugf("Node %s (%d) relays at %v, increments %v",
		info.SubVersion, info.Version, minRelay, incremental)

	return btcutil.Amount(minRelay), btcutil.Amount(incremental), nil
}
