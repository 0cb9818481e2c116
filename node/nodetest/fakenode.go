// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package nodetest provides an in-memory node implementing node.Node for
// tests.  It keeps a chain of blocks and a mempool and enforces the subset of
// bitcoind's relay policy the fee-acceleration strategies depend on: the
// minimum relay fee, BIP 125 replacement, TRUC topology, ephemeral dust and
// child-with-parents package submission.
package nodetest

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/mempool"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/btcsuite/feebump"
	"github.com/btcsuite/feebump/node"
	"github.com/btcsuite/feebump/utxo"
)

const (
	// CoinbaseMaturity is the depth at which a coinbase output becomes
	// spendable and is reported by ListUnspent.
	CoinbaseMaturity = 101

	// maxReplacementEvictions is the maximum number of transactions a
	// replacement may evict.
	maxReplacementEvictions = 100

	maxTRUCParentSize = 10_000
	maxTRUCChildSize  = 1_000
)

// Bitcoin Core RPC error codes reported by the fake.
const (
	rpcInvalidParameter     btcjson.RPCErrorCode = -8
	rpcVerifyError          btcjson.RPCErrorCode = -25
	rpcVerifyRejected       btcjson.RPCErrorCode = -26
	rpcVerifyAlreadyInChain btcjson.RPCErrorCode = -27
)

var anchorPkScript = []byte{txscript.OP_1, txscript.OP_DATA_2, 0x4e, 0x73}

// coin is a confirmed unspent output.
type coin struct {
	txOut    *wire.TxOut
	height   int64
	coinbase bool
}

// poolTx is a transaction held in the mempool.
type poolTx struct {
	tx    *wire.MsgTx
	txid  chainhash.Hash
	wtxid chainhash.Hash
	fee   btcutil.Amount
	vsize int64
}

// pool is the mempool.  Transactions are kept in acceptance order, which is
// always topological.
type pool struct {
	txs    map[chainhash.Hash]*poolTx
	order  []chainhash.Hash
	spends map[wire.OutPoint]chainhash.Hash
}

func newPool() *pool {
	return &pool{
		txs:    make(map[chainhash.Hash]*poolTx),
		spends: make(map[wire.OutPoint]chainhash.Hash),
	}
}

func (p *pool) clone() *pool {
	c := &pool{
		txs:    make(map[chainhash.Hash]*poolTx, len(p.txs)),
		order:  append([]chainhash.Hash(nil), p.order...),
		spends: make(map[wire.OutPoint]chainhash.Hash, len(p.spends)),
	}
	for k, v := range p.txs {
		c.txs[k] = v
	}
	for k, v := range p.spends {
		c.spends[k] = v
	}
	return c
}

func (p *pool) add(ptx *poolTx) {
	p.txs[ptx.txid] = ptx
	p.order = append(p.order, ptx.txid)
	for _, txIn := range ptx.tx.TxIn {
		p.spends[txIn.PreviousOutPoint] = ptx.txid
	}
}

func (p *pool) remove(txid chainhash.Hash) {
	ptx, ok := p.txs[txid]
	if !ok {
		return
	}
	delete(p.txs, txid)
	for _, txIn := range ptx.tx.TxIn {
		if p.spends[txIn.PreviousOutPoint] == txid {
			delete(p.spends, txIn.PreviousOutPoint)
		}
	}
	for i, hash := range p.order {
		if hash == txid {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}

// parents returns the unconfirmed transactions ptx spends from.
func (p *pool) parents(tx *wire.MsgTx) []*poolTx {
	var (
		parents []*poolTx
		seen    = make(map[chainhash.Hash]struct{})
	)
	for _, txIn := range tx.TxIn {
		hash := txIn.PreviousOutPoint.Hash
		parent, ok := p.txs[hash]
		if !ok {
			continue
		}
		if _, ok := seen[hash]; ok {
			continue
		}
		seen[hash] = struct{}{}
		parents = append(parents, parent)
	}
	return parents
}

// children returns the transactions spending outputs of ptx.
func (p *pool) children(ptx *poolTx) []*poolTx {
	var (
		children []*poolTx
		seen     = make(map[chainhash.Hash]struct{})
	)
	for i := range ptx.tx.TxOut {
		op := wire.OutPoint{Hash: ptx.txid, Index: uint32(i)}
		hash, ok := p.spends[op]
		if !ok {
			continue
		}
		if _, ok := seen[hash]; ok {
			continue
		}
		seen[hash] = struct{}{}
		children = append(children, p.txs[hash])
	}
	return children
}

// walk collects ptx and everything reachable through next.
func (p *pool) walk(ptx *poolTx,
	next func(*poolTx) []*poolTx) map[chainhash.Hash]*poolTx {

	found := map[chainhash.Hash]*poolTx{ptx.txid: ptx}
	queue := []*poolTx{ptx}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, n := range next(cur) {
			if _, ok := found[n.txid]; ok {
				continue
			}
			found[n.txid] = n
			queue = append(queue, n)
		}
	}
	return found
}

func (p *pool) ancestors(ptx *poolTx) map[chainhash.Hash]*poolTx {
	return p.walk(ptx, func(cur *poolTx) []*poolTx {
		return p.parents(cur.tx)
	})
}

func (p *pool) descendants(ptx *poolTx) map[chainhash.Hash]*poolTx {
	return p.walk(ptx, p.children)
}

// FakeNode is an in-memory node.  The zero value is not usable; create one
// with New.  It is safe for concurrent use.
type FakeNode struct {
	mtx sync.Mutex

	params         *chaincfg.Params
	minRelayFee    btcutil.Amount
	incrementalFee btcutil.Amount
	fullRBF        bool

	coins     map[wire.OutPoint]*coin
	confirmed map[chainhash.Hash]int64
	blocks    []*node.Block
	pool      *pool

	watched map[string]struct{}
	nonce   uint32

	failures map[string][]error
	calls    map[string]int
}

// Compile-time assertions that FakeNode implements Node and Wallet.
var (
	_ node.Node   = (*FakeNode)(nil)
	_ node.Wallet = (*FakeNode)(nil)
)

// Option configures a FakeNode.
type Option func(*FakeNode)

// WithRelayFees sets the minimum and incremental relay fees in satoshis per
// kilo-vbyte.
func WithRelayFees(minRelay, incremental btcutil.Amount) Option {
	return func(f *FakeNode) {
		f.minRelayFee = minRelay
		f.incrementalFee = incremental
	}
}

// WithFullRBF makes every unconfirmed transaction replaceable regardless of
// BIP 125 signaling.
func WithFullRBF() Option {
	return func(f *FakeNode) {
		f.fullRBF = true
	}
}

// New returns a node holding only a genesis block, relaying at 1 sat/vB.
func New(params *chaincfg.Params, opts ...Option) *FakeNode {
	f := &FakeNode{
		params:         params,
		minRelayFee:    1000,
		incrementalFee: 1000,
		coins:          make(map[wire.OutPoint]*coin),
		confirmed:      make(map[chainhash.Hash]int64),
		pool:           newPool(),
		watched:        make(map[string]struct{}),
		failures:       make(map[string][]error),
		calls:          make(map[string]int),
	}
	for _, opt := range opts {
		opt(f)
	}

	f.blocks = append(f.blocks, &node.Block{
		Hash:   *params.GenesisHash,
		Height: 0,
	})

	return f
}

// FailNext makes the next call of method return err.  Failures queue up in
// order.
func (f *FakeNode) FailNext(method string, err error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()

	f.failures[method] = append(f.failures[method], err)
}

// Calls returns how many times method was called.
func (f *FakeNode) Calls(method string) int {
	f.mtx.Lock()
	defer f.mtx.Unlock()

	return f.calls[method]
}

// enter records a call to method and returns any injected failure.  The
// caller must hold the lock.
func (f *FakeNode) enter(method string) error {
	f.calls[method]++

	queued := f.failures[method]
	if len(queued) == 0 {
		return nil
	}
	f.failures[method] = queued[1:]
	return queued[0]
}

// Watch makes ListUnspent report outputs paying to pkScript.
func (f *FakeNode) Watch(pkScript []byte) {
	f.mtx.Lock()
	defer f.mtx.Unlock()

	f.watched[string(pkScript)] = struct{}{}
}

// AddUTXO adds a confirmed output paying amt to pkScript and returns its
// outpoint.  The output has one confirmation.
func (f *FakeNode) AddUTXO(pkScript []byte, amt btcutil.Amount) wire.OutPoint {
	f.mtx.Lock()
	defer f.mtx.Unlock()

	f.nonce++
	var nonce [4]byte
	binary.LittleEndian.PutUint32(nonce[:], f.nonce)

	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{
			Hash:  chainhash.HashH(nonce[:]),
			Index: f.nonce,
		},
		Sequence: wire.MaxTxInSequenceNum,
	})
	tx.AddTxOut(wire.NewTxOut(int64(amt), pkScript))

	txid := tx.TxHash()
	op := wire.OutPoint{Hash: txid, Index: 0}
	f.coins[op] = &coin{txOut: tx.TxOut[0], height: f.tipHeight()}
	f.confirmed[txid] = f.tipHeight()

	return op
}

// InMempool reports whether txid is in the mempool.
func (f *FakeNode) InMempool(txid chainhash.Hash) bool {
	f.mtx.Lock()
	defer f.mtx.Unlock()

	_, ok := f.pool.txs[txid]
	return ok
}

// Mempool returns the txids in the mempool in acceptance order.
func (f *FakeNode) Mempool() []chainhash.Hash {
	f.mtx.Lock()
	defer f.mtx.Unlock()

	return append([]chainhash.Hash(nil), f.pool.order...)
}

func (f *FakeNode) tipHeight() int64 {
	return int64(len(f.blocks) - 1)
}

// relayFee returns the fee due for vsize at rate, rounded up.
func relayFee(vsize int64, rate btcutil.Amount) btcutil.Amount {
	return btcutil.Amount((int64(rate)*vsize + 999) / 1000)
}

func rejectErr(method string, code btcjson.RPCErrorCode, format string,
	args ...interface{}) error {

	rpcErr := &btcjson.RPCError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
	kind := node.ClassifyRejectReason(rpcErr.Message)
	if code == rpcVerifyAlreadyInChain {
		kind = feebump.Duplicate
	}
	return feebump.Wrap(kind, method, rpcErr)
}

// signalsReplacement reports whether tx opts into BIP 125 replacement.
func signalsReplacement(tx *wire.MsgTx) bool {
	for _, txIn := range tx.TxIn {
		if txIn.Sequence < wire.MaxTxInSequenceNum-1 {
			return true
		}
	}
	return false
}

// replaceable reports whether ptx may be replaced, either by its own
// signaling or by inheriting it from an unconfirmed ancestor.
func (f *FakeNode) replaceable(p *pool, ptx *poolTx) bool {
	if f.fullRBF {
		return true
	}
	for _, anc := range p.ancestors(ptx) {
		if anc.tx.Version == 3 || signalsReplacement(anc.tx) {
			return true
		}
	}
	return false
}

// rejection is a policy failure of a single transaction.
type rejection struct {
	code   btcjson.RPCErrorCode
	reason string
}

func reject(code btcjson.RPCErrorCode, format string,
	args ...interface{}) *rejection {

	return &rejection{code: code, reason: fmt.Sprintf(format, args...)}
}

// check validates tx against the chain and p.  It returns the pool entry to
// add and the transactions it evicts.  Within a package the minimum relay
// fee is checked for the package as a whole by the caller.  The caller must
// hold the lock.
func (f *FakeNode) check(p *pool, tx *wire.MsgTx,
	inPackage bool) (*poolTx, []chainhash.Hash, *rejection) {

	txid := tx.TxHash()

	switch {
	case len(tx.TxIn) == 0:
		return nil, nil, reject(rpcVerifyRejected, "bad-txns-vin-empty")
	case len(tx.TxOut) == 0:
		return nil, nil, reject(rpcVerifyRejected, "bad-txns-vout-empty")
	case tx.Version < 1 || tx.Version > 3:
		return nil, nil, reject(rpcVerifyRejected, "version")
	}

	var (
		totalIn   btcutil.Amount
		conflicts = make(map[chainhash.Hash]*poolTx)
		seen      = make(map[wire.OutPoint]struct{})
	)
	for _, txIn := range tx.TxIn {
		op := txIn.PreviousOutPoint
		if _, ok := seen[op]; ok {
			return nil, nil, reject(rpcVerifyRejected,
				"bad-txns-inputs-duplicate")
		}
		seen[op] = struct{}{}

		switch parent, ok := p.txs[op.Hash]; {
		case ok && int(op.Index) < len(parent.tx.TxOut):
			totalIn += btcutil.Amount(parent.tx.TxOut[op.Index].Value)

		default:
			c, ok := f.coins[op]
			if !ok {
				return nil, nil, reject(rpcVerifyError,
					"bad-txns-inputs-missingorspent")
			}
			depth := f.tipHeight() - c.height + 1
			if c.coinbase && depth < CoinbaseMaturity {
				return nil, nil, reject(rpcVerifyRejected,
					"bad-txns-premature-spend-of-coinbase, "+
						"tried to spend coinbase at depth %d",
					depth)
			}
			totalIn += btcutil.Amount(c.txOut.Value)
		}

		if spender, ok := p.spends[op]; ok {
			conflicts[spender] = p.txs[spender]
		}
	}

	var (
		totalOut     btcutil.Amount
		hasEphemeral bool
	)
	for _, txOut := range tx.TxOut {
		totalOut += btcutil.Amount(txOut.Value)

		switch {
		case bytes.Equal(txOut.PkScript, anchorPkScript):
			if txOut.Value == 0 {
				hasEphemeral = true
			}

		case txscript.GetScriptClass(txOut.PkScript) ==
			txscript.NonStandardTy:

			return nil, nil, reject(rpcVerifyRejected, "scriptpubkey")

		case txrules.IsDustOutput(txOut, f.minRelayFee):
			if txOut.Value != 0 {
				return nil, nil, reject(rpcVerifyRejected, "dust")
			}
			hasEphemeral = true
		}
	}
	if totalOut > totalIn {
		return nil, nil, reject(rpcVerifyRejected,
			"bad-txns-in-belowout, value in (%v) < value out (%v)",
			totalIn, totalOut)
	}

	ptx := &poolTx{
		tx:    tx,
		txid:  txid,
		wtxid: tx.WitnessHash(),
		fee:   totalIn - totalOut,
		vsize: mempool.GetTxVirtualSize(btcutil.NewTx(tx)),
	}

	if hasEphemeral && ptx.fee != 0 {
		return nil, nil, reject(rpcVerifyRejected,
			"dust, tx with dust output must be 0-fee")
	}

	if rej := f.checkTRUC(p, ptx); rej != nil {
		return nil, nil, rej
	}

	if !inPackage {
		minFee := relayFee(ptx.vsize, f.minRelayFee)
		if ptx.fee < minFee {
			return nil, nil, reject(rpcVerifyRejected,
				"min relay fee not met, %d < %d", ptx.fee, minFee)
		}
	}

	evicted, rej := f.checkReplacement(p, ptx, conflicts)
	if rej != nil {
		return nil, nil, rej
	}

	return ptx, evicted, nil
}

// checkTRUC enforces the version 3 topology and size limits.
func (f *FakeNode) checkTRUC(p *pool, ptx *poolTx) *rejection {
	parents := p.parents(ptx.tx)

	if ptx.tx.Version != 3 {
		for _, parent := range parents {
			if parent.tx.Version == 3 {
				return reject(rpcVerifyRejected,
					"TRUC-violation, non-version=3 tx %v "+
						"cannot spend from version=3 tx %v",
					ptx.txid, parent.txid)
			}
		}
		return nil
	}

	if ptx.vsize > maxTRUCParentSize {
		return reject(rpcVerifyRejected,
			"TRUC-violation, version=3 tx %v (wtxid=%v) is too "+
				"big: %d > %d virtual bytes", ptx.txid, ptx.wtxid,
			ptx.vsize, maxTRUCParentSize)
	}
	if len(parents) == 0 {
		return nil
	}

	parent := parents[0]
	switch {
	case len(parents) > 1 || len(p.parents(parent.tx)) > 0:
		return reject(rpcVerifyRejected,
			"TRUC-violation, tx %v (wtxid=%v) would have too many "+
				"ancestors", ptx.txid, ptx.wtxid)

	case parent.tx.Version != 3:
		return reject(rpcVerifyRejected,
			"TRUC-violation, version=3 tx %v (wtxid=%v) cannot "+
				"spend from non-version=3 tx %v", ptx.txid,
			ptx.wtxid, parent.txid)

	case ptx.vsize > maxTRUCChildSize:
		return reject(rpcVerifyRejected,
			"TRUC-violation, version=3 child tx %v (wtxid=%v) is "+
				"too big: %d > %d virtual bytes", ptx.txid,
			ptx.wtxid, ptx.vsize, maxTRUCChildSize)
	}

	return nil
}

// checkReplacement applies the BIP 125 rules when ptx conflicts with
// mempool transactions and returns the txids it evicts.
func (f *FakeNode) checkReplacement(p *pool, ptx *poolTx,
	conflicts map[chainhash.Hash]*poolTx) ([]chainhash.Hash, *rejection) {

	if len(conflicts) == 0 {
		return nil, nil
	}

	evicted := make(map[chainhash.Hash]*poolTx)
	for _, conflict := range conflicts {
		if !f.replaceable(p, conflict) {
			return nil, reject(rpcVerifyRejected,
				"txn-mempool-conflict")
		}

		// The replacement must pay a strictly higher fee rate than
		// every transaction it directly replaces.
		if int64(ptx.fee)*conflict.vsize <= int64(conflict.fee)*ptx.vsize {
			return nil, reject(rpcVerifyRejected,
				"insufficient fee, rejecting replacement %v; new "+
					"feerate %v <= old feerate %v", ptx.txid,
				ptx.fee, conflict.fee)
		}

		for hash, desc := range p.descendants(conflict) {
			evicted[hash] = desc
		}
	}

	if len(evicted) > maxReplacementEvictions {
		return nil, reject(rpcVerifyRejected,
			"too many potential replacements, rejecting "+
				"replacement %v; too many potential replacements "+
				"(%d > %d)", ptx.txid, len(evicted),
			maxReplacementEvictions)
	}

	var evictedFees btcutil.Amount
	for _, tx := range evicted {
		evictedFees += tx.fee
	}
	for _, parent := range p.parents(ptx.tx) {
		if _, ok := evicted[parent.txid]; ok {
			return nil, reject(rpcVerifyRejected,
				"bad-txns-spends-conflicting-tx, %v spends "+
					"conflicting transaction %v", ptx.txid,
				parent.txid)
		}
	}

	if ptx.fee < evictedFees {
		return nil, reject(rpcVerifyRejected,
			"insufficient fee, rejecting replacement %v, less fees "+
				"than conflicting txs; %v < %v", ptx.txid,
			ptx.fee, evictedFees)
	}
	additional := relayFee(ptx.vsize, f.incrementalFee)
	if ptx.fee-evictedFees < additional {
		return nil, reject(rpcVerifyRejected,
			"insufficient fee, rejecting replacement %v, not enough "+
				"additional fees to relay; %v < %v", ptx.txid,
			ptx.fee-evictedFees, additional)
	}

	hashes := make([]chainhash.Hash, 0, len(evicted))
	for _, hash := range p.order {
		if _, ok := evicted[hash]; ok {
			hashes = append(hashes, hash)
		}
	}
	return hashes, nil
}

// commit adds ptx to p after removing what it evicts.
func commit(p *pool, ptx *poolTx, evicted []chainhash.Hash) {
	for _, hash := range evicted {
		p.remove(hash)
	}
	p.add(ptx)
}

// ListUnspent returns the watched outputs with at least minConf
// confirmations that are not spent by a mempool transaction.
func (f *FakeNode) ListUnspent(_ context.Context,
	minConf int64) ([]utxo.UnspentOutput, error) {

	f.mtx.Lock()
	defer f.mtx.Unlock()

	if err := f.enter("listunspent"); err != nil {
		return nil, err
	}

	var unspent []utxo.UnspentOutput
	for op, c := range f.coins {
		if _, ok := f.watched[string(c.txOut.PkScript)]; !ok {
			continue
		}
		if _, ok := f.pool.spends[op]; ok {
			continue
		}
		depth := f.tipHeight() - c.height + 1
		if depth < minConf || (c.coinbase && depth < CoinbaseMaturity) {
			continue
		}
		unspent = append(unspent, utxo.UnspentOutput{
			TxID:          op.Hash,
			Index:         op.Index,
			Amount:        btcutil.Amount(c.txOut.Value),
			PkScript:      c.txOut.PkScript,
			Confirmations: depth,
		})
	}

	if minConf > 0 {
		return unspent, nil
	}
	for _, txid := range f.pool.order {
		ptx := f.pool.txs[txid]
		for i, txOut := range ptx.tx.TxOut {
			if _, ok := f.watched[string(txOut.PkScript)]; !ok {
				continue
			}
			op := wire.OutPoint{Hash: txid, Index: uint32(i)}
			if _, ok := f.pool.spends[op]; ok {
				continue
			}
			unspent = append(unspent, utxo.UnspentOutput{
				TxID:     txid,
				Index:    uint32(i),
				Amount:   btcutil.Amount(txOut.Value),
				PkScript: txOut.PkScript,
			})
		}
	}
	return unspent, nil
}

// SendRawTransaction submits tx to the mempool.  Like bitcoind, resending a
// transaction already in the mempool succeeds and resending a confirmed one
// fails with a Duplicate error.
func (f *FakeNode) SendRawTransaction(_ context.Context,
	tx *wire.MsgTx) (*chainhash.Hash, error) {

	f.mtx.Lock()
	defer f.mtx.Unlock()

	const method = "sendrawtransaction"
	if err := f.enter(method); err != nil {
		return nil, err
	}

	txid := tx.TxHash()
	if _, ok := f.pool.txs[txid]; ok {
		return &txid, nil
	}
	if _, ok := f.confirmed[txid]; ok {
		return nil, rejectErr(method, rpcVerifyAlreadyInChain,
			"Transaction outputs already in utxo set")
	}

	ptx, evicted, rej := f.check(f.pool, tx, false)
	if rej != nil {
		return nil, rejectErr(method, rej.code, "%s", rej.reason)
	}
	commit(f.pool, ptx, evicted)

	return &txid, nil
}

// TestMempoolAccept checks txs in order against a scratch copy of the
// mempool.  No package fee rate is applied.
func (f *FakeNode) TestMempoolAccept(_ context.Context,
	txs ...*wire.MsgTx) ([]node.AcceptResult, error) {

	f.mtx.Lock()
	defer f.mtx.Unlock()

	if err := f.enter("testmempoolaccept"); err != nil {
		return nil, err
	}

	scratch := f.pool.clone()
	results := make([]node.AcceptResult, 0, len(txs))
	for _, tx := range txs {
		result := node.AcceptResult{
			TxID:  tx.TxHash(),
			WTxID: tx.WitnessHash(),
		}

		if _, ok := scratch.txs[result.TxID]; ok {
			result.RejectReason = "txn-already-in-mempool"
			results = append(results, result)
			continue
		}
		if _, ok := f.confirmed[result.TxID]; ok {
			result.RejectReason = "txn-already-known"
			results = append(results, result)
			continue
		}

		ptx, evicted, rej := f.check(scratch, tx, false)
		if rej != nil {
			result.RejectReason = rej.reason
			results = append(results, result)
			continue
		}
		commit(scratch, ptx, evicted)

		result.Allowed = true
		result.VSize = ptx.vsize
		result.Fee = ptx.fee
		results = append(results, result)
	}
	return results, nil
}

// SubmitPackage submits a child-with-parents package.  Transactions already
// in the mempool are skipped.  The package must pay the minimum relay fee as
// a whole and spend every ephemeral dust output it creates; otherwise
// nothing is accepted.
func (f *FakeNode) SubmitPackage(_ context.Context,
	txs ...*wire.MsgTx) (*node.PackageResult, error) {

	f.mtx.Lock()
	defer f.mtx.Unlock()

	const method = "submitpackage"
	if err := f.enter(method); err != nil {
		return nil, err
	}

	if len(txs) == 0 || len(txs) > 25 {
		return nil, rejectErr(method, rpcInvalidParameter,
			"Array must contain between 1 and 25 transactions.")
	}

	// Every parent must be spent by the child.
	child := txs[len(txs)-1]
	spentByChild := make(map[chainhash.Hash]struct{})
	for _, txIn := range child.TxIn {
		spentByChild[txIn.PreviousOutPoint.Hash] = struct{}{}
	}
	for _, parent := range txs[:len(txs)-1] {
		if _, ok := spentByChild[parent.TxHash()]; !ok {
			return nil, rejectErr(method, rpcInvalidParameter,
				"package topology disallowed. not "+
					"child-with-parents or parents depend on "+
					"each other.")
		}
	}

	result := &node.PackageResult{
		TxResults: make(map[chainhash.Hash]node.PackageTxResult, len(txs)),
	}
	fail := func(wtxid chainhash.Hash, txid chainhash.Hash,
		reason string) (*node.PackageResult, error) {

		result.Message = "transaction failed"
		result.TxResults[wtxid] = node.PackageTxResult{
			TxID:  txid,
			Error: reason,
		}
		return result, nil
	}

	scratch := f.pool.clone()
	var (
		added    []*poolTx
		replaced []chainhash.Hash
		totalFee btcutil.Amount
		totalVSz int64
	)
	for _, tx := range txs {
		txid, wtxid := tx.TxHash(), tx.WitnessHash()
		if existing, ok := scratch.txs[txid]; ok {
			txResult := node.PackageTxResult{
				TxID:  txid,
				VSize: existing.vsize,
				Fee:   existing.fee,
			}
			if existing.wtxid != wtxid {
				other := existing.wtxid
				txResult.OtherWTxID = &other
			}
			result.TxResults[wtxid] = txResult
			continue
		}

		ptx, evicted, rej := f.check(scratch, tx, true)
		if rej != nil {
			return fail(wtxid, txid, rej.reason)
		}
		commit(scratch, ptx, evicted)

		added = append(added, ptx)
		replaced = append(replaced, evicted...)
		totalFee += ptx.fee
		totalVSz += ptx.vsize
	}

	// A single new transaction is judged on its own.
	if len(added) > 0 {
		minFee := relayFee(totalVSz, f.minRelayFee)
		if totalFee < minFee {
			last := added[len(added)-1]
			reason := "package-fee-too-low"
			if len(added) == 1 {
				reason = fmt.Sprintf("min relay fee not met, "+
					"%d < %d", totalFee, minFee)
			}
			return fail(last.wtxid, last.txid, reason)
		}
	}

	for _, ptx := range added {
		for i, txOut := range ptx.tx.TxOut {
			if txOut.Value != 0 {
				continue
			}
			op := wire.OutPoint{Hash: ptx.txid, Index: uint32(i)}
			if _, ok := scratch.spends[op]; !ok {
				return fail(ptx.wtxid, ptx.txid,
					"missing-ephemeral-spends")
			}
		}
	}

	for _, ptx := range added {
		result.TxResults[ptx.wtxid] = node.PackageTxResult{
			TxID:  ptx.txid,
			VSize: ptx.vsize,
			Fee:   ptx.fee,
		}
	}
	result.Message = "success"
	result.Replaced = replaced
	f.pool = scratch

	return result, nil
}

// GetMempoolEntry returns the entry of txid with its ancestor and
// descendant statistics, which include the transaction itself.
func (f *FakeNode) GetMempoolEntry(_ context.Context,
	txid chainhash.Hash) (*node.MempoolEntry, error) {

	f.mtx.Lock()
	defer f.mtx.Unlock()

	if err := f.enter("getmempoolentry"); err != nil {
		return nil, err
	}

	ptx, ok := f.pool.txs[txid]
	if !ok {
		return nil, node.ErrNotInMempool
	}

	entry := &node.MempoolEntry{
		TxID:        txid,
		WTxID:       ptx.wtxid,
		VSize:       ptx.vsize,
		Fee:         ptx.fee,
		Replaceable: f.replaceable(f.pool, ptx),
	}
	for _, anc := range f.pool.ancestors(ptx) {
		entry.AncestorCount++
		entry.AncestorSize += anc.vsize
		entry.AncestorFees += anc.fee
	}
	for _, desc := range f.pool.descendants(ptx) {
		entry.DescendantCount++
		entry.DescendantSize += desc.vsize
		entry.DescendantFees += desc.fee
	}
	for _, parent := range f.pool.parents(ptx.tx) {
		entry.Depends = append(entry.Depends, parent.txid)
	}
	for _, child := range f.pool.children(ptx) {
		entry.SpentBy = append(entry.SpentBy, child.txid)
	}

	return entry, nil
}

// GetTxStatus returns the status of a mempool or confirmed transaction at
// any depth.
func (f *FakeNode) GetTxStatus(_ context.Context,
	txid chainhash.Hash) (*node.TxStatus, error) {

	f.mtx.Lock()
	defer f.mtx.Unlock()

	if err := f.enter("getrawtransaction"); err != nil {
		return nil, err
	}

	status := &node.TxStatus{TxID: txid}
	if _, ok := f.pool.txs[txid]; ok {
		return status, nil
	}
	height, ok := f.confirmed[txid]
	if !ok {
		return nil, node.ErrTxNotFound
	}
	hash := f.blocks[height].Hash
	status.Confirmations = f.tipHeight() - height + 1
	status.BlockHash = &hash
	return status, nil
}

// GetBlockCount returns the height of the best block.
func (f *FakeNode) GetBlockCount(context.Context) (int64, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()

	if err := f.enter("getblockcount"); err != nil {
		return 0, err
	}
	return f.tipHeight(), nil
}

// GetBlockHash returns the hash of the block at height.
func (f *FakeNode) GetBlockHash(_ context.Context,
	height int64) (*chainhash.Hash, error) {

	f.mtx.Lock()
	defer f.mtx.Unlock()

	const method = "getblockhash"
	if err := f.enter(method); err != nil {
		return nil, err
	}
	if height < 0 || height > f.tipHeight() {
		return nil, rejectErr(method, rpcInvalidParameter,
			"Block height out of range")
	}
	hash := f.blocks[height].Hash
	return &hash, nil
}

// GetBlock returns the block with the given hash.
func (f *FakeNode) GetBlock(_ context.Context,
	hash chainhash.Hash) (*node.Block, error) {

	f.mtx.Lock()
	defer f.mtx.Unlock()

	const method = "getblock"
	if err := f.enter(method); err != nil {
		return nil, err
	}
	for _, block := range f.blocks {
		if block.Hash == hash {
			b := *block
			b.TxIDs = append([]chainhash.Hash(nil), block.TxIDs...)
			return &b, nil
		}
	}
	return nil, rejectErr(method, -5, "Block not found")
}

// GenerateToAddress mines n blocks paying 50 BTC coinbases to addr.  The
// first block includes the whole mempool.
func (f *FakeNode) GenerateToAddress(_ context.Context, n int64,
	addr btcutil.Address) ([]chainhash.Hash, error) {

	f.mtx.Lock()
	defer f.mtx.Unlock()

	if err := f.enter("generatetoaddress"); err != nil {
		return nil, err
	}

	pkScript, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, err
	}

	hashes := make([]chainhash.Hash, 0, n)
	for i := int64(0); i < n; i++ {
		hashes = append(hashes, f.mineBlock(pkScript))
	}
	return hashes, nil
}

// mineBlock confirms the mempool in a new block.  The caller must hold the
// lock.
func (f *FakeNode) mineBlock(pkScript []byte) chainhash.Hash {
	height := f.tipHeight() + 1

	var heightScript [8]byte
	binary.LittleEndian.PutUint64(heightScript[:], uint64(height))
	coinbase := wire.NewMsgTx(1)
	coinbase.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Index: wire.MaxPrevOutIndex},
		SignatureScript:  heightScript[:],
		Sequence:         wire.MaxTxInSequenceNum,
	})
	coinbase.AddTxOut(wire.NewTxOut(50*btcutil.SatoshiPerBitcoin, pkScript))

	coinbaseHash := coinbase.TxHash()
	txids := []chainhash.Hash{coinbaseHash}
	f.coins[wire.OutPoint{Hash: coinbaseHash}] = &coin{
		txOut:    coinbase.TxOut[0],
		height:   height,
		coinbase: true,
	}
	f.confirmed[coinbaseHash] = height

	for _, txid := range f.pool.order {
		ptx := f.pool.txs[txid]
		for _, txIn := range ptx.tx.TxIn {
			delete(f.coins, txIn.PreviousOutPoint)
		}
		for i, txOut := range ptx.tx.TxOut {
			op := wire.OutPoint{Hash: txid, Index: uint32(i)}
			f.coins[op] = &coin{txOut: txOut, height: height}
		}
		f.confirmed[txid] = height
		txids = append(txids, txid)
	}
	f.pool = newPool()

	header := wire.NewBlockHeader(
		4, &f.blocks[len(f.blocks)-1].Hash, &coinbaseHash, 0x207fffff,
		uint32(height),
	)
	header.Timestamp = time.Unix(1_700_000_000+height*600, 0)
	hash := header.BlockHash()

	f.blocks = append(f.blocks, &node.Block{
		Hash:   hash,
		Height: height,
		TxIDs:  txids,
	})
	return hash
}

// RelayFees returns the configured relay fees.
func (f *FakeNode) RelayFees(context.Context) (btcutil.Amount,
	btcutil.Amount, error) {

	f.mtx.Lock()
	defer f.mtx.Unlock()

	if err := f.enter("getnetworkinfo"); err != nil {
		return 0, 0, err
	}
	return f.minRelayFee, f.incrementalFee, nil
}

// EnsureWallet is a no-op; the fake always has a wallet.
func (f *FakeNode) EnsureWallet(context.Context) error {
	f.mtx.Lock()
	defer f.mtx.Unlock()

	return f.enter("loadwallet")
}

// ImportAddress watches the output script of addr.
func (f *FakeNode) ImportAddress(_ context.Context,
	addr btcutil.Address) error {

	pkScript, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return err
	}

	f.mtx.Lock()
	defer f.mtx.Unlock()

	if err := f.enter("importdescriptors"); err != nil {
		return err
	}
	f.watched[string(pkScript)] = struct{}{}
	return nil
}

// Balance sums the watched outputs.
func (f *FakeNode) Balance(context.Context) (trusted, pending,
	immature btcutil.Amount, err error) {

	f.mtx.Lock()
	defer f.mtx.Unlock()

	if err := f.enter("getbalances"); err != nil {
		return 0, 0, 0, err
	}

	for op, c := range f.coins {
		if _, ok := f.watched[string(c.txOut.PkScript)]; !ok {
			continue
		}
		if _, ok := f.pool.spends[op]; ok {
			continue
		}
		amt := btcutil.Amount(c.txOut.Value)
		depth := f.tipHeight() - c.height + 1
		if c.coinbase && depth < CoinbaseMaturity {
			immature += amt
			continue
		}
		trusted += amt
	}
	for _, ptx := range f.pool.txs {
		for _, txOut := range ptx.tx.TxOut {
			if _, ok := f.watched[string(txOut.PkScript)]; ok {
				pending += btcutil.Amount(txOut.Value)
			}
		}
	}
	return trusted, pending, immature, nil
}
