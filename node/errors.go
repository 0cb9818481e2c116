// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package node

import (
	"errors"
	"io"
	"net"
	"net/url"
	"strings"
	"syscall"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/feebump"
)

// Bitcoin Core RPC error codes the adapter reacts to.
const (
	rpcInvalidAddressOrKey  btcjson.RPCErrorCode = -5
	rpcWalletNotFound       btcjson.RPCErrorCode = -18
	rpcVerifyError          btcjson.RPCErrorCode = -25
	rpcVerifyRejected       btcjson.RPCErrorCode = -26
	rpcVerifyAlreadyInChain btcjson.RPCErrorCode = -27
	rpcInWarmup             btcjson.RPCErrorCode = -28
	rpcWalletAlreadyLoaded  btcjson.RPCErrorCode = -35
)

// rejectReasonKind associates a reject reason substring with an error kind.
type rejectReasonKind struct {
	reason string
	kind   feebump.ErrorKind
}

// rejectReasonKinds lists the bitcoind reject reasons rpcclient does not
// know, or folds into a broader error, in match order.  Earlier entries win.
var rejectReasonKinds = []rejectReasonKind{
	{"txn-already-in-mempool", feebump.Duplicate},
	{"txn-already-known", feebump.Duplicate},
	{"outputs already in utxo set", feebump.Duplicate},
	{"insufficient fee", feebump.FeeTooLow},
	{"min relay fee not met", feebump.FeeTooLow},
	{"package-fee-too-low", feebump.FeeTooLow},
	{"fee-too-low", feebump.FeeTooLow},
	{"truc-violation", feebump.NonStandard},
	{"missing-ephemeral-spends", feebump.NonStandard},
	{"txn-already-spent", feebump.ConflictingTransaction},
}

// bitcoindErrKinds maps the reject reasons rpcclient recognizes to error
// kinds.  Reasons absent here are Unknown.
var bitcoindErrKinds = map[rpcclient.BitcoindRPCErr]feebump.ErrorKind{
	rpcclient.ErrTxAlreadyKnown:     feebump.Duplicate,
	rpcclient.ErrTxAlreadyConfirmed: feebump.Duplicate,
	rpcclient.ErrTxAlreadyInMempool: feebump.Duplicate,
	rpcclient.ErrSameNonWitnessData: feebump.Duplicate,

	rpcclient.ErrInsufficientFee:     feebump.FeeTooLow,
	rpcclient.ErrMempoolMinFeeNotMet: feebump.FeeTooLow,
	rpcclient.ErrBelowOutValue:       feebump.FeeTooLow,

	rpcclient.ErrMissingInputsOrSpent:       feebump.ConflictingTransaction,
	rpcclient.ErrMissingInputs:              feebump.ConflictingTransaction,
	rpcclient.ErrMempoolConflict:            feebump.ConflictingTransaction,
	rpcclient.ErrReplacementAddsUnconfirmed: feebump.ConflictingTransaction,
	rpcclient.ErrTooManyReplacements:        feebump.ConflictingTransaction,
	rpcclient.ErrConflictingTx:              feebump.ConflictingTransaction,

	rpcclient.ErrEmptyOutput:                  feebump.NonStandard,
	rpcclient.ErrEmptyInput:                   feebump.NonStandard,
	rpcclient.ErrTxTooSmall:                   feebump.NonStandard,
	rpcclient.ErrDuplicateInput:               feebump.NonStandard,
	rpcclient.ErrEmptyPrevOut:                 feebump.NonStandard,
	rpcclient.ErrNegativeOutput:               feebump.NonStandard,
	rpcclient.ErrLargeOutput:                  feebump.NonStandard,
	rpcclient.ErrLargeTotalOutput:             feebump.NonStandard,
	rpcclient.ErrScriptVerifyFlag:             feebump.NonStandard,
	rpcclient.ErrTooManySigOps:                feebump.NonStandard,
	rpcclient.ErrInvalidOpcode:                feebump.NonStandard,
	rpcclient.ErrOversizeTx:                   feebump.NonStandard,
	rpcclient.ErrCoinbaseTx:                   feebump.NonStandard,
	rpcclient.ErrNonStandardVersion:           feebump.NonStandard,
	rpcclient.ErrNonStandardScript:            feebump.NonStandard,
	rpcclient.ErrBareMultiSig:                 feebump.NonStandard,
	rpcclient.ErrScriptSigNotPushOnly:         feebump.NonStandard,
	rpcclient.ErrScriptSigSize:                feebump.NonStandard,
	rpcclient.ErrTxTooLarge:                   feebump.NonStandard,
	rpcclient.ErrDust:                         feebump.NonStandard,
	rpcclient.ErrMultiOpReturn:                feebump.NonStandard,
	rpcclient.ErrNonFinal:                     feebump.NonStandard,
	rpcclient.ErrNonBIP68Final:                feebump.NonStandard,
	rpcclient.ErrNonMandatoryScriptVerifyFlag: feebump.NonStandard,
}

// ClassifyRejectReason maps a reject reason reported by a node to an error
// kind.  Reasons in btcd's wording are understood as well through
// rpcclient's error map.
func ClassifyRejectReason(reason string) feebump.ErrorKind {
	if reason == "" {
		return feebump.Unknown
	}

	lower := strings.ToLower(reason)
	for _, r := range rejectReasonKinds {
		if strings.Contains(lower, r.reason) {
			return r.kind
		}
	}

	var rpcErr rpcclient.BitcoindRPCErr
	if errors.As(rpcclient.MapRPCErr(errors.New(reason)), &rpcErr) {
		if kind, ok := bitcoindErrKinds[rpcErr]; ok {
			return kind
		}
	}
	return feebump.Unknown
}

// isUnreachable reports whether err means the node could not be reached.
func isUnreachable(err error) bool {
	var (
		netErr net.Error
		urlErr *url.Error
	)
	switch {
	case errors.As(err, &netErr), errors.As(err, &urlErr):
		return true
	case errors.Is(err, syscall.ECONNREFUSED):
		return true
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return true
	case errors.Is(err, rpcclient.ErrClientShutdown):
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, s := range []string{
		"connection refused", "no such host", "status code: 401",
		"status code: 403",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// classifyError turns an error returned by an RPC call into a feebump Error.
// Node rejections are classified by their reason, transport failures are
// RpcUnavailable.
func classifyError(method string, err error) error {
	if err == nil {
		return nil
	}

	var rpcErr *btcjson.RPCError
	if errors.As(err, &rpcErr) {
		if rpcErr.Code == rpcInWarmup {
			return feebump.Wrap(feebump.RpcUnavailable, method, err)
		}
		return feebump.Wrap(
			ClassifyRejectReason(rpcErr.Message), method, err,
		)
	}

	if isUnreachable(err) {
		return feebump.Wrap(feebump.RpcUnavailable, method, err)
	}

	return feebump.Wrap(ClassifyRejectReason(err.Error()), method, err)
}

// rpcCode returns the RPC error code carried by err, if any.
func rpcCode(err error) (btcjson.RPCErrorCode, bool) {
	var rpcErr *btcjson.RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr.Code, true
	}
	return 0, false
}
