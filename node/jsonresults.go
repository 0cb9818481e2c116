// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package node

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// txStatusResult models the confirmation fields shared by the verbose
// getrawtransaction and gettransaction results.
type txStatusResult struct {
	Confirmations int64  `json:"confirmations"`
	BlockHash     string `json:"blockhash"`
}

// toStatus translates the raw result into a TxStatus.
func (r *txStatusResult) toStatus(txid chainhash.Hash) (*TxStatus, error) {
	status := &TxStatus{TxID: txid}
	if r.Confirmations <= 0 || r.BlockHash == "" {
		return status, nil
	}
	hash, err := chainhash.NewHashFromStr(r.BlockHash)
	if err != nil {
		return nil, fmt.Errorf("invalid block hash %q: %w", r.BlockHash,
			err)
	}
	status.Confirmations = r.Confirmations
	status.BlockHash = hash
	return status, nil
}

// mempoolEntryFees models the "fees" object of a getmempoolentry result.
// Values are in BTC.
type mempoolEntryFees struct {
	Base       float64 `json:"base"`
	Modified   float64 `json:"modified"`
	Ancestor   float64 `json:"ancestor"`
	Descendant float64 `json:"descendant"`
}

// getMempoolEntryResult models the data returned by getmempoolentry.
type getMempoolEntryResult struct {
	VSize           int64            `json:"vsize"`
	Weight          int64            `json:"weight"`
	Time            int64            `json:"time"`
	Height          int64            `json:"height"`
	DescendantCount int64            `json:"descendantcount"`
	DescendantSize  int64            `json:"descendantsize"`
	AncestorCount   int64            `json:"ancestorcount"`
	AncestorSize    int64            `json:"ancestorsize"`
	WTxID           string           `json:"wtxid"`
	Fees            mempoolEntryFees `json:"fees"`
	Depends         []string         `json:"depends"`
	SpentBy         []string         `json:"spentby"`
	BIP125          bool             `json:"bip125-replaceable"`
	Unbroadcast     bool             `json:"unbroadcast"`
}

// toEntry translates the raw result into a MempoolEntry.
func (r *getMempoolEntryResult) toEntry(txid chainhash.Hash) (*MempoolEntry, error) {
	wtxid, err := chainhash.NewHashFromStr(r.WTxID)
	if err != nil {
		return nil, fmt.Errorf("invalid wtxid %q: %w", r.WTxID, err)
	}

	fee, err := btcutil.NewAmount(r.Fees.Base)
	if err != nil {
		return nil, err
	}
	ancestorFees, err := btcutil.NewAmount(r.Fees.Ancestor)
	if err != nil {
		return nil, err
	}
	descendantFees, err := btcutil.NewAmount(r.Fees.Descendant)
	if err != nil {
		return nil, err
	}

	depends, err := parseHashes(r.Depends)
	if err != nil {
		return nil, err
	}
	spentBy, err := parseHashes(r.SpentBy)
	if err != nil {
		return nil, err
	}

	return &MempoolEntry{
		TxID:            txid,
		WTxID:           *wtxid,
		VSize:           r.VSize,
		Fee:             fee,
		AncestorCount:   r.AncestorCount,
		AncestorSize:    r.AncestorSize,
		AncestorFees:    ancestorFees,
		DescendantCount: r.DescendantCount,
		DescendantSize:  r.DescendantSize,
		DescendantFees:  descendantFees,
		Depends:         depends,
		SpentBy:         spentBy,
		Replaceable:     r.BIP125,
	}, nil
}

// testMempoolAcceptFees models the "fees" object of a testmempoolaccept
// result.
type testMempoolAcceptFees struct {
	Base float64 `json:"base"`
}

// testMempoolAcceptResult models one element of the array returned by
// testmempoolaccept.
type testMempoolAcceptResult struct {
	TxID         string                 `json:"txid"`
	WTxID        string                 `json:"wtxid"`
	PackageError string                 `json:"package-error,omitempty"`
	Allowed      bool                   `json:"allowed"`
	VSize        int64                  `json:"vsize,omitempty"`
	Fees         *testMempoolAcceptFees `json:"fees,omitempty"`
	RejectReason string                 `json:"reject-reason,omitempty"`
}

// toResult translates the raw result into an AcceptResult.
func (r *testMempoolAcceptResult) toResult() (AcceptResult, error) {
	txid, err := chainhash.NewHashFromStr(r.TxID)
	if err != nil {
		return AcceptResult{}, err
	}
	wtxid, err := chainhash.NewHashFromStr(r.WTxID)
	if err != nil {
		return AcceptResult{}, err
	}

	result := AcceptResult{
		TxID:         *txid,
		WTxID:        *wtxid,
		Allowed:      r.Allowed,
		VSize:        r.VSize,
		RejectReason: r.RejectReason,
	}
	if result.RejectReason == "" {
		result.RejectReason = r.PackageError
	}
	if r.Fees != nil {
		result.Fee, err = btcutil.NewAmount(r.Fees.Base)
		if err != nil {
			return AcceptResult{}, err
		}
	}
	return result, nil
}

// submitPackageFees models the "fees" sub-object in a submitpackage
// response.  Values are in BTC.
type submitPackageFees struct {
	// Base is the absolute fee of this specific transaction.
	Base float64 `json:"base"`

	// EffectiveFeeRate is the transaction's effective feerate in BTC/kvB,
	// potentially considering package context.
	EffectiveFeeRate *float64 `json:"effective-feerate,omitempty"`

	// EffectiveIncludes lists the wtxids contributing to
	// EffectiveFeeRate.
	EffectiveIncludes []string `json:"effective-includes,omitempty"`
}

// submitPackageTxResult is the processing result for a single transaction
// within the package, keyed by its wtxid in the response map.
type submitPackageTxResult struct {
	TxID       string            `json:"txid"`
	OtherWTxID *string           `json:"other-wtxid,omitempty"`
	VSize      int64             `json:"vsize"`
	Fees       submitPackageFees `json:"fees"`
	Error      *string           `json:"error,omitempty"`
}

// submitPackageResult mirrors the JSON object returned by submitpackage.
type submitPackageResult struct {
	PackageMsg           string                           `json:"package_msg"`
	TxResults            map[string]submitPackageTxResult `json:"tx-results"`
	ReplacedTransactions []string                         `json:"replaced-transactions,omitempty"`
}

// toResult translates the txids and amounts of the raw result.
func (r *submitPackageResult) toResult() (*PackageResult, error) {
	result := &PackageResult{
		Message:   r.PackageMsg,
		TxResults: make(map[chainhash.Hash]PackageTxResult, len(r.TxResults)),
	}

	for wtxidStr, raw := range r.TxResults {
		wtxid, err := chainhash.NewHashFromStr(wtxidStr)
		if err != nil {
			return nil, fmt.Errorf("invalid wtxid %q: %w", wtxidStr,
				err)
		}
		txid, err := chainhash.NewHashFromStr(raw.TxID)
		if err != nil {
			return nil, fmt.Errorf("invalid txid %q: %w", raw.TxID,
				err)
		}
		fee, err := btcutil.NewAmount(raw.Fees.Base)
		if err != nil {
			return nil, err
		}

		txResult := PackageTxResult{
			TxID:  *txid,
			VSize: raw.VSize,
			Fee:   fee,
		}
		if raw.OtherWTxID != nil {
			txResult.OtherWTxID, err = chainhash.NewHashFromStr(
				*raw.OtherWTxID,
			)
			if err != nil {
				return nil, err
			}
		}
		if raw.Error != nil {
			txResult.Error = *raw.Error
		}
		result.TxResults[*wtxid] = txResult
	}

	replaced, err := parseHashes(r.ReplacedTransactions)
	if err != nil {
		return nil, err
	}
	result.Replaced = replaced

	return result, nil
}

// getNetworkInfoResult models the relay fee fields of getnetworkinfo.
type getNetworkInfoResult struct {
	Version        int64   `json:"version"`
	SubVersion     string  `json:"subversion"`
	RelayFee       float64 `json:"relayfee"`
	IncrementalFee float64 `json:"incrementalfee"`
}

// getBlockVerboseResult models getblock with verbosity 1.
type getBlockVerboseResult struct {
	Hash   string   `json:"hash"`
	Height int64    `json:"height"`
	Tx     []string `json:"tx"`
}

// getBalancesResult models the wallet balances returned by getbalances.
type getBalancesResult struct {
	Mine struct {
		Trusted          float64 `json:"trusted"`
		UntrustedPending float64 `json:"untrusted_pending"`
		Immature         float64 `json:"immature"`
	} `json:"mine"`
}

// getDescriptorInfoResult models the data returned by getdescriptorinfo.
type getDescriptorInfoResult struct {
	Descriptor string `json:"descriptor"`
	Checksum   string `json:"checksum"`
}

// importDescriptorRequest is one element of the importdescriptors request.
type importDescriptorRequest struct {
	Desc      string      `json:"desc"`
	Timestamp interface{} `json:"timestamp"`
	Label     string      `json:"label,omitempty"`
}

// importDescriptorResult is one element of the importdescriptors response.
type importDescriptorResult struct {
	Success bool `json:"success"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// parseHashes converts a list of hex hashes.
func parseHashes(strs []string) ([]chainhash.Hash, error) {
	if len(strs) == 0 {
		return nil, nil
	}
	hashes := make([]chainhash.Hash, 0, len(strs))
	for _, s := range strs {
		hash, err := chainhash.NewHashFromStr(s)
		if err != nil {
			return nil, fmt.Errorf("invalid hash %q: %w", s, err)
		}
		hashes = append(hashes, *hash)
	}
	return hashes, nil
}
